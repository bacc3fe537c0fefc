// Package openid4vp implements the OpenID4VP/SIOPv2 verifier side:
// authentication-request construction across the four client-id
// schemes and four request-construction modes, response-mode routing
// (fragment/query/direct_post/direct_post.jwt), DIF Presentation
// Exchange v2 evaluation, and the response-validation state machine
// that dispatches each presented credential to vcjwt/sdjwt/mdoc.
//
// PEX evaluation covers both "select a presented VP's embedded
// credential" and "evaluate a holder's candidate claim sets against a
// verifier's
// presentation_definition" since this module's PEX consumer is the
// Holder deciding what to disclose, not only the Verifier parsing a VP.
package openid4vp

import "github.com/pilacorp/vc-engine/pkg/codec"

// PresentationDefinition is the DIF PEX v2 object a verifier embeds in
// its authentication request.
type PresentationDefinition struct {
	ID                     string                   `json:"id"`
	Name                   string                   `json:"name,omitempty"`
	Purpose                string                   `json:"purpose,omitempty"`
	InputDescriptors       []InputDescriptor        `json:"input_descriptors"`
	SubmissionRequirements []SubmissionRequirement  `json:"submission_requirements,omitempty"`
}

type InputDescriptor struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Purpose     string      `json:"purpose,omitempty"`
	Group       []string    `json:"group,omitempty"`
	Format      Format      `json:"format,omitempty"`
	Constraints Constraints `json:"constraints"`
}

// Selection is a DIF PEX submission_requirement rule: either every
// descriptor in the named group ("all") or a bounded subset of them
// ("pick").
type Selection string

const (
	SelectionAll  Selection = "all"
	SelectionPick Selection = "pick"
)

type SubmissionRequirement struct {
	Name       string                   `json:"name,omitempty"`
	Purpose    string                   `json:"purpose,omitempty"`
	Rule       Selection                `json:"rule"`
	Count      int                      `json:"count,omitempty"`
	Min        int                      `json:"min,omitempty"`
	Max        int                      `json:"max,omitempty"`
	From       string                   `json:"from,omitempty"`
	FromNested []SubmissionRequirement  `json:"from_nested,omitempty"`
}

type Constraints struct {
	LimitDisclosure string      `json:"limit_disclosure,omitempty"`
	Fields          []PathField `json:"fields,omitempty"`
}

type PathField struct {
	ID       string   `json:"id,omitempty"`
	Path     []string `json:"path"`
	Purpose  string   `json:"purpose,omitempty"`
	Filter   *Filter  `json:"filter,omitempty"`
	Optional bool     `json:"optional,omitempty"`
}

type Filter struct {
	Type    string `json:"type,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

// Format names, per credential representation, the accepted alg/proof
// types. The three members the engine issues/verifies are mso_mdoc,
// jwt_vc (VC-JWT), and vc+sd-jwt (SD-JWT VC).
type Format struct {
	MsoMdoc   *AlgConstraint `json:"mso_mdoc,omitempty"`
	JwtVC     *AlgConstraint `json:"jwt_vc,omitempty"`
	JwtVCJSON *AlgConstraint `json:"jwt_vc_json,omitempty"`
	VCSDJWT   *AlgConstraint `json:"vc+sd-jwt,omitempty"`
}

type AlgConstraint struct {
	Alg []string `json:"alg,omitempty"`
}

// PresentationSubmission is the holder's response-side declaration of
// which descriptor each vp_token element answers.
type PresentationSubmission struct {
	ID            string               `json:"id"`
	DefinitionID  string               `json:"definition_id"`
	DescriptorMap []DescriptorMapEntry `json:"descriptor_map"`
}

type DescriptorMapEntry struct {
	ID         string               `json:"id"`
	Format     string               `json:"format"`
	Path       string               `json:"path"`
	PathNested *DescriptorMapEntry  `json:"path_nested,omitempty"`
}

// CumulativePath concatenates this entry's path with every nested
// entry's path stripped of its leading "$". PEX
// paths are always of the form "$[...]" or "$.foo[...]"; dropping the
// leading "$" of a nested segment and appending it to the parent is
// what makes the concatenation re-root at the parent's selected value.
func (e DescriptorMapEntry) CumulativePath() string {
	path := e.Path
	cur := e.PathNested
	for cur != nil {
		if len(cur.Path) > 1 {
			path += cur.Path[1:]
		}
		cur = cur.PathNested
	}
	return path
}

// ClaimSet is re-exported for callers building candidate credential
// claim sets to match against a PresentationDefinition.
type ClaimSet = codec.ClaimSet
