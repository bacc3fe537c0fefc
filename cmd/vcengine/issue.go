package main

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pilacorp/vc-engine/pkg/agent"
	"github.com/pilacorp/vc-engine/pkg/cbordata"
	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/mdoc"
	"github.com/pilacorp/vc-engine/pkg/sdjwt"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vcjwt"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// bundle is the self-contained artifact the issue subcommand writes and
// present/verify read: the credential plus the two private keys the
// reference flows need. Mdoc credentials carry the CBOR issuerSigned
// base64url-encoded.
type bundle struct {
	Format       string `json:"format"`
	Credential   string `json:"credential"`
	DocType      string `json:"docType,omitempty"`
	IssuerKeyPEM string `json:"issuerKey"`
	HolderKeyPEM string `json:"holderKey"`
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a credential from a JSON claims file",
	RunE:  runIssue,
}

func init() {
	issueCmd.Flags().String("format", "jwt_vc", "credential format: jwt_vc, vc+sd-jwt, or mso_mdoc")
	issueCmd.Flags().String("claims", "", "path to a JSON object of subject claims (required)")
	issueCmd.Flags().String("issuer", "", "issuer identifier; defaults to the generated key's did:key")
	issueCmd.Flags().String("doctype", "org.iso.18013.5.1.mDL", "mdoc document type")
	issueCmd.Flags().String("namespace", "org.iso.18013.5.1", "mdoc namespace for the claims")
	issueCmd.Flags().Duration("validity", 24*time.Hour, "credential validity window")
	issueCmd.Flags().StringP("out", "o", "credential.json", "bundle output path")
	_ = issueCmd.MarkFlagRequired("claims")
}

func runIssue(cmd *cobra.Command, args []string) error {
	claimsPath, _ := cmd.Flags().GetString("claims")
	raw, err := os.ReadFile(claimsPath)
	if err != nil {
		return vcerr.Fetch("read claims file").Wrap(err)
	}
	var claims codec.ClaimSet
	if err := codec.UnmarshalJSON(raw, &claims); err != nil {
		return vcerr.Parse("claims file is not a JSON object").Wrap(err)
	}

	issuerKM, err := vckey.New(vckey.RoleIssuer, vckey.AlgES256)
	if err != nil {
		return err
	}
	holderKM, err := vckey.New(vckey.RoleHolder, vckey.AlgES256)
	if err != nil {
		return err
	}

	issuerID, _ := cmd.Flags().GetString("issuer")
	if issuerID == "" {
		if issuerID, err = issuerKM.SelfID(); err != nil {
			return err
		}
	}
	holderID, err := holderKM.SelfID()
	if err != nil {
		return err
	}

	validity, _ := cmd.Flags().GetDuration("validity")
	now := time.Now().Truncate(time.Second)
	issuer := agent.NewIssuer(issuerKM, jose.New())

	b := bundle{}
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "jwt_vc":
		subject := codec.ClaimSet{"id": holderID}
		for k, v := range claims {
			subject[k] = v
		}
		token, err := issuer.IssueVCJWT(vcjwt.CredentialContents{
			Context:           []interface{}{"https://www.w3.org/ns/credentials/v2"},
			ID:                "urn:uuid:" + newID(),
			Type:              []string{"VerifiableCredential"},
			Issuer:            issuerID,
			ValidFrom:         now,
			ValidUntil:        now.Add(validity),
			CredentialSubject: subject,
		})
		if err != nil {
			return err
		}
		b.Credential = token
	case "vc+sd-jwt":
		selective := make([]sdjwt.Selective, 0, len(claims))
		for name, value := range claims {
			selective = append(selective, sdjwt.Selective{Name: name, Value: value})
		}
		issued, err := issuer.IssueSDJWT(agent.SDJWTInput{
			Issuer:     issuerID,
			Subject:    holderID,
			ID:         "urn:uuid:" + newID(),
			ValidFrom:  now,
			ValidUntil: now.Add(validity),
			Selective:  selective,
			HolderKey:  holderKM,
		})
		if err != nil {
			return err
		}
		b.Credential = issued.Combined
	case "mso_mdoc":
		docType, _ := cmd.Flags().GetString("doctype")
		namespace, _ := cmd.Flags().GetString("namespace")
		elements := make([]mdoc.ElementClaim, 0, len(claims))
		for name, value := range claims {
			elements = append(elements, mdoc.ElementClaim{Identifier: mdoc.ElementIdentifier(name), Value: value})
		}
		issuerSigned, err := issuer.IssueMdoc(mdoc.IssueInput{
			DocType: mdoc.DocType(docType),
			Namespaces: []mdoc.NamespaceClaims{
				{Namespace: mdoc.NameSpace(namespace), Elements: elements},
			},
			DeviceKey: holderKM.PublicKey().(*ecdsa.PublicKey),
			ValidFrom: mdoc.ValidityInfo{Signed: now.UTC(), ValidFrom: now.UTC(), ValidUntil: now.Add(validity).UTC()},
		})
		if err != nil {
			return err
		}
		encoded, err := cbordata.Marshal(issuerSigned)
		if err != nil {
			return err
		}
		b.Credential = codec.B64URL(encoded)
		b.DocType = docType
	default:
		return vcerr.Usage("unknown format %q", format)
	}

	b.Format = format
	if b.IssuerKeyPEM, err = marshalKey(issuerKM); err != nil {
		return err
	}
	if b.HolderKeyPEM, err = marshalKey(holderKM); err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	encoded, err := codec.MarshalJSON(b)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, encoded, 0o600); err != nil {
		return vcerr.Fetch("write bundle").Wrap(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "issued %s credential to %s\n", format, out)
	return nil
}

func newID() string {
	random, err := (vckey.Provider{}).Random(16)
	if err != nil {
		return "00000000"
	}
	return codec.B64URL(random)
}
