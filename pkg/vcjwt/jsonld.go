package vcjwt

import (
	"github.com/piprate/json-gold/ld"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// documentLoader caches remote @context documents across calls so
// repeated validations of credentials sharing the W3C core context do
// one fetch at most.
var documentLoader ld.DocumentLoader = ld.NewCachingDocumentLoader(ld.NewDefaultDocumentLoader(nil))

// SetDocumentLoader replaces the process-wide JSON-LD context loader,
// letting tests and offline deployments serve contexts from a bundle.
func SetDocumentLoader(loader ld.DocumentLoader) {
	documentLoader = loader
}

// ExpandContexts runs JSON-LD expansion over the embedded vc claim,
// which fails when an @context is unreachable or a term does not map.
// This is the data-model-level validation the W3C VC JSON-LD form
// requires on top of the JWT envelope checks in Verify.
func ExpandContexts(credential codec.ClaimSet) ([]interface{}, error) {
	proc := ld.NewJsonLdProcessor()
	options := ld.NewJsonLdOptions("")
	options.DocumentLoader = documentLoader

	expanded, err := proc.Expand(map[string]interface{}(credential), options)
	if err != nil {
		return nil, vcerr.InvalidStructure("vcjwt: json-ld expansion failed").Wrap(err)
	}
	if len(expanded) == 0 {
		return nil, vcerr.InvalidStructure("vcjwt: credential expands to nothing; check @context")
	}
	return expanded, nil
}
