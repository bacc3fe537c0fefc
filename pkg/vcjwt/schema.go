package vcjwt

import (
	"github.com/xeipuuv/gojsonschema"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// ValidateAgainstSchema validates a credential's claims against the
// JSON Schema its credentialSchema.id names. Issuers call this before
// signing when the contents carry a schema reference; verifiers MAY
// re-run it on a parsed credential.
func ValidateAgainstSchema(credential codec.ClaimSet) error {
	schema, ok := credential["credentialSchema"].(map[string]interface{})
	if !ok {
		return vcerr.Usage("vcjwt: credential has no credentialSchema")
	}
	schemaID, ok := schema["id"].(string)
	if !ok || schemaID == "" {
		return vcerr.InvalidStructure("vcjwt: credentialSchema.id is required")
	}

	schemaLoader := gojsonschema.NewReferenceLoader(schemaID)
	credentialLoader := gojsonschema.NewGoLoader(credential)
	result, err := gojsonschema.Validate(schemaLoader, credentialLoader)
	if err != nil {
		return vcerr.Fetch("vcjwt: schema validation").Wrap(err)
	}
	if !result.Valid() {
		return vcerr.InvalidStructure("vcjwt: credential does not satisfy %s: %v", schemaID, result.Errors())
	}
	return nil
}

// ValidateAgainstSchemaJSON is ValidateAgainstSchema for callers that
// already hold the schema document, avoiding the reference fetch.
func ValidateAgainstSchemaJSON(credential codec.ClaimSet, schemaJSON []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	credentialLoader := gojsonschema.NewGoLoader(credential)
	result, err := gojsonschema.Validate(schemaLoader, credentialLoader)
	if err != nil {
		return vcerr.Parse("vcjwt: schema validation").Wrap(err)
	}
	if !result.Valid() {
		return vcerr.InvalidStructure("vcjwt: credential does not satisfy schema: %v", result.Errors())
	}
	return nil
}
