// Package cbordata wraps fxamacker/cbor/v2 with the two conventions ISO
// 18013-5 mdoc data needs: a deterministic (core-deterministic, RFC 8949
// section 4.2.1) encoding mode, and the tag-24 "embedded CBOR" wrapping
// mdoc uses for IssuerSignedItem digests and DeviceAuthentication bytes.
// WrapTag24/UnwrapTag24 handle IssuerSignedItemBytes and the MSO payload;
// pkg/mdoc's BuildDeviceAuthenticationBytes builds its tag-24 items
// directly with the re-exported Tag type.
package cbordata

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// Tag24 number for "embedded CBOR data item" (RFC 8949 section 3.4.5.1).
const Tag24 = 24

var encMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic("cbordata: build canonical encode mode: " + err.Error())
	}
	encMode = m
}

// Marshal encodes v using the deterministic encoding mode mdoc's
// tagged-digest construction requires: map keys sorted, shortest-form
// integers, no indefinite-length items.
func Marshal(v interface{}) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, vcerr.Usage("cbordata: marshal").Wrap(err)
	}
	return b, nil
}

// Unmarshal decodes CBOR bytes of untrusted origin.
func Unmarshal(data []byte, v interface{}) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return vcerr.Parse("cbordata: unmarshal").Wrap(err)
	}
	return nil
}

// WrapTag24 encodes v and wraps the result in a tag-24 embedded-CBOR
// item, then encodes that tag deterministically. Used for
// IssuerSignedItemBytes digests and for the MobileSecurityObject payload
// of IssuerAuth.
func WrapTag24(v interface{}) ([]byte, error) {
	inner, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return Marshal(cbor.Tag{Number: Tag24, Content: inner})
}

// UnwrapTag24 decodes a tag-24 wrapped item and returns the embedded
// CBOR bytes without decoding them further, matching
// IssuerSigned.MobileSecurityObject's two-step unmarshal.
func UnwrapTag24(data []byte) ([]byte, error) {
	var tagged cbor.Tag
	if err := cbor.Unmarshal(data, &tagged); err != nil {
		return nil, vcerr.Parse("cbordata: unwrap tag24").Wrap(err)
	}
	if tagged.Number != Tag24 {
		return nil, vcerr.InvalidStructure("cbordata: expected tag 24, got %d", tagged.Number)
	}
	content, ok := tagged.Content.([]byte)
	if !ok {
		return nil, vcerr.InvalidStructure("cbordata: tag 24 content is not a byte string")
	}
	return content, nil
}

// RawMessage re-exports cbor.RawMessage so callers that need to defer
// decoding (IssuerSignedItemBytes, DeviceNameSpacesBytes) don't import
// fxamacker/cbor directly.
type RawMessage = cbor.RawMessage

// Tag re-exports cbor.Tag for callers building tag-24 wrappers inline.
type Tag = cbor.Tag
