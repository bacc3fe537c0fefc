package cose

import (
	gocose "github.com/veraison/go-cose"

	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// Sign1Detached builds a COSE_Sign1 the same way Sign1 does but strips
// the payload from the returned message before handing it back, the
// detached-payload form RFC 9052 section 4.1 allows and mdoc's
// DeviceAuthentication always uses: the
// signature still commits to payload via the Sig_structure, it is just
// not carried on the wire a second time.
func Sign1Detached(km *vckey.KeyMaterial, payload []byte, certChain [][]byte, kid []byte) (*gocose.UntaggedSign1Message, error) {
	msg, err := Sign1(km, payload, certChain, kid)
	if err != nil {
		return nil, err
	}
	msg.Payload = nil
	return msg, nil
}

// Verify1Detached verifies msg against a payload supplied out-of-band
// (the caller having recomputed it, e.g. DeviceAuthentication bytes from
// a SessionTranscript), the inverse of Sign1Detached.
func Verify1Detached(msg *gocose.UntaggedSign1Message, payload []byte, pub interface{}) error {
	msg.Payload = payload
	return Verify1(msg, pub)
}
