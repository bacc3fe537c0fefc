package mdoc

import (
	gocose "github.com/veraison/go-cose"

	"github.com/pilacorp/vc-engine/pkg/cbordata"
	"github.com/pilacorp/vc-engine/pkg/cose"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// RequestedElements names, per namespace, which elements a verifier's
// presentation definition asked for; SelectNamespaces keeps only those
// IssuerSignedItems, leaving every other digest authenticated-but-hidden.
type RequestedElements map[NameSpace][]ElementIdentifier

// SelectNamespaces filters full down to only the items named in
// requested, preserving each item's original digestID.
func SelectNamespaces(full IssuerNameSpaces, requested RequestedElements) (IssuerNameSpaces, error) {
	out := IssuerNameSpaces{}
	for ns, ids := range requested {
		items, ok := full[ns]
		if !ok {
			return nil, vcerr.InvalidStructure("mdoc: requested namespace %q not issued", ns)
		}
		wanted := make(map[ElementIdentifier]struct{}, len(ids))
		for _, id := range ids {
			wanted[id] = struct{}{}
		}
		var selected []IssuerSignedItemBytes
		for _, ib := range items {
			item, err := ib.Item()
			if err != nil {
				return nil, err
			}
			if _, want := wanted[item.ElementIdentifier]; want {
				selected = append(selected, ib)
			}
		}
		out[ns] = selected
	}
	return out, nil
}

// ClientIDToHash and ResponseURIToHash are the two CBOR arrays
// OID4VPHandover hashes into the session transcript (OpenID4VP over
// ISO 18013-7 annex B).
type ClientIDToHash struct {
	ClientID          string
	MdocGeneratedNonce string
}

func (c ClientIDToHash) hash() ([]byte, error) {
	b, err := cbordata.Marshal([]interface{}{c.ClientID, c.MdocGeneratedNonce})
	if err != nil {
		return nil, err
	}
	return sha256Sum(b), nil
}

type ResponseURIToHash struct {
	ResponseURI        string
	MdocGeneratedNonce string
}

func (r ResponseURIToHash) hash() ([]byte, error) {
	b, err := cbordata.Marshal([]interface{}{r.ResponseURI, r.MdocGeneratedNonce})
	if err != nil {
		return nil, err
	}
	return sha256Sum(b), nil
}

// BuildSessionTranscript computes the OID4VPHandover SessionTranscript
// CBOR bytes: [null, null, ["OID4VPHandover", hash(clientIdToHash),
// hash(responseUriToHash), nonce]].
func BuildSessionTranscript(clientID, responseURI, mdocGeneratedNonce, nonce string) ([]byte, error) {
	clientHash, err := ClientIDToHash{ClientID: clientID, MdocGeneratedNonce: mdocGeneratedNonce}.hash()
	if err != nil {
		return nil, err
	}
	responseHash, err := ResponseURIToHash{ResponseURI: responseURI, MdocGeneratedNonce: mdocGeneratedNonce}.hash()
	if err != nil {
		return nil, err
	}
	handover := []interface{}{"OID4VPHandover", clientHash, responseHash, nonce}
	return cbordata.Marshal([]interface{}{nil, nil, handover})
}

// BuildDeviceAuthenticationBytes constructs the detached payload a
// device COSE_Sign1 signs: tag24(["DeviceAuthentication",
// sessionTranscript, docType, deviceNameSpacesBytes]) per ISO 18013-5
// section 9.1.3.
func BuildDeviceAuthenticationBytes(sessionTranscript []byte, docType DocType, deviceNameSpaces DeviceNameSpacesBytes) ([]byte, error) {
	arr := []interface{}{
		"DeviceAuthentication",
		cbordata.RawMessage(sessionTranscript),
		docType,
		cbordata.Tag{Number: cbordata.Tag24, Content: []byte(deviceNameSpaces)},
	}
	inner, err := cbordata.Marshal(arr)
	if err != nil {
		return nil, err
	}
	return cbordata.Marshal(cbordata.Tag{Number: cbordata.Tag24, Content: inner})
}

// EmptyDeviceNameSpaces is the CBOR-encoded empty map mdoc
// presentations use when the device asserts no self-signed elements of
// its own — the common case for a pure issuer-data presentation. The
// bytes are not tag-24-wrapped; BuildDeviceAuthenticationBytes adds that
// wrapping.
func EmptyDeviceNameSpaces() (DeviceNameSpacesBytes, error) {
	b, err := cbordata.Marshal(DeviceNameSpaces{})
	if err != nil {
		return nil, err
	}
	return DeviceNameSpacesBytes(b), nil
}

// SignDeviceAuthentication signs the detached DeviceAuthentication
// payload with the holder's device key, producing the encrypted-response
// path's deviceSignature.
func SignDeviceAuthentication(km *vckey.KeyMaterial, deviceAuthBytes []byte) (*gocose.UntaggedSign1Message, error) {
	return cose.Sign1Detached(km, deviceAuthBytes, nil, nil)
}

// SignLegacyBareChallenge produces the pre-OID4VPHandover device
// signature kept for backwards compatibility: a
// COSE_Sign1 whose payload is literally utf8(nonce) rather than a
// SessionTranscript-bound DeviceAuthentication. New deployments should
// always use encrypted responses and SignDeviceAuthentication instead.
func SignLegacyBareChallenge(km *vckey.KeyMaterial, nonce string) (*gocose.UntaggedSign1Message, error) {
	return cose.Sign1(km, []byte(nonce), nil, nil)
}
