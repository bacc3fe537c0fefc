package mdoc

import (
	"bytes"

	"github.com/pilacorp/vc-engine/pkg/cose"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// VerifyIssuerAuth verifies IssuerSigned.IssuerAuth against the
// issuer's public key and returns the embedded MobileSecurityObject.
func (i *IssuerSigned) VerifyIssuerAuth(issuerPub interface{}) (*MobileSecurityObject, error) {
	if err := cose.Verify1(i.IssuerAuth, issuerPub); err != nil {
		return nil, err
	}
	return i.MobileSecurityObject()
}

// VerifyDigests re-digests every presented IssuerSignedItem and checks
// it against mso.ValueDigests. Namespaces/items absent from the
// presentation are simply not checked — that is the point of selective
// disclosure.
func (i *IssuerSigned) VerifyDigests(mso *MobileSecurityObject) error {
	for ns, items := range i.NameSpaces {
		nsDigests, ok := mso.ValueDigests[ns]
		if !ok {
			return vcerr.InvalidStructure("mdoc: namespace %q has no entry in valueDigests", ns)
		}
		for _, ib := range items {
			item, err := ib.Item()
			if err != nil {
				return err
			}
			want, ok := nsDigests[item.DigestID]
			if !ok {
				return vcerr.InvalidStructure("mdoc: digestID %d in namespace %q not committed", item.DigestID, ns)
			}
			got, err := ib.Digest()
			if err != nil {
				return err
			}
			if !bytes.Equal(got, want) {
				return vcerr.InvalidSignature("mdoc: digest mismatch for %q in namespace %q", item.ElementIdentifier, ns)
			}
		}
	}
	return nil
}

// ElementValues flattens every presented IssuerSignedItem into a
// namespace -> identifier -> value map for callers that just want the
// disclosed claims, not the digest machinery.
func (i *IssuerSigned) ElementValues() (map[NameSpace]map[ElementIdentifier]ElementValue, error) {
	out := map[NameSpace]map[ElementIdentifier]ElementValue{}
	for ns, items := range i.NameSpaces {
		values := map[ElementIdentifier]ElementValue{}
		for _, ib := range items {
			item, err := ib.Item()
			if err != nil {
				return nil, err
			}
			values[item.ElementIdentifier] = item.ElementValue
		}
		out[ns] = values
	}
	return out, nil
}

// VerifyDeviceAuthentication recomputes DeviceAuthentication bytes from
// the given SessionTranscript and checks the document's deviceSignature
// against the device key recorded in mso (the encrypted-response
// OID4VPHandover path).
func (d *Document) VerifyDeviceAuthentication(mso *MobileSecurityObject, sessionTranscript []byte) error {
	if d.DeviceSigned.DeviceAuth.DeviceSignature == nil {
		return vcerr.InvalidStructure("mdoc: document has no deviceSignature")
	}
	devicePub, err := DecodeCOSEKey(mso.DeviceKeyInfo.DeviceKey)
	if err != nil {
		return err
	}

	expected, err := BuildDeviceAuthenticationBytes(sessionTranscript, d.DocType, d.DeviceSigned.NameSpaces)
	if err != nil {
		return err
	}

	return cose.Verify1Detached(d.DeviceSigned.DeviceAuth.DeviceSignature, expected, devicePub)
}

// VerifyLegacyBareChallenge checks the backwards-compatible unencrypted
// path: deviceSignature.payload must equal utf8(nonce) exactly, with no
// session transcript involved.
func (d *Document) VerifyLegacyBareChallenge(mso *MobileSecurityObject, nonce string) error {
	sig := d.DeviceSigned.DeviceAuth.DeviceSignature
	if sig == nil {
		return vcerr.InvalidStructure("mdoc: document has no deviceSignature")
	}
	if !bytes.Equal(sig.Payload, []byte(nonce)) {
		return vcerr.InvalidStructure("mdoc: legacy device signature payload does not match nonce")
	}
	devicePub, err := DecodeCOSEKey(mso.DeviceKeyInfo.DeviceKey)
	if err != nil {
		return err
	}
	return cose.Verify1(sig, devicePub)
}
