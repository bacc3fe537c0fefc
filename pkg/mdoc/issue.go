package mdoc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"math/big"

	"github.com/pilacorp/vc-engine/pkg/cbordata"
	"github.com/pilacorp/vc-engine/pkg/cose"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

func sha256Sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// NamespaceClaims is the issuer's plaintext input for one namespace: an
// ordered list of (elementIdentifier, elementValue) pairs. Order
// determines digestID allocation only; it is not otherwise meaningful.
type NamespaceClaims struct {
	Namespace NameSpace
	Elements  []ElementClaim
}

type ElementClaim struct {
	Identifier ElementIdentifier
	Value      ElementValue
}

// IssueInput is everything Issue needs to build one mdoc document.
type IssueInput struct {
	DocType    DocType
	Namespaces []NamespaceClaims
	DeviceKey  *ecdsa.PublicKey
	ValidFrom  ValidityInfo
}

// Issue builds an IssuerSignedItem (with a fresh 16-byte random value
// and a monotonically allocated digestID) for each claim, digests each
// one into valueDigests, and signs the resulting MobileSecurityObject as
// issuerAuth with km.
func Issue(km *vckey.KeyMaterial, input IssueInput) (*IssuerSigned, error) {
	nameSpaces := IssuerNameSpaces{}
	valueDigests := ValueDigests{}

	for _, ns := range input.Namespaces {
		items := make([]IssuerSignedItemBytes, 0, len(ns.Elements))
		digests := DigestIDs{}

		for digestID, el := range ns.Elements {
			random, err := (vckey.Provider{}).Random(16)
			if err != nil {
				return nil, err
			}
			item := IssuerSignedItem{
				DigestID:          uint(digestID),
				Random:            random,
				ElementIdentifier: el.Identifier,
				ElementValue:      el.Value,
			}
			ib, err := newIssuerSignedItemBytes(item)
			if err != nil {
				return nil, err
			}
			items = append(items, ib)

			digest, err := ib.Digest()
			if err != nil {
				return nil, err
			}
			digests[uint(digestID)] = digest
		}

		nameSpaces[ns.Namespace] = items
		valueDigests[ns.Namespace] = digests
	}

	deviceKey, err := encodeCOSEKey(input.DeviceKey)
	if err != nil {
		return nil, err
	}

	mso := MobileSecurityObject{
		Version:         "1.0",
		DigestAlgorithm: "SHA-256",
		ValueDigests:    valueDigests,
		DeviceKeyInfo:   DeviceKeyInfo{DeviceKey: deviceKey},
		DocType:         input.DocType,
		ValidityInfo:    input.ValidFrom,
	}

	payload, err := cbordata.WrapTag24(mso)
	if err != nil {
		return nil, err
	}

	issuerAuth, err := cose.Sign1(km, payload, nil, nil)
	if err != nil {
		return nil, err
	}

	return &IssuerSigned{NameSpaces: nameSpaces, IssuerAuth: issuerAuth}, nil
}

// MobileSecurityObject decodes issuerAuth's tag-24-wrapped payload.
func (i *IssuerSigned) MobileSecurityObject() (*MobileSecurityObject, error) {
	inner, err := cbordata.UnwrapTag24(i.IssuerAuth.Payload)
	if err != nil {
		return nil, err
	}
	var mso MobileSecurityObject
	if err := cbordata.Unmarshal(inner, &mso); err != nil {
		return nil, err
	}
	return &mso, nil
}

func encodeCOSEKey(pub *ecdsa.PublicKey) (COSEKey, error) {
	var crv int
	switch pub.Curve.Params().Name {
	case "P-256":
		crv = coseCrvP256
	case "P-384":
		crv = coseCrvP384
	case "P-521":
		crv = coseCrvP521
	default:
		return COSEKey{}, vcerr.Usage("mdoc: unsupported device key curve %s", pub.Curve.Params().Name)
	}

	size := (pub.Curve.Params().BitSize + 7) / 8
	xBytes := make([]byte, size)
	yBytes := make([]byte, size)
	pub.X.FillBytes(xBytes)
	pub.Y.FillBytes(yBytes)

	crvCBOR, err := cbordata.Marshal(crv)
	if err != nil {
		return COSEKey{}, err
	}
	xCBOR, err := cbordata.Marshal(xBytes)
	if err != nil {
		return COSEKey{}, err
	}
	yCBOR, err := cbordata.Marshal(yBytes)
	if err != nil {
		return COSEKey{}, err
	}

	return COSEKey{
		Kty:       coseKtyEC2,
		CrvOrNOrK: crvCBOR,
		XOrE:      xCBOR,
		Y:         yCBOR,
	}, nil
}

// DecodeCOSEKey inverts encodeCOSEKey, recovering the device's public
// key from an MSO's deviceKeyInfo.deviceKey.
func DecodeCOSEKey(key COSEKey) (*ecdsa.PublicKey, error) {
	var crv int
	if err := cbordata.Unmarshal(key.CrvOrNOrK, &crv); err != nil {
		return nil, vcerr.Parse("mdoc: decode cose key crv").Wrap(err)
	}
	var xBytes, yBytes []byte
	if err := cbordata.Unmarshal(key.XOrE, &xBytes); err != nil {
		return nil, vcerr.Parse("mdoc: decode cose key x").Wrap(err)
	}
	if err := cbordata.Unmarshal(key.Y, &yBytes); err != nil {
		return nil, vcerr.Parse("mdoc: decode cose key y").Wrap(err)
	}

	curve, err := curveForCOSECrv(crv)
	if err != nil {
		return nil, err
	}

	pub := &ecdsa.PublicKey{Curve: curve}
	pub.X, pub.Y = bytesToInt(xBytes), bytesToInt(yBytes)
	return pub, nil
}

func curveForCOSECrv(crv int) (elliptic.Curve, error) {
	switch crv {
	case coseCrvP256:
		return elliptic.P256(), nil
	case coseCrvP384:
		return elliptic.P384(), nil
	case coseCrvP521:
		return elliptic.P521(), nil
	default:
		return nil, vcerr.Usage("mdoc: unsupported cose key crv %d", crv)
	}
}

func bytesToInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}
