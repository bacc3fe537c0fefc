// Package mdoc implements ISO/IEC 18013-5 mdoc: IssuerSigned, the
// MobileSecurityObject it commits to, DeviceResponse presentation, and
// the OpenID4VP device-authentication binding.
//
// The CBOR struct shapes mirror the CDDL in ISO 18013-5 section 8,
// generalized from a read-only verifier
// slant to also build and sign these structures on the issuer/holder
// side, through pkg/cose/pkg/cbordata rather than a direct
// veraison/go-cose+fxamacker/cbor dependency at the call site.
package mdoc

import (
	"time"

	gocose "github.com/veraison/go-cose"

	"github.com/pilacorp/vc-engine/pkg/cbordata"
)

type DocType string

type NameSpace string

type ElementIdentifier string

type ElementValue interface{}

// TypeCodecRegistry maps (namespace, claim name) to a decode hint for
// that element's CBOR value, replacing the "global CBOR credential
// serializer registry" pattern: it
// is a plain value the caller constructs and keeps, never package-level
// mutable state. No function in this package takes a registry: Issue,
// SelectNamespaces and ElementValues leave every element's decoded Go
// type to cbor.Unmarshal's default `interface{}` inference.
type TypeCodecRegistry map[NameSpace]map[ElementIdentifier]Codec

// Codec names how one element's value should be interpreted once
// decoded from CBOR; used only as a hint to callers (e.g. presenting a
// birth date as time.Time vs. RFC 3339 string) since this module never
// type-checks element values against it.
type Codec string

const (
	CodecString Codec = "string"
	CodecInt    Codec = "int"
	CodecBool   Codec = "bool"
	CodecDate   Codec = "full-date"
)

// NewTypeCodecRegistry constructs an empty registry; callers populate it
// and simply let it go out of scope at teardown — there is no
// process-wide state to unwind.
func NewTypeCodecRegistry() TypeCodecRegistry {
	return TypeCodecRegistry{}
}

func (r TypeCodecRegistry) Register(ns NameSpace, id ElementIdentifier, c Codec) {
	if r[ns] == nil {
		r[ns] = map[ElementIdentifier]Codec{}
	}
	r[ns][id] = c
}

// IssuerSignedItem is one disclosed-or-not claim inside a namespace,
// committed to by a digest in the MSO's valueDigests table.
type IssuerSignedItem struct {
	DigestID          uint              `cbor:"digestID"`
	Random            []byte            `cbor:"random"`
	ElementIdentifier ElementIdentifier `cbor:"elementIdentifier"`
	ElementValue      ElementValue      `cbor:"elementValue"`
}

// IssuerSignedItemBytes is one namespace entry exactly as it sits on
// the wire: the tag-24 "bstr .cbor IssuerSignedItem" wrapping from the
// ISO CDDL. Digest hashes these bytes directly; Item unwraps the tag to
// decode the item underneath.
type IssuerSignedItemBytes cbordata.RawMessage

func (b IssuerSignedItemBytes) Item() (IssuerSignedItem, error) {
	inner, err := cbordata.UnwrapTag24([]byte(b))
	if err != nil {
		return IssuerSignedItem{}, err
	}
	var item IssuerSignedItem
	if err := cbordata.Unmarshal(inner, &item); err != nil {
		return IssuerSignedItem{}, err
	}
	return item, nil
}

// Digest computes sha256(tag24_bytes), the value valueDigests[ns][id]
// must equal for the item to count as issuer-authenticated.
func (b IssuerSignedItemBytes) Digest() ([]byte, error) {
	return sha256Sum([]byte(b)), nil
}

// newIssuerSignedItemBytes tag-24-wraps an encoded IssuerSignedItem,
// producing the wire form Digest hashes directly.
func newIssuerSignedItemBytes(item IssuerSignedItem) (IssuerSignedItemBytes, error) {
	b, err := cbordata.WrapTag24(item)
	if err != nil {
		return nil, err
	}
	return IssuerSignedItemBytes(b), nil
}

// IssuerNameSpaces is the on-the-wire shape of IssuerSigned.NameSpaces:
// one tag-24-wrapped IssuerSignedItem per disclosed element, grouped by
// namespace.
type IssuerNameSpaces map[NameSpace][]IssuerSignedItemBytes

// IssuerSigned is the issuer-signed portion of an mdoc: every namespace's
// items plus the COSE_Sign1 "issuerAuth" committing to them via the MSO.
type IssuerSigned struct {
	NameSpaces IssuerNameSpaces               `cbor:"nameSpaces"`
	IssuerAuth *gocose.UntaggedSign1Message `cbor:"issuerAuth"`
}

// COSEKey is the CBOR COSE_Key shape (RFC 9053 section 7) MSO's
// deviceKeyInfo.deviceKey and a device's ephemeral agreement key both
// use.
type COSEKey struct {
	Kty       int             `cbor:"1,keyasint"`
	Kid       []byte          `cbor:"2,keyasint,omitempty"`
	Alg       int             `cbor:"3,keyasint,omitempty"`
	CrvOrNOrK cbordata.RawMessage `cbor:"-1,keyasint,omitempty"`
	XOrE      cbordata.RawMessage `cbor:"-2,keyasint,omitempty"`
	Y         cbordata.RawMessage `cbor:"-3,keyasint,omitempty"`
}

const (
	coseKtyEC2 = 2
	coseCrvP256 = 1
	coseCrvP384 = 2
	coseCrvP521 = 3
)

// DeviceKeyInfo carries the holder's device key and the
// (empty-by-default) authorization/info extensions ISO 18013-5 defines.
type DeviceKeyInfo struct {
	DeviceKey         COSEKey           `cbor:"deviceKey"`
	KeyAuthorizations KeyAuthorizations `cbor:"keyAuthorizations,omitempty"`
	KeyInfo           KeyInfo           `cbor:"keyInfo,omitempty"`
}

type KeyAuthorizations struct {
	NameSpaces   []string            `cbor:"nameSpaces,omitempty"`
	DataElements map[string][]string `cbor:"dataElements,omitempty"`
}

type KeyInfo map[int]interface{}

type ValueDigests map[NameSpace]DigestIDs

type DigestIDs map[uint]Digest

type Digest []byte

type ValidityInfo struct {
	Signed     time.Time `cbor:"signed"`
	ValidFrom  time.Time `cbor:"validFrom"`
	ValidUntil time.Time `cbor:"validUntil"`
}

// MobileSecurityObject is the issuer's signed commitment to every
// IssuerSignedItem, carried as IssuerAuth's attached payload.
type MobileSecurityObject struct {
	Version         string        `cbor:"version"`
	DigestAlgorithm string        `cbor:"digestAlgorithm"`
	ValueDigests    ValueDigests  `cbor:"valueDigests"`
	DeviceKeyInfo   DeviceKeyInfo `cbor:"deviceKeyInfo"`
	DocType         DocType       `cbor:"docType"`
	ValidityInfo    ValidityInfo  `cbor:"validityInfo"`
}

// DeviceNameSpacesBytes defers decoding of device-self-asserted elements
// (rarely used by this module's scenarios, kept for shape completeness).
type DeviceNameSpacesBytes cbordata.RawMessage

type DeviceNameSpaces map[NameSpace]DeviceSignedItems

type DeviceSignedItems map[ElementIdentifier]ElementValue

// DeviceAuth carries exactly one of DeviceSignature or DeviceMac, per
// ISO 18013-5's deviceAuth CDDL; this module only ever produces/expects
// DeviceSignature — device binding is a COSE_Sign1, never a COSE_Mac0.
type DeviceAuth struct {
	DeviceSignature *gocose.UntaggedSign1Message `cbor:"deviceSignature,omitempty"`
	DeviceMac       *gocose.UntaggedSign1Message `cbor:"deviceMac,omitempty"`
}

type DeviceSigned struct {
	NameSpaces DeviceNameSpacesBytes `cbor:"nameSpaces"`
	DeviceAuth DeviceAuth            `cbor:"deviceAuth"`
}

type Document struct {
	DocType      DocType      `cbor:"docType"`
	IssuerSigned IssuerSigned `cbor:"issuerSigned"`
	DeviceSigned DeviceSigned `cbor:"deviceSigned"`
}

type DocumentError map[DocType]int

// DeviceResponse bundles every presented document, the top-level CBOR
// structure an OpenID4VP mso_mdoc vp_token decodes to.
type DeviceResponse struct {
	Version        string          `cbor:"version"`
	Documents      []Document      `cbor:"documents,omitempty"`
	DocumentErrors []DocumentError `cbor:"documentErrors,omitempty"`
	Status         uint            `cbor:"status"`
}

const ResponseStatusOK uint = 0
