package mdoc

import (
	"github.com/pilacorp/vc-engine/pkg/cbordata"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// GetDocument returns the first document of the given docType.
func (d *DeviceResponse) GetDocument(docType DocType) (*Document, error) {
	for i := range d.Documents {
		if d.Documents[i].DocType == docType {
			return &d.Documents[i], nil
		}
	}
	return nil, vcerr.InvalidStructure("mdoc: no document with docType %q", docType)
}

// Marshal encodes a DeviceResponse to the CBOR bytes an OpenID4VP
// mso_mdoc-format vp_token carries (base64url-encoded by the caller).
func (d *DeviceResponse) Marshal() ([]byte, error) {
	return cbordata.Marshal(d)
}

// ParseDeviceResponse decodes the CBOR bytes of an mso_mdoc vp_token
// into a DeviceResponse, the inverse of Marshal.
func ParseDeviceResponse(data []byte) (*DeviceResponse, error) {
	var d DeviceResponse
	if err := cbordata.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
