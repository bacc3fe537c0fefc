package jose

import "encoding/base64"

// stdB64Decode decodes standard (padded) base64, the alphabet RFC 7515
// section 4.1.6 mandates for "x5c" entries even though every other JOSE
// segment uses base64url.
func stdB64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
