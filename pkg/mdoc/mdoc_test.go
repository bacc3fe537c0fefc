package mdoc

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/vc-engine/pkg/vckey"
)

func issueTestDocument(t *testing.T) (*vckey.KeyMaterial, *vckey.KeyMaterial, *IssuerSigned) {
	t.Helper()
	issuer, err := vckey.New(vckey.RoleIssuer, vckey.AlgES256)
	require.NoError(t, err)
	holder, err := vckey.New(vckey.RoleHolder, vckey.AlgES256)
	require.NoError(t, err)

	input := IssueInput{
		DocType: "org.iso.18013.5.1.mDL",
		Namespaces: []NamespaceClaims{
			{
				Namespace: "org.iso.18013.5.1",
				Elements: []ElementClaim{
					{Identifier: "given_name", Value: "Erika"},
					{Identifier: "family_name", Value: "Mustermann"},
					{Identifier: "age_over_18", Value: true},
				},
			},
		},
		DeviceKey: holder.PublicKey().(*ecdsa.PublicKey),
		ValidFrom: ValidityInfo{
			Signed:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			ValidFrom:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			ValidUntil: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	issuerSigned, err := Issue(issuer, input)
	require.NoError(t, err)
	return issuer, holder, issuerSigned
}

func TestIssueVerifyDigests(t *testing.T) {
	issuer, _, issuerSigned := issueTestDocument(t)

	mso, err := issuerSigned.VerifyIssuerAuth(issuer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, DocType("org.iso.18013.5.1.mDL"), mso.DocType)

	require.NoError(t, issuerSigned.VerifyDigests(mso))
}

func TestSelectNamespacesHidesUnrequestedElements(t *testing.T) {
	issuer, _, issuerSigned := issueTestDocument(t)
	mso, err := issuerSigned.VerifyIssuerAuth(issuer.PublicKey())
	require.NoError(t, err)

	selected, err := SelectNamespaces(issuerSigned.NameSpaces, RequestedElements{
		"org.iso.18013.5.1": {"age_over_18"},
	})
	require.NoError(t, err)

	presented := IssuerSigned{NameSpaces: selected, IssuerAuth: issuerSigned.IssuerAuth}
	require.NoError(t, presented.VerifyDigests(mso))

	values, err := presented.ElementValues()
	require.NoError(t, err)
	assert.Len(t, values["org.iso.18013.5.1"], 1)
	assert.Equal(t, true, values["org.iso.18013.5.1"]["age_over_18"])
}

func TestSessionTranscriptAndDeviceAuthentication(t *testing.T) {
	_, holder, _ := issueTestDocument(t)

	transcript, err := BuildSessionTranscript("https://verifier.example/rp2", "https://verifier.example/cb", "mgn3", "n3")
	require.NoError(t, err)

	deviceNS, err := EmptyDeviceNameSpaces()
	require.NoError(t, err)

	daBytes, err := BuildDeviceAuthenticationBytes(transcript, "org.iso.18013.5.1.mDL", deviceNS)
	require.NoError(t, err)

	sig, err := SignDeviceAuthentication(holder, daBytes)
	require.NoError(t, err)

	doc := Document{
		DocType: "org.iso.18013.5.1.mDL",
		DeviceSigned: DeviceSigned{
			NameSpaces: deviceNS,
			DeviceAuth: DeviceAuth{DeviceSignature: sig},
		},
	}

	mso := &MobileSecurityObject{}
	coseKey, err := encodeCOSEKey(holder.PublicKey().(*ecdsa.PublicKey))
	require.NoError(t, err)
	mso.DeviceKeyInfo.DeviceKey = coseKey

	require.NoError(t, doc.VerifyDeviceAuthentication(mso, transcript))

	wrongTranscript, err := BuildSessionTranscript("https://verifier.example/rp2", "https://verifier.example/cb", "wrong-nonce", "n3")
	require.NoError(t, err)
	assert.Error(t, doc.VerifyDeviceAuthentication(mso, wrongTranscript))
}

func TestDeviceResponseRoundTrip(t *testing.T) {
	_, _, issuerSigned := issueTestDocument(t)
	resp := &DeviceResponse{Version: "1.0", Status: ResponseStatusOK, Documents: []Document{
		{DocType: "org.iso.18013.5.1.mDL", IssuerSigned: *issuerSigned},
	}}

	data, err := resp.Marshal()
	require.NoError(t, err)

	parsed, err := ParseDeviceResponse(data)
	require.NoError(t, err)

	doc, err := parsed.GetDocument("org.iso.18013.5.1.mDL")
	require.NoError(t, err)
	assert.Equal(t, DocType("org.iso.18013.5.1.mDL"), doc.DocType)
}
