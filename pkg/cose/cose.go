// Package cose builds and verifies COSE_Sign1 structures (RFC 9052)
// over pkg/vckey's signature primitives, the format mdoc's IssuerAuth
// and DeviceAuth.DeviceSignature both use, driving veraison/go-cose's
// Sign1Message.Sign/Verify underneath.
package cose

import (
	"crypto"
	"crypto/rand"
	"io"

	gocose "github.com/veraison/go-cose"

	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// signerAdapter and verifierAdapter route go-cose's Signer/Verifier
// interfaces through vckey.Provider instead of go-cose's own built-in
// crypto, keeping every signature in the module produced by the one
// crypto boundary.
type signerAdapter struct {
	alg  gocose.Algorithm
	kalg vckey.Alg
	priv crypto.PrivateKey
	p    *vckey.Provider
}

func (s *signerAdapter) Algorithm() gocose.Algorithm { return s.alg }

func (s *signerAdapter) Sign(_ io.Reader, content []byte) ([]byte, error) {
	return s.p.Sign(s.kalg, content, s.priv)
}

type verifierAdapter struct {
	alg  gocose.Algorithm
	kalg vckey.Alg
	pub  crypto.PublicKey
	p    *vckey.Provider
}

func (v *verifierAdapter) Algorithm() gocose.Algorithm { return v.alg }

func (v *verifierAdapter) Verify(content, signature []byte) error {
	if !v.p.Verify(v.kalg, content, signature, v.pub) {
		return vcerr.InvalidSignature("cose: signature verification failed")
	}
	return nil
}

func coseAlgorithm(alg vckey.Alg) (gocose.Algorithm, error) {
	switch alg {
	case vckey.AlgES256:
		return gocose.AlgorithmES256, nil
	case vckey.AlgES384:
		return gocose.AlgorithmES384, nil
	case vckey.AlgES512:
		return gocose.AlgorithmES512, nil
	default:
		return 0, vcerr.Usage("cose: unsupported algorithm %s", alg)
	}
}

// Sign1 builds an untagged COSE_Sign1 over payload, signing with km and
// setting x5chain in the unprotected header when certChain is non-nil —
// the shape mdoc's IssuerAuth and DeviceAuth.DeviceSignature both use
// (ISO 18013-5 requires the untagged form there).
func Sign1(km *vckey.KeyMaterial, payload []byte, certChain [][]byte, kid []byte) (*gocose.UntaggedSign1Message, error) {
	algID, err := coseAlgorithm(km.Alg())
	if err != nil {
		return nil, err
	}

	msg := &gocose.UntaggedSign1Message{
		Headers: gocose.Headers{
			Protected:   gocose.ProtectedHeader{gocose.HeaderLabelAlgorithm: algID},
			Unprotected: gocose.UnprotectedHeader{},
		},
		Payload: payload,
	}
	if len(kid) > 0 {
		msg.Headers.Protected[gocose.HeaderLabelKeyID] = kid
	}
	if len(certChain) == 1 {
		msg.Headers.Unprotected[gocose.HeaderLabelX5Chain] = certChain[0]
	} else if len(certChain) > 1 {
		msg.Headers.Unprotected[gocose.HeaderLabelX5Chain] = certChain
	}

	signer := &signerAdapter{alg: algID, kalg: km.Alg(), priv: km.PrivateKey(), p: vckey.NewProvider()}
	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, vcerr.InvalidSignature("cose: sign1 failed").Wrap(err)
	}
	return msg, nil
}

// Verify1 checks msg's signature against pub, inferring the COSE
// algorithm from the protected header.
func Verify1(msg *gocose.UntaggedSign1Message, pub crypto.PublicKey) error {
	algID, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return vcerr.InvalidStructure("cose: missing or invalid alg header").Wrap(err)
	}

	kalg, err := vckeyAlgFor(algID)
	if err != nil {
		return err
	}

	verifier := &verifierAdapter{alg: algID, kalg: kalg, pub: pub, p: vckey.NewProvider()}
	if err := msg.Verify(nil, verifier); err != nil {
		return vcerr.InvalidSignature("cose: sign1 verification failed").Wrap(err)
	}
	return nil
}

func vckeyAlgFor(alg gocose.Algorithm) (vckey.Alg, error) {
	switch alg {
	case gocose.AlgorithmES256:
		return vckey.AlgES256, nil
	case gocose.AlgorithmES384:
		return vckey.AlgES384, nil
	case gocose.AlgorithmES512:
		return vckey.AlgES512, nil
	default:
		return "", vcerr.Usage("cose: unsupported algorithm %v", alg)
	}
}
