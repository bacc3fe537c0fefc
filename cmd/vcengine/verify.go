package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/mdoc"
	"github.com/pilacorp/vc-engine/pkg/sdjwt"
	"github.com/pilacorp/vc-engine/pkg/timeutil"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
	"github.com/pilacorp/vc-engine/pkg/vcjwt"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [presentation]",
	Short: "Verify a presentation against the bundle's issuer key",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().String("bundle", "credential.json", "bundle written by the issue subcommand")
	verifyCmd.Flags().String("in", "", "file holding the presentation; defaults to the positional argument")
	verifyCmd.Flags().String("aud", "", "expected sd-jwt key binding audience")
	verifyCmd.Flags().String("nonce", "", "expected challenge (required)")
	verifyCmd.Flags().Bool("expand", false, "validate a VC-JWT's @context by JSON-LD expansion (fetches remote contexts)")
	_ = verifyCmd.MarkFlagRequired("nonce")
}

func runVerify(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("bundle")
	b, err := readBundle(path)
	if err != nil {
		return err
	}
	issuerKM, err := unmarshalKey(vckey.RoleIssuer, b.IssuerKeyPEM)
	if err != nil {
		return err
	}

	presentation, err := presentationInput(cmd, args)
	if err != nil {
		return err
	}

	engine := jose.New()
	resolver := jose.StaticResolver{Key: issuerKM.PublicKey()}
	nonce, _ := cmd.Flags().GetString("nonce")
	aud, _ := cmd.Flags().GetString("aud")

	var claims interface{}
	switch b.Format {
	case "jwt_vc":
		parsed, err := vcjwt.Verify(engine, presentation, resolver, timeutil.WallClock, leeway())
		if err != nil {
			return err
		}
		if expand, _ := cmd.Flags().GetBool("expand"); expand {
			if _, err := vcjwt.ExpandContexts(parsed.Credential); err != nil {
				return err
			}
		}
		claims = parsed.Credential
	case "vc+sd-jwt":
		claims, err = verifySDJWT(engine, presentation, resolver, aud, nonce)
		if err != nil {
			return err
		}
	case "mso_mdoc":
		claims, err = verifyMdocLegacy(presentation, issuerKM, nonce)
		if err != nil {
			return err
		}
	default:
		return vcerr.Usage("bundle has unknown format %q", b.Format)
	}

	out, err := codec.MarshalJSON(claims)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func presentationInput(cmd *cobra.Command, args []string) (string, error) {
	if in, _ := cmd.Flags().GetString("in"); in != "" {
		raw, err := os.ReadFile(in)
		if err != nil {
			return "", vcerr.Fetch("read presentation file").Wrap(err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	return "", vcerr.Usage("pass the presentation as an argument or via --in")
}

func verifySDJWT(engine *jose.Engine, presentation string, resolver jose.KeyResolver, aud, nonce string) (codec.ClaimSet, error) {
	sdJWT, disclosures, kbJWT, err := sdjwt.SplitPresentation(presentation)
	if err != nil {
		return nil, err
	}
	jws, err := engine.Verify(sdJWT, resolver)
	if err != nil {
		return nil, err
	}
	var payload codec.ClaimSet
	if err := codec.UnmarshalJSON(jws.Payload, &payload); err != nil {
		return nil, vcerr.Parse("invalid sd-jwt payload").Wrap(err)
	}
	resolved, err := sdjwt.ResolveDisclosed(payload, disclosures)
	if err != nil {
		return nil, err
	}
	if kbJWT != "" {
		cnfKey, err := sdjwt.ConfirmationKey(payload)
		if err != nil {
			return nil, err
		}
		alg, _ := payload["_sd_alg"].(string)
		if alg == "" {
			alg = string(vckey.DigestSHA256)
		}
		if _, err := sdjwt.VerifyKeyBindingJWT(engine, kbJWT, jose.StaticResolver{Key: cnfKey}, sdJWT, disclosures, vckey.DigestAlg(alg), aud, nonce); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func verifyMdocLegacy(presentation string, issuerKM *vckey.KeyMaterial, nonce string) (interface{}, error) {
	raw, err := codec.B64URLDecode(presentation)
	if err != nil {
		return nil, vcerr.Parse("mdoc presentation is not base64url").Wrap(err)
	}
	devResp, err := mdoc.ParseDeviceResponse(raw)
	if err != nil {
		return nil, err
	}
	if len(devResp.Documents) == 0 {
		return nil, vcerr.InvalidStructure("device response has no documents")
	}
	doc := devResp.Documents[0]

	mso, err := doc.IssuerSigned.VerifyIssuerAuth(issuerKM.PublicKey())
	if err != nil {
		return nil, err
	}
	if err := doc.IssuerSigned.VerifyDigests(mso); err != nil {
		return nil, err
	}
	if err := doc.VerifyLegacyBareChallenge(mso, nonce); err != nil {
		return nil, err
	}
	return doc.IssuerSigned.ElementValues()
}
