package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pilacorp/vc-engine/pkg/agent"
	"github.com/pilacorp/vc-engine/pkg/cbordata"
	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/mdoc"
	"github.com/pilacorp/vc-engine/pkg/openid4vp"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

var presentCmd = &cobra.Command{
	Use:   "present",
	Short: "Build a presentation from an issued bundle",
	RunE:  runPresent,
}

func init() {
	presentCmd.Flags().String("bundle", "credential.json", "bundle written by the issue subcommand")
	presentCmd.Flags().StringArray("disclose", nil, "sd-jwt claim to disclose; repeatable")
	presentCmd.Flags().String("aud", "", "verifier identifier (sd-jwt key binding audience)")
	presentCmd.Flags().String("nonce", "", "verifier challenge (required)")
	_ = presentCmd.MarkFlagRequired("nonce")
}

func readBundle(path string) (*bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, vcerr.Fetch("read bundle").Wrap(err)
	}
	var b bundle
	if err := codec.UnmarshalJSON(raw, &b); err != nil {
		return nil, vcerr.Parse("bundle is not valid JSON").Wrap(err)
	}
	return &b, nil
}

func runPresent(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("bundle")
	b, err := readBundle(path)
	if err != nil {
		return err
	}

	holderKM, err := unmarshalKey(vckey.RoleHolder, b.HolderKeyPEM)
	if err != nil {
		return err
	}
	holder := agent.NewHolder(holderKM, jose.New())

	nonce, _ := cmd.Flags().GetString("nonce")
	aud, _ := cmd.Flags().GetString("aud")

	switch b.Format {
	case "jwt_vc":
		// A VC-JWT presentation is the token itself; binding to the
		// challenge happens at the protocol layer.
		fmt.Fprintln(cmd.OutOrStdout(), b.Credential)
		return nil
	case "vc+sd-jwt":
		if err := holder.Store(&agent.StoredCredential{ID: "bundle", Format: agent.FormatSDJWT, SDJWT: b.Credential}); err != nil {
			return err
		}
		disclose, _ := cmd.Flags().GetStringArray("disclose")
		presentation, err := holder.BuildSDJWTPresentation("bundle", disclose, aud, nonce)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), presentation)
		return nil
	case "mso_mdoc":
		raw, err := codec.B64URLDecode(b.Credential)
		if err != nil {
			return vcerr.Parse("bundle mdoc credential is not base64url").Wrap(err)
		}
		var issuerSigned mdoc.IssuerSigned
		if err := cbordata.Unmarshal(raw, &issuerSigned); err != nil {
			return vcerr.Parse("bundle mdoc credential is not valid CBOR").Wrap(err)
		}
		if err := holder.Store(&agent.StoredCredential{
			ID: "bundle", Format: agent.FormatMdoc,
			IssuerSigned: &issuerSigned, DocType: mdoc.DocType(b.DocType),
		}); err != nil {
			return err
		}
		// The CLI path is unencrypted, so the device signature binds
		// the bare challenge (the legacy path; encrypted responses are
		// exercised through the library API).
		pres, err := holder.PresentMdoc(agent.MdocPresentInput{
			CredentialID: "bundle",
			DescriptorID: "bundle",
		}, &openid4vp.AuthenticationRequestParameters{ClientID: aud, Nonce: nonce})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), pres.Params.Get("vp_token"))
		return nil
	default:
		return vcerr.Usage("bundle has unknown format %q", b.Format)
	}
}
