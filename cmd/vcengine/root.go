package main

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

var rootCmd = &cobra.Command{
	Use:           "vcengine",
	Short:         "Issue, present, and verify verifiable credentials",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfg := viper.GetString("config"); cfg != "" {
			viper.SetConfigFile(cfg)
			if err := viper.ReadInConfig(); err != nil {
				return vcerr.Fetch("read config %s", cfg).Wrap(err)
			}
		}
		if viper.GetBool("verbose") {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "optional YAML config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "increase verbosity")
	rootCmd.PersistentFlags().Duration("leeway", time.Minute, "clock-skew leeway for time checks")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("leeway", rootCmd.PersistentFlags().Lookup("leeway"))
	viper.SetEnvPrefix("VCENGINE")
	viper.AutomaticEnv()

	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(presentCmd)
	rootCmd.AddCommand(verifyCmd)
}

func leeway() time.Duration { return viper.GetDuration("leeway") }

// marshalKey and unmarshalKey move an EC private key through the bundle
// file as PEM, the only place the CLI persists key material.
func marshalKey(km *vckey.KeyMaterial) (string, error) {
	priv, ok := km.PrivateKey().(*ecdsa.PrivateKey)
	if !ok {
		return "", vcerr.Usage("bundle only carries EC keys")
	}
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return "", vcerr.Usage("marshal ec key").Wrap(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})), nil
}

func unmarshalKey(role vckey.Role, pemText string) (*vckey.KeyMaterial, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, vcerr.Parse("bundle key is not PEM")
	}
	priv, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, vcerr.Parse("bundle key is not an EC private key").Wrap(err)
	}
	return vckey.FromECDSA(role, priv)
}
