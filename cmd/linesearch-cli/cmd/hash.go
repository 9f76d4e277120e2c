package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/linesearch/internal/auth"
	"github.com/sirosfoundation/linesearch/pkg/config"
)

func newHashCmd() *cobra.Command {
	var (
		secret     string
		algorithm  string
		hmacLine   string
		iterations int
		keyed      string
	)
	defaults := config.DefaultConfig()

	c := &cobra.Command{
		Use:   "hash",
		Short: "Print the credential prefix for a shared secret",
		Long: `Print the lowercase hex digest a shared_secret_hash client sends in front
of each line. With --hmac-line, print the hex keyed_hmac digest of that line
instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("a secret is required (--secret or LINESEARCH_SECRET)")
			}

			var digest string
			if cmd.Flags().Changed("hmac-line") {
				sign, err := auth.SignerFor(keyed)
				if err != nil {
					return err
				}
				key := auth.DeriveHMACKey(secret, iterations)
				digest = hex.EncodeToString(sign(key, []byte(hmacLine)))
			} else {
				var err error
				digest, err = auth.SharedSecretDigest(secret, algorithm)
				if err != nil {
					return err
				}
			}

			if output == "json" {
				data, _ := json.Marshal(map[string]string{"digest": digest})
				return printJSON(cmd.OutOrStdout(), data)
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest)
			return nil
		},
	}

	f := c.Flags()
	f.StringVarP(&secret, "secret", "s", os.Getenv("LINESEARCH_SECRET"), "Shared secret")
	f.StringVar(&algorithm, "hash-algorithm", defaults.Security.HashAlgorithm, "Digest: sha256, blake3")
	f.StringVar(&hmacLine, "hmac-line", "", "Line to sign with the keyed_hmac key")
	f.StringVar(&keyed, "keyed-digest", defaults.Security.KeyedDigest, "keyed_hmac digest: prefix_sha256, hmac_sha256")
	f.IntVar(&iterations, "hmac-iterations", defaults.Security.HMACIterations, "PBKDF2 iterations for keyed_hmac")

	return c
}
