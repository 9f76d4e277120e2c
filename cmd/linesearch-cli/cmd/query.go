package cmd

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/linesearch/internal/domain"
	"github.com/sirosfoundation/linesearch/pkg/client"
	"github.com/sirosfoundation/linesearch/pkg/config"
)

type queryOptions struct {
	addr          string
	mode          string
	secret        string
	hashAlgorithm string
	iterations    int
	keyedDigest   string
	tls           bool
	caFile        string
	serverName    string
	insecure      bool
	timeout       time.Duration
}

func newQueryCmd() *cobra.Command {
	o := &queryOptions{}
	defaults := config.DefaultConfig()

	c := &cobra.Command{
		Use:   "query [line]",
		Short: "Ask whether a line exists in the corpus",
		Long: `Send one line to the server and print the verdict.

The exit status is 0 when the line exists, 1 when it does not and 2 on any
other verdict or error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := client.Options{
				Mode:           o.mode,
				Secret:         o.secret,
				HashAlgorithm:  o.hashAlgorithm,
				HMACIterations: o.iterations,
				KeyedDigest:    o.keyedDigest,
				Timeout:        o.timeout,
			}
			if o.tls || o.mode == config.AuthModeTransportTLS {
				tlsConfig, err := o.tlsConfig()
				if err != nil {
					return err
				}
				opts.TLSConfig = tlsConfig
			}

			verdict, err := client.Query(cmd.Context(), o.addr, args[0], opts)
			if err != nil {
				return err
			}

			if output == "json" {
				data, _ := json.Marshal(map[string]string{"line": args[0], "verdict": verdict.String()})
				if err := printJSON(cmd.OutOrStdout(), data); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), verdict.String())
			}

			switch verdict {
			case domain.VerdictExists:
				return nil
			case domain.VerdictNotFound:
				return &ExitError{Code: 1}
			default:
				return &ExitError{Code: 2}
			}
		},
	}

	f := c.Flags()
	f.StringVarP(&o.addr, "addr", "a", getEnvOrDefault("LINESEARCH_ADDR", "127.0.0.1:44445"), "Query server address")
	f.StringVarP(&o.mode, "mode", "m", config.AuthModeNone, "Auth mode: none, tolerant_none, shared_secret_hash, keyed_hmac, transport_tls")
	f.StringVarP(&o.secret, "secret", "s", os.Getenv("LINESEARCH_SECRET"), "Shared secret")
	f.StringVar(&o.hashAlgorithm, "hash-algorithm", defaults.Security.HashAlgorithm, "Shared secret digest: sha256, blake3")
	f.IntVar(&o.iterations, "hmac-iterations", defaults.Security.HMACIterations, "PBKDF2 iterations for keyed_hmac")
	f.StringVar(&o.keyedDigest, "keyed-digest", defaults.Security.KeyedDigest, "keyed_hmac digest: prefix_sha256, hmac_sha256")
	f.BoolVar(&o.tls, "tls", false, "Connect over TLS")
	f.StringVar(&o.caFile, "ca-file", "", "PEM file with the CA certificate to trust")
	f.StringVar(&o.serverName, "server-name", "", "TLS server name (default: host of --addr)")
	f.BoolVar(&o.insecure, "insecure", false, "Skip TLS certificate verification")
	f.DurationVar(&o.timeout, "timeout", 5*time.Second, "Overall request timeout")

	return c
}

func (o *queryOptions) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         o.serverName,
		InsecureSkipVerify: o.insecure,
		MinVersion:         tls.VersionTLS12,
	}
	if o.caFile != "" {
		pem, err := os.ReadFile(o.caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", o.caFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// ExitError carries a process exit status without an error message
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}
