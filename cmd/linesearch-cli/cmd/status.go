package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/linesearch/internal/admin"
)

func newStatusCmd() *cobra.Command {
	var (
		adminURL string
		token    string
	)

	c := &cobra.Command{
		Use:   "status",
		Short: "Show server status from the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := NewAdminClient(adminURL, token).Get("/admin/status")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				return printJSON(out, data)
			}

			var status admin.StatusResponse
			if err := json.Unmarshal(data, &status); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			rows := [][]string{
				{"status", status.Status},
				{"uptime", (time.Duration(status.UptimeSeconds) * time.Second).String()},
				{"auth mode", status.AuthMode},
				{"transport", status.Transport},
				{"dispatch", status.Dispatch},
				{"corpus policy", string(status.Corpus.Policy)},
				{"corpus path", status.Corpus.Path},
			}
			if status.Corpus.Fingerprint != "" {
				rows = append(rows,
					[]string{"corpus lines", strconv.Itoa(status.Corpus.Lines)},
					[]string{"corpus fingerprint", status.Corpus.Fingerprint},
				)
			}

			names := make([]string, 0, len(status.Verdicts))
			for name := range status.Verdicts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				rows = append(rows, []string{"verdicts " + name, strconv.FormatUint(status.Verdicts[name], 10)})
			}

			printTable(out, []string{"FIELD", "VALUE"}, rows)
			return nil
		},
	}

	f := c.Flags()
	f.StringVarP(&adminURL, "url", "u", getEnvOrDefault("LINESEARCH_ADMIN_URL", "http://127.0.0.1:9090"), "Admin API base URL")
	f.StringVarP(&token, "token", "t", os.Getenv("LINESEARCH_ADMIN_TOKEN"), "Admin API bearer token")

	return c
}
