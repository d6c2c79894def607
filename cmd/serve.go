package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCommand(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve profiles over HTTP(S) and run scheduled focus sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.app.RunServer(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.Int("port", 8080, "HTTP port")
	flags.Bool("dev", false, "development mode (pprof endpoints, gin debug logging)")
	flags.String("metrics-auth", "", "basic auth credentials for /metrics in the form user:password")
	flags.StringSlice("domain", nil, "serve HTTPS for this domain with an ACME certificate (repeatable)")

	s.bind(cmd, map[string]string{
		"port":         "server.port",
		"dev":          "server.dev_mode",
		"metrics-auth": "server.metrics_auth",
		"domain":       "server.domains",
	})
	return cmd
}
