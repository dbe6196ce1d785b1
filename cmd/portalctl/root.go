package main

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	server  string
	timeout time.Duration
}

func (o *options) client() *http.Client {
	return &http.Client{Timeout: o.timeout}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "portalctl",
		Short: "School portal operator CLI",
		Long: `portalctl records deployments and prepares admin credentials.

Example usage:
  portalctl build-info record --sha $GITHUB_SHA --message "$MSG" --server https://portal.example
  portalctl build-info latest --server https://portal.example
  portalctl docs hash-password
  portalctl migrate`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", "", "portal base URL; when empty, DATABASE_URL is used directly")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "HTTP timeout")

	root.AddCommand(newBuildInfoCmd(opts), newDocsCmd(), newMigrateCmd())
	return root
}
