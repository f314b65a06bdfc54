package cli

import (
	"github.com/averau/parley/acp"
	"github.com/spf13/cobra"
)

func newACPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "acp",
		Short: "Serve the Agent Client Protocol over stdio",
		Long: `Acp runs Parley as an Agent Client Protocol server, reading
newline-delimited JSON-RPC from stdin and writing to stdout. Editors such
as Zed spawn it this way; logs go to stderr so the wire stays clean.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			server := acp.NewServer(rt.cfg, rt.provider, rt.active, cmd.InOrStdin(), cmd.OutOrStdout(), rt.logger)
			return server.Run(cmd.Context())
		},
	}
}
