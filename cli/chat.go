package cli

import (
	"strings"

	"github.com/averau/parley/agent/terminal"
	"github.com/averau/parley/session"
	"github.com/spf13/cobra"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var contextFiles []string

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Talk to the agent, interactively or one-shot",
		Long: `Chat starts an interactive conversation with the configured provider.
With a prompt argument it answers once and exits, which composes with
shell pipelines.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			conv := session.NewRegistry().New()
			term := terminal.New(rt.cfg, rt.provider, rt.active, conv, contextFiles, opts.verbose, rt.logger)
			term.Input = cmd.InOrStdin()
			term.Output = cmd.OutOrStdout()
			return term.Run(cmd.Context(), strings.Join(args, " "))
		},
	}
	cmd.Flags().StringArrayVarP(&contextFiles, "context", "c", nil, "File whose contents are added to the system prompt (repeatable)")
	return cmd
}
