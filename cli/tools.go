package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newToolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the selected toolset exposes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			for _, def := range rt.active.Definitions() {
				desc := def.Description
				if i := strings.IndexByte(desc, '\n'); i >= 0 {
					desc = desc[:i]
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", def.Name, desc)
			}
			return nil
		},
	}
}
