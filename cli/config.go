package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/averau/parley/config"
	"github.com/averau/parley/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default .parley/config.yaml in the working directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(config.DirName, "config.yaml")
			if _, err := os.Stat(path); err == nil {
				return errors.New("%s already exists", path)
			}
			if err := config.Default().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after merging",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return errors.Wrapf(err, "encode config")
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
