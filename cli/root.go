// Package cli wires the parley subcommands to their dependencies; it is a
// thin controller with no agent logic of its own.
package cli

import (
	"context"
	"log/slog"

	"github.com/averau/parley/config"
	"github.com/averau/parley/credentials"
	"github.com/averau/parley/errors"
	"github.com/averau/parley/llm"
	"github.com/averau/parley/logging"
	"github.com/averau/parley/tools"
	"github.com/averau/parley/tools/mcp"
	"github.com/spf13/cobra"
)

// newProvider is swapped by tests to inject scripted providers.
var newProvider = llm.NewProvider

// rootOptions carries the persistent flag values shared by the subcommands.
type rootOptions struct {
	provider      string
	model         string
	account       string
	baseURL       string
	region        string
	toolset       string
	mode          string
	maxIterations int
	verbose       bool
}

// NewRootCmd creates the root command and registers all subcommands. A bare
// `parley [prompt]` behaves like `parley chat [prompt]`.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "parley",
		Short: "Parley is a tool-calling agent for the terminal",
		Args:  cobra.ArbitraryArgs,
		// Let main handle fatal error rendering.
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			chat, _, err := cmd.Find([]string{"chat"})
			if err != nil {
				return err
			}
			chat.SetContext(cmd.Context())
			return chat.RunE(chat, args)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.provider, "provider", "", "Provider: anthropic, openai, gemini, bedrock or dryrun")
	flags.StringVar(&opts.model, "model", "", "Model identifier, vendor-specific")
	flags.StringVar(&opts.account, "account", "", "Credential account, e.g. 'work' reads WORK_<PROVIDER>_API_KEY")
	flags.StringVar(&opts.baseURL, "base-url", "", "OpenAI-compatible endpoint override")
	flags.StringVar(&opts.region, "region", "", "AWS region for Bedrock")
	flags.StringVar(&opts.toolset, "toolset", "", "Toolset to expose (defaults to 'default')")
	flags.StringVar(&opts.mode, "mode", "", "System prompt mode: assistant, coder or reviewer")
	flags.IntVar(&opts.maxIterations, "max-iterations", 0, "Tool round limit per turn")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show tool arguments and results, log at debug level")

	root.AddCommand(newChatCmd(opts))
	root.AddCommand(newACPCmd(opts))
	root.AddCommand(newToolsCmd(opts))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// apply overlays set flag values on the loaded configuration.
func (o *rootOptions) apply(cfg *config.Config) {
	if o.provider != "" {
		cfg.Provider = o.provider
	}
	if o.model != "" {
		cfg.Model = o.model
	}
	if o.account != "" {
		cfg.Account = o.account
	}
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.region != "" {
		cfg.Region = o.region
	}
	if o.mode != "" {
		cfg.Mode = o.mode
	}
	if o.maxIterations > 0 {
		cfg.MaxIterations = o.maxIterations
	}
}

// runtime bundles what a command needs after setup.
type runtime struct {
	cfg      *config.Config
	provider llm.Provider
	active   *tools.Active
	clients  []*mcp.Client
	logger   *slog.Logger
}

// setup loads configuration, configures the provider and resolves the
// toolset, starting any configured MCP servers. The caller must close the
// returned runtime.
func (o *rootOptions) setup(ctx context.Context) (*runtime, error) {
	logger := logging.New(o.verbose)

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	o.apply(cfg)

	provider, err := newProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	settings := llm.Settings{
		Model:       cfg.Model,
		Account:     cfg.Account,
		BaseURL:     cfg.BaseURL,
		Region:      cfg.Region,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Credentials: credentials.NewEnvStore(),
		Logger:      logger,
	}
	if err := provider.Configure(ctx, settings); err != nil {
		return nil, errors.Wrapf(err, "configure provider '%s'", cfg.Provider)
	}
	logger.Debug("provider configured", "provider", provider.Name(), "model", cfg.Model)

	registry := tools.NewRegistry(cfg, logger)
	rt := &runtime{
		cfg:      cfg,
		provider: provider,
		clients:  registry.ConnectMCPServers(ctx, cfg.AdditionalMCPServers),
		logger:   logger,
	}

	ts, err := cfg.GetToolset(o.toolset)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.active, err = registry.Active(ts)
	if err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

// close terminates the MCP server subprocesses.
func (rt *runtime) close() {
	for _, client := range rt.clients {
		if err := client.Close(); err != nil {
			rt.logger.Warn("MCP server shutdown failed", "server", client.Name(), "error", err)
		}
	}
}
