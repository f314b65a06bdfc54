package llm

import (
	"context"
	"log/slog"

	"github.com/averau/parley/errors"
	loremgen "github.com/bozaro/golorem"
)

// DryRunProvider generates lorem ipsum replies without touching the network.
// It backs the default provider so the agent can be exercised end to end with
// no API keys. Tool-choice steering is honored: required and specific modes
// produce a simulated tool call so the full loop runs, including the
// continuation round.
type DryRunProvider struct {
	generator  *loremgen.Lorem
	model      string
	logger     *slog.Logger
	configured bool
}

// NewDryRunProvider creates an unconfigured dry-run provider.
func NewDryRunProvider() *DryRunProvider {
	return &DryRunProvider{generator: loremgen.New()}
}

func (p *DryRunProvider) Name() string { return "dryrun" }

// Configure needs no credentials; it records settings and flips the provider
// to configured so the state machine behaves like the real adapters.
func (p *DryRunProvider) Configure(ctx context.Context, settings Settings) error {
	p.model = settings.Model
	p.logger = settings.logger()
	p.configured = true
	p.logger.Info("provider configured", "provider", p.Name(), "model", p.model)
	return nil
}

func (p *DryRunProvider) Chat(ctx context.Context, req Request) (Response, error) {
	if !p.configured {
		return Response{}, errors.Wrapf(ErrNotConfigured, "dryrun")
	}
	if err := ctx.Err(); err != nil {
		return Failure(err), nil
	}

	if name, ok := p.steeredTool(req); ok {
		return Response{
			Success:   true,
			Content:   "",
			ToolCalls: []ToolCall{{ID: SynthesizeCallID(0, name), Name: name, Arguments: "{}"}},
		}, nil
	}
	return Response{Success: true, Content: p.generator.Paragraph(2, 4)}, nil
}

func (p *DryRunProvider) GenerateTextWithToolResults(ctx context.Context, req Request) (Response, error) {
	if !p.configured {
		return Response{}, errors.Wrapf(ErrNotConfigured, "dryrun")
	}
	if _, err := continuationTurn(req); err != nil {
		return Response{}, err
	}
	if err := ctx.Err(); err != nil {
		return Failure(err), nil
	}
	// The continuation round always closes with text, never more tool calls,
	// so a dry run terminates after one round regardless of steering.
	return Response{Success: true, Content: p.generator.Paragraph(1, 2)}, nil
}

// steeredTool decides whether the request forces a tool call and which tool
// it should target.
func (p *DryRunProvider) steeredTool(req Request) (string, bool) {
	if req.ToolChoice == nil || len(req.Tools) == 0 {
		return "", false
	}
	switch req.ToolChoice.Mode {
	case ToolChoiceRequired:
		return req.Tools[0].Name, true
	case ToolChoiceSpecific:
		return req.ToolChoice.ToolName, true
	}
	return "", false
}
