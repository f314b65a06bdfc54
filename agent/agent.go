package agent

import (
	"context"

	"github.com/averau/parley/config"
	"github.com/averau/parley/llm"
	"github.com/averau/parley/session"
	"github.com/averau/parley/tools"
)

// Agent binds a provider, a conversation and a tool selection into a unit
// that processes user turns.
type Agent struct {
	provider llm.Provider
	conv     *session.Conversation
	tools    *tools.Active
	system   string
	opts     Options
}

// New builds an agent for one conversation. The provider must already be
// configured. Context file content is baked into the system prompt once, at
// construction.
func New(cfg *config.Config, provider llm.Provider, conv *session.Conversation, active *tools.Active, contextFiles []string, opts Options) (*Agent, error) {
	system, err := SystemPrompt(cfg.Mode, contextFiles)
	if err != nil {
		return nil, err
	}
	if opts.MaxIterations == 0 {
		opts.MaxIterations = cfg.MaxIterations
	}
	return &Agent{
		provider: provider,
		conv:     conv,
		tools:    active,
		system:   system,
		opts:     opts,
	}, nil
}

// Conversation returns the conversation this agent appends to.
func (a *Agent) Conversation() *session.Conversation {
	return a.conv
}

// ProcessTurn runs one user turn through the loop and returns the final
// response. The turn is atomic with respect to history: only a successful
// turn appends its user input and final assistant text, and intermediate
// tool rounds stay scratch state of the turn.
func (a *Agent) ProcessTurn(ctx context.Context, userInput string) (llm.Response, error) {
	userMsg := llm.Message{Role: llm.RoleUser, Content: userInput}

	messages := make([]llm.Message, 0, a.conv.Len()+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.system})
	messages = append(messages, a.conv.Messages()...)
	messages = append(messages, userMsg)

	req := llm.Request{Messages: messages, Tools: a.tools.Definitions()}
	resp, err := Run(ctx, a.provider, req, a.tools, a.opts)
	if err != nil {
		return llm.Response{}, err
	}
	if resp.Success {
		a.conv.Append(userMsg, resp.AssistantMessage())
	}
	return resp, nil
}
