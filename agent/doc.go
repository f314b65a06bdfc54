// Package agent contains the provider-independent orchestration loop and the
// Agent type shared by the interaction surfaces (the interactive terminal and
// the ACP server).
//
// # Orchestration
//
// Run drives one request to completion: it sends the conversation to a
// provider, executes any tool calls the model returned, feeds the outputs
// back with GenerateTextWithToolResults, and repeats until the model answers
// in plain text or the iteration bound is hit. Tool failures are converted
// into error payloads the model can read; they never abort the loop.
//
// # Agent
//
// Agent binds a configured provider, a conversation and an active toolset.
// ProcessTurn runs one user input through the loop and appends the exchange
// to the conversation only when it succeeds, so a failed turn leaves no trace
// in history.
//
//	a, err := agent.New(cfg, provider, conv, active, nil, agent.Options{})
//	if err != nil {
//	    // handle error
//	}
//	resp, err := a.ProcessTurn(ctx, "what is in main.go?")
//
// # Hooks
//
// Options carries the surface-specific hooks: OnProgress fires once per
// provider response before its tool calls run, OnToolResult once per resolved
// call. The terminal uses them to print progress lines, the ACP server to
// emit session/update notifications.
//
// # Modes
//
// The system prompt is selected by the configured mode: assistant, coder or
// reviewer. SystemPrompt also inlines any context files named on the command
// line so the model sees them up front.
package agent
