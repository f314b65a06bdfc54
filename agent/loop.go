package agent

import (
	"context"
	"log/slog"

	"github.com/averau/parley/errors"
	"github.com/averau/parley/llm"
	"github.com/averau/parley/tools"
)

// DefaultMaxIterations bounds the tool loop when Options leaves it unset.
const DefaultMaxIterations = 5

// Options tunes one engine run.
type Options struct {
	// MaxIterations caps provider invocations in one run. Zero means
	// DefaultMaxIterations. Hitting the cap with tool calls still pending
	// is an error, never a silent truncation.
	MaxIterations int
	// OnProgress fires after every provider response, before any tool runs.
	OnProgress func(iteration int, resp llm.Response)
	// OnToolResult fires after each tool call resolves, successful or not.
	OnToolResult func(call llm.ToolCall, out llm.ToolOutput)
	// Verbose raises iteration tracing from debug to info.
	Verbose bool
	// Logger receives iteration tracing. Nil discards it.
	Logger *slog.Logger
}

func (o Options) maxIterations() int {
	if o.MaxIterations > 0 {
		return o.MaxIterations
	}
	return DefaultMaxIterations
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Run drives the orchestration loop: ask the model, execute the tools it
// requests, feed the results back, and repeat until the model answers with
// text, reports a failure, or the iteration bound is hit.
//
// Tool failures are data, not control flow: argument decode errors and
// executor errors become `{"error": ...}` outputs for the model to read.
// Only contract violations and the iteration bound return an error.
func Run(ctx context.Context, provider llm.Provider, initialReq llm.Request, executor tools.Executor, opts Options) (llm.Response, error) {
	logger := opts.logger()
	maxIterations := opts.maxIterations()
	level := slog.LevelDebug
	if opts.Verbose {
		level = slog.LevelInfo
	}

	req := initialReq
	resp, err := provider.Chat(ctx, req)
	if err != nil {
		return llm.Response{}, err
	}

	// Tool results of the round in flight; folded into the message history
	// as tool-role messages before the next assistant turn is appended, so
	// earlier rounds survive in Messages and ToolOutputs only ever carries
	// the current round.
	var pendingToolMsgs []llm.Message

	for iteration := 1; ; iteration++ {
		if opts.OnProgress != nil {
			opts.OnProgress(iteration, resp)
		}
		logger.Log(ctx, level, "provider responded",
			"provider", provider.Name(),
			"iteration", iteration,
			"success", resp.Success,
			"tool_calls", len(resp.ToolCalls))

		if !resp.Success || len(resp.ToolCalls) == 0 {
			return resp, nil
		}
		if iteration >= maxIterations {
			return llm.Response{}, errors.New("maximum iterations exceeded (%d)", iteration)
		}

		outputs := make([]llm.ToolOutput, 0, len(resp.ToolCalls))
		toolMsgs := make([]llm.Message, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			out := runTool(ctx, executor, call, logger, level)
			if opts.OnToolResult != nil {
				opts.OnToolResult(call, out)
			}
			outputs = append(outputs, out)
			toolMsgs = append(toolMsgs, llm.Message{
				Role:       llm.RoleTool,
				Content:    out.Output,
				ToolCallID: out.CallID,
				Name:       call.Name,
			})
		}

		req.Messages = append(req.Messages, pendingToolMsgs...)
		req.Messages = append(req.Messages, resp.AssistantMessage())
		req.ToolOutputs = outputs
		pendingToolMsgs = toolMsgs

		resp, err = provider.GenerateTextWithToolResults(ctx, req)
		if err != nil {
			return llm.Response{}, err
		}
	}
}

// runTool executes one tool call and packages the outcome as a ToolOutput,
// successful or not.
func runTool(ctx context.Context, executor tools.Executor, call llm.ToolCall, logger *slog.Logger, level slog.Level) llm.ToolOutput {
	args, err := call.DecodeArguments()
	if err != nil {
		logger.Warn("tool arguments failed to decode", "tool", call.Name, "call_id", call.ID, "error", err)
		return llm.ErrorOutput(call.ID, err.Error())
	}

	output, err := executor.Execute(ctx, call.Name, args)
	if err != nil {
		logger.Warn("tool execution failed", "tool", call.Name, "call_id", call.ID, "error", err)
		return llm.ErrorOutput(call.ID, err.Error())
	}
	logger.Log(ctx, level, "tool executed", "tool", call.Name, "call_id", call.ID, "output_bytes", len(output))
	return llm.ToolOutput{CallID: call.ID, Output: output}
}
