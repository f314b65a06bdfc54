package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/averau/parley/agent"
	"github.com/averau/parley/config"
	"github.com/averau/parley/llm"
	"github.com/averau/parley/session"
	"github.com/averau/parley/tools"
	"github.com/chzyer/readline"
	"golang.org/x/term"
)

// Terminal drives the interactive chat loop. Input is read with readline
// when stdin is a terminal (line editing, history) and falls back to plain
// buffered reads otherwise, so piped input keeps working.
type Terminal struct {
	cfg          *config.Config
	provider     llm.Provider
	tools        *tools.Active
	conv         *session.Conversation
	contextFiles []string
	verbose      bool
	logger       *slog.Logger

	// Input and Output default to stdio; tests override them.
	Input  io.Reader
	Output io.Writer
}

// New builds a terminal bound to one conversation. The provider must
// already be configured.
func New(cfg *config.Config, provider llm.Provider, active *tools.Active, conv *session.Conversation, contextFiles []string, verbose bool, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Terminal{
		cfg:          cfg,
		provider:     provider,
		tools:        active,
		conv:         conv,
		contextFiles: contextFiles,
		verbose:      verbose,
		logger:       logger,
		Input:        os.Stdin,
		Output:       os.Stdout,
	}
}

// Run processes initialPrompt as a one-shot turn when given, otherwise
// enters the read loop until /quit, /exit or EOF.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	a, err := agent.New(t.cfg, t.provider, t.conv, t.tools, t.contextFiles, t.options())
	if err != nil {
		return err
	}

	if initialPrompt != "" {
		return t.processTurn(ctx, a, initialPrompt)
	}

	reader := t.lineReader()
	defer reader.Close()

	for {
		line, err := reader.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			return nil
		}

		if err := t.processTurn(ctx, a, input); err != nil {
			fmt.Fprintf(t.Output, "Error: %v\n", err)
		}
	}
}

// options wires the progress display into the engine. Without --verbose
// only tool names are shown; with it, arguments and results too.
func (t *Terminal) options() agent.Options {
	return agent.Options{
		Verbose: t.verbose,
		Logger:  t.logger,
		OnProgress: func(iteration int, resp llm.Response) {
			// Text arriving alongside tool calls is commentary worth showing;
			// the final answer is printed by processTurn.
			if len(resp.ToolCalls) > 0 && resp.Content != "" {
				fmt.Fprintf(t.Output, "Parley: %s\n", resp.Content)
			}
			for _, tc := range resp.ToolCalls {
				if t.verbose {
					fmt.Fprintf(t.Output, "Parley calls `%s` with %s\n", tc.Name, tc.Arguments)
				} else {
					fmt.Fprintf(t.Output, "Parley calls `%s`\n", tc.Name)
				}
			}
		},
		OnToolResult: func(call llm.ToolCall, out llm.ToolOutput) {
			if t.verbose {
				fmt.Fprintf(t.Output, "`%s` returned: %s\n", call.Name, out.Output)
			}
		},
	}
}

// processTurn runs one turn. Provider failures are printed and leave the
// loop running; only contract errors propagate.
func (t *Terminal) processTurn(ctx context.Context, a *agent.Agent, input string) error {
	resp, err := a.ProcessTurn(ctx, input)
	if err != nil {
		return err
	}
	if !resp.Success {
		message := "provider request failed"
		if resp.Error != nil {
			message = resp.Error.Message
		}
		fmt.Fprintf(t.Output, "Error: %s\n", message)
		return nil
	}
	fmt.Fprintf(t.Output, "Parley: %s\n", resp.Content)
	return nil
}

// lineReader abstracts over readline and plain buffered input.
type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

func (t *Terminal) lineReader() lineReader {
	if f, ok := t.Input.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_ = os.MkdirAll(config.DirName, 0755)
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "You: ",
			HistoryFile:     filepath.Join(config.DirName, "history"),
			InterruptPrompt: "^C",
			EOFPrompt:       "bye",
		})
		if err == nil {
			return &readlineInput{rl: rl}
		}
		t.logger.Warn("readline unavailable, falling back to plain input", "error", err)
	}
	return &plainInput{scanner: bufio.NewScanner(t.Input), out: t.Output}
}

type readlineInput struct {
	rl *readline.Instance
}

func (r *readlineInput) ReadLine() (string, error) { return r.rl.Readline() }
func (r *readlineInput) Close() error              { return r.rl.Close() }

type plainInput struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func (p *plainInput) ReadLine() (string, error) {
	fmt.Fprint(p.out, "You: ")
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

func (p *plainInput) Close() error { return nil }
