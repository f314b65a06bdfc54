package agent

import (
	"fmt"
	"os"
	"strings"

	"github.com/averau/parley/errors"
)

// Modes selectable with --mode. The mode picks the system prompt; the tool
// handling contract is identical across modes.
const (
	ModeAssistant = "assistant"
	ModeCoder     = "coder"
	ModeReviewer  = "reviewer"
)

var rolePrompts = map[string]string{
	ModeAssistant: "You are Parley, a general-purpose assistant running in a terminal. " +
		"Answer directly and concisely. Use the available tools when a question requires " +
		"reading files, listing directories or running commands, and summarize what you did.",
	ModeCoder: "You are Parley, a software engineering assistant working inside the user's " +
		"repository. Read the relevant files with the available tools before proposing " +
		"changes. When you modify files, make the smallest change that solves the problem " +
		"and report every file you touched.",
	ModeReviewer: "You are Parley, a code reviewer. Read the files under discussion with " +
		"the available tools, then report concrete findings ordered by severity, pointing " +
		"at specific files and lines with a suggested fix for each. Do not modify any files.",
}

// Modes returns the selectable mode names.
func Modes() []string {
	return []string{ModeAssistant, ModeCoder, ModeReviewer}
}

// SystemPrompt renders the system prompt for a mode, appending the content
// of each context file as a fenced block.
func SystemPrompt(mode string, contextFiles []string) (string, error) {
	prompt, ok := rolePrompts[mode]
	if !ok {
		return "", errors.New("unknown mode '%s' (want assistant, coder or reviewer)", mode)
	}
	if len(contextFiles) == 0 {
		return prompt, nil
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nContext files provided by the user:")
	for _, path := range contextFiles {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read context file '%s'", path)
		}
		fmt.Fprintf(&sb, "\n\n%s:\n```\n%s\n```", path, strings.TrimRight(string(content), "\n"))
	}
	return sb.String(), nil
}
