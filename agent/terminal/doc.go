// Package terminal implements the interactive chat surface of Parley.
//
// # Usage
//
//	conv := sessions.New()
//	term := terminal.New(cfg, provider, active, conv, nil, false, logger)
//	err := term.Run(ctx, "")
//
// Passing a non-empty initial prompt answers it once and returns, which is
// what `parley chat "question"` uses. With an empty prompt the terminal
// enters a read loop that ends on /quit, /exit or EOF.
//
// # Input handling
//
// When stdin is a terminal, input goes through readline: line editing,
// Ctrl-C cancels the current line, and history persists under the .parley
// directory. Piped or redirected input uses a plain buffered reader so the
// terminal stays scriptable.
//
// # Display
//
// Assistant text is printed with a "Parley: " prefix. Tool invocations are
// always announced by name; --verbose adds their arguments and results.
// Provider failures are printed as errors and the loop continues, so a
// rate-limited request does not end the session.
package terminal
