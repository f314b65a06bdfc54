// Package credentials supplies API secrets to provider adapters. Adapters
// never read secrets themselves; they resolve them through an injected
// Resolver so that tests and multi-account setups can swap the backing store.
package credentials

import (
	"fmt"
	"strings"
)

// Resolver looks up the secret for a provider and logical account. An empty
// account means the provider's default account.
type Resolver interface {
	Resolve(provider, account string) (string, error)
}

// Store is the full credential store: resolution plus mutation. Backends that
// cannot write (environment variables) return an error from Store and Delete.
type Store interface {
	Resolver
	Store(provider, account, secret string) error
	Delete(provider, account string) error
	List() ([]string, error)
}

// MissingError reports that no credential exists for a provider and account.
type MissingError struct {
	Provider string
	Account  string
	Hint     string
}

func (e *MissingError) Error() string {
	account := e.Account
	if account == "" {
		account = "default"
	}
	msg := fmt.Sprintf("no credential found for provider %q (account %q)", e.Provider, account)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

// EnvVarName returns the environment variable consulted for a provider and
// account: GEMINI_API_KEY, or WORK_GEMINI_API_KEY for account "work".
func EnvVarName(provider, account string) string {
	name := strings.ToUpper(provider) + "_API_KEY"
	if account != "" {
		name = strings.ToUpper(account) + "_" + name
	}
	return name
}
