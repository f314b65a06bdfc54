package credentials

import (
	"os"
	"sort"
	"strings"

	"github.com/averau/parley/errors"
	"github.com/joho/godotenv"
)

// EnvStore resolves credentials from environment variables, loading a .env
// file from the working directory first when one exists. It is read-only.
type EnvStore struct{}

// NewEnvStore creates the environment-backed store. Values already present in
// the environment win over .env entries.
func NewEnvStore() *EnvStore {
	_ = godotenv.Load()
	return &EnvStore{}
}

func (s *EnvStore) Resolve(provider, account string) (string, error) {
	if secret := os.Getenv(EnvVarName(provider, account)); secret != "" {
		return secret, nil
	}
	// Account-qualified lookup falls back to the provider default.
	if account != "" {
		if secret := os.Getenv(EnvVarName(provider, "")); secret != "" {
			return secret, nil
		}
	}
	return "", &MissingError{
		Provider: provider,
		Account:  account,
		Hint:     "set " + EnvVarName(provider, account),
	}
}

func (s *EnvStore) Store(provider, account, secret string) error {
	return errors.New("environment credential store is read-only")
}

func (s *EnvStore) Delete(provider, account string) error {
	return errors.New("environment credential store is read-only")
}

// List returns the names of credential variables present in the environment.
func (s *EnvStore) List() ([]string, error) {
	var names []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if ok && strings.HasSuffix(name, "_API_KEY") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
