package credentials

import (
	"errors"
	"strings"
	"testing"
)

func TestEnvVarName(t *testing.T) {
	if got := EnvVarName("gemini", ""); got != "GEMINI_API_KEY" {
		t.Errorf("unexpected name: %s", got)
	}
	if got := EnvVarName("anthropic", "work"); got != "WORK_ANTHROPIC_API_KEY" {
		t.Errorf("unexpected account-qualified name: %s", got)
	}
}

func TestMissingErrorMessage(t *testing.T) {
	err := &MissingError{Provider: "openai", Account: "work", Hint: "set WORK_OPENAI_API_KEY"}
	msg := err.Error()
	if !strings.Contains(msg, "openai") || !strings.Contains(msg, "work") {
		t.Errorf("message should name provider and account: %s", msg)
	}
	if !strings.Contains(msg, "set WORK_OPENAI_API_KEY") {
		t.Errorf("message should carry the hint: %s", msg)
	}

	withoutAccount := &MissingError{Provider: "openai"}
	if !strings.Contains(withoutAccount.Error(), "default") {
		t.Errorf("empty account should read as default: %s", withoutAccount.Error())
	}
}

func TestMemStore(t *testing.T) {
	store := NewMemStore()
	if err := store.Store("anthropic", "", "secret-default"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Store("anthropic", "work", "secret-work"); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := store.Resolve("anthropic", "work")
	if err != nil || got != "secret-work" {
		t.Errorf("resolve work: %q %v", got, err)
	}

	// An unknown account falls back to the provider default.
	got, err = store.Resolve("anthropic", "personal")
	if err != nil || got != "secret-default" {
		t.Errorf("resolve fallback: %q %v", got, err)
	}

	if _, err := store.Resolve("gemini", ""); err == nil {
		t.Error("expected a missing credential error")
	} else {
		var missing *MissingError
		if !errors.As(err, &missing) || missing.Provider != "gemini" {
			t.Errorf("unexpected error: %v", err)
		}
	}

	keys, err := store.List()
	if err != nil || len(keys) != 2 {
		t.Errorf("list: %v %v", keys, err)
	}

	if err := store.Delete("anthropic", "work"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := store.Resolve("anthropic", "work"); got != "secret-default" {
		t.Errorf("deleted account should fall back to default, got %q", got)
	}
}

func TestEnvStoreResolve(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-default")
	t.Setenv("WORK_ANTHROPIC_API_KEY", "env-work")

	store := NewEnvStore()

	got, err := store.Resolve("anthropic", "")
	if err != nil || got != "env-default" {
		t.Errorf("resolve default: %q %v", got, err)
	}
	got, err = store.Resolve("anthropic", "work")
	if err != nil || got != "env-work" {
		t.Errorf("resolve work: %q %v", got, err)
	}

	// An account with no dedicated variable falls back to the default.
	got, err = store.Resolve("anthropic", "personal")
	if err != nil || got != "env-default" {
		t.Errorf("resolve fallback: %q %v", got, err)
	}

	_, err = store.Resolve("mistral", "")
	var missing *MissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingError, got %v", err)
	}
	if !strings.Contains(missing.Hint, "MISTRAL_API_KEY") {
		t.Errorf("hint should name the variable to set: %s", missing.Hint)
	}
}

func TestEnvStoreIsReadOnly(t *testing.T) {
	store := NewEnvStore()
	if err := store.Store("anthropic", "", "x"); err == nil {
		t.Error("expected Store to fail")
	}
	if err := store.Delete("anthropic", ""); err == nil {
		t.Error("expected Delete to fail")
	}
}
