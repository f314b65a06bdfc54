package llm

import (
	"strings"
	"testing"
)

func TestNewProvider(t *testing.T) {
	for _, name := range ProviderNames() {
		p, err := NewProvider(name)
		if err != nil {
			t.Fatalf("provider %s: %v", name, err)
		}
		if p.Name() != name {
			t.Errorf("provider %s reports name %s", name, p.Name())
		}
	}
}

func TestNewProviderDefault(t *testing.T) {
	p, err := NewProvider("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "dryrun" {
		t.Errorf("empty name should select dryrun, got %s", p.Name())
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider("watson")
	if err == nil {
		t.Fatal("expected an error for an unknown provider")
	}
	if !strings.Contains(err.Error(), "watson") {
		t.Errorf("error should name the unknown provider, got: %v", err)
	}
}
