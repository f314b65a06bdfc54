package llm

import "github.com/averau/parley/errors"

// NewProvider returns the adapter registered under name. The empty name
// selects the dry-run provider so a fresh checkout works without any keys.
func NewProvider(name string) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropicProvider(), nil
	case "openai":
		return NewOpenAIProvider(), nil
	case "gemini":
		return NewGeminiProvider(), nil
	case "bedrock":
		return NewBedrockProvider(), nil
	case "dryrun", "":
		return NewDryRunProvider(), nil
	}
	return nil, errors.New("unknown provider %q (want anthropic, openai, gemini, bedrock or dryrun)", name)
}

// ProviderNames lists the selectable provider names in display order.
func ProviderNames() []string {
	return []string{"anthropic", "openai", "gemini", "bedrock", "dryrun"}
}
