package llm

import (
	"context"
	"fmt"
	"strings"
)

// Request is one completion call. JSONOnly asks the provider for a bare JSON
// object response where the API supports enforcing it.
type Request struct {
	System   string
	User     string
	JSONOnly bool
}

// Client is a minimal chat-completion client. One implementation exists per
// provider; selection happens once, at construction, so nothing above this
// package ever branches on provider identity.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// NewClient builds the provider client named by configuration. An unknown
// provider is a configuration error and fails fast.
func NewClient(provider, model string) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai", "openrouter", "":
		cfg, err := resolveOpenAIConfig(provider, model)
		if err != nil {
			return nil, err
		}
		return newChatClient(cfg), nil
	case "gemini":
		return newGeminiClient(model)
	case "anthropic":
		return newAnthropicClient(model)
	default:
		return nil, fmt.Errorf("unsupported decision-source provider %q", provider)
	}
}
