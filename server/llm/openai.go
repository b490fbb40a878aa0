package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type apiConfig struct {
	Model        string
	APIKey       string
	BaseURL      string
	Organization string
	ExtraHeaders map[string]string
}

// resolveOpenAIConfig reads key, base URL, and headers for the OpenAI and
// OpenRouter providers from the environment. The two share the same wire
// format; OpenRouter additionally gets its attribution headers.
func resolveOpenAIConfig(provider, model string) (apiConfig, error) {
	openRouter := strings.EqualFold(strings.TrimSpace(provider), "openrouter")

	cfg := apiConfig{
		Model:        strings.TrimSpace(model),
		ExtraHeaders: map[string]string{},
	}
	if cfg.Model == "" {
		if openRouter {
			cfg.Model = strings.TrimSpace(os.Getenv("OPENROUTER_MODEL"))
		} else {
			cfg.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
		}
	}
	if cfg.Model == "" {
		return apiConfig{}, errors.New("model missing: set OPENAI_MODEL/OPENROUTER_MODEL or configure one")
	}

	if openRouter {
		cfg.APIKey = firstNonEmpty(os.Getenv("OPENROUTER_API_KEY"), os.Getenv("OPENAI_API_KEY"))
		cfg.BaseURL = firstNonEmpty(os.Getenv("OPENROUTER_BASE_URL"), "https://openrouter.ai/api/v1")
		if v := strings.TrimSpace(os.Getenv("OPENROUTER_SITE_URL")); v != "" {
			cfg.ExtraHeaders["HTTP-Referer"] = v
			cfg.ExtraHeaders["Referer"] = v
		}
		if v := strings.TrimSpace(os.Getenv("OPENROUTER_TITLE")); v != "" {
			cfg.ExtraHeaders["X-Title"] = v
		}
	} else {
		cfg.APIKey = firstNonEmpty(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENROUTER_API_KEY"))
		cfg.BaseURL = firstNonEmpty(os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_API_BASE"), "https://api.openai.com/v1")
		cfg.Organization = strings.TrimSpace(os.Getenv("OPENAI_ORG"))
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIKey == "" {
		return apiConfig{}, errors.New("API key missing: set OPENAI_API_KEY or OPENROUTER_API_KEY")
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// chatClient speaks the chat/completions wire format used by both OpenAI and
// OpenRouter.
type chatClient struct {
	cfg  apiConfig
	http *http.Client
}

func newChatClient(cfg apiConfig) *chatClient {
	return &chatClient{cfg: cfg, http: &http.Client{Timeout: 45 * time.Second}}
}

func (c *chatClient) Complete(ctx context.Context, req Request) (string, error) {
	payload := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.User},
		},
	}
	if req.JSONOnly {
		payload["response_format"] = map[string]any{"type": "json_object"}
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			payload["temperature"] = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_MAX_OUTPUT_TOKENS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			payload["max_tokens"] = n
		}
	}

	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Organization != "" {
		httpReq.Header.Set("OpenAI-Organization", c.cfg.Organization)
	}
	for k, v := range c.cfg.ExtraHeaders {
		setHeaderPreserveCase(httpReq.Header, k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat completions http %d: %s", resp.StatusCode, truncate(buf.String(), 800))
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(buf.Bytes(), &cc); err != nil {
		return "", err
	}
	if len(cc.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return cc.Choices[0].Message.Content, nil
}

// setHeaderPreserveCase keeps non-canonical header spellings (OpenRouter
// documents "HTTP-Referer") instead of letting net/http canonicalize them.
func setHeaderPreserveCase(h http.Header, key, value string) {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return
	}
	if http.CanonicalHeaderKey(key) == key {
		h.Set(key, value)
		return
	}
	h[key] = []string{value}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
