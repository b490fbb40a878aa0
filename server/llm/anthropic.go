package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

type anthropicClient struct {
	model  string
	apiKey string
	base   string
	http   *http.Client
}

func newAnthropicClient(model string) (*anthropicClient, error) {
	key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if key == "" {
		return nil, errors.New("API key missing: set ANTHROPIC_API_KEY")
	}
	if strings.TrimSpace(model) == "" {
		model = strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL"))
	}
	if model == "" {
		return nil, errors.New("model missing: set ANTHROPIC_MODEL or configure one")
	}
	base := firstNonEmpty(os.Getenv("ANTHROPIC_BASE_URL"), "https://api.anthropic.com")
	return &anthropicClient{
		model:  model,
		apiKey: key,
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{Timeout: 45 * time.Second},
	}, nil
}

func (c *anthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	system := req.System
	if req.JSONOnly {
		// The messages API has no JSON response mode; lean on the prompt.
		system += "\n\nRespond ONLY with a single compact JSON object. No prose, no markdown."
	}
	payload := map[string]any{
		"model":      c.model,
		"max_tokens": 1024,
		"system":     system,
		"messages": []map[string]string{
			{"role": "user", "content": req.User},
		},
	}

	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("anthropic http %d: %s", resp.StatusCode, truncate(buf.String(), 800))
	}

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		return "", err
	}
	for _, block := range out.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", errors.New("no text content returned")
}
