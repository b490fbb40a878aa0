package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Decision is the JSON object a model must emit for an investment turn.
type Decision struct {
	Investment float64 `json:"investment"`
	Reasoning  string  `json:"reasoning,omitempty"` // <=240 chars
}

const maxReasoningLen = 240
const maxStatementLen = 280

// ParseDecision tolerantly parses a model response into a Decision and
// clamps the investment into [0, ceiling]. It accepts the amount under an
// "amount" alias and numbers given as strings; anything it cannot salvage is
// an error the caller downgrades to the zero-investment fallback.
func ParseDecision(raw string, ceiling float64) (Decision, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Decision{}, errors.New("empty response")
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		cleaned := ExtractJSONObject(raw)
		if cleaned == "" {
			return Decision{}, err
		}
		if err2 := json.Unmarshal([]byte(cleaned), &parsed); err2 != nil {
			return Decision{}, err
		}
	}

	amount, ok := coerceNumber(parsed["investment"])
	if !ok {
		amount, ok = coerceNumber(parsed["amount"])
	}
	if !ok {
		return Decision{}, fmt.Errorf("no investment amount in response")
	}

	reasoning, _ := parsed["reasoning"].(string)
	if reasoning == "" {
		reasoning, _ = parsed["rationale"].(string)
	}
	reasoning = strings.TrimSpace(reasoning)
	if len(reasoning) > maxReasoningLen {
		reasoning = reasoning[:maxReasoningLen]
	}

	return Decision{Investment: Clamp(amount, ceiling), Reasoning: reasoning}, nil
}

// Clamp bounds an investment into [0, ceiling].
func Clamp(v, ceiling float64) float64 {
	if v < 0 {
		return 0
	}
	if v > ceiling {
		return ceiling
	}
	return v
}

// SanitizeStatement trims a free-text statement and caps its length.
func SanitizeStatement(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStatementLen {
		s = s[:maxStatementLen]
	}
	return s
}

// ExtractJSONObject pulls the first {...} span out of a response that wraps
// its JSON in prose or markdown fences.
func ExtractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return ""
	}
	return strings.TrimSpace(s[start : end+1])
}

func coerceNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
