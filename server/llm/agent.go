package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nathanbos/mixed-motive-games/server/agent"
	"github.com/nathanbos/mixed-motive-games/server/game"
)

const requestTimeout = 45 * time.Second

// Agent is the decision source backed by a language model. Every failure —
// network, HTTP, parse — is downgraded here to the fallback decision or
// statement with a recorded rationale; nothing propagates upward.
type Agent struct {
	name        string
	personality string
	strategy    string
	ceiling     float64
	client      Client
	logger      *log.Logger
}

var _ game.DecisionSource = (*Agent)(nil)

// NewAgent constructs the adapter for one participant. Provider selection
// happens here and nowhere else; an unknown provider fails fast.
func NewAgent(provider, model, name, personality, strategy string, ceiling float64, logger *log.Logger) (*Agent, error) {
	client, err := NewClient(provider, model)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Agent{
		name:        name,
		personality: personality,
		strategy:    strategy,
		ceiling:     ceiling,
		client:      client,
		logger:      logger,
	}, nil
}

func (a *Agent) systemPrompt() string {
	s := fmt.Sprintf("You are %s, a player in a repeated public-goods investment game against other players.", a.name)
	if a.personality != "" {
		s += fmt.Sprintf(" Your personality: %s.", a.personality)
	}
	if a.strategy != "" {
		s += fmt.Sprintf(" Your strategy: %s", a.strategy)
	}
	s += " Stay in character. Base decisions only on the game summary you are given."
	return s
}

// Decide asks the model for a bounded investment. The returned amount is
// already clamped into [0, ceiling].
func (a *Agent) Decide(ctx context.Context, digest string) (float64, string) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	user := digest + fmt.Sprintf(
		"\nRespond ONLY with a single compact JSON object:\n"+
			`{"investment": <number between 0 and %g>, "reasoning": "<one or two sentences>"}`+
			"\nNo extra keys. No prose. No markdown.", a.ceiling)

	raw, err := a.client.Complete(ctx, Request{System: a.systemPrompt(), User: user, JSONOnly: true})
	if err != nil {
		a.logger.Warn("decision request failed", "player", a.name, "err", err)
		return 0, fmt.Sprintf("Invested 0 by fallback: the provider request failed (%v).", err)
	}
	d, err := agent.ParseDecision(raw, a.ceiling)
	if err != nil {
		a.logger.Warn("decision response unparseable", "player", a.name, "err", err)
		return 0, "Invested 0 by fallback: the model response could not be parsed."
	}
	if d.Reasoning == "" {
		d.Reasoning = "(no reasoning given)"
	}
	return d.Investment, d.Reasoning
}

// State asks the model for the free-text statement shown to the other
// players before the next round.
func (a *Agent) State(ctx context.Context, digest string) string {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	user := digest + "\nWrite the short statement (one or two sentences) you want the other players to read before the next round. Respond with the statement only."

	raw, err := a.client.Complete(ctx, Request{System: a.systemPrompt(), User: user})
	if err != nil {
		a.logger.Warn("statement request failed", "player", a.name, "err", err)
		return game.FallbackStatement
	}
	s := agent.SanitizeStatement(raw)
	if s == "" {
		return game.FallbackStatement
	}
	return s
}
