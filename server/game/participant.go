package game

import "context"

// Kind discriminates how a participant's decisions are obtained.
type Kind string

const (
	KindHuman    Kind = "human"    // driven by the external caller (form submissions)
	KindScripted Kind = "scripted" // no decision source; invests the passive default
	KindLLM      Kind = "llm"      // backed by a DecisionSource adapter
)

// DecisionSource supplies a bounded investment or a free-text statement for one
// participant. Implementations handle their own failures: Decide must clamp the
// amount into [0, ceiling] and downgrade any provider or parse error to 0 with a
// rationale explaining the fallback; State returns FallbackStatement on failure.
// Neither call ever propagates an error into a phase transition.
type DecisionSource interface {
	Decide(ctx context.Context, digest string) (amount float64, rationale string)
	State(ctx context.Context, digest string) string
}

// Participant is one seat in a game. Bank is only mutated by the round ledger.
type Participant struct {
	ID          string
	Name        string
	Kind        Kind
	Bank        float64
	Personality string
	Strategy    string
	Provider    string
	Model       string

	source DecisionSource
}

// AttachSource wires the decision source for an llm-kind participant.
func (p *Participant) AttachSource(s DecisionSource) { p.source = s }

// Source returns the attached decision source, nil for human/scripted kinds.
func (p *Participant) Source() DecisionSource { return p.source }
