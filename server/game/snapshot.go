package game

import (
	"fmt"
	"time"
)

// ParticipantSnapshot is the serialized form of a seat. Decision-source
// configuration (provider, model) travels with llm participants; credentials
// never do.
type ParticipantSnapshot struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Kind        Kind    `json:"kind"`
	Bank        float64 `json:"bank"`
	Personality string  `json:"personality,omitempty"`
	Strategy    string  `json:"strategy,omitempty"`
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model,omitempty"`
}

// Snapshot is the sole handoff artifact to the surrounding session layer: a
// plain nested mapping of primitive values. Restore(Snapshot) reproduces an
// observably identical game with freshly initialized decision sources.
type Snapshot struct {
	ID             string                `json:"game_id"`
	CreatedAt      time.Time             `json:"created_at"`
	Config         Config                `json:"config"`
	Players        []ParticipantSnapshot `json:"players"`
	CurrentRound   int                   `json:"current_round"`
	Phase          Phase                 `json:"phase"`
	Earnings       map[string]float64    `json:"earnings"`
	LastDecisions  map[string]float64    `json:"last_decisions,omitempty"`
	LastRationales map[string]string     `json:"last_rationales,omitempty"`
	LastPayoffs    map[string]float64    `json:"last_payoffs,omitempty"`
	LastStatements map[string]string     `json:"last_statements,omitempty"`
	Records        []RoundRecord         `json:"records"`
}

// Snapshot captures the full observable state of the game.
func (g *Game) Snapshot() Snapshot {
	players := make([]ParticipantSnapshot, len(g.Players))
	for i, p := range g.Players {
		players[i] = ParticipantSnapshot{
			ID:          p.ID,
			Name:        p.Name,
			Kind:        p.Kind,
			Bank:        p.Bank,
			Personality: p.Personality,
			Strategy:    p.Strategy,
			Provider:    p.Provider,
			Model:       p.Model,
		}
	}
	return Snapshot{
		ID:             g.ID,
		CreatedAt:      g.CreatedAt,
		Config:         g.Cfg,
		Players:        players,
		CurrentRound:   g.CurrentRound,
		Phase:          g.Phase,
		Earnings:       copyFloatMap(g.Earnings),
		LastDecisions:  copyFloatMap(g.LastDecisions),
		LastRationales: copyStringMap(g.LastRationales),
		LastPayoffs:    copyFloatMap(g.LastPayoffs),
		LastStatements: copyStringMap(g.LastStatements),
		Records:        append([]RoundRecord(nil), g.Records...),
	}
}

// SourceFactory builds a fresh decision source for a restored llm
// participant. The game config is passed so adapters know the ceiling.
type SourceFactory func(p *Participant, cfg Config) (DecisionSource, error)

// Restore rebuilds a game from its snapshot. Sources for llm participants
// are re-initialized through the factory; a nil factory restores the game
// without sources (sufficient for read-only views).
func Restore(s Snapshot, newSource SourceFactory) (*Game, error) {
	switch s.Phase {
	case PhaseInvestment, PhaseDiscussion, PhaseGameOver:
	default:
		return nil, fmt.Errorf("unknown phase %q", s.Phase)
	}
	players := make([]*Participant, len(s.Players))
	for i, ps := range s.Players {
		players[i] = &Participant{
			ID:          ps.ID,
			Name:        ps.Name,
			Kind:        ps.Kind,
			Bank:        ps.Bank,
			Personality: ps.Personality,
			Strategy:    ps.Strategy,
			Provider:    ps.Provider,
			Model:       ps.Model,
		}
	}
	g, err := New(s.ID, players, s.Config)
	if err != nil {
		return nil, err
	}
	g.CreatedAt = s.CreatedAt
	g.CurrentRound = s.CurrentRound
	g.Phase = s.Phase
	if s.Earnings != nil {
		g.Earnings = copyFloatMap(s.Earnings)
	}
	g.LastDecisions = copyFloatMap(s.LastDecisions)
	g.LastRationales = copyStringMap(s.LastRationales)
	g.LastPayoffs = copyFloatMap(s.LastPayoffs)
	g.LastStatements = copyStringMap(s.LastStatements)
	g.Records = append([]RoundRecord(nil), s.Records...)

	if newSource != nil {
		for _, p := range g.Players {
			if p.Kind != KindLLM {
				continue
			}
			src, err := newSource(p, g.Cfg)
			if err != nil {
				return nil, fmt.Errorf("restore source for %s: %w", p.Name, err)
			}
			p.AttachSource(src)
		}
	}
	return g, nil
}

func copyFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
