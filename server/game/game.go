package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Sequencing errors: caller mistakes, kept distinct from decision-source
// failures (which never surface as errors at all).
var (
	// ErrGameOver is returned when a phase transition is invoked on a
	// finished game. GAMEOVER is terminal; repeat calls are rejected.
	ErrGameOver = errors.New("game is over")
	// ErrWrongPhase is returned when the wrong transition is invoked for
	// the current phase.
	ErrWrongPhase = errors.New("wrong phase")
	// ErrNoExternal is returned when an override is supplied but the game
	// has no externally-driven participant.
	ErrNoExternal = errors.New("no externally-driven participant")
)

// Phase is the state machine's current stage.
type Phase string

const (
	PhaseInvestment Phase = "INVESTMENT"
	PhaseDiscussion Phase = "DISCUSSION"
	PhaseGameOver   Phase = "GAMEOVER"
)

const (
	// FallbackStatement is recorded when a decision source cannot produce
	// a statement.
	FallbackStatement = "..."
	// NoStatement is recorded for participants that never give statements
	// (scripted seats, humans who submitted nothing).
	NoStatement = "(none)"

	passiveRationale = "No decision source attached; invested the passive default of 0."
	humanRationale   = "Human decision submitted this round."
	noRationale      = "(none)"
)

// Config holds the economic parameters fixed at game start.
type Config struct {
	Rounds     int     `json:"rounds"`
	Ceiling    float64 `json:"ceiling"`
	Multiplier float64 `json:"multiplier"`
	StartBank  float64 `json:"start_bank"`
}

// DefaultConfig mirrors the stock setup: 3 rounds, invest 0-5, pot x1.5,
// everyone starts with a bank of 100.
func DefaultConfig() Config {
	return Config{Rounds: 3, Ceiling: 5, Multiplier: 1.5, StartBank: 100}
}

func (c Config) validate() error {
	if c.Rounds <= 0 {
		return fmt.Errorf("rounds must be positive, got %d", c.Rounds)
	}
	if c.Ceiling <= 0 {
		return fmt.Errorf("ceiling must be positive, got %g", c.Ceiling)
	}
	if c.Multiplier <= 0 {
		return fmt.Errorf("multiplier must be positive, got %g", c.Multiplier)
	}
	return nil
}

// Game owns the authoritative mutable state of one repeated public-goods
// match. It is driven synchronously by a single caller, one phase transition
// per call, and is fully serializable between calls (see Snapshot).
type Game struct {
	ID        string
	CreatedAt time.Time
	Cfg       Config
	Players   []*Participant

	CurrentRound int
	Phase        Phase

	// Earnings accumulates this game's payoffs per participant, separate
	// from the bank (which may carry over from prior games).
	Earnings map[string]float64

	// Transient per-round results, overwritten each round.
	LastDecisions  map[string]float64
	LastRationales map[string]string
	LastPayoffs    map[string]float64
	LastStatements map[string]string

	// Records is the append-only round log.
	Records []RoundRecord

	sink   RecordSink
	logger *log.Logger
}

// NewID produces a short game identifier like "Game-3fa9c1".
func NewID() string {
	u := uuid.New()
	return fmt.Sprintf("Game-%x", u[:3])
}

// New validates configuration and constructs a game in the initial
// INVESTMENT state with the round counter at zero.
func New(id string, players []*Participant, cfg Config) (*Game, error) {
	if id == "" {
		return nil, errors.New("game id must be non-empty")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, errors.New("game needs at least one participant")
	}
	seen := make(map[string]bool, len(players))
	for _, p := range players {
		if p.ID == "" {
			return nil, fmt.Errorf("participant %q has an empty id", p.Name)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate participant id %q", p.ID)
		}
		seen[p.ID] = true
	}
	return &Game{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Cfg:       cfg,
		Players:   players,
		Phase:     PhaseInvestment,
		Earnings:  make(map[string]float64, len(players)),
		logger:    log.Default(),
	}, nil
}

// SetSink attaches the durable record sink. A nil sink disables mirroring.
func (g *Game) SetSink(s RecordSink) { g.sink = s }

// SetLogger replaces the package default logger.
func (g *Game) SetLogger(l *log.Logger) {
	if l != nil {
		g.logger = l
	}
}

// ExternalPlayer returns the designated externally-driven participant (the
// first human seat), or nil for an unattended all-AI game.
func (g *Game) ExternalPlayer() *Participant {
	for _, p := range g.Players {
		if p.Kind == KindHuman {
			return p
		}
	}
	return nil
}

// Player looks a participant up by id.
func (g *Game) Player(id string) *Participant {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// RunInvestmentPhase advances INVESTMENT -> DISCUSSION. It increments the
// round counter, collects one clamped decision per participant against the
// same pre-round digest, computes payoffs, and stores the transient results.
// The override, if supplied, is the externally-driven participant's
// out-of-band decision and is clamped here at the boundary.
func (g *Game) RunInvestmentPhase(ctx context.Context, override *float64) error {
	switch g.Phase {
	case PhaseGameOver:
		return ErrGameOver
	case PhaseDiscussion:
		return fmt.Errorf("%w: investment phase invoked during %s", ErrWrongPhase, g.Phase)
	}
	external := g.ExternalPlayer()
	if override != nil && external == nil {
		return fmt.Errorf("%w: investment override supplied", ErrNoExternal)
	}

	g.CurrentRound++

	decisions := make(map[string]float64, len(g.Players))
	rationales := make(map[string]string, len(g.Players))
	for _, p := range g.Players {
		switch {
		case external != nil && p.ID == external.ID:
			if override != nil {
				decisions[p.ID] = clamp(*override, g.Cfg.Ceiling)
				rationales[p.ID] = humanRationale
			} else {
				decisions[p.ID] = 0
				rationales[p.ID] = passiveRationale
			}
		case p.source != nil:
			amount, rationale := p.source.Decide(ctx, g.investmentDigest(p))
			decisions[p.ID] = amount
			rationales[p.ID] = rationale
		default:
			decisions[p.ID] = 0
			rationales[p.ID] = passiveRationale
		}
	}

	g.LastDecisions = decisions
	g.LastRationales = rationales
	g.LastPayoffs = ComputePayoffs(decisions, len(g.Players), g.Cfg.Ceiling, g.Cfg.Multiplier)
	g.Phase = PhaseDiscussion
	return nil
}

// RunDiscussionPhase advances DISCUSSION -> INVESTMENT, or to GAMEOVER after
// the final round. It collects statements from every source-backed
// participant, applies the external statement override, materializes the
// round into the log (the single point of bank mutation), and on the last
// round triggers the full-game export.
func (g *Game) RunDiscussionPhase(ctx context.Context, override *string) error {
	switch g.Phase {
	case PhaseGameOver:
		return ErrGameOver
	case PhaseInvestment:
		return fmt.Errorf("%w: discussion phase invoked during %s", ErrWrongPhase, g.Phase)
	}
	external := g.ExternalPlayer()
	if override != nil && external == nil {
		return fmt.Errorf("%w: statement override supplied", ErrNoExternal)
	}

	statements := make(map[string]string, len(g.Players))
	for _, p := range g.Players {
		switch {
		case external != nil && p.ID == external.ID:
			if override != nil {
				statements[p.ID] = *override
			} else {
				statements[p.ID] = NoStatement
			}
		case p.source != nil:
			statements[p.ID] = p.source.State(ctx, g.discussionDigest(p))
		default:
			statements[p.ID] = NoStatement
		}
	}
	g.LastStatements = statements

	g.logCompletedRound(ctx, statements)

	if g.CurrentRound >= g.Cfg.Rounds {
		g.Phase = PhaseGameOver
		if g.sink != nil {
			if err := g.sink.ExportGame(ctx, g.Snapshot()); err != nil {
				g.logger.Warn("game export failed", "game", g.ID, "err", err)
			}
		}
	} else {
		g.Phase = PhaseInvestment
	}
	return nil
}

// logCompletedRound turns the round's transient results into immutable
// records, applies payoffs to banks and per-game earnings, and mirrors the
// records to the sink. This is the only code path that mutates a bank.
func (g *Game) logCompletedRound(ctx context.Context, statements map[string]string) {
	var total float64
	for _, d := range g.LastDecisions {
		total += d
	}
	mean := total / float64(len(g.Players))

	recs := make([]RoundRecord, 0, len(g.Players))
	for _, p := range g.Players {
		decision := g.LastDecisions[p.ID]
		payoff := g.LastPayoffs[p.ID]

		p.Bank += payoff
		g.Earnings[p.ID] += payoff

		rationale := g.LastRationales[p.ID]
		if rationale == "" {
			rationale = noRationale
		}
		statement := statements[p.ID]
		if statement == "" {
			statement = NoStatement
		}
		recs = append(recs, RoundRecord{
			Round:        g.CurrentRound,
			PlayerID:     p.ID,
			PlayerName:   p.Name,
			PlayerKind:   p.Kind,
			Decision:     decision,
			Payoff:       round2(payoff),
			Contribution: contributionTag(decision, mean),
			Statement:    statement,
			Rationale:    rationale,
		})
	}
	g.Records = append(g.Records, recs...)

	if g.sink != nil {
		if err := g.sink.AppendRoundRecords(ctx, g.ID, recs); err != nil {
			g.logger.Warn("round record mirror failed", "game", g.ID, "round", g.CurrentRound, "err", err)
		}
	}
}

func clamp(v, ceiling float64) float64 {
	if v < 0 {
		return 0
	}
	if v > ceiling {
		return ceiling
	}
	return v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
