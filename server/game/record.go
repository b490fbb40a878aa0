package game

import "context"

// Contribution tags a decision relative to the round's mean investment.
type Contribution string

const (
	ContributedMore Contribution = "more"
	ContributedLess Contribution = "less"
	ContributedSame Contribution = "same"
)

// RoundRecord is the immutable record of one participant's outcome for one
// completed round. Created exactly once, at the end of the discussion phase.
type RoundRecord struct {
	Round        int          `json:"round"`
	PlayerID     string       `json:"player_id"`
	PlayerName   string       `json:"player_name"`
	PlayerKind   Kind         `json:"player_kind"`
	Decision     float64      `json:"decision"`
	Payoff       float64      `json:"payoff"` // rounded for display
	Contribution Contribution `json:"contribution"`
	Statement    string       `json:"statement"`
	Rationale    string       `json:"rationale"`
}

// RecordSink mirrors round records to a durable store. Both calls are
// best-effort from the game's point of view: failures are logged, never
// allowed to abort a phase transition.
type RecordSink interface {
	// AppendRoundRecords persists the records of one completed round.
	AppendRoundRecords(ctx context.Context, gameID string, recs []RoundRecord) error
	// ExportGame produces the full tabular export of a finished game.
	// Invoked exactly once, at the DISCUSSION -> GAMEOVER transition.
	ExportGame(ctx context.Context, snap Snapshot) error
}

func contributionTag(decision, mean float64) Contribution {
	switch {
	case decision > mean:
		return ContributedMore
	case decision < mean:
		return ContributedLess
	default:
		return ContributedSame
	}
}
