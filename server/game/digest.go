package game

import (
	"fmt"
	"strconv"
	"strings"
)

// The digest is the entire contextual input handed to a decision source: it
// must be self-contained and must never show a round's own results before
// that round's investment phase has completed.

// investmentDigest is the pre-decision digest: full history newest-first,
// then the participant's bank, the upcoming round number, and the payoff
// rule parameterized by the game's actual ceiling and multiplier.
func (g *Game) investmentDigest(p *Participant) string {
	var b strings.Builder
	g.writeHistory(&b, p)
	fmt.Fprintf(&b, "Your current bank balance is %.2f.\n", p.Bank)
	fmt.Fprintf(&b, "Round %d of %d is about to begin.\n", g.CurrentRound, g.Cfg.Rounds)
	fmt.Fprintf(&b,
		"Rules: privately choose an investment between 0 and %s. Whatever you keep is yours. "+
			"All investments are pooled, multiplied by %s, and the pot is split equally among all %d players regardless of contribution.\n",
		trimFloat(g.Cfg.Ceiling), trimFloat(g.Cfg.Multiplier), len(g.Players))
	return b.String()
}

// discussionDigest is the pre-statement digest: the same history, followed by
// the just-computed investment results under a dedicated header.
func (g *Game) discussionDigest(p *Participant) string {
	var b strings.Builder
	g.writeHistory(&b, p)
	fmt.Fprintf(&b, "--- Round %d results ---\n", g.CurrentRound)
	for _, other := range g.Players {
		fmt.Fprintf(&b, "%s invested %s and received a payoff of %.2f.\n",
			g.label(other, p), trimFloat(g.LastDecisions[other.ID]), g.LastPayoffs[other.ID])
	}
	b.WriteString("All players now exchange one statement before the next round.\n")
	return b.String()
}

// writeHistory renders the round log grouped by round, newest round first,
// with the requesting participant's own entries relabeled "You".
func (g *Game) writeHistory(b *strings.Builder, p *Participant) {
	if len(g.Records) == 0 {
		b.WriteString("No rounds have been played yet.\n")
		return
	}
	byRound := make(map[int][]RoundRecord)
	last := 0
	for _, r := range g.Records {
		byRound[r.Round] = append(byRound[r.Round], r)
		if r.Round > last {
			last = r.Round
		}
	}
	for round := last; round >= 1; round-- {
		fmt.Fprintf(b, "--- Round %d ---\n", round)
		for _, r := range byRound[round] {
			name := r.PlayerName
			if r.PlayerID == p.ID {
				name = "You"
			}
			fmt.Fprintf(b, "%s invested %s (%s the round average) and earned %.2f. Statement: %q\n",
				name, trimFloat(r.Decision), contributionPhrase(r.Contribution), r.Payoff, r.Statement)
		}
	}
}

func (g *Game) label(other, viewer *Participant) string {
	if other.ID == viewer.ID {
		return "You"
	}
	return other.Name
}

func contributionPhrase(c Contribution) string {
	switch c {
	case ContributedMore:
		return "more than"
	case ContributedLess:
		return "less than"
	default:
		return "the same as"
	}
}

// trimFloat renders 5.0 as "5" and 2.5 as "2.5".
func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
