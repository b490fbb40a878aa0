package game

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotJSONRoundTrip(t *testing.T) {
	g, _ := newAIGame(t, 3,
		&stubSource{amount: 2, rationale: "steady", statement: "keep going"},
		&stubSource{amount: 5, rationale: "all in", statement: "trust me"},
	)
	playRounds(t, g, 2)

	snap := g.Snapshot()
	blob, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(blob, &decoded))

	restored, err := Restore(decoded, nil)
	require.NoError(t, err)

	assert.Equal(t, g.Phase, restored.Phase)
	assert.Equal(t, g.CurrentRound, restored.CurrentRound)
	assert.Equal(t, g.Records, restored.Records)
	assert.Equal(t, g.Earnings, restored.Earnings)
	for i, p := range g.Players {
		assert.Equal(t, p.Bank, restored.Players[i].Bank)
		assert.Equal(t, p.ID, restored.Players[i].ID)
	}

	// The snapshot of the restored game is observably identical.
	assert.Equal(t, snap, restored.Snapshot())
}

func TestRestoreMidGameContinues(t *testing.T) {
	ctx := context.Background()
	g, _ := newAIGame(t, 2,
		&stubSource{amount: 3, statement: "x"},
		&stubSource{amount: 1, statement: "y"},
	)
	require.NoError(t, g.RunInvestmentPhase(ctx, nil))

	factoryCalls := 0
	restored, err := Restore(g.Snapshot(), func(p *Participant, cfg Config) (DecisionSource, error) {
		factoryCalls++
		return &stubSource{amount: 2, statement: "restored"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, factoryCalls, "one fresh source per llm participant")
	assert.Equal(t, PhaseDiscussion, restored.Phase)

	require.NoError(t, restored.RunDiscussionPhase(ctx, nil))
	assert.Equal(t, PhaseInvestment, restored.Phase)
	require.Len(t, restored.Records, 2)
	assert.Equal(t, "restored", restored.Records[0].Statement)
}

func TestRestoreRejectsUnknownPhase(t *testing.T) {
	g, _ := newAIGame(t, 1, &stubSource{amount: 1})
	snap := g.Snapshot()
	snap.Phase = "LIMBO"

	_, err := Restore(snap, nil)
	require.Error(t, err)
}

func TestSnapshotExcludesCredentials(t *testing.T) {
	p := &Participant{
		ID: "a", Name: "Agent", Kind: KindLLM, Bank: 100,
		Provider: "openai", Model: "gpt-4o-mini",
	}
	g, err := New("Game-cred01", []*Participant{p}, DefaultConfig())
	require.NoError(t, err)

	blob, err := json.Marshal(g.Snapshot())
	require.NoError(t, err)

	assert.Contains(t, string(blob), `"provider":"openai"`)
	assert.Contains(t, string(blob), `"model":"gpt-4o-mini"`)
	assert.NotContains(t, string(blob), "key")
}
