package store

import (
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanbos/mixed-motive-games/server/game"
)

func testSnapshot() game.Snapshot {
	return game.Snapshot{
		ID:        "Game-abc123",
		CreatedAt: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		Config:    game.DefaultConfig(),
		Phase:     game.PhaseGameOver,
		Records: []game.RoundRecord{
			{Round: 1, PlayerID: "a", PlayerName: "Agent_A", PlayerKind: game.KindLLM, Decision: 5, Payoff: 5, Contribution: game.ContributedMore, Statement: "trust me, \"really\"", Rationale: "all in"},
			{Round: 1, PlayerID: "b", PlayerName: "Agent_B", PlayerKind: game.KindLLM, Decision: 0, Payoff: 10, Contribution: game.ContributedLess, Statement: "...", Rationale: "holding back"},
		},
	}
}

func TestWriteGameCSV(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteGameCSV(dir, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, dir+"/Game-abc123_20250601-123000.csv", path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 entries

	assert.Equal(t, []string{"round", "player_id", "player_name", "player_kind", "decision", "payoff", "contribution", "statement", "rationale"}, rows[0])
	assert.Equal(t, []string{"1", "a", "Agent_A", "llm", "5", "5.00", "more", `trust me, "really"`, "all in"}, rows[1])
	assert.Equal(t, "Agent_B", rows[2][2])
}

func TestFindGameCSV(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteGameCSV(dir, testSnapshot())
	require.NoError(t, err)

	path, err := FindGameCSV(dir, "Game-abc123")
	require.NoError(t, err)
	assert.Contains(t, path, "Game-abc123_")

	_, err = FindGameCSV(dir, "Game-missing")
	require.ErrorIs(t, err, ErrNotFound)
}
