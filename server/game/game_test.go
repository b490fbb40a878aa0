package game

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource is a deterministic decision source for tests.
type stubSource struct {
	amount    float64
	rationale string
	statement string
	digests   []string
}

func (s *stubSource) Decide(_ context.Context, digest string) (float64, string) {
	s.digests = append(s.digests, digest)
	return s.amount, s.rationale
}

func (s *stubSource) State(_ context.Context, digest string) string {
	s.digests = append(s.digests, digest)
	return s.statement
}

// memorySink records what the game mirrors to it.
type memorySink struct {
	appended [][]RoundRecord
	exports  int
	fail     bool
}

func (m *memorySink) AppendRoundRecords(_ context.Context, _ string, recs []RoundRecord) error {
	if m.fail {
		return errors.New("sink unavailable")
	}
	m.appended = append(m.appended, recs)
	return nil
}

func (m *memorySink) ExportGame(_ context.Context, _ Snapshot) error {
	if m.fail {
		return errors.New("sink unavailable")
	}
	m.exports++
	return nil
}

func llmParticipant(id, name string, src DecisionSource) *Participant {
	p := &Participant{ID: id, Name: name, Kind: KindLLM, Bank: 100}
	p.AttachSource(src)
	return p
}

func newAIGame(t *testing.T, rounds int, sources ...*stubSource) (*Game, *memorySink) {
	t.Helper()
	players := make([]*Participant, len(sources))
	for i, src := range sources {
		players[i] = llmParticipant(string(rune('A'+i)), "Agent_"+string(rune('A'+i)), src)
	}
	cfg := DefaultConfig()
	cfg.Rounds = rounds
	g, err := New("Game-test01", players, cfg)
	require.NoError(t, err)
	sink := &memorySink{}
	g.SetSink(sink)
	return g, sink
}

func TestNewValidation(t *testing.T) {
	valid := []*Participant{{ID: "a", Name: "A", Kind: KindScripted}}

	_, err := New("", valid, DefaultConfig())
	require.Error(t, err)

	_, err = New("g", nil, DefaultConfig())
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.Rounds = 0
	_, err = New("g", valid, cfg)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.Multiplier = -1
	_, err = New("g", valid, cfg)
	require.Error(t, err)

	dupes := []*Participant{
		{ID: "a", Name: "A", Kind: KindScripted},
		{ID: "a", Name: "B", Kind: KindScripted},
	}
	_, err = New("g", dupes, DefaultConfig())
	require.Error(t, err)

	g, err := New("g", valid, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, PhaseInvestment, g.Phase)
	assert.Equal(t, 0, g.CurrentRound)
}

func TestUnattendedOneRoundGame(t *testing.T) {
	ctx := context.Background()
	g, sink := newAIGame(t, 1,
		&stubSource{amount: 5, rationale: "max in", statement: "good round"},
		&stubSource{amount: 0, rationale: "holding back", statement: "we will see"},
	)

	require.NoError(t, g.RunInvestmentPhase(ctx, nil))
	assert.Equal(t, PhaseDiscussion, g.Phase)
	assert.Equal(t, 1, g.CurrentRound)

	require.NoError(t, g.RunDiscussionPhase(ctx, nil))
	assert.Equal(t, PhaseGameOver, g.Phase)
	assert.Len(t, g.Records, 2)
	assert.Equal(t, 1, sink.exports)
	assert.Len(t, sink.appended, 1)

	// GAMEOVER is terminal: further transitions are rejected.
	require.ErrorIs(t, g.RunInvestmentPhase(ctx, nil), ErrGameOver)
	require.ErrorIs(t, g.RunDiscussionPhase(ctx, nil), ErrGameOver)
}

func TestPhaseSequence(t *testing.T) {
	ctx := context.Background()
	g, sink := newAIGame(t, 3,
		&stubSource{amount: 2, statement: "a"},
		&stubSource{amount: 3, statement: "b"},
	)

	for round := 1; round <= 3; round++ {
		require.Equal(t, PhaseInvestment, g.Phase)
		require.NoError(t, g.RunInvestmentPhase(ctx, nil))
		assert.Equal(t, round, g.CurrentRound)
		require.Equal(t, PhaseDiscussion, g.Phase)
		require.NoError(t, g.RunDiscussionPhase(ctx, nil))
	}
	assert.Equal(t, PhaseGameOver, g.Phase)
	assert.Equal(t, g.Cfg.Rounds, g.CurrentRound)
	assert.Equal(t, 1, sink.exports)
}

func TestWrongPhaseRejected(t *testing.T) {
	ctx := context.Background()
	g, _ := newAIGame(t, 2, &stubSource{amount: 1, statement: "x"})

	require.ErrorIs(t, g.RunDiscussionPhase(ctx, nil), ErrWrongPhase)

	require.NoError(t, g.RunInvestmentPhase(ctx, nil))
	require.ErrorIs(t, g.RunInvestmentPhase(ctx, nil), ErrWrongPhase)
}

func TestHumanOverrideClampedAndApplied(t *testing.T) {
	ctx := context.Background()
	human := &Participant{ID: "h", Name: "Human_1", Kind: KindHuman, Bank: 100}
	ai := llmParticipant("a", "Agent_A", &stubSource{amount: 5, statement: "hi"})
	g, err := New("Game-human1", []*Participant{human, ai}, DefaultConfig())
	require.NoError(t, err)

	over := 99.0
	require.NoError(t, g.RunInvestmentPhase(ctx, &over))
	assert.Equal(t, g.Cfg.Ceiling, g.LastDecisions["h"])

	stmt := "I promise to invest everything"
	require.NoError(t, g.RunDiscussionPhase(ctx, &stmt))
	assert.Equal(t, stmt, g.Records[0].Statement)
}

func TestHumanWithoutOverrideIsPassive(t *testing.T) {
	ctx := context.Background()
	human := &Participant{ID: "h", Name: "Human_1", Kind: KindHuman, Bank: 100}
	ai := llmParticipant("a", "Agent_A", &stubSource{amount: 4, statement: "hi"})
	g, err := New("Game-human2", []*Participant{human, ai}, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, g.RunInvestmentPhase(ctx, nil))
	assert.Zero(t, g.LastDecisions["h"])
	assert.Equal(t, passiveRationale, g.LastRationales["h"])

	require.NoError(t, g.RunDiscussionPhase(ctx, nil))
	require.Equal(t, "h", g.Records[0].PlayerID)
	assert.Equal(t, NoStatement, g.Records[0].Statement)
}

func TestOverrideWithoutExternalParticipant(t *testing.T) {
	ctx := context.Background()
	g, _ := newAIGame(t, 1, &stubSource{amount: 1, statement: "x"})

	over := 3.0
	require.ErrorIs(t, g.RunInvestmentPhase(ctx, &over), ErrNoExternal)
}

func TestScriptedParticipantInvestsPassiveDefault(t *testing.T) {
	ctx := context.Background()
	scripted := &Participant{ID: "s", Name: "Drone", Kind: KindScripted, Bank: 100}
	ai := llmParticipant("a", "Agent_A", &stubSource{amount: 5, statement: "hi"})
	g, err := New("Game-script1", []*Participant{scripted, ai}, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, g.RunInvestmentPhase(ctx, nil))
	require.NoError(t, g.RunDiscussionPhase(ctx, nil))

	require.Equal(t, "s", g.Records[0].PlayerID)
	assert.Zero(t, g.Records[0].Decision)
	assert.Equal(t, passiveRationale, g.Records[0].Rationale)
	assert.Equal(t, NoStatement, g.Records[0].Statement)
}

func TestBankAndEarningsAccounting(t *testing.T) {
	ctx := context.Background()
	g, _ := newAIGame(t, 2,
		&stubSource{amount: 0, statement: "a"},
		&stubSource{amount: 5, statement: "b"},
		&stubSource{amount: 5, statement: "c"},
	)

	banksBefore := map[string]float64{}
	for _, p := range g.Players {
		banksBefore[p.ID] = p.Bank
	}

	require.NoError(t, g.RunInvestmentPhase(ctx, nil))
	payoffs := g.LastPayoffs
	require.NoError(t, g.RunDiscussionPhase(ctx, nil))

	for _, p := range g.Players {
		assert.InDelta(t, banksBefore[p.ID]+payoffs[p.ID], p.Bank, 1e-9, "bank for %s", p.Name)
		assert.InDelta(t, payoffs[p.ID], g.Earnings[p.ID], 1e-9, "earnings for %s", p.Name)
	}

	// Second round accumulates.
	require.NoError(t, g.RunInvestmentPhase(ctx, nil))
	second := g.LastPayoffs
	require.NoError(t, g.RunDiscussionPhase(ctx, nil))
	for _, p := range g.Players {
		assert.InDelta(t, payoffs[p.ID]+second[p.ID], g.Earnings[p.ID], 1e-9)
	}
}

func TestContributionTags(t *testing.T) {
	ctx := context.Background()
	g, _ := newAIGame(t, 1,
		&stubSource{amount: 0, statement: "a"},
		&stubSource{amount: 5, statement: "b"},
		&stubSource{amount: 5, statement: "c"},
	)

	require.NoError(t, g.RunInvestmentPhase(ctx, nil))
	require.NoError(t, g.RunDiscussionPhase(ctx, nil))

	byID := map[string]RoundRecord{}
	for _, r := range g.Records {
		byID[r.PlayerID] = r
	}
	// mean is 10/3
	assert.Equal(t, ContributedLess, byID["A"].Contribution)
	assert.Equal(t, ContributedMore, byID["B"].Contribution)
	assert.Equal(t, ContributedMore, byID["C"].Contribution)
}

func TestEqualContributionsTagSame(t *testing.T) {
	ctx := context.Background()
	g, _ := newAIGame(t, 1,
		&stubSource{amount: 2, statement: "a"},
		&stubSource{amount: 2, statement: "b"},
	)

	require.NoError(t, g.RunInvestmentPhase(ctx, nil))
	require.NoError(t, g.RunDiscussionPhase(ctx, nil))
	for _, r := range g.Records {
		assert.Equal(t, ContributedSame, r.Contribution)
	}
}

func TestSinkFailureDoesNotAbortTransition(t *testing.T) {
	ctx := context.Background()
	g, sink := newAIGame(t, 1, &stubSource{amount: 3, statement: "x"})
	sink.fail = true

	require.NoError(t, g.RunInvestmentPhase(ctx, nil))
	require.NoError(t, g.RunDiscussionPhase(ctx, nil))
	assert.Equal(t, PhaseGameOver, g.Phase)
	assert.Len(t, g.Records, 1)
}
