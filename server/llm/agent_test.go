package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/nathanbos/mixed-motive-games/server/game"
)

type fakeClient struct {
	reply string
	err   error
	calls int
}

func (f *fakeClient) Complete(_ context.Context, _ Request) (string, error) {
	f.calls++
	return f.reply, f.err
}

func testAgent(c Client) *Agent {
	return &Agent{
		name:        "Cooperator_1",
		personality: "Cooperator",
		strategy:    "invest generously",
		ceiling:     5,
		client:      c,
		logger:      log.New(io.Discard),
	}
}

func TestAgentDecide(t *testing.T) {
	fake := &fakeClient{reply: `{"investment": 4, "reasoning": "grow the pot"}`}
	a := testAgent(fake)

	amount, rationale := a.Decide(context.Background(), "digest")
	if amount != 4 {
		t.Fatalf("expected 4, got %g", amount)
	}
	if rationale != "grow the pot" {
		t.Fatalf("unexpected rationale: %q", rationale)
	}
	if fake.calls != 1 {
		t.Fatalf("expected 1 call, got %d", fake.calls)
	}
}

func TestAgentDecideClampsResponse(t *testing.T) {
	a := testAgent(&fakeClient{reply: `{"investment": 50}`})

	amount, _ := a.Decide(context.Background(), "digest")
	if amount != 5 {
		t.Fatalf("expected ceiling clamp to 5, got %g", amount)
	}
}

func TestAgentDecideProviderFailure(t *testing.T) {
	a := testAgent(&fakeClient{err: errors.New("connection refused")})

	amount, rationale := a.Decide(context.Background(), "digest")
	if amount != 0 {
		t.Fatalf("expected fallback 0, got %g", amount)
	}
	if !strings.Contains(rationale, "fallback") {
		t.Fatalf("rationale must explain the fallback, got %q", rationale)
	}
}

func TestAgentDecideUnparseableResponse(t *testing.T) {
	a := testAgent(&fakeClient{reply: "I think I'll invest a lot!"})

	amount, rationale := a.Decide(context.Background(), "digest")
	if amount != 0 {
		t.Fatalf("expected fallback 0, got %g", amount)
	}
	if !strings.Contains(rationale, "fallback") {
		t.Fatalf("rationale must explain the fallback, got %q", rationale)
	}
}

func TestAgentStateFailureReturnsSentinel(t *testing.T) {
	a := testAgent(&fakeClient{err: errors.New("timeout")})

	if got := a.State(context.Background(), "digest"); got != game.FallbackStatement {
		t.Fatalf("expected %q, got %q", game.FallbackStatement, got)
	}
}

func TestAgentStateSanitizes(t *testing.T) {
	a := testAgent(&fakeClient{reply: "  let's all invest the max next round  \n"})

	if got := a.State(context.Background(), "digest"); got != "let's all invest the max next round" {
		t.Fatalf("unexpected statement: %q", got)
	}
}

func TestAgentStateEmptyReplyReturnsSentinel(t *testing.T) {
	a := testAgent(&fakeClient{reply: "   "})

	if got := a.State(context.Background(), "digest"); got != game.FallbackStatement {
		t.Fatalf("expected %q, got %q", game.FallbackStatement, got)
	}
}
