package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputePayoffsThreePlayerSplit(t *testing.T) {
	decisions := map[string]float64{"A": 0, "B": 5, "C": 5}
	payoffs := ComputePayoffs(decisions, 3, 5, 1.5)

	// pot = 10 * 1.5 = 15, share = 5 each
	require.InDelta(t, 10, payoffs["A"], 1e-9) // kept 5 + share 5
	require.InDelta(t, 5, payoffs["B"], 1e-9)  // kept 0 + share 5
	require.InDelta(t, 5, payoffs["C"], 1e-9)
}

func TestComputePayoffsConservation(t *testing.T) {
	tests := []struct {
		name       string
		decisions  map[string]float64
		ceiling    float64
		multiplier float64
	}{
		{"all zero", map[string]float64{"a": 0, "b": 0}, 5, 1.5},
		{"all max", map[string]float64{"a": 5, "b": 5, "c": 5, "d": 5}, 5, 1.5},
		{"mixed", map[string]float64{"a": 1.25, "b": 3.5, "c": 0.75}, 5, 2},
		{"single player", map[string]float64{"solo": 4}, 5, 1.5},
		{"fractional multiplier", map[string]float64{"a": 2, "b": 3}, 10, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := len(tt.decisions)
			payoffs := ComputePayoffs(tt.decisions, n, tt.ceiling, tt.multiplier)
			require.Len(t, payoffs, n)

			var totalPayoff, totalKept, totalInvested float64
			for id, d := range tt.decisions {
				totalKept += tt.ceiling - d
				totalInvested += d
				totalPayoff += payoffs[id]
			}
			// The multiplied pot is distributed in full, never partially.
			require.InDelta(t, totalKept+totalInvested*tt.multiplier, totalPayoff, 1e-9)
		})
	}
}
