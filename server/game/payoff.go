package game

// ComputePayoffs applies the fixed N-player public-goods split: everything a
// participant keeps back from the ceiling is theirs, and the pooled investments
// are multiplied and divided equally regardless of contribution.
//
// The function is pure and performs no validation: decisions are assumed to be
// already clamped into [0, ceiling] at the decision-source boundary, and
// participantCount must be at least 1.
func ComputePayoffs(decisions map[string]float64, participantCount int, ceiling, multiplier float64) map[string]float64 {
	var pot float64
	for _, d := range decisions {
		pot += d
	}
	share := pot * multiplier / float64(participantCount)

	payoffs := make(map[string]float64, len(decisions))
	for id, d := range decisions {
		payoffs[id] = (ceiling - d) + share
	}
	return payoffs
}
