// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package signal

// minCycleSpan is the span in samples a heel-strike pair must exceed.
const minCycleSpan = 5

// Cycle is one gait cycle cut between two consecutive heel strikes.
// Theta and Time are copies of the samples in [Start, End).
type Cycle struct {
	Theta []float64
	Time  []float64
	Start int
	End   int

	// HeelStrikeIdx is relative to the cycle and always 0.
	HeelStrikeIdx int
	// ToeOffIdx is the cycle midpoint. Toe-off is not detected; do not
	// treat this as a measured event.
	ToeOffIdx int
}

// Len returns the number of samples in the cycle.
func (c Cycle) Len() int { return len(c.Theta) }

// EndTime returns the timestamp of the last sample, 0 for an empty cycle.
func (c Cycle) EndTime() float64 {
	if len(c.Time) == 0 {
		return 0
	}
	return c.Time[len(c.Time)-1]
}

// Segment cuts theta/t into gait cycles between consecutive heel strikes.
// When heelStrikes is nil they are detected with the default prominence and
// minimum gap. Pairs spanning 5 samples or fewer are skipped.
func Segment(theta, t []float64, heelStrikes []int) []Cycle {
	if heelStrikes == nil {
		heelStrikes = DetectHeelStrikes(theta, DefaultProminence, DefaultMinGap)
	}
	n := len(theta)
	if len(t) < n {
		n = len(t)
	}

	var cycles []Cycle
	for i := 0; i+1 < len(heelStrikes); i++ {
		start, end := heelStrikes[i], heelStrikes[i+1]
		if end <= start+minCycleSpan || start < 0 || end > n {
			continue
		}
		seg := append([]float64(nil), theta[start:end]...)
		cycles = append(cycles, Cycle{
			Theta:         seg,
			Time:          append([]float64(nil), t[start:end]...),
			Start:         start,
			End:           end,
			HeelStrikeIdx: 0,
			ToeOffIdx:     len(seg) / 2,
		})
	}
	return cycles
}
