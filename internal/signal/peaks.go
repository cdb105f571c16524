// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package signal

import "sort"

// FindPeaks returns the indices of local maxima of x, in increasing order.
//
// Flat peaks report their middle sample. When distance > 1, peaks closer
// than distance samples to a higher peak are dropped (highest first). Peaks
// whose topographic prominence is below prominence are then dropped.
func FindPeaks(x []float64, prominence float64, distance int) []int {
	peaks := localMaxima(x)
	if distance > 1 {
		peaks = selectByDistance(x, peaks, distance)
	}

	out := peaks[:0]
	for _, p := range peaks {
		if Prominence(x, p) >= prominence {
			out = append(out, p)
		}
	}
	return out
}

func localMaxima(x []float64) []int {
	var peaks []int
	n := len(x)
	i := 1
	for i < n-1 {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < n-1 && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				peaks = append(peaks, (i+ahead-1)/2)
				i = ahead
			}
		}
		i++
	}
	return peaks
}

func selectByDistance(x []float64, peaks []int, distance int) []int {
	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}

	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return x[peaks[order[i]]] < x[peaks[order[j]]]
	})

	for i := len(order) - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := make([]int, 0, len(peaks))
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// Prominence is the height of x[peak] above the higher of the two lowest
// points reached before the signal rises above x[peak] on either side.
func Prominence(x []float64, peak int) float64 {
	h := x[peak]

	leftMin := h
	for i := peak; i >= 0 && x[i] <= h; i-- {
		if x[i] < leftMin {
			leftMin = x[i]
		}
	}
	rightMin := h
	for i := peak; i < len(x) && x[i] <= h; i++ {
		if x[i] < rightMin {
			rightMin = x[i]
		}
	}

	base := leftMin
	if rightMin > base {
		base = rightMin
	}
	return h - base
}

// Default heel-strike detection parameters.
const (
	DefaultProminence = 5.0
	DefaultMinGap     = 30
)

// DetectHeelStrikes locates heel strikes as local minima of the thigh
// angle trace, i.e. peaks of -theta with at least the given prominence (°)
// and minGap samples between them.
func DetectHeelStrikes(theta []float64, prominence float64, minGap int) []int {
	inv := make([]float64, len(theta))
	for i, v := range theta {
		inv[i] = -v
	}
	return FindPeaks(inv, prominence, minGap)
}
