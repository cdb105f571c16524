// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package signal

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// phaseEpsilon keeps phase normalisation finite for zero-duration cycles.
const phaseEpsilon = 1e-8

// Linspace returns n evenly spaced values over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// Interp evaluates the piecewise linear function through (xp, fp) at each
// x. xp must be non-decreasing. Points outside [xp[0], xp[last]] take the
// end values.
func Interp(x, xp, fp []float64) []float64 {
	out := make([]float64, len(x))
	if len(xp) == 0 {
		return out
	}
	last := len(xp) - 1
	for i, v := range x {
		switch {
		case v >= xp[last]:
			out[i] = fp[last]
		case v < xp[0]:
			out[i] = fp[0]
		default:
			j := sort.SearchFloat64s(xp, v)
			if j < len(xp) && xp[j] == v {
				out[i] = fp[j]
				continue
			}
			j--
			slope := (fp[j+1] - fp[j]) / (xp[j+1] - xp[j])
			out[i] = fp[j] + slope*(v-xp[j])
		}
	}
	return out
}

// Resample maps values onto n points evenly spaced in phase [0, 1],
// treating the input as evenly spaced over the same interval.
func Resample(values []float64, n int) []float64 {
	if len(values) == 0 {
		return make([]float64, n)
	}
	return Interp(Linspace(0, 1, n), Linspace(0, 1, len(values)), values)
}

// ResampleByTime normalises t to phase [0, 1] and resamples values onto n
// evenly spaced phase points.
func ResampleByTime(values, t []float64, n int) []float64 {
	if len(values) == 0 || len(t) == 0 {
		return make([]float64, n)
	}
	t0 := t[0]
	span := t[len(t)-1] - t0 + phaseEpsilon
	phase := make([]float64, len(t))
	for i, v := range t {
		phase[i] = (v - t0) / span
	}
	return Interp(Linspace(0, 1, n), phase, values)
}

// Gradient returns dy/dx using second-order central differences in the
// interior and first-order differences at the ends. x may be unevenly
// spaced. Fewer than two samples yield nil.
func Gradient(y, x []float64) []float64 {
	n := len(y)
	if n < 2 || len(x) < n {
		return nil
	}
	g := make([]float64, n)
	g[0] = (y[1] - y[0]) / (x[1] - x[0])
	g[n-1] = (y[n-1] - y[n-2]) / (x[n-1] - x[n-2])
	for i := 1; i < n-1; i++ {
		hs := x[i] - x[i-1]
		hd := x[i+1] - x[i]
		g[i] = (hs*hs*y[i+1] + (hd*hd-hs*hs)*y[i] - hd*hd*y[i-1]) / (hs * hd * (hd + hs))
	}
	return g
}
