// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gaitdb is the personalised gait database: an online exemplar
// store of phase-resampled gait cycles with a density-based admission test.
//
// A Database is owned by one goroutine. Readers on other goroutines must
// use Snapshot (or Features) under their own synchronisation.
package gaitdb

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/relabs-tech/gait_feedback/internal/signal"
)

// MinCycleSamples is the shortest cycle the database will consider.
const MinCycleSamples = 5

// Params configures feature extraction and template weighting.
type Params struct {
	ResamplePoints int     // feature vector length
	DecayRate      float64 // recency decay of the time-weighted template
}

// DefaultParams returns 100-point features and a 0.03 decay rate.
func DefaultParams() Params {
	return Params{ResamplePoints: 100, DecayRate: 0.03}
}

// Validate rejects unusable parameters.
func (p Params) Validate() error {
	if p.ResamplePoints < 2 {
		return fmt.Errorf("resample points must be >= 2, got %d", p.ResamplePoints)
	}
	if !(p.DecayRate > 0) || math.IsInf(p.DecayRate, 1) {
		return fmt.Errorf("decay rate must be > 0, got %g", p.DecayRate)
	}
	return nil
}

// Feature is an accepted gait cycle: its phase-resampled angle vector and
// the timestamp of the cycle's last sample.
type Feature struct {
	Vector    []float64
	Timestamp float64
}

// Database stores accepted features in insertion order. It never evicts:
// admission depends on the full exemplar count.
type Database struct {
	params   Params
	cycles   []Feature
	rejected int
	logger   *zap.Logger
}

// New returns an empty database.
func New(params Params, logger *zap.Logger) (*Database, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("gait database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Database{params: params, logger: logger}, nil
}

// Params returns the database configuration.
func (db *Database) Params() Params { return db.params }

// Len returns the number of accepted exemplars.
func (db *Database) Len() int { return len(db.cycles) }

// Rejected returns how many cycles failed the density test.
func (db *Database) Rejected() int { return db.rejected }

// TryAdd resamples a cycle with the configured length and admits it if it
// passes the density test.
func (db *Database) TryAdd(theta, t []float64) bool {
	return db.TryAddN(theta, t, db.params.ResamplePoints)
}

// TryAddN is TryAdd with an explicit feature length.
//
// Cycles shorter than MinCycleSamples are refused without touching the
// rejection counter. The first cycle is always accepted. After that the new
// feature must have at least max(2, N) stored exemplars within the dynamic
// radius, the mean distance of the exemplars to their mean vector.
func (db *Database) TryAddN(theta, t []float64, resamplePoints int) bool {
	if len(theta) < MinCycleSamples || len(t) < len(theta) {
		return false
	}

	feat := Feature{
		Vector:    signal.ResampleByTime(theta, t[:len(theta)], resamplePoints),
		Timestamp: t[len(theta)-1],
	}

	if len(db.cycles) == 0 {
		db.cycles = append(db.cycles, feat)
		db.logger.Debug("gait cycle accepted (cold start)", zap.Float64("t_end", feat.Timestamp))
		return true
	}

	mean := db.meanVector()
	radius := db.dynamicRadius(mean)
	minNeighbors := db.minNeighbors()
	neighbors := db.neighborsWithin(feat.Vector, radius)

	if neighbors >= minNeighbors {
		db.cycles = append(db.cycles, feat)
		db.logger.Debug("gait cycle accepted",
			zap.Float64("t_end", feat.Timestamp),
			zap.Float64("radius", radius),
			zap.Int("neighbors", neighbors),
			zap.Int("exemplars", len(db.cycles)))
		return true
	}

	db.rejected++
	db.logger.Debug("gait cycle rejected",
		zap.Float64("t_end", feat.Timestamp),
		zap.Float64("radius", radius),
		zap.Int("neighbors", neighbors),
		zap.Int("min_neighbors", minNeighbors),
		zap.Int("rejected", db.rejected))
	return false
}

func (db *Database) meanVector() []float64 {
	mean := make([]float64, len(db.cycles[0].Vector))
	for _, c := range db.cycles {
		floats.Add(mean, c.Vector)
	}
	floats.Scale(1/float64(len(db.cycles)), mean)
	return mean
}

// dynamicRadius is recomputed from scratch on every call.
func (db *Database) dynamicRadius(mean []float64) float64 {
	var sum float64
	for _, c := range db.cycles {
		sum += floats.Distance(c.Vector, mean, 2)
	}
	return sum / float64(len(db.cycles))
}

// minNeighbors grows with the database, so admission gets harder as
// exemplars accumulate. With one exemplar no second cycle can pass.
func (db *Database) minNeighbors() int {
	if n := len(db.cycles); n > 2 {
		return n
	}
	return 2
}

func (db *Database) neighborsWithin(v []float64, radius float64) int {
	count := 0
	for _, c := range db.cycles {
		if len(c.Vector) != len(v) {
			continue
		}
		if floats.Distance(c.Vector, v, 2) <= radius {
			count++
		}
	}
	return count
}

// ReliabilityIndex is the minimum pairwise exemplar distance divided by
// 1 + rejected/max(1, N). It is 0 with fewer than two exemplars.
func (db *Database) ReliabilityIndex() float64 {
	n := len(db.cycles)
	if n < 2 {
		return 0
	}
	dMin := math.Inf(1)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if d := floats.Distance(db.cycles[i].Vector, db.cycles[j].Vector, 2); d < dMin {
				dMin = d
			}
		}
	}
	return dMin / (1 + float64(db.rejected)/float64(n))
}

// TimeWeights returns w_i = exp(decay*(i-n)) for i = 1..n, normalised to
// sum to 1. The newest exemplar gets the largest weight; a decay of 0
// degenerates to a plain mean, which Params.Validate refuses.
func TimeWeights(n int, decay float64) []float64 {
	if n <= 0 {
		return nil
	}
	w := make([]float64, n)
	for i := range w {
		w[i] = math.Exp(decay * float64(i+1-n))
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

// TimeWeightedTemplate is the recency-weighted mean feature using the
// configured decay rate. It reports false for an empty database.
func (db *Database) TimeWeightedTemplate() ([]float64, bool) {
	return db.TimeWeightedTemplateDecay(db.params.DecayRate)
}

// TimeWeightedTemplateDecay is TimeWeightedTemplate with an explicit decay.
func (db *Database) TimeWeightedTemplateDecay(decay float64) ([]float64, bool) {
	if len(db.cycles) == 0 {
		return nil, false
	}
	w := TimeWeights(len(db.cycles), decay)
	tmpl := make([]float64, len(db.cycles[0].Vector))
	for i, c := range db.cycles {
		floats.AddScaled(tmpl, w[i], c.Vector)
	}
	return tmpl, true
}

// Features returns a deep copy of the stored exemplars.
func (db *Database) Features() []Feature {
	out := make([]Feature, len(db.cycles))
	for i, c := range db.cycles {
		out[i] = Feature{Vector: append([]float64(nil), c.Vector...), Timestamp: c.Timestamp}
	}
	return out
}

// Snapshot is a copy of the database contents for persistence or display.
type Snapshot struct {
	Params   Params
	Features []Feature
	Rejected int
}

// Snapshot copies the current contents.
func (db *Database) Snapshot() Snapshot {
	return Snapshot{Params: db.params, Features: db.Features(), Rejected: db.rejected}
}

// Restore replaces the contents with a previously taken snapshot. All
// feature vectors must have the configured length.
func (db *Database) Restore(s Snapshot) error {
	for i, f := range s.Features {
		if len(f.Vector) != db.params.ResamplePoints {
			return fmt.Errorf("restore: feature %d has %d points, want %d", i, len(f.Vector), db.params.ResamplePoints)
		}
	}
	if s.Rejected < 0 {
		return fmt.Errorf("restore: negative rejection count %d", s.Rejected)
	}
	db.cycles = make([]Feature, len(s.Features))
	for i, f := range s.Features {
		db.cycles[i] = Feature{Vector: append([]float64(nil), f.Vector...), Timestamp: f.Timestamp}
	}
	db.rejected = s.Rejected
	db.logger.Info("gait database restored",
		zap.Int("exemplars", len(db.cycles)),
		zap.Int("rejected", db.rejected))
	return nil
}
