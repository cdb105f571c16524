// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package template

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/relabs-tech/gait_feedback/internal/signal"
)

// reliabilityEpsilon keeps the reliability mapping finite for a zero midpoint.
const reliabilityEpsilon = 1e-8

// normalityScale is the RMS deviation (°) at which normality drops to 0.5.
const normalityScale = 10.0

// ErrEmptyNormative is returned when no normative template is given.
var ErrEmptyNormative = errors.New("template: normative template is empty")

// Params configures the patient/normative blend.
type Params struct {
	StartWeight    float64 // patient weight at zero reliability
	MinWeight      float64 // lower bound of the patient weight
	ReliabilityMid float64
}

// DefaultParams returns start 0.9, minimum 0.5, midpoint 0.5.
func DefaultParams() Params {
	return Params{StartWeight: 0.9, MinWeight: 0.5, ReliabilityMid: 0.5}
}

// Validate rejects weight ranges outside [0,1] or inverted bounds.
func (p Params) Validate() error {
	if p.MinWeight < 0 || p.StartWeight > 1 || p.MinWeight > p.StartWeight {
		return fmt.Errorf("patient weights must satisfy 0 <= min (%g) <= start (%g) <= 1", p.MinWeight, p.StartWeight)
	}
	if p.ReliabilityMid < 0 {
		return fmt.Errorf("reliability midpoint must be >= 0, got %g", p.ReliabilityMid)
	}
	return nil
}

// Weights is a patient/normative blend pair summing to 1.
type Weights struct {
	Patient   float64 `json:"patient"`
	Normative float64 `json:"normative"`
}

// Source is what the fusion stage needs from a gait database.
type Source interface {
	TimeWeightedTemplate() ([]float64, bool)
	ReliabilityIndex() float64
}

// Fusion blends a patient template with a fixed normative template.
type Fusion struct {
	normative []float64
	params    Params
}

// NewFusion copies the normative template and validates params.
func NewFusion(normative []float64, params Params) (*Fusion, error) {
	if len(normative) == 0 {
		return nil, ErrEmptyNormative
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("template fusion: %w", err)
	}
	return &Fusion{normative: append([]float64(nil), normative...), params: params}, nil
}

// Normative returns a copy of the normative template.
func (f *Fusion) Normative() []float64 {
	return append([]float64(nil), f.normative...)
}

// Params returns the fusion configuration.
func (f *Fusion) Params() Params { return f.params }

// Weights maps a reliability index to blend weights:
//
//	k   = clip(r / (mid + eps), 0, 2)
//	w_p = clip(min + (start - min) * exp(-k), min, start)
//	w_n = 1 - w_p
//
// Negative reliability is treated as 0.
func (f *Fusion) Weights(reliability float64) Weights {
	p := f.params
	r := math.Max(0, reliability)
	k := clip(r/(p.ReliabilityMid+reliabilityEpsilon), 0, 2)
	wp := clip(p.MinWeight+(p.StartWeight-p.MinWeight)*math.Exp(-k), p.MinWeight, p.StartWeight)
	return Weights{Patient: wp, Normative: 1 - wp}
}

func clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

// Fused returns the blended target template. While the source has no
// patient template the normative template is returned with weights (0, 1).
// The patient template is resampled to the normative length.
func (f *Fusion) Fused(src Source) ([]float64, Weights) {
	patient, ok := src.TimeWeightedTemplate()
	if !ok || len(patient) == 0 {
		return f.Normative(), Weights{Patient: 0, Normative: 1}
	}

	resampled := signal.Resample(patient, len(f.normative))
	w := f.Weights(src.ReliabilityIndex())

	fused := make([]float64, len(f.normative))
	floats.AddScaled(fused, w.Patient, resampled)
	floats.AddScaled(fused, w.Normative, f.normative)
	return fused, w
}

// Normality scores a live cycle against a target template in (0, 1]:
// 1 / (1 + rms/10), where rms is the root-mean-square deviation after
// resampling the cycle to the target length. Identical curves score 1.
func Normality(cycle, target []float64) float64 {
	if len(target) == 0 {
		return 0
	}
	x := signal.Resample(cycle, len(target))
	rms := floats.Distance(x, target, 2) / math.Sqrt(float64(len(target)))
	return 1 / (1 + rms/normalityScale)
}
