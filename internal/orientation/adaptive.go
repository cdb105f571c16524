// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/gait_feedback/internal/imu"
	"github.com/relabs-tech/gait_feedback/internal/signal"
)

// trendThresholdDeg separates a still thigh from a moving one, measured as
// the change of the fused angle over two samples.
const trendThresholdDeg = 1.0

// Params configures the phase-adaptive complementary filter.
type Params struct {
	SampleRate      float64 // Hz
	StanceAlpha     float64 // gyro weight in stance (accelerometer dominated)
	SwingAlpha      float64 // gyro weight in swing (gyro dominated)
	TransitionAlpha float64
	VarWindow       float64 // seconds of vertical acceleration used for variance
	AccVarThreshold float64 // variance separating stance from swing
	LPCutoff        float64 // Hz, final acausal smoothing
	LPOrder         int
}

// DefaultParams returns the reference tuning for a 50 Hz thigh IMU.
func DefaultParams() Params {
	return Params{
		SampleRate:      50,
		StanceAlpha:     0.1,
		SwingAlpha:      0.8,
		TransitionAlpha: 0.4,
		VarWindow:       0.4,
		AccVarThreshold: 0.5,
		LPCutoff:        5,
		LPOrder:         signal.DefaultOrder,
	}
}

// Validate rejects parameters the filter cannot run with.
func (p Params) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("sampling rate must be > 0, got %g", p.SampleRate)
	}
	for name, a := range map[string]float64{
		"stance alpha":     p.StanceAlpha,
		"swing alpha":      p.SwingAlpha,
		"transition alpha": p.TransitionAlpha,
	} {
		if a < 0 || a > 1 || math.IsNaN(a) {
			return fmt.Errorf("%s must be in [0,1], got %g", name, a)
		}
	}
	if p.VarWindow <= 0 {
		return fmt.Errorf("variance window must be > 0 s, got %g", p.VarWindow)
	}
	if p.AccVarThreshold < 0 {
		return fmt.Errorf("acceleration variance threshold must be >= 0, got %g", p.AccVarThreshold)
	}
	if p.LPCutoff <= 0 || p.LPCutoff >= p.SampleRate/2 {
		return fmt.Errorf("low-pass cutoff %g Hz must lie in (0, %g) Hz", p.LPCutoff, p.SampleRate/2)
	}
	if p.LPOrder < 1 {
		return errors.New("low-pass order must be >= 1")
	}
	return nil
}

// WindowSize is the number of vertical-acceleration samples the phase
// classifier needs: max(3, round(VarWindow * SampleRate)).
func (p Params) WindowSize() int {
	n := int(math.Round(p.VarWindow * p.SampleRate))
	if n < 3 {
		n = 3
	}
	return n
}

// Alpha returns the gyro blend coefficient for a phase.
func (p Params) Alpha(ph Phase) float64 {
	switch ph {
	case Stance:
		return p.StanceAlpha
	case Swing:
		return p.SwingAlpha
	default:
		return p.TransitionAlpha
	}
}

// State is the per-session fusion state. The zero value is a fresh,
// uninitialised session. It is owned by the caller, so several devices
// can share one Filter.
//
// Only the most recent WindowSize vertical accelerations and the last three
// fused angles are retained, which is all the classifier reads.
type State struct {
	GyroAngle   float64
	Initialized bool

	accZ  []float64
	theta []float64
}

func (s *State) push(window int, accZ, theta float64) {
	s.accZ = pushBounded(s.accZ, accZ, window)
	s.theta = pushBounded(s.theta, theta, 3)
}

func pushBounded(buf []float64, v float64, limit int) []float64 {
	if len(buf) < limit {
		return append(buf, v)
	}
	copy(buf, buf[1:])
	buf[len(buf)-1] = v
	return buf
}

// Output is the result of one filter update.
type Output struct {
	Angle     float64 // fused thigh angle, degrees
	Phase     Phase
	GyroAngle float64
	AccAngle  float64
	Alpha     float64
}

// Filter is the phase-adaptive complementary filter. It holds only
// immutable configuration; all mutable state lives in State.
type Filter struct {
	params Params
	window int
}

// NewFilter validates params and returns a filter.
func NewFilter(params Params) (*Filter, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("adaptive filter: %w", err)
	}
	return &Filter{params: params, window: params.WindowSize()}, nil
}

// Params returns the filter configuration.
func (f *Filter) Params() Params { return f.params }

// Update fuses one IMU sample (acc in any unit, gyro in °/s, dt in
// seconds) and advances st.
func (f *Filter) Update(st *State, acc, gyro imu.Vec3, dt float64) Output {
	accAngle := AccelPitch(acc)

	// Pitch rate is the mediolateral (Y) axis.
	gyroAngle := st.GyroAngle + gyro.Y*dt
	if !st.Initialized {
		gyroAngle = accAngle
		st.Initialized = true
	}

	phase := f.classify(st)
	alpha := f.params.Alpha(phase)
	fused := alpha*gyroAngle + (1-alpha)*accAngle

	st.GyroAngle = gyroAngle
	st.push(f.window, acc.Z, fused)

	return Output{
		Angle:     fused,
		Phase:     phase,
		GyroAngle: gyroAngle,
		AccAngle:  accAngle,
		Alpha:     alpha,
	}
}

// classify labels the sub-phase from the history accumulated before the
// current sample.
func (f *Filter) classify(st *State) Phase {
	if len(st.accZ) < f.window {
		return Transition
	}
	variance := stat.PopVariance(st.accZ, nil)

	var trend float64
	if n := len(st.theta); n >= 3 {
		trend = st.theta[n-1] - st.theta[n-3]
	}

	switch {
	case variance < f.params.AccVarThreshold && math.Abs(trend) < trendThresholdDeg:
		return Stance
	case variance >= f.params.AccVarThreshold && math.Abs(trend) >= trendThresholdDeg:
		return Swing
	default:
		return Transition
	}
}

// Trajectory is the filter output for a whole trial.
type Trajectory struct {
	T      []float64
	Raw    []float64 // causal fused angle
	Theta  []float64 // Raw after the acausal low-pass
	Phases []Phase
}

// Len returns the number of samples.
func (tr Trajectory) Len() int { return len(tr.T) }

// RunBatch drives Update over a complete trial from a fresh state and then
// smooths the fused angle with the zero-phase low-pass. The first sample
// uses dt = 1/SampleRate.
func (f *Filter) RunBatch(samples []imu.Sample) (Trajectory, error) {
	tr := Trajectory{
		T:      make([]float64, len(samples)),
		Raw:    make([]float64, len(samples)),
		Phases: make([]Phase, len(samples)),
	}

	var st State
	for i, s := range samples {
		dt := 1 / f.params.SampleRate
		if i > 0 {
			dt = s.T - samples[i-1].T
		}
		out := f.Update(&st, s.Acc, s.Gyro, dt)
		tr.T[i] = s.T
		tr.Raw[i] = out.Angle
		tr.Phases[i] = out.Phase
	}

	theta, err := f.Smooth(tr.Raw)
	if err != nil {
		return Trajectory{}, fmt.Errorf("smooth fused angle: %w", err)
	}
	tr.Theta = theta
	return tr, nil
}

// Smooth is the acausal final pass. It needs the whole trial buffered.
func (f *Filter) Smooth(raw []float64) ([]float64, error) {
	return signal.SmoothOrder(raw, f.params.LPCutoff, f.params.SampleRate, f.params.LPOrder)
}

// CausalSmoother returns a streaming low-pass with the same design as
// Smooth, for deployments that cannot buffer the trial.
func (f *Filter) CausalSmoother() (*signal.Stream, error) {
	c, err := signal.Butterworth(f.params.LPOrder, f.params.LPCutoff, f.params.SampleRate)
	if err != nil {
		return nil, err
	}
	return signal.NewStream(c)
}
