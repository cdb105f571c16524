// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package vibro

import (
	"fmt"
	"math"

	"github.com/relabs-tech/gait_feedback/internal/signal"
)

// Params configures the feedback controller.
type Params struct {
	FreqHz        float64
	Amplitude     float64 // 0..1
	TriggerAngle  float64 // degrees
	TriggerSlope  float64 // degrees per second
	PulseDuration float64 // seconds
	Refractory    float64 // seconds between cues
	Channels      []int

	// ConstDuration is the length of the single Const command emitted on
	// the live path, where the trial end is not known.
	ConstDuration float64
}

// DefaultParams returns 40 Hz, full amplitude, 15°, 60°/s, 0.2 s pulses,
// 0.6 s refractory on channels 1-4.
func DefaultParams() Params {
	return Params{
		FreqHz:        40,
		Amplitude:     1,
		TriggerAngle:  15,
		TriggerSlope:  60,
		PulseDuration: 0.2,
		Refractory:    0.6,
		Channels:      []int{1, 2, 3, 4},
		ConstDuration: 30,
	}
}

func (p Params) Validate() error {
	if err := checkChannels(p.Channels); err != nil {
		return err
	}
	if p.Amplitude < 0 || p.Amplitude > 1 {
		return fmt.Errorf("amplitude %g outside [0,1]", p.Amplitude)
	}
	if p.FreqHz <= 0 {
		return fmt.Errorf("vibration frequency must be > 0, got %g", p.FreqHz)
	}
	if p.PulseDuration < 0 || p.Refractory < 0 || p.ConstDuration < 0 {
		return fmt.Errorf("durations must be >= 0 (pulse %g, refractory %g, const %g)",
			p.PulseDuration, p.Refractory, p.ConstDuration)
	}
	return nil
}

// Controller turns a fused angle trajectory into vibration commands.
type Controller struct {
	params Params
}

func NewController(params Params) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("vibro controller: %w", err)
	}
	params.Channels = append([]int(nil), params.Channels...)
	return &Controller{params: params}, nil
}

func (c *Controller) Params() Params { return c.params }

// Generate scans theta (degrees) sampled at t from the second sample on.
// SpaVib emits a pulse wherever angle >= TriggerAngle and slope >=
// TriggerSlope, at most once per Refractory seconds. Const emits a single
// command spanning t[0]..t[last]. Other modes emit nothing.
func (c *Controller) Generate(theta, t []float64, mode Mode) []Command {
	n := len(theta)
	if n < 2 || len(t) < n {
		return nil
	}

	switch mode {
	case ModeConst:
		return []Command{c.command(t[0], t[n-1], ModeConst)}
	case ModeSpaVib:
	default:
		return nil
	}

	slope := signal.Gradient(theta, t[:n])
	lastTrigger := math.Inf(-1)
	var cmds []Command
	for i := 1; i < n; i++ {
		if t[i]-lastTrigger < c.params.Refractory {
			continue
		}
		if c.fires(theta[i], slope[i]) {
			cmds = append(cmds, c.command(t[i], t[i]+c.params.PulseDuration, ModeSpaVib))
			lastTrigger = t[i]
		}
	}
	return cmds
}

func (c *Controller) fires(angle, slope float64) bool {
	return angle >= c.params.TriggerAngle && slope >= c.params.TriggerSlope
}

// command builds from validated params, so the invariants hold.
func (c *Controller) command(start, end float64, mode Mode) Command {
	return Command{
		Start:     start,
		End:       end,
		Channels:  append([]int(nil), c.params.Channels...),
		Amplitude: c.params.Amplitude,
		Frequency: c.params.FreqHz,
		Mode:      mode,
	}
}
