// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package vibro

import "math"

// Trigger is the causal, per-sample form of Generate for live feedback.
// The slope is a backward difference over the previous sample. A Const
// trigger emits one command of ConstDuration on its first sample.
type Trigger struct {
	ctrl *Controller
	mode Mode

	started     bool
	prevAngle   float64
	prevT       float64
	lastTrigger float64
	constSent   bool
}

func (c *Controller) NewTrigger(mode Mode) *Trigger {
	return &Trigger{ctrl: c, mode: mode, lastTrigger: math.Inf(-1)}
}

func (tr *Trigger) Mode() Mode { return tr.mode }

// Step feeds one fused-angle sample and returns the command it fires, if any.
func (tr *Trigger) Step(angle, t float64) (Command, bool) {
	if tr.mode == ModeConst {
		if tr.constSent {
			return Command{}, false
		}
		tr.constSent = true
		return tr.ctrl.command(t, t+tr.ctrl.params.ConstDuration, ModeConst), true
	}

	if !tr.started {
		tr.started = true
		tr.prevAngle, tr.prevT = angle, t
		return Command{}, false
	}

	dt := t - tr.prevT
	prev := tr.prevAngle
	tr.prevAngle, tr.prevT = angle, t
	if tr.mode != ModeSpaVib || dt <= 0 {
		return Command{}, false
	}
	if t-tr.lastTrigger < tr.ctrl.params.Refractory {
		return Command{}, false
	}
	if !tr.ctrl.fires(angle, (angle-prev)/dt) {
		return Command{}, false
	}
	tr.lastTrigger = t
	return tr.ctrl.command(t, t+tr.ctrl.params.PulseDuration, ModeSpaVib), true
}

// Reset forgets history and the refractory clock.
func (tr *Trigger) Reset() {
	*tr = Trigger{ctrl: tr.ctrl, mode: tr.mode, lastTrigger: math.Inf(-1)}
}
