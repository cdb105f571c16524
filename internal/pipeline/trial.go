// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pipeline

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/gait_feedback/internal/imu"
	"github.com/relabs-tech/gait_feedback/internal/orientation"
	"github.com/relabs-tech/gait_feedback/internal/signal"
	"github.com/relabs-tech/gait_feedback/internal/template"
	"github.com/relabs-tech/gait_feedback/internal/vibro"
)

// CycleReport describes one segmented cycle of a trial.
type CycleReport struct {
	Index     int     `json:"index"`
	Start     float64 `json:"t_start"`
	End       float64 `json:"t_end"`
	Samples   int     `json:"samples"`
	Accepted  bool    `json:"accepted"`
	Normality float64 `json:"normality"`
}

// TrialResult is everything one pass over a trial produces.
type TrialResult struct {
	SessionID   string
	Trajectory  orientation.Trajectory
	HeelStrikes []int
	Cycles      []CycleReport
	Template    []float64
	Weights     template.Weights
	Reliability float64
	Exemplars   int
	Rejected    int
	Commands    []vibro.Command
	Packets     []vibro.Packet
}

// MeanNormality averages the per-cycle scores, 0 without cycles.
func (r TrialResult) MeanNormality() float64 {
	if len(r.Cycles) == 0 {
		return 0
	}
	scores := make([]float64, len(r.Cycles))
	for i, c := range r.Cycles {
		scores[i] = c.Normality
	}
	return stat.Mean(scores, nil)
}

// Accepted counts cycles the database took.
func (r TrialResult) Accepted() int {
	n := 0
	for _, c := range r.Cycles {
		if c.Accepted {
			n++
		}
	}
	return n
}

// RunTrial processes a complete recorded trial: fusion with the acausal
// smoothing pass, heel-strike segmentation, database updates, template
// fusion, per-cycle normality against the fused template and feedback
// generation. The session database keeps what it accepts.
func (s *Session) RunTrial(samples []imu.Sample, mode vibro.Mode) (TrialResult, error) {
	if len(samples) == 0 {
		return TrialResult{}, ErrNoSamples
	}
	if err := imu.CheckMonotonic(samples); err != nil {
		return TrialResult{}, err
	}

	traj, err := s.filter.RunBatch(samples)
	if err != nil {
		return TrialResult{}, err
	}

	hs := signal.DetectHeelStrikes(traj.Theta, s.cfg.HeelStrikeProminence, s.cfg.HeelStrikeMinGap)
	cycles := signal.Segment(traj.Theta, traj.T, hs)

	reports := make([]CycleReport, len(cycles))
	for i, c := range cycles {
		reports[i] = CycleReport{
			Index:    i,
			Start:    c.Time[0],
			End:      c.EndTime(),
			Samples:  c.Len(),
			Accepted: s.db.TryAdd(c.Theta, c.Time),
		}
	}

	fused, w := s.fusion.Fused(s.db)
	for i, c := range cycles {
		reports[i].Normality = template.Normality(c.Theta, fused)
	}

	cmds := s.ctrl.Generate(traj.Theta, traj.T, mode)
	res := TrialResult{
		SessionID:   s.ID,
		Trajectory:  traj,
		HeelStrikes: hs,
		Cycles:      reports,
		Template:    fused,
		Weights:     w,
		Reliability: s.db.ReliabilityIndex(),
		Exemplars:   s.db.Len(),
		Rejected:    s.db.Rejected(),
		Commands:    cmds,
		Packets:     vibro.ToPackets(cmds),
	}

	s.logger.Info("trial processed",
		zap.Int("samples", len(samples)),
		zap.Int("cycles", len(cycles)),
		zap.Int("accepted", res.Accepted()),
		zap.Int("exemplars", res.Exemplars),
		zap.Float64("reliability", res.Reliability),
		zap.Float64("patient_weight", w.Patient),
		zap.Float64("mean_normality", res.MeanNormality()),
		zap.Int("commands", len(cmds)),
		zap.String("mode", string(mode)),
	)
	return res, nil
}

// LiveOutput is the per-sample result of the causal path.
type LiveOutput struct {
	T       float64           `json:"t"`
	Raw     float64           `json:"theta_raw"`
	Angle   float64           `json:"theta"`
	Phase   orientation.Phase `json:"phase"`
	Command *vibro.Command    `json:"command,omitempty"`
}

// Push runs one sample through the causal path: filter update, streaming
// low-pass and online trigger. The sample is buffered for Finalize.
func (s *Session) Push(sample imu.Sample) (LiveOutput, error) {
	dt := 1 / s.cfg.Filter.SampleRate
	if n := len(s.buffer); n > 0 {
		prev := s.buffer[n-1].T
		if sample.T <= prev {
			return LiveOutput{}, fmt.Errorf("sample at %.6f not after %.6f", sample.T, prev)
		}
		dt = sample.T - prev
	}

	out := s.filter.Update(&s.state, sample.Acc, sample.Gyro, dt)
	angle := s.smoother.Step(out.Angle)
	s.buffer = append(s.buffer, sample)

	live := LiveOutput{T: sample.T, Raw: out.Angle, Angle: angle, Phase: out.Phase}
	if cmd, ok := s.trigger.Step(angle, sample.T); ok {
		live.Command = &cmd
		s.logger.Debug("cue",
			zap.Float64("t", cmd.Start),
			zap.Float64("angle", angle),
			zap.String("mode", string(cmd.Mode)),
		)
	}
	return live, nil
}

// Buffered returns the number of samples waiting for Finalize.
func (s *Session) Buffered() int { return len(s.buffer) }

// Finalize runs the buffered live samples through RunTrial in the
// configured mode and resets the live path.
func (s *Session) Finalize() (TrialResult, error) {
	samples := s.buffer
	s.resetLive()
	return s.RunTrial(samples, s.cfg.Mode)
}

func (s *Session) resetLive() {
	s.buffer = nil
	s.state = orientation.State{}
	s.smoother.Reset()
	s.trigger.Reset()
}

// Summary is the compact, JSON-friendly report of a trial.
type Summary struct {
	SessionID     string           `json:"session_id"`
	Cycles        []CycleReport    `json:"cycles"`
	Accepted      int              `json:"accepted"`
	Exemplars     int              `json:"exemplars"`
	Rejected      int              `json:"rejected"`
	Reliability   float64          `json:"reliability"`
	Weights       template.Weights `json:"weights"`
	MeanNormality float64          `json:"mean_normality"`
	Commands      int              `json:"commands"`
}

func (r TrialResult) Summary() Summary {
	return Summary{
		SessionID:     r.SessionID,
		Cycles:        r.Cycles,
		Accepted:      r.Accepted(),
		Exemplars:     r.Exemplars,
		Rejected:      r.Rejected,
		Reliability:   r.Reliability,
		Weights:       r.Weights,
		MeanNormality: r.MeanNormality(),
		Commands:      len(r.Commands),
	}
}
