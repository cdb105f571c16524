// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"math"

	"github.com/relabs-tech/gait_feedback/internal/imu"
)

// MockWalker synthesises a walking thigh IMU: the thigh angle follows
// Offset - Amplitude*cos(2π·cadence·t), heel strikes at the minima. The
// accelerometer reports gravity only and the gyro the exact pitch rate.
// Timestamps advance by 1/SampleRate per call, independent of wall time.
type MockWalker struct {
	SampleRate float64 // Hz
	Cadence    float64 // strides per second
	Offset     float64 // degrees
	Amplitude  float64 // degrees

	// Noise adds a deterministic ripple of this many g to acc.Z so the
	// phase classifier sees some vertical variance.
	Noise float64

	n int
}

var _ imu.Source = (*MockWalker)(nil)

// NewMockWalker returns a walker at fs Hz and the given cadence with a
// 15° mean and 20° swing.
func NewMockWalker(fs, cadence float64) (*MockWalker, error) {
	if fs <= 0 || cadence <= 0 {
		return nil, errors.New("mock walker: sample rate and cadence must be > 0")
	}
	return &MockWalker{SampleRate: fs, Cadence: cadence, Offset: 15, Amplitude: 20}, nil
}

// Angle is the true thigh angle (degrees) at t.
func (m *MockWalker) Angle(t float64) float64 {
	return m.Offset - m.Amplitude*math.Cos(2*math.Pi*m.Cadence*t)
}

// Next returns the next sample. It never fails.
func (m *MockWalker) Next() (imu.Sample, error) {
	t := float64(m.n) / m.SampleRate
	m.n++

	w := 2 * math.Pi * m.Cadence
	theta := m.Angle(t) * math.Pi / 180
	rate := m.Amplitude * w * math.Sin(w*t)

	// ripple at 7× cadence
	ripple := m.Noise * math.Sin(7*w*t)
	return imu.Sample{
		T:    t,
		Acc:  imu.Vec3{X: -math.Sin(theta), Z: math.Cos(theta) + ripple},
		Gyro: imu.Vec3{Y: rate},
	}, nil
}

// Record draws n consecutive samples.
func Record(src imu.Source, n int) ([]imu.Sample, error) {
	out := make([]imu.Sample, 0, n)
	for i := 0; i < n; i++ {
		s, err := src.Next()
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}
