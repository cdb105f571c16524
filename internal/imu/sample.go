// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "fmt"

// Vec3 is a three-axis reading.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sample is one timestamped inertial measurement.
// Acc is in g (any consistent unit works for tilt), Gyro is in °/s and
// T is seconds since the start of the session.
type Sample struct {
	T    float64 `json:"t"`
	Acc  Vec3    `json:"acc"`
	Gyro Vec3    `json:"gyro"`
}

// Source is anything that can provide samples over time: the MPU-9250,
// a mock walker, a replay of a recorded trial.
type Source interface {
	Next() (Sample, error)
}

// CheckMonotonic returns an error if timestamps are not strictly increasing.
func CheckMonotonic(samples []Sample) error {
	for i := 1; i < len(samples); i++ {
		if samples[i].T <= samples[i-1].T {
			return fmt.Errorf("sample %d: timestamp %.6f not after %.6f", i, samples[i].T, samples[i-1].T)
		}
	}
	return nil
}

// Times returns the timestamp column of samples.
func Times(samples []Sample) []float64 {
	t := make([]float64, len(samples))
	for i, s := range samples {
		t[i] = s.T
	}
	return t
}
