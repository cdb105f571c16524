// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/relabs-tech/gait_feedback/internal/imu"
)

const radToDeg = 180.0 / math.Pi

// AccelPitch computes the sagittal tilt (thigh flexion) in degrees from an
// accelerometer reading in any unit:
//
//	pitch = atan2(-ax, sqrt(ay² + az²))
func AccelPitch(acc imu.Vec3) float64 {
	return math.Atan2(-acc.X, math.Sqrt(acc.Y*acc.Y+acc.Z*acc.Z)) * radToDeg
}

// AccelRoll computes roll in degrees as atan2(ay, az). It is not used by
// the thigh-angle filter but is published for mounting checks.
func AccelRoll(acc imu.Vec3) float64 {
	return math.Atan2(acc.Y, acc.Z) * radToDeg
}
