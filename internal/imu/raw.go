// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

// Raw represents a single raw MPU-9250 sample in sensor counts.
type Raw struct {
	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// Accelerometer full-scale ranges: 0=±2g, 1=±4g, 2=±8g, 3=±16g.
// Gyroscope full-scale ranges: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s.
const (
	accelLSBPerG   = 16384.0
	gyroLSBPerDegS = 131.0
	maxRangeCode   = 3
)

// AccelSensitivity returns counts per g for an accelerometer range code.
func AccelSensitivity(rangeCode byte) float64 {
	if rangeCode > maxRangeCode {
		rangeCode = maxRangeCode
	}
	return accelLSBPerG / float64(int(1)<<rangeCode)
}

// GyroSensitivity returns counts per °/s for a gyroscope range code.
func GyroSensitivity(rangeCode byte) float64 {
	if rangeCode > maxRangeCode {
		rangeCode = maxRangeCode
	}
	return gyroLSBPerDegS / float64(int(1)<<rangeCode)
}

// Scale converts raw counts into a Sample stamped at t (seconds), with
// acceleration in g and angular rate in °/s. Calibration biases are in
// counts and are removed before scaling; cal may be nil.
func (r Raw) Scale(t float64, accelRange, gyroRange byte, cal *Calibration) Sample {
	var ab, gb Vec3
	if cal != nil {
		ab, gb = cal.AccelBias, cal.GyroBias
	}
	as := AccelSensitivity(accelRange)
	gs := GyroSensitivity(gyroRange)

	return Sample{
		T: t,
		Acc: Vec3{
			X: (float64(r.Ax) - ab.X) / as,
			Y: (float64(r.Ay) - ab.Y) / as,
			Z: (float64(r.Az) - ab.Z) / as,
		},
		Gyro: Vec3{
			X: (float64(r.Gx) - gb.X) / gs,
			Y: (float64(r.Gy) - gb.Y) / gs,
			Z: (float64(r.Gz) - gb.Z) / gs,
		},
	}
}

// RawSource is anything that can provide raw IMU readings.
type RawSource interface {
	ReadRaw() (Raw, error)
}
