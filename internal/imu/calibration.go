// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Calibration holds static sensor biases in raw counts.
// Corrected axis = (raw - bias) / sensitivity.
type Calibration struct {
	SchemaVersion int       `json:"schema_version"`
	CalibratedAt  time.Time `json:"calibrated_at"`
	GyroBias      Vec3      `json:"gyro_bias"`
	AccelBias     Vec3      `json:"accel_bias"`
	GyroStdDev    Vec3      `json:"gyro_stddev"`
	Confidence    float64   `json:"confidence"`
}

// LoadCalibration reads a calibration JSON file. A missing file is not an
// error: it returns (nil, nil) so callers run uncalibrated.
func LoadCalibration(path string) (*Calibration, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read calibration %s: %w", path, err)
	}
	var cal Calibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("parse calibration %s: %w", path, err)
	}
	return &cal, nil
}

// Save writes the calibration as indented JSON.
func (c *Calibration) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write calibration %s: %w", path, err)
	}
	return nil
}
