// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/gait_feedback/internal/config"
	"github.com/relabs-tech/gait_feedback/internal/imu"
	"github.com/relabs-tech/gait_feedback/internal/sensors"
)

const (
	calibrationSchema = 1
	// gyroStillStd is the gyro noise (counts) at which confidence drops to 0.5.
	gyroStillStd = 20.0
)

// CaptureOptions controls a static bias capture.
type CaptureOptions struct {
	Samples    int
	Interval   time.Duration
	AccelRange byte
}

// CaptureBias averages Samples raw readings of a motionless, level IMU.
// Gyro bias is the mean rate, accel bias the mean minus the expected
// reading of gravity on +Z.
func CaptureBias(ctx context.Context, src imu.RawSource, opts CaptureOptions, logger *zap.Logger) (*imu.Calibration, error) {
	if opts.Samples < 2 {
		return nil, errors.New("calibration needs at least 2 samples")
	}
	var axes [6][]float64
	for i := range axes {
		axes[i] = make([]float64, 0, opts.Samples)
	}

	for i := 0; i < opts.Samples; i++ {
		if i > 0 && opts.Interval > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(opts.Interval):
			}
		}
		r, err := src.ReadRaw()
		if err != nil {
			return nil, fmt.Errorf("calibration sample %d: %w", i, err)
		}
		for k, v := range []int16{r.Ax, r.Ay, r.Az, r.Gx, r.Gy, r.Gz} {
			axes[k] = append(axes[k], float64(v))
		}
		if (i+1)%100 == 0 {
			logger.Info("calibration progress", zap.Int("samples", i+1), zap.Int("of", opts.Samples))
		}
	}

	var mean, std [6]float64
	for k := range axes {
		mean[k], std[k] = stat.MeanStdDev(axes[k], nil)
	}
	gyroStd := (std[3] + std[4] + std[5]) / 3

	cal := &imu.Calibration{
		SchemaVersion: calibrationSchema,
		CalibratedAt:  time.Now().UTC(),
		AccelBias:     imu.Vec3{X: mean[0], Y: mean[1], Z: mean[2] - imu.AccelSensitivity(opts.AccelRange)},
		GyroBias:      imu.Vec3{X: mean[3], Y: mean[4], Z: mean[5]},
		GyroStdDev:    imu.Vec3{X: std[3], Y: std[4], Z: std[5]},
		Confidence:    1 / (1 + gyroStd/gyroStillStd),
	}
	logger.Info("bias captured",
		zap.Float64("gyro_std", gyroStd),
		zap.Float64("confidence", cal.Confidence))
	return cal, nil
}

// RunCalibration captures static biases from the MPU-9250 and writes them
// to CALIBRATION_PATH. The thigh unit must lie still and level.
func RunCalibration(ctx context.Context, samples int, logger *zap.Logger) error {
	cfg := config.Get()
	if cfg.IMUMock {
		return errors.New("calibration needs the real IMU (IMU_MOCK=true)")
	}
	if cfg.CalibrationPath == "" {
		return errors.New("CALIBRATION_PATH is not set")
	}

	src, err := sensors.NewMPU9250Source(sensors.MPU9250Options{
		SPIDevice:  cfg.IMUSPIDevice,
		CSPin:      cfg.IMUCSPin,
		AccelRange: cfg.IMUAccelRange,
		GyroRange:  cfg.IMUGyroRange,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("keep the IMU still and level", zap.Int("samples", samples))
	cal, err := CaptureBias(ctx, src, CaptureOptions{
		Samples:    samples,
		Interval:   time.Duration(cfg.IMUSampleInterval) * time.Millisecond,
		AccelRange: cfg.IMUAccelRange,
	}, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.CalibrationPath), 0o755); err != nil {
		return fmt.Errorf("create calibration dir: %w", err)
	}
	if err := cal.Save(cfg.CalibrationPath); err != nil {
		return err
	}
	logger.Info("calibration saved", zap.String("path", cfg.CalibrationPath))
	return nil
}
