// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_feedback/internal/config"
	"github.com/relabs-tech/gait_feedback/internal/imu"
	"github.com/relabs-tech/gait_feedback/internal/sensors"
)

// mockCadence is the stride frequency of the mock walker in Hz.
const mockCadence = 1.0

// openIMU returns the mock walker or the MPU-9250, depending on IMU_MOCK.
func openIMU(cfg *config.Config, logger *zap.Logger) (imu.Source, error) {
	if cfg.IMUMock {
		logger.Info("using mock IMU source", zap.Float64("fs", cfg.SamplingRate), zap.Float64("cadence", mockCadence))
		w, err := sensors.NewMockWalker(cfg.SamplingRate, mockCadence)
		if err != nil {
			return nil, err
		}
		w.Noise = 0.05
		return w, nil
	}

	cal, err := imu.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		return nil, err
	}
	return sensors.NewMPU9250Source(sensors.MPU9250Options{
		SPIDevice:   cfg.IMUSPIDevice,
		CSPin:       cfg.IMUCSPin,
		AccelRange:  cfg.IMUAccelRange,
		GyroRange:   cfg.IMUGyroRange,
		Calibration: cal,
	}, logger)
}

// RunIMUProducer samples the thigh IMU every IMU_SAMPLE_INTERVAL ms and
// publishes each sample as JSON on TOPIC_IMU until ctx is cancelled.
func RunIMUProducer(ctx context.Context, logger *zap.Logger) error {
	cfg := config.Get()

	src, err := openIMU(cfg, logger)
	if err != nil {
		return err
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	interval := time.Duration(cfg.IMUSampleInterval) * time.Millisecond
	return produce(ctx, src, mqttPublisher{client: client}, cfg.TopicIMU, interval, logger)
}

// produce is the sampling loop. Read and publish errors are logged and the
// loop carries on.
func produce(ctx context.Context, src imu.Source, pub Publisher, topic string, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("publishing IMU samples", zap.String("topic", topic), zap.Duration("interval", interval))
	var published, failed int
	for {
		select {
		case <-ctx.Done():
			logger.Info("IMU producer stopped", zap.Int("published", published), zap.Int("failed", failed))
			return nil
		case <-ticker.C:
		}

		s, err := src.Next()
		if err != nil {
			failed++
			logger.Warn("IMU read error", zap.Error(err))
			continue
		}
		if err := pub.Publish(topic, s); err != nil {
			failed++
			logger.Warn("publish error", zap.Error(err))
			continue
		}
		published++
	}
}
