// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/gait_feedback/internal/imu"
)

var (
	accelRangesG   = []int{2, 4, 8, 16}
	gyroRangesDegS = []int{250, 500, 1000, 2000}
)

// MPU9250Options selects the bus, chip select and full-scale ranges.
type MPU9250Options struct {
	SPIDevice   string
	CSPin       string
	AccelRange  byte
	GyroRange   byte
	Calibration *imu.Calibration // optional static biases
}

// MPU9250Source reads the thigh IMU over SPI. It implements imu.RawSource
// and imu.Source; samples are stamped with seconds since the source opened.
type MPU9250Source struct {
	dev    *mpu9250.MPU9250
	opts   MPU9250Options
	start  time.Time
	logger *zap.Logger
}

var (
	_ imu.Source    = (*MPU9250Source)(nil)
	_ imu.RawSource = (*MPU9250Source)(nil)
)

// NewMPU9250Source initialises the MPU-9250: host init, SPI transport,
// device init, full-scale ranges and the driver's gyro calibration.
func NewMPU9250Source(opts MPU9250Options, logger *zap.Logger) (*MPU9250Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AccelRange > 3 || opts.GyroRange > 3 {
		return nil, fmt.Errorf("IMU: range codes must be 0-3 (accel %d, gyro %d)", opts.AccelRange, opts.GyroRange)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(opts.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", opts.CSPin)
	}
	tr, err := mpu9250.NewSpiTransport(opts.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", opts.SPIDevice, err)
	}
	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	if err := dev.SetAccelRange(opts.AccelRange); err != nil {
		return nil, fmt.Errorf("IMU: set accel range: %w", err)
	}
	if err := dev.SetGyroRange(opts.GyroRange); err != nil {
		return nil, fmt.Errorf("IMU: set gyro range: %w", err)
	}
	logger.Info("IMU ranges set",
		zap.String("spi", opts.SPIDevice),
		zap.Int("accel_g", accelRangesG[opts.AccelRange]),
		zap.Int("gyro_dps", gyroRangesDegS[opts.GyroRange]))

	if err := dev.Calibrate(); err != nil {
		logger.Warn("IMU driver calibration failed", zap.Error(err))
	}
	if opts.Calibration == nil {
		logger.Warn("IMU running without a bias calibration file")
	}

	return &MPU9250Source{dev: dev, opts: opts, start: time.Now(), logger: logger}, nil
}

// ReadRaw reads accelerometer and gyroscope counts.
func (s *MPU9250Source) ReadRaw() (imu.Raw, error) {
	var (
		r   imu.Raw
		err error
	)
	reads := []struct {
		name string
		dst  *int16
		fn   func() (int16, error)
	}{
		{"accel X", &r.Ax, s.dev.GetAccelerationX},
		{"accel Y", &r.Ay, s.dev.GetAccelerationY},
		{"accel Z", &r.Az, s.dev.GetAccelerationZ},
		{"gyro X", &r.Gx, s.dev.GetRotationX},
		{"gyro Y", &r.Gy, s.dev.GetRotationY},
		{"gyro Z", &r.Gz, s.dev.GetRotationZ},
	}
	for _, rd := range reads {
		if *rd.dst, err = rd.fn(); err != nil {
			return imu.Raw{}, fmt.Errorf("IMU %s: %w", rd.name, err)
		}
	}
	return r, nil
}

// Next reads one sample in g and °/s with calibration biases removed.
func (s *MPU9250Source) Next() (imu.Sample, error) {
	raw, err := s.ReadRaw()
	if err != nil {
		return imu.Sample{}, err
	}
	t := time.Since(s.start).Seconds()
	return raw.Scale(t, s.opts.AccelRange, s.opts.GyroRange, s.opts.Calibration), nil
}
