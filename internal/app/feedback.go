// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_feedback/internal/config"
	"github.com/relabs-tech/gait_feedback/internal/imu"
	"github.com/relabs-tech/gait_feedback/internal/pipeline"
)

// sampleQueue bounds how many IMU messages may wait for the pipeline.
const sampleQueue = 256

// Topics names the MQTT topics the feedback loop publishes to.
type Topics struct {
	Angle     string
	Actuation string
	Cycle     string
}

// Feedback drives a live session: each IMU sample goes through the causal
// path, angles and cues are published, and cue frames are written to the
// actuator. It is not safe for concurrent use; RunFeedback feeds it from a
// single goroutine.
type Feedback struct {
	session  *pipeline.Session
	pub      Publisher
	actuator io.Writer
	topics   Topics
	logger   *zap.Logger

	samples int
	cues    int
}

// NewFeedback wires a session to its outputs. actuator may be nil.
func NewFeedback(session *pipeline.Session, pub Publisher, actuator io.Writer, topics Topics, logger *zap.Logger) *Feedback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feedback{session: session, pub: pub, actuator: actuator, topics: topics, logger: logger}
}

// Handle processes one sample. Only pipeline errors are returned; publish
// and actuator failures are logged.
func (f *Feedback) Handle(s imu.Sample) error {
	out, err := f.session.Push(s)
	if err != nil {
		return err
	}
	f.samples++

	if err := f.pub.Publish(f.topics.Angle, out); err != nil {
		f.logger.Warn("angle publish failed", zap.Error(err))
	}
	if out.Command == nil {
		return nil
	}

	f.cues++
	pkt := out.Command.Packet()
	if err := f.pub.Publish(f.topics.Actuation, pkt); err != nil {
		f.logger.Warn("actuation publish failed", zap.Error(err))
	}
	if f.actuator != nil {
		frame, err := pkt.MarshalBinary()
		if err != nil {
			f.logger.Warn("actuation frame", zap.Error(err))
			return nil
		}
		if _, err := f.actuator.Write(frame); err != nil {
			f.logger.Warn("actuator write failed", zap.Error(err))
		}
	}
	return nil
}

// Stats returns the samples processed and cues emitted so far.
func (f *Feedback) Stats() (samples, cues int) { return f.samples, f.cues }

// Finish runs the buffered trial offline and publishes its summary on the
// cycle topic.
func (f *Feedback) Finish() (pipeline.TrialResult, error) {
	res, err := f.session.Finalize()
	if err != nil {
		return res, err
	}
	if err := f.pub.Publish(f.topics.Cycle, res.Summary()); err != nil {
		f.logger.Warn("summary publish failed", zap.Error(err))
	}
	return res, nil
}

// openActuator opens the serial link to the vibrotactile driver board.
func openActuator(port string, baud int) (io.ReadWriteCloser, error) {
	options := serial.OpenOptions{
		PortName:        port,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	rw, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open actuator %s: %w", port, err)
	}
	return rw, nil
}

// RunFeedback subscribes to TOPIC_IMU and runs the live biofeedback loop
// until ctx is cancelled. On shutdown the trial is finalized, the gait
// database saved for the patient and the trial exported.
func RunFeedback(ctx context.Context, logger *zap.Logger) error {
	cfg := config.Get()

	pcfg, err := cfg.PipelineConfig()
	if err != nil {
		return err
	}
	session, err := pipeline.NewSession(pcfg, logger)
	if err != nil {
		return err
	}
	logger.Info("session started", zap.String("session", session.ID), zap.String("mode", string(cfg.FeedbackMode)))

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	if err := restoreSession(ctx, store, cfg.PatientID, session, logger); err != nil {
		return err
	}

	var actuator io.Writer
	if cfg.ActuatorSerialPort != "" {
		port, err := openActuator(cfg.ActuatorSerialPort, cfg.ActuatorBaudRate)
		if err != nil {
			return err
		}
		defer port.Close()
		actuator = port
		logger.Info("actuator connected", zap.String("port", cfg.ActuatorSerialPort), zap.Int("baud", cfg.ActuatorBaudRate))
	} else {
		logger.Warn("no ACTUATOR_SERIAL_PORT, cues are published on MQTT only")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDFeedback, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	fb := NewFeedback(session, mqttPublisher{client: client}, actuator, Topics{
		Angle:     cfg.TopicAngle,
		Actuation: cfg.TopicActuation,
		Cycle:     cfg.TopicCycle,
	}, logger)

	samples := make(chan imu.Sample, sampleQueue)
	err = subscribe(client, cfg.TopicIMU, func(payload []byte) {
		var s imu.Sample
		if err := json.Unmarshal(payload, &s); err != nil {
			logger.Warn("IMU payload unmarshal error", zap.Error(err))
			return
		}
		select {
		case samples <- s:
		default:
			logger.Warn("feedback loop behind, sample dropped", zap.Float64("t", s.T))
		}
	}, logger)
	if err != nil {
		return err
	}

	consume(ctx, fb, samples, logger)
	client.Unsubscribe(cfg.TopicIMU).Wait()

	res, err := fb.Finish()
	if errors.Is(err, pipeline.ErrNoSamples) {
		logger.Info("no samples received, nothing to save")
		return nil
	}
	if err != nil {
		return err
	}
	// ctx is already done here.
	return finishTrial(context.Background(), cfg, store, session, res, logger)
}

// consume feeds samples to fb until ctx is cancelled.
func consume(ctx context.Context, fb *Feedback, samples <-chan imu.Sample, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			n, cues := fb.Stats()
			logger.Info("feedback loop stopped", zap.Int("samples", n), zap.Int("cues", cues))
			return
		case s := <-samples:
			if err := fb.Handle(s); err != nil {
				logger.Warn("sample skipped", zap.Error(err))
			}
		}
	}
}
