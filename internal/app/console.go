// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_feedback/internal/config"
	"github.com/relabs-tech/gait_feedback/internal/pipeline"
	"github.com/relabs-tech/gait_feedback/internal/vibro"
)

func formatAngle(payload []byte) (string, error) {
	var o pipeline.LiveOutput
	if err := json.Unmarshal(payload, &o); err != nil {
		return "", fmt.Errorf("angle unmarshal: %w", err)
	}
	return fmt.Sprintf("[ANGLE] t=%8.3f  raw=%7.2f  theta=%7.2f  phase=%s", o.T, o.Raw, o.Angle, o.Phase), nil
}

func formatActuation(payload []byte) (string, error) {
	var p vibro.Packet
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("actuation unmarshal: %w", err)
	}
	return fmt.Sprintf("[VIBRO] %s  %.3f-%.3fs  ch=%v  amp=%.2f  f=%.0fHz",
		p.Mode, p.TStart, p.TEnd, p.Channels(), p.Amplitude, p.Frequency), nil
}

func formatCycle(payload []byte) (string, error) {
	var s pipeline.Summary
	if err := json.Unmarshal(payload, &s); err != nil {
		return "", fmt.Errorf("cycle unmarshal: %w", err)
	}
	return fmt.Sprintf("[TRIAL] session=%s  cycles=%d  accepted=%d  exemplars=%d  w_patient=%.2f  normality=%.3f  cues=%d",
		s.SessionID, len(s.Cycles), s.Accepted, s.Exemplars, s.Weights.Patient, s.MeanNormality, s.Commands), nil
}

// printer serialises lines from concurrent MQTT callbacks.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) handler(format func([]byte) (string, error), logger *zap.Logger) func([]byte) {
	return func(payload []byte) {
		line, err := format(payload)
		if err != nil {
			logger.Warn("console", zap.Error(err))
			return
		}
		p.mu.Lock()
		fmt.Fprintln(p.out, line)
		p.mu.Unlock()
	}
}

// RunConsole prints angles, actuation cues and trial summaries until ctx
// is cancelled.
func RunConsole(ctx context.Context, logger *zap.Logger) error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	p := &printer{out: os.Stdout}
	subs := []struct {
		topic  string
		format func([]byte) (string, error)
	}{
		{cfg.TopicAngle, formatAngle},
		{cfg.TopicActuation, formatActuation},
		{cfg.TopicCycle, formatCycle},
	}
	for _, s := range subs {
		if err := subscribe(client, s.topic, p.handler(s.format, logger), logger); err != nil {
			return err
		}
	}

	<-ctx.Done()
	logger.Info("console: shutting down")
	return nil
}
