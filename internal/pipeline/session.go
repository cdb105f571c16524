// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pipeline wires the fusion filter, cycle segmentation, gait
// database, template fusion and feedback controller into one session.
// A Session is single-owner: it must not be used from several goroutines.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_feedback/internal/gaitdb"
	"github.com/relabs-tech/gait_feedback/internal/imu"
	"github.com/relabs-tech/gait_feedback/internal/orientation"
	"github.com/relabs-tech/gait_feedback/internal/signal"
	"github.com/relabs-tech/gait_feedback/internal/template"
	"github.com/relabs-tech/gait_feedback/internal/vibro"
)

var ErrNoSamples = errors.New("pipeline: no samples")

// Config gathers the parameters of every stage.
type Config struct {
	Filter   orientation.Params
	Database gaitdb.Params
	Fusion   template.Params
	Vibro    vibro.Params
	Mode     vibro.Mode

	// Normative is the population template; nil selects the built-in one
	// at Database.ResamplePoints.
	Normative []float64

	HeelStrikeProminence float64
	HeelStrikeMinGap     int
}

func DefaultConfig() Config {
	return Config{
		Filter:               orientation.DefaultParams(),
		Database:             gaitdb.DefaultParams(),
		Fusion:               template.DefaultParams(),
		Vibro:                vibro.DefaultParams(),
		Mode:                 vibro.ModeSpaVib,
		HeelStrikeProminence: signal.DefaultProminence,
		HeelStrikeMinGap:     signal.DefaultMinGap,
	}
}

// Session owns the per-patient state for one walking session.
type Session struct {
	ID        string
	StartedAt time.Time

	cfg    Config
	filter *orientation.Filter
	db     *gaitdb.Database
	fusion *template.Fusion
	ctrl   *vibro.Controller
	logger *zap.Logger

	// live path
	state    orientation.State
	smoother *signal.Stream
	trigger  *vibro.Trigger
	buffer   []imu.Sample
}

// NewSession validates cfg and builds every stage.
func NewSession(cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HeelStrikeMinGap < 1 {
		return nil, fmt.Errorf("heel strike minimum gap must be >= 1, got %d", cfg.HeelStrikeMinGap)
	}

	filter, err := orientation.NewFilter(cfg.Filter)
	if err != nil {
		return nil, err
	}
	id := uuid.New().String()
	db, err := gaitdb.New(cfg.Database, logger.With(zap.String("session", id)))
	if err != nil {
		return nil, err
	}
	normative := cfg.Normative
	if normative == nil {
		normative = template.DefaultNormative(cfg.Database.ResamplePoints)
	}
	fusion, err := template.NewFusion(normative, cfg.Fusion)
	if err != nil {
		return nil, err
	}
	ctrl, err := vibro.NewController(cfg.Vibro)
	if err != nil {
		return nil, err
	}
	smoother, err := filter.CausalSmoother()
	if err != nil {
		return nil, fmt.Errorf("causal smoother: %w", err)
	}

	return &Session{
		ID:        id,
		StartedAt: time.Now().UTC(),
		cfg:       cfg,
		filter:    filter,
		db:        db,
		fusion:    fusion,
		ctrl:      ctrl,
		logger:    logger.With(zap.String("session", id)),
		smoother:  smoother,
		trigger:   ctrl.NewTrigger(cfg.Mode),
	}, nil
}

func (s *Session) Config() Config { return s.cfg }

// Database exposes the session's gait database for snapshots. Callers
// reading it concurrently with Push or RunTrial must synchronise.
func (s *Session) Database() *gaitdb.Database { return s.db }

func (s *Session) Fusion() *template.Fusion { return s.fusion }
