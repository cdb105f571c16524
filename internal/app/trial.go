// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_feedback/internal/config"
	"github.com/relabs-tech/gait_feedback/internal/imu"
	"github.com/relabs-tech/gait_feedback/internal/pipeline"
	"github.com/relabs-tech/gait_feedback/internal/storage"
)

// RunTrial processes a recorded trial (CSV with t,ax,ay,az,gx,gy,gz) offline:
// the patient's gait database is restored, updated, saved and the trial is
// exported.
func RunTrial(ctx context.Context, csvPath string, logger *zap.Logger) error {
	cfg := config.Get()

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("open trial: %w", err)
	}
	samples, err := imu.ReadCSV(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("read trial %s: %w", csvPath, err)
	}
	logger.Info("trial loaded", zap.String("path", csvPath), zap.Int("samples", len(samples)))

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	res, err := processTrial(ctx, cfg, samples, store, logger)
	if err != nil {
		return err
	}
	sum := res.Summary()
	logger.Info("trial summary",
		zap.String("session", sum.SessionID),
		zap.Int("cycles", len(sum.Cycles)),
		zap.Int("accepted", sum.Accepted),
		zap.Int("exemplars", sum.Exemplars),
		zap.Float64("reliability", sum.Reliability),
		zap.Float64("patient_weight", sum.Weights.Patient),
		zap.Float64("mean_normality", sum.MeanNormality),
		zap.Int("commands", sum.Commands))
	return nil
}

func processTrial(ctx context.Context, cfg *config.Config, samples []imu.Sample, store storage.Store, logger *zap.Logger) (pipeline.TrialResult, error) {
	pcfg, err := cfg.PipelineConfig()
	if err != nil {
		return pipeline.TrialResult{}, err
	}
	session, err := pipeline.NewSession(pcfg, logger)
	if err != nil {
		return pipeline.TrialResult{}, err
	}
	if err := restoreSession(ctx, store, cfg.PatientID, session, logger); err != nil {
		return pipeline.TrialResult{}, err
	}

	res, err := session.RunTrial(samples, cfg.FeedbackMode)
	if err != nil {
		return pipeline.TrialResult{}, err
	}
	if err := finishTrial(ctx, cfg, store, session, res, logger); err != nil {
		return res, err
	}
	return res, nil
}
