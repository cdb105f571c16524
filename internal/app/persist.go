// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_feedback/internal/config"
	"github.com/relabs-tech/gait_feedback/internal/export"
	"github.com/relabs-tech/gait_feedback/internal/pipeline"
	"github.com/relabs-tech/gait_feedback/internal/storage"
)

// openStore opens the session database, or returns nil when DB_PATH is
// empty.
func openStore(cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.DBPath == "" {
		logger.Info("session persistence disabled")
		return nil, nil
	}
	store, err := storage.OpenSQLite(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// restoreSession loads the patient's latest gait database into session.
// A missing or incompatible previous session leaves the database empty.
func restoreSession(ctx context.Context, store storage.Store, patient string, session *pipeline.Session, logger *zap.Logger) error {
	if store == nil {
		return nil
	}
	rec, err := store.LatestSession(ctx, patient)
	if errors.Is(err, storage.ErrSessionNotFound) {
		logger.Info("no previous session, starting with an empty gait database", zap.String("patient", patient))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load previous session: %w", err)
	}
	if err := session.Database().Restore(rec.Snapshot); err != nil {
		logger.Warn("previous session not restored", zap.String("from_session", rec.ID), zap.Error(err))
		return nil
	}
	logger.Info("gait database carried over",
		zap.String("from_session", rec.ID),
		zap.Int("exemplars", session.Database().Len()))
	return nil
}

func saveSession(ctx context.Context, store storage.Store, patient string, session *pipeline.Session) error {
	if store == nil {
		return nil
	}
	return store.SaveSession(ctx, storage.SessionRecord{
		ID:        session.ID,
		Patient:   patient,
		StartedAt: session.StartedAt,
		Snapshot:  session.Database().Snapshot(),
	})
}

// exportTrial writes the trial tables under EXPORT_DIR/<session id>.
func exportTrial(cfg *config.Config, res pipeline.TrialResult, logger *zap.Logger) error {
	if cfg.ExportDir == "" {
		return nil
	}
	paths, err := export.WriteTrial(filepath.Join(cfg.ExportDir, res.SessionID), cfg.ExportFormat, res)
	if err != nil {
		return err
	}
	logger.Info("trial exported",
		zap.String("samples", paths.Samples),
		zap.String("cycles", paths.Cycles))
	return nil
}

// finishTrial saves the database and exports the trial. Both are attempted
// even if the first fails.
func finishTrial(ctx context.Context, cfg *config.Config, store storage.Store, session *pipeline.Session, res pipeline.TrialResult, logger *zap.Logger) error {
	return errors.Join(
		saveSession(ctx, store, cfg.PatientID, session),
		exportTrial(cfg, res, logger),
	)
}
