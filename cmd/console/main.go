// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_feedback/internal/app"
	"github.com/relabs-tech/gait_feedback/internal/config"
	"github.com/relabs-tech/gait_feedback/internal/logging"
)

func main() {
	configPath := flag.String("config", "./gait_config.txt", "path to configuration file")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "console")
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting console (MQTT subscriber)")
	if err := app.RunConsole(ctx, logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}
