package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"quotr/internal/engine/catalog"
	"quotr/internal/engine/invitations"
	"quotr/internal/pkg/logger"
	"quotr/internal/platform/config"
	"quotr/internal/platform/database"
	"quotr/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	runOnce := flag.Bool("run-once", false, "Run every job once and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	// Purging needs no access checks, so the service runs without a guard.
	inv := invitations.NewService(invitations.NewRepository(db), catalog.NewRepository(db), nil, nil)

	scheduler, err := workers.NewScheduler(inv, cfg.Worker)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule jobs")
	}

	if *runOnce {
		if err := scheduler.PurgeTemplates(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("template purge failed")
		}
		return
	}

	scheduler.Start()
	log.Info().Str("purge_schedule", cfg.Worker.PurgeSchedule).Msg("worker started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	<-scheduler.Stop().Done()
}
