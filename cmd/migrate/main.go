package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"quotr/internal/pkg/logger"
	"quotr/internal/platform/config"
	"quotr/internal/platform/database"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	status := flag.Bool("status", false, "List applied migrations and exit")
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

	if !*status {
		if err := database.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
	}

	applied, err := database.Applied(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list migrations")
	}
	for _, name := range applied {
		fmt.Println(name)
	}
	log.Info().Int("applied", len(applied)).Str("path", cfg.Database.Path).Msg("migrations up to date")
}
