package main

import (
	"fmt"
	"os"

	"github.com/fairguard/backend/config"
	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/migrate/main.go [up|status]")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Server.LogLevel, Environment: cfg.Server.Env, Secrets: cfg.Secrets()})

	// Connect to database
	db, err := database.Open(cfg.Database.Driver, cfg.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	switch command {
	case "up":
		log.Info().Str("driver", cfg.Database.Driver).Msg("running migrations")
		if err := database.RunMigrations(db.DB); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		log.Info().Msg("migrations completed successfully")

	case "status":
		showMigrationStatus(db)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Available commands: up, status")
		os.Exit(1)
	}
}

func showMigrationStatus(db *database.DB) {
	applied, err := database.Status(db.DB)
	if err != nil {
		log.Error().Err(err).Msg("no migrations found or table doesn't exist")
		return
	}

	fmt.Println("\nApplied Migrations:")
	fmt.Println("-------------------")
	for _, m := range applied {
		fmt.Printf("Version %d - Applied at: %s\n", m.Version, m.AppliedAt)
	}
}
