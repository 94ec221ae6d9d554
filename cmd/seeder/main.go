package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/logging"
)

func main() {
	_ = godotenv.Load()
	logger := logging.Component("seeder")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	database, err := db.Open(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	seedFiles := []string{
		"seed/schema.sql",
		"seed/contacts.sql",
		"seed/campaigns.sql",
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Fatal().Err(err).Str("file", file).Msg("failed to read seed file")
		}
		if _, err := database.Exec(string(content)); err != nil {
			logger.Fatal().Err(err).Str("file", file).Msg("failed to execute seed file")
		}
		logger.Info().Str("file", file).Msg("seeded")
	}

	logger.Info().Msg("database seeding completed")
}
