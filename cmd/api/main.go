// Package main is the entry point for the Veil gateway. It issues and
// validates API keys, manages onboarded upstream APIs and proxies consumer
// traffic to them.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/server"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// Version information is set during build time through linker flags.
var (
	// version represents the release version of the application.
	version = "dev"

	// commit is the git commit hash from which the application was built.
	commit = "none"

	// buildDate is the timestamp when the application was built.
	buildDate = "unknown"
)

// init loads environment variables from a .env file if present.
func init() {
	// Not finding a .env file is a non-fatal condition, as configuration
	// might be provided by other means.
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found or couldn't be loaded")
	}
}

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "./configs/config.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("Veil Gateway\nVersion: %s\nCommit: %s\nBuild Date: %s\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Bootstrap logger until the configured one is ready
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if version != "dev" {
		cfg.App.Version = version
	}

	utils.InitLogger(cfg)
	defer func() {
		if err := utils.CloseLogger(); err != nil {
			fmt.Printf("Failed to close log file: %v\n", err)
		}
	}()

	log.Info().
		Str("version", cfg.App.Version).
		Str("commit", commit).
		Str("environment", cfg.App.Environment).
		Msg("Starting Veil Gateway")

	utils.InitValidator()

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	// Blocks until SIGINT/SIGTERM or a server error
	if err := srv.Start(); err != nil {
		log.Error().Err(err).Msg("Server error")
		_ = utils.CloseLogger()
		os.Exit(1)
	}
}
