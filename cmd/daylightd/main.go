package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dokzlo13/daylightd/internal/app"
	"github.com/dokzlo13/daylightd/internal/config"
	"github.com/dokzlo13/daylightd/internal/schedule"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "Path to configuration file")
	envFile := pflag.String("env-file", ".env", "Environment file loaded before the config is expanded")
	check := pflag.Bool("check", false, "Validate configuration and schedules, print a preview and exit")
	logLevel := pflag.String("log-level", "", "Override log.level from the config file")
	pflag.Parse()

	// A missing .env is normal; variables may come from the environment
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("file", *envFile).Msg("Failed to load env file")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	// Setup logging
	setupLogging(cfg.Log.Level, cfg.Log.UseJSON, cfg.Log.Colors)

	if *check {
		os.Exit(runCheck(cfg))
	}

	log.Info().Str("config", *configPath).Msg("Starting daylightd")

	// Create application
	application, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	// Start the application
	if err := application.Start(ctx); err != nil {
		application.Stop()
		var cerr *schedule.ConfigurationError
		if errors.As(err, &cerr) {
			log.Fatal().Err(err).Msg("Invalid schedule configuration")
		}
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	// Wait for shutdown
	application.Wait()

	// Graceful shutdown
	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
	if err := application.Err(); err != nil {
		log.Fatal().Err(err).Msg("daylightd stopped")
	}
}

// runCheck validates the schedules without touching the bridge or the
// network and prints what each table resolves to.
func runCheck(cfg *config.Config) int {
	schedules, err := app.LoadSchedules(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load schedules")
		return 1
	}
	tables, _, err := app.BuildTables(schedules)
	if err != nil {
		log.Error().Err(err).Msg("Invalid schedule configuration")
		return 1
	}
	if err := app.WritePreview(os.Stdout, tables); err != nil {
		log.Error().Err(err).Msg("Failed to write preview")
		return 1
	}
	fmt.Fprintf(os.Stdout, "\nconfiguration ok: %d tables, %d bindings, sun times from %s\n",
		len(tables), len(schedules.Bindings), cfg.Weather.Provider)
	return 0
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		// JSON output for production
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
