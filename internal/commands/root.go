package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chepyr/go-task-api/internal/config"
	"github.com/chepyr/go-task-api/internal/db"
	"github.com/chepyr/go-task-api/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "taskapi",
	Short: "Task API with sessions and tags",
	Long: `taskapi serves a REST API for users, sessions and tasks with tags.
Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

// SetVersion sets the version information
func SetVersion(v, c string) {
	version = v
	commit = c
	rootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a .env file, ignored when missing")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// bootstrap reads config, builds the logger and opens the database.
func bootstrap(ctx context.Context) (*config.Config, zerolog.Logger, *sql.DB, error) {
	cfg, err := config.Read(envFile)
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("read config: %w", err)
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	log.Info().Str("env", cfg.Env).Str("db_driver", cfg.Database.Driver).Msg("read config")

	dbConn, err := db.Connect(ctx, cfg.Database.Driver, cfg.Database.DSN(), db.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to database")
		return nil, log, nil, err
	}
	log.Info().Msg("connected to database")
	return cfg, log, dbConn, nil
}
