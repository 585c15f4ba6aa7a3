package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"lendinglibrary/internal/config"
	"lendinglibrary/internal/store"
	"lendinglibrary/internal/store/memory"
	"lendinglibrary/internal/store/sqlstore"
	"lendinglibrary/internal/telemetry"
)

var version = "dev"

var (
	// Global flags; set values override the environment.
	driverFlag      string
	databaseURLFlag string
	logLevelFlag    string
	logFormatFlag   string

	cfg    config.Config
	logger *slog.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "library",
	Short: "Lending library service: authors, books, members and loans",
	Long: `library runs the lending library HTTP service and talks to a running one.

Configuration comes from the environment (PORT, DB_DRIVER, DATABASE_URL,
LOG_LEVEL, LOG_FORMAT, OTEL_EXPORTER_OTLP_ENDPOINT, RATE_LIMIT_RPS,
RATE_LIMIT_BURST, SHUTDOWN_TIMEOUT, LIBRARY_SERVER); flags win over it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("driver") {
			cfg.DBDriver = driverFlag
		}
		if flags.Changed("database-url") {
			cfg.DatabaseURL = databaseURLFlag
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = logLevelFlag
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = logFormatFlag
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = telemetry.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&driverFlag, "driver", "", "database driver: postgres, pgx, sqlite3 or memory (env DB_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&databaseURLFlag, "database-url", "", "database DSN (env DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "json or text (env LOG_FORMAT)")
}

// openStore connects to the configured store and bootstraps its schema.
func openStore(ctx context.Context) (store.Store, error) {
	if cfg.DBDriver == "memory" {
		logger.Warn("using the in-memory store, data is lost on exit")
		return memory.New(), nil
	}

	st, err := sqlstore.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, sqlstore.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}
