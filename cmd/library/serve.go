package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"lendinglibrary/internal/server"
	"lendinglibrary/internal/telemetry"
)

var portFlag string

// serveCmd runs the HTTP service
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the library HTTP service",
	Long: `Run the library HTTP service until SIGINT or SIGTERM.

The schema is bootstrapped on start. Write requests are rate limited by
RATE_LIMIT_RPS and RATE_LIMIT_BURST; RATE_LIMIT_RPS=0 turns the limit off.

Examples:
  library serve --driver sqlite3 --database-url ./library.db
  DB_DRIVER=memory library serve --port 9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Port = portFlag
		}
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&portFlag, "port", "", "listen port (env PORT)")
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Prices go out as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("flush traces", "error", err)
		}
	}()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	handler, err := server.NewRouter(st, server.Options{Logger: logger, Limiter: limiter})
	if err != nil {
		return err
	}

	logger.Info("starting library service",
		"version", version,
		"driver", cfg.DBDriver,
		"tracing", cfg.OTLPEndpoint != "",
	)
	if err := server.Run(ctx, net.JoinHostPort("", cfg.Port), handler, cfg.ShutdownTimeout, logger); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
