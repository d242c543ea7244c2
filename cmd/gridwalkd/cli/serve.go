package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridwalk-io/gridwalk/internal/config"
	"github.com/gridwalk-io/gridwalk/internal/httpapi"
	"github.com/spf13/cobra"
)

var debugLogging bool

// NewServeCommand builds the "serve" subcommand: load config, wire up
// the stores, and run the HTTP server until an interrupt signal arrives.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gridwalk layer ingestion and tile server",
		RunE:  runServe,
	}
	cmd.Flags().BoolVar(&debugLogging, "debug", false, "enable debug-level logging")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := NewLogger(debugLogging)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration")
		return err
	}

	app, err := config.Build(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}
	defer app.Spatial.Close()

	router := httpapi.NewRouter(app, logger, cfg.MetricsPath)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server error")
		return err
	}
	return nil
}
