package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docuhub/internal/api/handlers"
	"github.com/cloo-solutions/docuhub/internal/api/middleware"
	"github.com/cloo-solutions/docuhub/internal/config"
	"github.com/cloo-solutions/docuhub/internal/jobs"
	"github.com/cloo-solutions/docuhub/internal/logging"
	"github.com/cloo-solutions/docuhub/internal/server"
	"github.com/cloo-solutions/docuhub/internal/service"
	"github.com/cloo-solutions/docuhub/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the docuhub API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides DOCUHUB_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", defaultMigrationsDir, "Directory holding the SQL migrations")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.Debug)

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	if cfg.HasSentry() {
		// 10% sampling in production, everything elsewhere
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Warn().Err(err).Msg("telemetry init failed, continuing without tracing")
		} else {
			defer shutdownTelemetry()
		}
	}

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		dir, _ := cmd.Flags().GetString("migrations")
		if err := runMigrations(cfg.DatabaseURL, dir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	auth, err := service.NewAuthService(cfg.APITokens)
	if err != nil {
		return fmt.Errorf("invalid DOCUHUB_API_TOKENS: %w", err)
	}
	if auth.Len() == 0 {
		log.Warn().Msg("no API tokens configured, every upload will be rejected")
	}

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()
	log.Info().Msg("connected to database")

	sweeper := jobs.NewWorker("upload-sweeper",
		jobs.NewUploadSweeper(cfg.UploadDir, service.UploadFilePrefix, cfg.UploadTTL),
		cfg.SweepInterval,
	)
	go sweeper.Start(ctx)

	var uploadLimiter *middleware.RateLimiter
	if cfg.UploadRatePerMinute > 0 {
		uploadLimiter = middleware.NewRateLimiter(cfg.UploadRatePerMinute)
		evictor := jobs.NewWorker("rate-limit-evictor", uploadLimiter, cfg.SweepInterval)
		go evictor.Start(ctx)
		defer evictor.Stop()
	}

	router := server.NewRouter(server.RouterConfig{
		Authenticator:  auth,
		UploadHandler:  handlers.NewUploadHandler(a.pipeline),
		MaxUploadBytes: cfg.MaxUploadBytes,
		UploadLimiter:  uploadLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		sweeper.Stop()
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info().Msg("shutting down")

	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server exited")
	return nil
}
