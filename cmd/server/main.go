package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"texttones/internal/audio"
	"texttones/internal/auth"
	"texttones/internal/config"
	"texttones/internal/conversions"
	apphttp "texttones/internal/http"
	"texttones/internal/observability"
	"texttones/internal/storage"
	"texttones/internal/tts"
	"texttones/internal/ui"
	"texttones/internal/voices"
	"texttones/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrap := observability.NewLogger(os.Stderr, "info", false)
		bootstrap.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}

	logger := observability.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, checks, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	synthesizer, err := newSynthesizer(cfg, logger)
	if err != nil {
		return err
	}

	registry := audio.NewPlaybackRegistry()

	var metrics *observability.Metrics
	var recorder conversions.Recorder
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics(registry.Live)
		recorder = metrics
	}

	service := conversions.NewService(conversions.Config{
		Catalog:     voices.Default(),
		Synthesizer: synthesizer,
		Store:       store,
		Playback:    registry,
		Recorder:    recorder,
		Logger:      logger.With().Str("component", "conversions").Logger(),
	})
	defer service.Close()

	tmpl, err := ui.ParseTemplates()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	handler := apphttp.NewServer(logger, service, auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer), tmpl, ui.StaticFiles(), apphttp.Options{
		Metrics:      metrics,
		HealthChecks: checks,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", server.Addr).
			Str("tts_provider", cfg.TTSProvider).
			Bool("persistent", cfg.Persistent()).
			Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openStore picks Postgres when DB_DSN is set and process memory otherwise.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (conversions.ActivityStore, map[string]observability.HealthCheckFunc, func(), error) {
	if !cfg.Persistent() {
		logger.Warn().Msg("DB_DSN not set, activity is kept in memory")
		return storage.NewMemoryStore(), nil, func() {}, nil
	}

	db, err := sql.Open("pgx", cfg.DBDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open db: %w", err)
	}

	// ensure DB is reachable
	if err := pingDB(ctx, db); err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	applied, err := storage.RunMigrations(ctx, db, migrations.Files)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info().Int("applied", applied).Msg("migrations complete")

	checks := map[string]observability.HealthCheckFunc{
		"database": db.PingContext,
	}
	return storage.NewActivityRepository(db), checks, func() { db.Close() }, nil
}

func newSynthesizer(cfg config.Config, logger zerolog.Logger) (conversions.Synthesizer, error) {
	httpClient := &http.Client{Timeout: cfg.TTSTimeout}

	switch cfg.TTSProvider {
	case config.ProviderStub:
		logger.Warn().Msg("using stub synthesizer")
		return tts.NewStubClient(), nil
	case config.ProviderHTTP:
		return tts.NewHTTPGateway(logger, cfg.TTSEndpoint, cfg.TTSAPIKey, &tts.GatewayOptions{
			Engine:     cfg.TTSEngine,
			HTTPClient: httpClient,
		}), nil
	case config.ProviderElevenLabs:
		return tts.NewElevenLabsClient(logger, cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, &tts.ElevenLabsOptions{
			ModelID:    cfg.ElevenLabsModelID,
			HTTPClient: httpClient,
			VoiceIDs:   cfg.ElevenLabsVoices,
		}), nil
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", cfg.TTSProvider)
	}
}

func pingDB(ctx context.Context, db *sql.DB) error {
	const (
		maxAttempts = 10
		baseDelay   = time.Second
	)

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()

		if err == nil {
			return nil
		}

		// allow caller to abort early
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping db: %w", err)
		case <-time.After(time.Duration(attempt) * baseDelay):
		}
	}

	return fmt.Errorf("ping db: %w", err)
}
