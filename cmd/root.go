package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/PolloDK/FK01-Encuestas/internal/artifact"
	"github.com/PolloDK/FK01-Encuestas/internal/config"
	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/enrich"
	"github.com/PolloDK/FK01-Encuestas/internal/features"
	"github.com/PolloDK/FK01-Encuestas/internal/httpx"
	"github.com/PolloDK/FK01-Encuestas/internal/logger"
	"github.com/PolloDK/FK01-Encuestas/internal/pipeline"
	"github.com/PolloDK/FK01-Encuestas/internal/scoring"
	"github.com/PolloDK/FK01-Encuestas/internal/telemetry"
	"github.com/PolloDK/FK01-Encuestas/internal/textclean"
)

var (
	configPath string
	dbPath     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "encuestas",
	Short:         "Daily sentiment features and approval forecasts from social posts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command's context;
// work already committed stays committed.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to encuestas.yaml")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SQLite record store (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// app holds what every command needs: resolved config, logger, store and metrics.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *db.DB
	metrics *telemetry.Metrics
}

// openApp loads configuration, opens and migrates the record store.
// Flag > env > config file > defaults.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	d, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening record store %s: %w", cfg.DBPath, err)
	}
	if err := d.Migrate(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: log, db: d, metrics: telemetry.New()}, nil
}

func (a *app) Close() {
	a.db.Close()
	a.log.Sync()
}

func (a *app) retryPolicy() httpx.Policy {
	return httpx.Policy{
		MaxAttempts: a.cfg.Retry.MaxAttempts,
		BaseDelay:   a.cfg.Retry.BackoffBase,
		MaxDelay:    a.cfg.Retry.MaxBackoff,
	}
}

func (a *app) artifacts(ctx context.Context) (artifact.Store, error) {
	return artifact.Open(ctx, a.cfg.Artifacts)
}

func (a *app) backend() (enrich.Backend, error) {
	ec := a.cfg.Enrich
	switch ec.Backend {
	case "openai":
		return enrich.NewOpenAIBackend(enrich.OpenAIBackendConfig{
			APIKey:         ec.OpenAIAPIKey,
			ChatModel:      ec.ChatModel,
			EmbeddingModel: ec.EmbeddingModel,
			Dimensions:     ec.Dimensions,
			MaxRetries:     a.cfg.Retry.MaxAttempts - 1,
		})
	default:
		return enrich.NewHTTPBackend(enrich.HTTPBackendConfig{
			BaseURL:    ec.BackendURL,
			Dimensions: ec.Dimensions,
			Timeout:    ec.Timeout,
			Retry:      a.retryPolicy(),
		}, a.log, a.metrics)
	}
}

func (a *app) enrichStage(backend enrich.Backend) *enrich.Stage {
	cc, ec := a.cfg.Cleaning, a.cfg.Enrich
	cleaner := textclean.New(textclean.Options{
		MinTokens:      cc.MinTokens,
		MaxTokens:      cc.MaxTokens,
		ExtraStopwords: cc.ExtraStopwords,
		KeepHashtags:   cc.KeepHashtags,
	})
	return enrich.NewStage(a.db, cleaner, backend, enrich.Options{
		ChunkSize:  ec.ChunkSize,
		MinPending: ec.MinPending,
		Workers:    ec.Workers,
		Dimensions: ec.Dimensions,
	}, a.log, a.metrics)
}

func (a *app) featureStage(store artifact.Store, refit bool) *features.Stage {
	return features.NewStage(a.db, store, features.StageOptions{
		CoverageDays: a.cfg.Features.CoverageDays,
		Dimensions:   a.cfg.Enrich.Dimensions,
		RefitScaler:  refit,
	}, a.log)
}

// predictor loads the configured model bundles. Bundles that fail to load
// are logged and skipped; with none loaded the predictor is nil.
func (a *app) predictor() *scoring.Predictor {
	targets, errs := scoring.LoadTargets(a.cfg.Models)
	for _, err := range errs {
		a.log.Error("Model bundle unavailable", "error", err.Error())
	}
	if len(targets) == 0 {
		return nil
	}
	return scoring.NewPredictor(targets, a.log)
}

// pipeline wires every stage. The returned cleanup closes the backend and
// artifact store.
func (a *app) pipeline(ctx context.Context, refit bool) (*pipeline.Pipeline, func(), error) {
	store, err := a.artifacts(ctx)
	if err != nil {
		return nil, nil, err
	}
	backend, err := a.backend()
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	p := pipeline.New(a.db, store, a.enrichStage(backend), a.featureStage(store, refit), a.predictor(), a.log, a.metrics)
	cleanup := func() {
		backend.Close()
		store.Close()
	}
	return p, cleanup, nil
}
