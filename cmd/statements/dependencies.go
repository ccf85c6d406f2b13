package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/completion"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/extract"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/layout"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/report"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/repository"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/schema"
	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/service"
	"github.com/FACorreiaa/statement-ingest/pkg/config"
	"github.com/FACorreiaa/statement-ingest/pkg/db"
	"github.com/FACorreiaa/statement-ingest/pkg/notify"
	"github.com/FACorreiaa/statement-ingest/pkg/storage"
)

// Dependencies holds everything a subcommand may need. Only the parts a
// command asks for are initialized.
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger
	Layout layout.Layout

	DB        *db.DB
	Repo      repository.StatementRepository
	Validator *schema.Validator
	Registry  *prometheus.Registry
	Metrics   *service.Metrics
	Storage   storage.Storage

	Pipeline *service.Pipeline
	Exporter *report.Exporter
	Notifier *notify.Notifier
}

// NewDependencies sets up the parts every command shares.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to init validator: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Layout:    layout.New(cfg.Paths.StatementsDir),
		Validator: validator,
		Registry:  reg,
		Metrics:   service.NewMetrics(reg),
		Notifier:  notify.New(cfg.Notify.ResendAPIKey, cfg.Notify.From, cfg.Notify.To, logger),
	}
	d.Exporter = report.NewExporter(d.Layout, validator, logger)
	return d, nil
}

// InitPipeline connects the database and the model providers.
func (d *Dependencies) InitPipeline(ctx context.Context) error {
	if err := d.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := d.initDatabase(); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	d.Repo = repository.NewPostgresStatementRepository(d.DB.Pool)

	completer, err := d.initCompletion(ctx)
	if err != nil {
		return fmt.Errorf("failed to init completion: %w", err)
	}

	d.Pipeline = service.NewPipeline(
		d.Repo,
		extract.Default(d.Logger, d.Config.Paths.PdftotextPath),
		completer,
		d.Validator,
		d.Layout,
		service.Options{
			ArchiveSourcePDFs: d.Config.Pipeline.ArchiveSourcePDFs,
			UploadArtifacts:   d.Config.Pipeline.UploadArtifacts,
			AccountCacheTTL:   d.Config.Pipeline.AccountCacheTTL,
		},
		d.Logger,
	).WithMetrics(d.Metrics)

	if d.Config.Pipeline.UploadArtifacts {
		if err := d.InitStorage(ctx); err != nil {
			return err
		}
		d.Pipeline.WithUploader(d.Storage)
	}

	d.Logger.Info("pipeline initialized",
		slog.String("root", d.Layout.Root),
		slog.String("provider", d.Config.LLM.Provider),
	)
	return nil
}

// initDatabase opens the pool and applies pending migrations.
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:               d.Config.Database.DSN(),
		MaxConns:          10,
		MinConns:          1,
		MaxConnLifetime:   5 * time.Minute,
		MaxConnIdleTime:   10 * time.Minute,
		ApplicationName:   "statement-ingest",
		StatementTimeout:  30 * time.Second,
		MigrationsTimeout: time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initCompletion(ctx context.Context) (*completion.Adapter, error) {
	llm := d.Config.LLM

	var provider completion.Provider
	switch llm.Provider {
	case "gemini":
		g, err := completion.NewGemini(ctx, llm.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		provider = g
	default:
		provider = completion.NewOpenAI(llm.OpenAIAPIKey, llm.OpenAIBaseURL, llm.Timeout, d.Logger)
	}

	var limiter *rate.Limiter
	if llm.RequestsPerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(llm.RequestsPerMin)), 1)
	}

	adapter := completion.NewAdapter(
		completion.Model{Provider: provider, Name: llm.PrimaryModel},
		completion.Model{Provider: provider, Name: llm.FallbackModel},
		llm.Temperature,
		limiter,
		d.Logger,
	).WithObserver(d.Metrics.ObserveModelCall)
	return adapter, nil
}

// InitStorage connects the configured object storage backend.
func (d *Dependencies) InitStorage(ctx context.Context) error {
	if d.Storage != nil {
		return nil
	}
	s := d.Config.Storage
	store, err := storage.New(ctx, &storage.Config{
		Type:               storage.StorageType(s.Type),
		LocalPath:          s.LocalPath,
		S3Bucket:           s.S3Bucket,
		S3Region:           s.S3Region,
		S3AccessKeyID:      s.S3AccessKeyID,
		S3SecretAccessKey:  s.S3SecretAccessKey,
		S3Endpoint:         s.S3Endpoint,
		GCSBucket:          s.GCSBucket,
		GCSCredentialsFile: s.GCSCredentialsFile,
	})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.Storage = store
	d.Logger.Info("object storage ready", slog.String("type", s.Type))
	return nil
}

// Cleanup closes all resources.
func (d *Dependencies) Cleanup() {
	if c, ok := d.Storage.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			d.Logger.Warn("failed to close storage", slog.Any("error", err))
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Debug("cleanup completed")
}
