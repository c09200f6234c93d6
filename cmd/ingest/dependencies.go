package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/categorization"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/document"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/import/parser"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/handler"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/service"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ledger"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/config"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/db"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/llm"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/metrics"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/notify"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config  *config.Config
	DB      *db.DB
	Ledger  *sql.DB
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Repositories
	IngestRepo repository.Repository
	LedgerRepo *ledger.SQLiteRepository
	Blobs      storage.BlobStore

	// Services
	LLM           *llm.Client
	OCR           document.OCR
	Categorizer   *categorization.Service
	IngestService *service.IngestService
	SearchIndex   *ledger.SearchIndex

	// Handlers
	IngestHandler *handler.IngestHandler

	closers []func() error
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = metrics.New()
	}

	if err := deps.initDatabase(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase connects both stores and runs their migrations
func (d *Dependencies) initDatabase(ctx context.Context) error {
	database, err := db.New(ctx, db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        int32(d.Config.Database.MaxConns),
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	ledgerDB, err := db.OpenLedger(ctx, d.Config.Ledger.Path, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	d.Ledger = ledgerDB
	d.closers = append(d.closers, ledgerDB.Close)

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes the ingestion, ledger and blob stores
func (d *Dependencies) initRepositories(ctx context.Context) error {
	d.IngestRepo = repository.NewPostgresRepository(d.DB.Pool)
	d.LedgerRepo = ledger.NewSQLiteRepository(d.Ledger)

	blobs, err := storage.New(ctx, storage.Config{
		Type:      storage.StorageType(d.Config.Storage.Type),
		LocalPath: d.Config.Storage.LocalPath,
		GCSBucket: d.Config.Storage.GCSBucket,
	})
	if err != nil {
		return fmt.Errorf("failed to init blob storage: %w", err)
	}
	d.Blobs = blobs

	d.Logger.Info("repositories initialized", slog.String("storage", d.Config.Storage.Type))
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices(ctx context.Context) error {
	llmCfg := d.Config.LLM
	d.LLM = llm.NewClient(llm.Config{
		APIKey:     llmCfg.APIKey,
		APIBase:    llmCfg.APIBase,
		Model:      llmCfg.Model,
		Timeout:    llmCfg.Timeout,
		RatePerSec: llmCfg.RatePerSec,
		Retry: llm.RetryPolicy{
			MaxAttempts: llmCfg.MaxAttempts,
			Base:        llmCfg.BaseBackoff,
			Retryable:   llm.DefaultRetryPolicy().Retryable,
		},
	}, d.Logger, d.Metrics)

	normalizer := categorization.NewNormalizer(categorization.Categories, categorization.DefaultNormalizeThreshold)

	// The keyword rules run first; the model only sees what they miss.
	var fallback categorization.Fallback
	if llmCfg.Enabled() {
		fallback = llm.NewCategorizer(d.LLM, categorization.Categories, normalizer.Normalize)
	} else {
		d.Logger.Warn("LLM_API_KEY not set, llm extraction and categorization disabled")
	}
	d.Categorizer = categorization.NewService(
		categorization.NewEngine(categorization.DefaultRules),
		normalizer,
		fallback,
		d.Logger,
	)

	switch d.Config.OCR.Provider {
	case "vertex":
		ocr, err := document.NewVertexOCR(ctx,
			d.Config.OCR.ProjectID,
			d.Config.OCR.Region,
			d.Config.OCR.Model,
			d.Config.OCR.RatePerSec,
			d.Metrics,
		)
		if err != nil {
			return fmt.Errorf("failed to init vertex ocr: %w", err)
		}
		d.OCR = ocr
		d.closers = append(d.closers, ocr.Close)
	default:
		d.OCR = document.DisabledOCR{}
	}

	pdf := document.NewPDF(d.Config.OCR.MaxPages)
	notifier := notify.NewEmailNotifier(
		d.Config.Notify.ResendAPIKey,
		d.Config.Notify.FromEmail,
		d.Config.Notify.Reviewers,
		d.Config.Notify.ReviewURL,
		d.Logger,
	)

	svcDeps := service.Dependencies{
		Repo:           d.IngestRepo,
		Blobs:          d.Blobs,
		Ledger:         d.LedgerRepo,
		Tabular:        parser.NewTabular(),
		Text:           pdf,
		Pages:          pdf,
		OCR:            d.OCR,
		Categorizer:    d.Categorizer,
		Notifier:       notifier,
		OCRConcurrency: d.Config.OCR.Concurrency,
		Metrics:        d.Metrics,
		Logger:         d.Logger,
	}
	if llmCfg.Enabled() {
		svcDeps.Extractor = llm.NewExtractor(d.LLM)
	}
	d.IngestService = service.NewIngestService(svcDeps)

	index, err := ledger.NewSearchIndex()
	if err != nil {
		return fmt.Errorf("failed to init search index: %w", err)
	}
	d.SearchIndex = index
	d.closers = append(d.closers, index.Close)

	d.Logger.Info("services initialized",
		slog.Bool("llm", llmCfg.Enabled()),
		slog.String("ocr", d.Config.OCR.Provider),
	)
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.IngestHandler = handler.NewIngestHandler(
		d.IngestService,
		d.SearchIndex,
		d.Config.Pipeline.SweepLimit,
		int64(d.Config.Server.MaxUploadMB)<<20,
		d.Logger,
	)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Logger.Warn("close failed", slog.Any("error", err))
		}
	}
	d.closers = nil
	if d.DB != nil {
		d.DB.Close()
		d.DB = nil
	}
	d.Logger.Info("cleanup completed")
}
