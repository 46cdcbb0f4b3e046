package main

import (
	"context"

	"github.com/zxspring21/AISEMITEST/internal/adapters/db/gormstore"
	"github.com/zxspring21/AISEMITEST/internal/adapters/objectstore"
	"github.com/zxspring21/AISEMITEST/internal/application"
	"github.com/zxspring21/AISEMITEST/internal/config"
	"github.com/zxspring21/AISEMITEST/internal/domain"
	"github.com/zxspring21/AISEMITEST/internal/ingest"
	"go.uber.org/zap"
)

// backend is what the CLI commands run against: the store itself, or a
// server started with "stdfdb serve".
type backend interface {
	Load(ctx context.Context, source string, o ingest.Overrides) (application.LoadResult, error)
	Overview(ctx context.Context) (domain.Overview, error)
	ListLots(ctx context.Context, query string, limit int) ([]domain.LotSummary, error)
	GetLot(ctx context.Context, lotID uint) (domain.LotSummary, error)
	DeleteLot(ctx context.Context, lotID uint) error
	BinSummary(ctx context.Context, lotID uint) ([]domain.BinCount, error)
	FailPareto(ctx context.Context, lotID uint, limit int) ([]domain.FailCount, error)
	SuiteItems(ctx context.Context, lotID uint) ([]domain.SuiteItems, error)
	WaferYields(ctx context.Context, lotID uint) ([]domain.WaferYield, error)
	SiteEquipment(ctx context.Context, lotID uint) ([]domain.SiteEquipment, error)
	ImportRuns(ctx context.Context, limit int) ([]domain.ImportRun, error)
}

var (
	_ backend = (*application.StoreService)(nil)
	_ backend = (*remoteBackend)(nil)
)

// openService opens the database, applies pending migrations and wires the
// source opener. The returned close func releases the connection pool.
func openService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application.StoreService, func(), error) {
	db, err := gormstore.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := gormstore.RunMigrations(ctx, db); err != nil {
		closeDB()
		return nil, nil, err
	}

	client, err := objectstore.NewS3Client(ctx, cfg.S3)
	if err != nil {
		closeDB()
		return nil, nil, err
	}

	svc := application.NewStoreService(
		gormstore.NewRepository(db),
		objectstore.NewOpener(client),
		logger,
		ingest.Overrides{
			Company: cfg.Defaults.Company,
			Product: cfg.Defaults.Product,
			Stage:   cfg.Defaults.Stage,
		},
	)
	return svc, closeDB, nil
}

// selectBackend returns the remote API when a server is configured, else the
// local store.
func selectBackend(ctx context.Context, cfg *config.Config, server string, logger *zap.Logger) (backend, func(), error) {
	if server != "" {
		return &remoteBackend{client: newAPIClient(server)}, func() {}, nil
	}
	return openService(ctx, cfg, logger)
}
