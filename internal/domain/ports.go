package domain

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Sink receives the entities of one ingest run. Upserts are keyed by the
// entity's natural key; a repeated key returns the stored row unchanged.
type Sink interface {
	UpsertCompany(ctx context.Context, name string) (Company, error)
	UpsertProduct(ctx context.Context, companyID uint, name string) (Product, error)
	UpsertStage(ctx context.Context, productID uint, name string) (Stage, error)
	UpsertTestProgram(ctx context.Context, stageID uint, name, revision string) (TestProgram, error)
	UpsertLot(ctx context.Context, value Lot) (Lot, error)
	FinishLot(ctx context.Context, lotID uint, finish *time.Time) error
	UpsertWafer(ctx context.Context, value Wafer) (Wafer, error)
	CloseWafer(ctx context.Context, waferID uint, value WaferClose) error
	UpsertSiteEquipment(ctx context.Context, value SiteEquipment) (SiteEquipment, error)
	UpsertTestSuite(ctx context.Context, testProgramID uint, name string) (TestSuite, error)
	UpsertTestDefinition(ctx context.Context, value TestDefinition) (TestDefinition, error)
	CreateDie(ctx context.Context, value Die) (Die, error)
	CreateBin(ctx context.Context, value Bin) (Bin, error)
	CreateTestItems(ctx context.Context, items []TestItem) (int64, error)
}

type TestDataRepository interface {
	Sink

	// WithinTx runs fn against a repository bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx TestDataRepository) error) error

	CreateImportRun(ctx context.Context, value ImportRun) error
	ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error)

	Overview(ctx context.Context) (Overview, error)
	ListLots(ctx context.Context, query string, limit int) ([]LotSummary, error)
	GetLotSummary(ctx context.Context, lotID uint) (LotSummary, error)
	BinSummary(ctx context.Context, lotID uint) ([]BinCount, error)
	FailPareto(ctx context.Context, lotID uint, limit int) ([]FailCount, error)
	SuiteItems(ctx context.Context, lotID uint) ([]SuiteItems, error)
	WaferYields(ctx context.Context, lotID uint) ([]WaferYield, error)
	ListSiteEquipment(ctx context.Context, lotID uint) ([]SiteEquipment, error)
	DeleteLot(ctx context.Context, lotID uint) error
}
