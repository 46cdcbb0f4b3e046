package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zxspring21/AISEMITEST/internal/adapters/objectstore"
	"github.com/zxspring21/AISEMITEST/internal/domain"
	"github.com/zxspring21/AISEMITEST/internal/ingest"
	"github.com/zxspring21/AISEMITEST/internal/logging"
	"github.com/zxspring21/AISEMITEST/internal/metrics"
	"github.com/zxspring21/AISEMITEST/internal/stdf"
	"go.uber.org/zap"
)

// SourceOpener resolves a location to a readable STDF stream.
type SourceOpener interface {
	Open(ctx context.Context, location string) (*objectstore.Source, error)
}

type StoreService struct {
	repo     domain.TestDataRepository
	opener   SourceOpener
	logger   *zap.Logger
	metrics  *metrics.IngestMetrics
	defaults ingest.Overrides
}

type LoadResult struct {
	RunID    string        `json:"run_id"`
	Source   string        `json:"source"`
	SHA256   string        `json:"sha256"`
	Stats    ingest.Stats  `json:"stats"`
	Duration time.Duration `json:"duration"`
}

type LotReport struct {
	Summary   domain.LotSummary      `json:"summary"`
	Bins      []domain.BinCount      `json:"bins"`
	Pareto    []domain.FailCount     `json:"pareto"`
	Suites    []domain.SuiteItems    `json:"suites"`
	Wafers    []domain.WaferYield    `json:"wafers"`
	Equipment []domain.SiteEquipment `json:"equipment"`
}

// NewStoreService wires the store. defaults fill any override a Load call
// leaves empty.
func NewStoreService(repo domain.TestDataRepository, opener SourceOpener, logger *zap.Logger, defaults ingest.Overrides) *StoreService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreService{
		repo:     repo,
		opener:   opener,
		logger:   logger,
		metrics:  metrics.NewIngestMetrics(),
		defaults: defaults,
	}
}

// Load ingests one file in a single transaction. Either every entity of the
// file is committed together with its import run, or nothing is.
func (s *StoreService) Load(ctx context.Context, location string, overrides ingest.Overrides) (LoadResult, error) {
	if location == "" {
		return LoadResult{}, errors.New("source is required")
	}
	timer := metrics.NewTimer()
	result := LoadResult{RunID: uuid.NewString(), Source: location}
	log := logging.ForRun(s.logger, result.RunID, location)

	src, err := s.opener.Open(ctx, location)
	if err != nil {
		s.metrics.RecordLoad("failed", 0, timer.Duration())
		if errors.Is(err, objectstore.ErrNotFound) {
			return result, ingest.NewError(ingest.KindSourceNotFound, 0, err)
		}
		return result, err
	}
	defer src.Close()

	started := time.Now().UTC()
	err = s.repo.WithinTx(ctx, func(tx domain.TestDataRepository) error {
		loader := ingest.NewLoader(tx, log, s.merge(overrides))
		stats, err := loader.Run(ctx, stdf.NewReader(src))
		result.Stats = stats
		if err != nil {
			return err
		}

		sum, err := src.SHA256()
		if err != nil {
			return ingest.NewError(ingest.KindDecode, 0, err)
		}
		result.SHA256 = sum

		return tx.CreateImportRun(ctx, domain.ImportRun{
			ID:         result.RunID,
			Source:     location,
			FileName:   src.Name,
			SHA256:     sum,
			Records:    stats.Records,
			Dies:       stats.Dies,
			TestItems:  stats.TestItems,
			Warnings:   stats.WarningCount(),
			LotIDs:     stats.LotIDs,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
		})
	})
	result.Duration = timer.Duration()
	if err != nil {
		s.metrics.RecordLoad("failed", src.BytesRead(), result.Duration)
		log.Error("load rolled back", zap.Error(err), zap.Int64("records", result.Stats.Records))
		return result, err
	}

	s.metrics.RecordLoad("ok", src.BytesRead(), result.Duration)
	log.Info("load committed",
		zap.String("sha256", result.SHA256),
		zap.Bool("gzip", src.Compressed()),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (s *StoreService) merge(o ingest.Overrides) ingest.Overrides {
	if o.Company == "" {
		o.Company = s.defaults.Company
	}
	if o.Product == "" {
		o.Product = s.defaults.Product
	}
	if o.Stage == "" {
		o.Stage = s.defaults.Stage
	}
	return o
}

func (s *StoreService) Overview(ctx context.Context) (domain.Overview, error) {
	return s.repo.Overview(ctx)
}

func (s *StoreService) ListLots(ctx context.Context, query string, limit int) ([]domain.LotSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	return s.repo.ListLots(ctx, query, limit)
}

func (s *StoreService) GetLot(ctx context.Context, lotID uint) (domain.LotSummary, error) {
	if lotID == 0 {
		return domain.LotSummary{}, errors.New("lot id is required")
	}
	return s.repo.GetLotSummary(ctx, lotID)
}

func (s *StoreService) BinSummary(ctx context.Context, lotID uint) ([]domain.BinCount, error) {
	if lotID == 0 {
		return nil, errors.New("lot id is required")
	}
	return s.repo.BinSummary(ctx, lotID)
}

func (s *StoreService) FailPareto(ctx context.Context, lotID uint, limit int) ([]domain.FailCount, error) {
	if lotID == 0 {
		return nil, errors.New("lot id is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 500 {
		limit = 500
	}
	return s.repo.FailPareto(ctx, lotID, limit)
}

func (s *StoreService) SuiteItems(ctx context.Context, lotID uint) ([]domain.SuiteItems, error) {
	if lotID == 0 {
		return nil, errors.New("lot id is required")
	}
	return s.repo.SuiteItems(ctx, lotID)
}

func (s *StoreService) WaferYields(ctx context.Context, lotID uint) ([]domain.WaferYield, error) {
	if lotID == 0 {
		return nil, errors.New("lot id is required")
	}
	return s.repo.WaferYields(ctx, lotID)
}

func (s *StoreService) SiteEquipment(ctx context.Context, lotID uint) ([]domain.SiteEquipment, error) {
	if lotID == 0 {
		return nil, errors.New("lot id is required")
	}
	return s.repo.ListSiteEquipment(ctx, lotID)
}

// LotReport gathers every per-lot report in one call.
func (s *StoreService) LotReport(ctx context.Context, lotID uint, paretoLimit int) (LotReport, error) {
	var (
		report LotReport
		err    error
	)
	if report.Summary, err = s.GetLot(ctx, lotID); err != nil {
		return report, err
	}
	if report.Bins, err = s.BinSummary(ctx, lotID); err != nil {
		return report, err
	}
	if report.Pareto, err = s.FailPareto(ctx, lotID, paretoLimit); err != nil {
		return report, err
	}
	if report.Suites, err = s.SuiteItems(ctx, lotID); err != nil {
		return report, err
	}
	if report.Wafers, err = s.WaferYields(ctx, lotID); err != nil {
		return report, err
	}
	if report.Equipment, err = s.SiteEquipment(ctx, lotID); err != nil {
		return report, err
	}
	return report, nil
}

func (s *StoreService) DeleteLot(ctx context.Context, lotID uint) error {
	if lotID == 0 {
		return errors.New("lot id is required")
	}
	if err := s.repo.DeleteLot(ctx, lotID); err != nil {
		return err
	}
	s.logger.Info("lot deleted", zap.Uint("lot_id", lotID))
	return nil
}

func (s *StoreService) ImportRuns(ctx context.Context, limit int) ([]domain.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return s.repo.ListImportRuns(ctx, limit)
}
