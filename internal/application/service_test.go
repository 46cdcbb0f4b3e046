package application

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zxspring21/AISEMITEST/internal/adapters/db/gormstore"
	"github.com/zxspring21/AISEMITEST/internal/adapters/objectstore"
	"github.com/zxspring21/AISEMITEST/internal/domain"
	"github.com/zxspring21/AISEMITEST/internal/ingest"
	"github.com/zxspring21/AISEMITEST/internal/stdf"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*StoreService, *gormstore.Repository) {
	t.Helper()
	ctx := context.Background()
	db, err := gormstore.Open("sqlite:///" + filepath.Join(t.TempDir(), "stdf_test.db"))
	require.NoError(t, err)
	require.NoError(t, gormstore.RunMigrations(ctx, db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := gormstore.NewRepository(db)
	return NewStoreService(repo, objectstore.NewOpener(nil), zap.NewNop(), ingest.Overrides{Company: "Acme"}), repo
}

func lotFile(lot string) []stdf.Record {
	recs := []stdf.Record{
		stdf.MIR{StartTime: 1700000000, StationNum: stdf.Ptr(uint8(1)), BurnTime: stdf.Ptr(uint16(0)), LotID: lot, PartType: "PRODX", ModeCode: "P", JobName: "PROG", JobRev: "B2"},
		stdf.SDR{HeadNum: 1, SiteGroup: stdf.Ptr(uint8(1)), Sites: []uint8{1, 2}, HandlerID: "H1", CardID: "PC7"},
		stdf.WIR{HeadNum: 1, WaferID: "W01"},
	}
	for site := uint8(1); site <= 2; site++ {
		flag, bin := uint8(0), uint16(1)
		if site == 2 {
			flag, bin = 0x80, 5
		}
		partFlag := uint8(0)
		if site == 2 {
			partFlag = 0x08
		}
		recs = append(recs,
			stdf.PIR{HeadNum: 1, SiteNum: site},
			stdf.PTR{TestNum: 100, HeadNum: 1, SiteNum: site, TestFlag: stdf.Ptr(flag), ParmFlag: stdf.Ptr(uint8(0)), Result: stdf.Ptr(float32(1.2)), TestText: "VDD"},
			stdf.PRR{HeadNum: 1, SiteNum: site, PartFlag: partFlag, NumTest: 1, HardBin: stdf.Ptr(bin), SoftBin: stdf.Ptr(bin), XCoord: stdf.Ptr(int16(site)), YCoord: stdf.Ptr(int16(0))},
		)
	}
	return append(recs,
		stdf.WRR{
			HeadNum:     1,
			FinishTime:  1700000500,
			PartCount:   stdf.Ptr(uint32(2)),
			RetestCount: stdf.Ptr(uint32(0)),
			AbortCount:  stdf.Ptr(uint32(0)),
			GoodCount:   stdf.Ptr(uint32(1)),
			FuncCount:   stdf.Ptr(uint32(2)),
			WaferID:     "W01",
		},
		stdf.HBR{HeadNum: stdf.Ptr(uint8(255)), SiteNum: stdf.Ptr(uint8(255)), BinNum: stdf.Ptr(uint16(1)), BinCount: stdf.Ptr(uint32(1)), BinPF: "P", BinName: "PASS"},
		stdf.TSR{TestNum: stdf.Ptr(uint32(100)), ExecCount: stdf.Ptr(uint32(2)), FailCount: stdf.Ptr(uint32(1)), AlarmCount: stdf.Ptr(uint32(0)), TestName: "VDD", SeqName: "DC"},
		stdf.MRR{FinishTime: 1700000600},
	)
}

func encode(t *testing.T, recs []stdf.Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := stdf.NewWriter(&buf, nil)
	for _, rec := range recs {
		require.NoError(t, w.Write(rec))
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadCommitsFileAndImportRun(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	res, err := svc.Load(ctx, writeFile(t, "lot1.stdf", encode(t, lotFile("LOT1"))), ingest.Overrides{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.SHA256, 64)
	assert.Equal(t, int64(2), res.Stats.Dies)
	assert.Equal(t, int64(2), res.Stats.TestItems)
	require.Len(t, res.Stats.LotIDs, 1)

	report, err := svc.LotReport(ctx, res.Stats.LotIDs[0], 0)
	require.NoError(t, err)
	assert.Equal(t, "Acme", report.Summary.Company)
	assert.Equal(t, "PRODX", report.Summary.Product)
	assert.Equal(t, int64(2), report.Summary.DieCount)
	assert.Equal(t, int64(1), report.Summary.PassCount)
	assert.Equal(t, int64(1), report.Summary.FailCount)

	// HBR arrives after the parts, so names are not backfilled
	require.NotEmpty(t, report.Bins)
	assert.Equal(t, "Bin1", report.Bins[0].Name)

	require.Len(t, report.Pareto, 1)
	assert.Equal(t, int64(100), report.Pareto[0].TestNum)
	assert.Equal(t, int64(1), report.Pareto[0].Fails)

	require.Len(t, report.Suites, 1)
	assert.Equal(t, "", report.Suites[0].Suite, "suites declared after the parts are not linked")

	require.Len(t, report.Wafers, 1)
	assert.Equal(t, int64(2), report.Wafers[0].Dies)
	require.Len(t, report.Equipment, 1)
	assert.Equal(t, "PC7", report.Equipment[0].ProbeCardID)

	runs, err := svc.ImportRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, "lot1.stdf", runs[0].FileName)
	assert.Equal(t, res.Stats.LotIDs, runs[0].LotIDs)
}

func TestLoadReadsGzipSources(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(encode(t, lotFile("LOT1")))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	res, err := svc.Load(ctx, writeFile(t, "lot1.stdf.gz", buf.Bytes()), ingest.Overrides{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Stats.Dies)
}

func TestLoadMissingSource(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Load(context.Background(), filepath.Join(t.TempDir(), "missing.stdf"), ingest.Overrides{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingest.ErrSourceNotFound))
}

func TestLoadDirectoryIsSourceNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Load(context.Background(), t.TempDir(), ingest.Overrides{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingest.ErrSourceNotFound))
}

func TestLoadRollsBackTruncatedFile(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	data := encode(t, lotFile("LOT1"))
	_, err := svc.Load(ctx, writeFile(t, "cut.stdf", data[:len(data)-5]), ingest.Overrides{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingest.ErrDecode))

	overview, err := repo.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Overview{}, overview)

	runs, err := svc.ImportRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLoadTwiceAppendsDies(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	path := writeFile(t, "lot1.stdf", encode(t, lotFile("LOT1")))

	first, err := svc.Load(ctx, path, ingest.Overrides{})
	require.NoError(t, err)
	second, err := svc.Load(ctx, path, ingest.Overrides{})
	require.NoError(t, err)
	assert.Equal(t, first.Stats.LotIDs, second.Stats.LotIDs, "the lot is resolved by its natural key")
	assert.Equal(t, first.SHA256, second.SHA256)

	overview, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), overview.Lots)
	assert.Equal(t, int64(1), overview.Wafers)
	assert.Equal(t, int64(4), overview.Dies)
}

func TestOverridesFallBackToServiceDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	got := svc.merge(ingest.Overrides{Stage: "FT"})
	assert.Equal(t, ingest.Overrides{Company: "Acme", Stage: "FT"}, got)
}

func TestDeleteLot(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	res, err := svc.Load(ctx, writeFile(t, "lot1.stdf", encode(t, lotFile("LOT1"))), ingest.Overrides{})
	require.NoError(t, err)
	lotID := res.Stats.LotIDs[0]

	require.NoError(t, svc.DeleteLot(ctx, lotID))
	_, err = svc.GetLot(ctx, lotID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.True(t, errors.Is(svc.DeleteLot(ctx, lotID), domain.ErrNotFound))
	assert.Error(t, svc.DeleteLot(ctx, 0))
}
