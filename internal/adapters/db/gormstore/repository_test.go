package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zxspring21/AISEMITEST/internal/domain"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "stdf_test.db")

	db, err := Open("sqlite:///" + dbPath)
	require.NoError(t, err, "open db")
	require.NoError(t, RunMigrations(ctx, db), "run migrations")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewRepository(db)
}

type fixture struct {
	program domain.TestProgram
	lot     domain.Lot
}

func seedLot(t *testing.T, repo *Repository, lotID string) fixture {
	t.Helper()
	ctx := context.Background()
	company, err := repo.UpsertCompany(ctx, "Acme")
	require.NoError(t, err)
	product, err := repo.UpsertProduct(ctx, company.ID, "PRODX")
	require.NoError(t, err)
	stage, err := repo.UpsertStage(ctx, product.ID, "P")
	require.NoError(t, err)
	program, err := repo.UpsertTestProgram(ctx, stage.ID, "PROG", "B2")
	require.NoError(t, err)
	lot, err := repo.UpsertLot(ctx, domain.Lot{TestProgramID: program.ID, Identifier: lotID, TesterType: "V93K"})
	require.NoError(t, err)
	return fixture{program: program, lot: lot}
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	first := seedLot(t, repo, "LOT1")
	second := seedLot(t, repo, "LOT1")
	assert.Equal(t, first.program.ID, second.program.ID)
	assert.Equal(t, first.lot.ID, second.lot.ID)

	again, err := repo.UpsertLot(ctx, domain.Lot{TestProgramID: first.program.ID, Identifier: "LOT1", TesterType: "J750"})
	require.NoError(t, err)
	assert.Equal(t, first.lot.ID, again.ID)
	assert.Equal(t, "V93K", again.TesterType, "attributes of an existing lot are kept")

	w1, err := repo.UpsertWafer(ctx, domain.Wafer{LotID: first.lot.ID, Identifier: "W01", HeadNum: 1, SiteGroup: 0})
	require.NoError(t, err)
	w2, err := repo.UpsertWafer(ctx, domain.Wafer{LotID: first.lot.ID, Identifier: "W01", HeadNum: 1, SiteGroup: 255})
	require.NoError(t, err)
	assert.Equal(t, w1.ID, w2.ID)
	assert.Equal(t, 0, w2.SiteGroup)

	overview, err := repo.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), overview.Companies)
	assert.Equal(t, int64(1), overview.Lots)
	assert.Equal(t, int64(1), overview.Wafers)
}

func TestTestDefinitionKeepsFirstSuite(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	fx := seedLot(t, repo, "LOT1")

	power, err := repo.UpsertTestSuite(ctx, fx.program.ID, "power")
	require.NoError(t, err)
	scan, err := repo.UpsertTestSuite(ctx, fx.program.ID, "scan")
	require.NoError(t, err)

	def, err := repo.UpsertTestDefinition(ctx, domain.TestDefinition{TestProgramID: fx.program.ID, TestSuiteID: &power.ID, TestNum: 100, Name: "VDD"})
	require.NoError(t, err)
	again, err := repo.UpsertTestDefinition(ctx, domain.TestDefinition{TestProgramID: fx.program.ID, TestSuiteID: &scan.ID, TestNum: 100, Name: "OTHER"})
	require.NoError(t, err)
	assert.Equal(t, def.ID, again.ID)
	require.NotNil(t, again.TestSuiteID)
	assert.Equal(t, power.ID, *again.TestSuiteID)
	assert.Equal(t, "VDD", again.Name)
}

func TestCreateTestItemsSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	fx := seedLot(t, repo, "LOT1")

	die, err := repo.CreateDie(ctx, domain.Die{LotID: fx.lot.ID, HeadNum: 1, SiteNum: 1})
	require.NoError(t, err)

	one := 1.0
	n, err := repo.CreateTestItems(ctx, []domain.TestItem{
		{DieID: die.ID, TestNum: 1, TestType: domain.TestTypeParametric, Result: &one},
		{DieID: die.ID, TestNum: 1, TestType: domain.TestTypeFunctional},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.CreateTestItems(ctx, []domain.TestItem{{DieID: die.ID, TestNum: 1, TestType: domain.TestTypeParametric}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestWithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	boom := errors.New("boom")
	err := repo.WithinTx(ctx, func(tx domain.TestDataRepository) error {
		if _, err := tx.UpsertCompany(ctx, "Rolled"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	overview, err := repo.Overview(ctx)
	require.NoError(t, err)
	assert.Zero(t, overview.Companies)
}

func TestReportsAndDeleteLot(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	fx := seedLot(t, repo, "LOT1")
	other := seedLot(t, repo, "LOT2")

	suite, err := repo.UpsertTestSuite(ctx, fx.program.ID, "power")
	require.NoError(t, err)
	_, err = repo.UpsertTestDefinition(ctx, domain.TestDefinition{TestProgramID: fx.program.ID, TestSuiteID: &suite.ID, TestNum: 100})
	require.NoError(t, err)

	wafer, err := repo.UpsertWafer(ctx, domain.Wafer{LotID: fx.lot.ID, Identifier: "W01", HeadNum: 1, SiteGroup: 255})
	require.NoError(t, err)
	finish := time.Unix(1700000300, 0).UTC()
	parts, good := int64(2), int64(1)
	require.NoError(t, repo.CloseWafer(ctx, wafer.ID, domain.WaferClose{FinishTime: &finish, PartCount: &parts, GoodCount: &good}))
	_, err = repo.UpsertSiteEquipment(ctx, domain.SiteEquipment{LotID: fx.lot.ID, HeadNum: 1, SiteGroup: 1, ProbeCardID: "PC-01"})
	require.NoError(t, err)

	pass, fail := true, false
	failed, passed := true, false
	for i, ok := range []bool{true, false} {
		state := &pass
		hard := 1
		if !ok {
			state = &fail
			hard = 5
		}
		die, err := repo.CreateDie(ctx, domain.Die{LotID: fx.lot.ID, WaferID: &wafer.ID, HeadNum: 1, SiteNum: i + 1, HardBin: &hard, Passed: state})
		require.NoError(t, err)
		_, err = repo.CreateBin(ctx, domain.Bin{DieID: die.ID, HardBin: hard, HardBinName: map[int]string{1: "PASS", 5: "OPEN"}[hard]})
		require.NoError(t, err)
		flag := &passed
		if !ok {
			flag = &failed
		}
		_, err = repo.CreateTestItems(ctx, []domain.TestItem{
			{DieID: die.ID, TestNum: 100, TestType: domain.TestTypeParametric, TestText: "VDD", TestSuiteID: &suite.ID, Failed: flag},
			{DieID: die.ID, TestNum: 200, TestType: domain.TestTypeFunctional, TestText: "SCAN", Failed: &passed},
		})
		require.NoError(t, err)
	}
	_, err = repo.CreateDie(ctx, domain.Die{LotID: other.lot.ID, HeadNum: 1, SiteNum: 1})
	require.NoError(t, err)

	summary, err := repo.GetLotSummary(ctx, fx.lot.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", summary.Company)
	assert.Equal(t, int64(1), summary.WaferCount)
	assert.Equal(t, int64(2), summary.DieCount)
	assert.Equal(t, int64(1), summary.PassCount)
	assert.Equal(t, int64(1), summary.FailCount)
	assert.Equal(t, int64(4), summary.TestItems)

	lots, err := repo.ListLots(ctx, "LOT", 10)
	require.NoError(t, err)
	assert.Len(t, lots, 2)

	bins, err := repo.BinSummary(ctx, fx.lot.ID)
	require.NoError(t, err)
	require.Len(t, bins, 2)
	assert.Equal(t, domain.BinCount{Kind: "hard", Bin: 1, Name: "PASS", Count: 1}, bins[0])
	assert.Equal(t, domain.BinCount{Kind: "hard", Bin: 5, Name: "OPEN", Count: 1}, bins[1])

	pareto, err := repo.FailPareto(ctx, fx.lot.ID, 10)
	require.NoError(t, err)
	require.Len(t, pareto, 1)
	assert.Equal(t, int64(100), pareto[0].TestNum)
	assert.Equal(t, "power", pareto[0].Suite)
	assert.Equal(t, int64(1), pareto[0].Fails)
	assert.Equal(t, int64(2), pareto[0].Executed)

	suites, err := repo.SuiteItems(ctx, fx.lot.ID)
	require.NoError(t, err)
	require.Len(t, suites, 2)
	assert.Equal(t, "", suites[0].Suite)
	assert.Equal(t, "power", suites[1].Suite)
	assert.Equal(t, int64(2), suites[1].Tests[0].Count)

	yields, err := repo.WaferYields(ctx, fx.lot.ID)
	require.NoError(t, err)
	require.Len(t, yields, 1)
	assert.Equal(t, int64(2), yields[0].Dies)
	assert.Equal(t, int64(1), yields[0].Pass)
	require.NotNil(t, yields[0].Wafer.PartCount)
	assert.Equal(t, int64(2), *yields[0].Wafer.PartCount)
	assert.Nil(t, yields[0].Wafer.RetestCount)

	require.NoError(t, repo.DeleteLot(ctx, fx.lot.ID))
	_, err = repo.GetLotSummary(ctx, fx.lot.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	overview, err := repo.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), overview.Lots)
	assert.Equal(t, int64(1), overview.Dies)
	assert.Zero(t, overview.Wafers)
	assert.Zero(t, overview.TestItems)

	// LOT2 still uses the program, so its suites survive.
	var suiteCount int64
	require.NoError(t, repo.db.Model(&TestSuiteModel{}).Count(&suiteCount).Error)
	assert.Equal(t, int64(1), suiteCount)

	require.NoError(t, repo.DeleteLot(ctx, other.lot.ID))
	require.NoError(t, repo.db.Model(&TestSuiteModel{}).Count(&suiteCount).Error)
	assert.Zero(t, suiteCount)
	var defCount int64
	require.NoError(t, repo.db.Model(&TestDefinitionModel{}).Count(&defCount).Error)
	assert.Zero(t, defCount)

	assert.ErrorIs(t, repo.DeleteLot(ctx, fx.lot.ID), domain.ErrNotFound)
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "stdf_data.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", sqliteDSN("sqlite://stdf_data.db"))
	assert.Equal(t, "stdf_data.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", sqliteDSN("sqlite:///stdf_data.db"))
	assert.Equal(t, "/tmp/x.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", sqliteDSN("sqlite:////tmp/x.db"))
	assert.Equal(t, "file.db?mode=ro", sqliteDSN("file.db?mode=ro"))
}
