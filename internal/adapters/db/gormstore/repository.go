package gormstore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/zxspring21/AISEMITEST/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const itemBatchSize = 500

type Repository struct {
	db *gorm.DB
}

var _ domain.TestDataRepository = (*Repository)(nil)

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(tx domain.TestDataRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// firstOrInsert loads the row matching conds into dest, inserting dest when no
// such row exists. A concurrent insert of the same key is absorbed by
// ON CONFLICT DO NOTHING followed by a re-read.
func (r *Repository) firstOrInsert(ctx context.Context, dest any, conds map[string]any) error {
	q := r.db.WithContext(ctx)
	err := q.Where(conds).Take(dest).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	res := q.Clauses(clause.OnConflict{DoNothing: true}).Create(dest)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return q.Where(conds).Take(dest).Error
	}
	return nil
}

func (r *Repository) UpsertCompany(ctx context.Context, name string) (domain.Company, error) {
	m := CompanyModel{Name: name}
	if err := r.firstOrInsert(ctx, &m, map[string]any{"name": name}); err != nil {
		return domain.Company{}, errors.Wrapf(err, "upsert company %q", name)
	}
	return domain.Company{ID: m.ID, Name: m.Name}, nil
}

func (r *Repository) UpsertProduct(ctx context.Context, companyID uint, name string) (domain.Product, error) {
	m := ProductModel{CompanyID: companyID, Name: name}
	if err := r.firstOrInsert(ctx, &m, map[string]any{"company_id": companyID, "name": name}); err != nil {
		return domain.Product{}, errors.Wrapf(err, "upsert product %q", name)
	}
	return domain.Product{ID: m.ID, CompanyID: m.CompanyID, Name: m.Name}, nil
}

func (r *Repository) UpsertStage(ctx context.Context, productID uint, name string) (domain.Stage, error) {
	m := StageModel{ProductID: productID, Name: name}
	if err := r.firstOrInsert(ctx, &m, map[string]any{"product_id": productID, "name": name}); err != nil {
		return domain.Stage{}, errors.Wrapf(err, "upsert stage %q", name)
	}
	return domain.Stage{ID: m.ID, ProductID: m.ProductID, Name: m.Name}, nil
}

func (r *Repository) UpsertTestProgram(ctx context.Context, stageID uint, name, revision string) (domain.TestProgram, error) {
	m := TestProgramModel{StageID: stageID, Name: name, Revision: revision}
	conds := map[string]any{"stage_id": stageID, "name": name, "revision": revision}
	if err := r.firstOrInsert(ctx, &m, conds); err != nil {
		return domain.TestProgram{}, errors.Wrapf(err, "upsert test program %q rev %q", name, revision)
	}
	return domain.TestProgram{ID: m.ID, StageID: m.StageID, Name: m.Name, Revision: m.Revision}, nil
}

// UpsertLot stores the lot attributes only when the lot is new.
func (r *Repository) UpsertLot(ctx context.Context, value domain.Lot) (domain.Lot, error) {
	m := LotModel{
		TestProgramID: value.TestProgramID,
		Identifier:    value.Identifier,
		PartType:      value.PartType,
		SetupTime:     value.SetupTime,
		StartTime:     value.StartTime,
		FinishTime:    value.FinishTime,
		TesterType:    value.TesterType,
		NodeName:      value.NodeName,
		Facility:      value.Facility,
		Floor:         value.Floor,
		StationNum:    value.StationNum,
		ExecType:      value.ExecType,
		ExecVersion:   value.ExecVersion,
		Sublot:        value.Sublot,
		Operator:      value.Operator,
		TestTemp:      value.TestTemp,
	}
	conds := map[string]any{"test_program_id": value.TestProgramID, "identifier": value.Identifier}
	if err := r.firstOrInsert(ctx, &m, conds); err != nil {
		return domain.Lot{}, errors.Wrapf(err, "upsert lot %q", value.Identifier)
	}
	return toDomainLot(m), nil
}

func (r *Repository) FinishLot(ctx context.Context, lotID uint, finish *time.Time) error {
	err := r.db.WithContext(ctx).Model(&LotModel{}).
		Where("id = ?", lotID).
		Update("finish_time", finish).Error
	return errors.Wrap(err, "finish lot")
}

func (r *Repository) UpsertWafer(ctx context.Context, value domain.Wafer) (domain.Wafer, error) {
	m := WaferModel{
		LotID:      value.LotID,
		Identifier: value.Identifier,
		HeadNum:    value.HeadNum,
		SiteGroup:  value.SiteGroup,
		StartTime:  value.StartTime,
	}
	conds := map[string]any{"lot_id": value.LotID, "identifier": value.Identifier, "head_num": value.HeadNum}
	if err := r.firstOrInsert(ctx, &m, conds); err != nil {
		return domain.Wafer{}, errors.Wrapf(err, "upsert wafer %q", value.Identifier)
	}
	return toDomainWafer(m), nil
}

// CloseWafer always writes the finish time and only the counts that are set.
func (r *Repository) CloseWafer(ctx context.Context, waferID uint, value domain.WaferClose) error {
	updates := map[string]any{"finish_time": value.FinishTime}
	for col, v := range map[string]*int64{
		"part_count":   value.PartCount,
		"good_count":   value.GoodCount,
		"retest_count": value.RetestCount,
		"abort_count":  value.AbortCount,
		"func_count":   value.FuncCount,
	} {
		if v != nil {
			updates[col] = *v
		}
	}
	err := r.db.WithContext(ctx).Model(&WaferModel{}).Where("id = ?", waferID).Updates(updates).Error
	return errors.Wrap(err, "close wafer")
}

func (r *Repository) UpsertSiteEquipment(ctx context.Context, value domain.SiteEquipment) (domain.SiteEquipment, error) {
	m := SiteEquipmentModel{
		LotID:         value.LotID,
		HeadNum:       value.HeadNum,
		SiteGroup:     value.SiteGroup,
		HandlerType:   value.HandlerType,
		HandlerID:     value.HandlerID,
		ProbeCardType: value.ProbeCardType,
		ProbeCardID:   value.ProbeCardID,
		LoadBoardType: value.LoadBoardType,
		LoadBoardID:   value.LoadBoardID,
		DIBType:       value.DIBType,
		DIBID:         value.DIBID,
		CableType:     value.CableType,
		CableID:       value.CableID,
		ContactorType: value.ContactorType,
		ContactorID:   value.ContactorID,
	}
	conds := map[string]any{"lot_id": value.LotID, "head_num": value.HeadNum, "site_group": value.SiteGroup}
	if err := r.firstOrInsert(ctx, &m, conds); err != nil {
		return domain.SiteEquipment{}, errors.Wrap(err, "upsert site equipment")
	}
	return toDomainEquipment(m), nil
}

func (r *Repository) UpsertTestSuite(ctx context.Context, testProgramID uint, name string) (domain.TestSuite, error) {
	m := TestSuiteModel{TestProgramID: testProgramID, Name: name}
	if err := r.firstOrInsert(ctx, &m, map[string]any{"test_program_id": testProgramID, "name": name}); err != nil {
		return domain.TestSuite{}, errors.Wrapf(err, "upsert test suite %q", name)
	}
	return domain.TestSuite{ID: m.ID, TestProgramID: m.TestProgramID, Name: m.Name}, nil
}

// UpsertTestDefinition keeps the first definition seen for a test number.
func (r *Repository) UpsertTestDefinition(ctx context.Context, value domain.TestDefinition) (domain.TestDefinition, error) {
	m := TestDefinitionModel{
		TestProgramID: value.TestProgramID,
		TestSuiteID:   value.TestSuiteID,
		TestNum:       value.TestNum,
		TestType:      value.TestType,
		Name:          value.Name,
		Label:         value.Label,
		ExecCount:     value.ExecCount,
		FailCount:     value.FailCount,
		AlarmCount:    value.AlarmCount,
	}
	conds := map[string]any{"test_program_id": value.TestProgramID, "test_num": value.TestNum}
	if err := r.firstOrInsert(ctx, &m, conds); err != nil {
		return domain.TestDefinition{}, errors.Wrapf(err, "upsert test definition %d", value.TestNum)
	}
	return domain.TestDefinition{
		ID:            m.ID,
		TestProgramID: m.TestProgramID,
		TestSuiteID:   m.TestSuiteID,
		TestNum:       m.TestNum,
		TestType:      m.TestType,
		Name:          m.Name,
		Label:         m.Label,
		ExecCount:     m.ExecCount,
		FailCount:     m.FailCount,
		AlarmCount:    m.AlarmCount,
	}, nil
}

func (r *Repository) CreateDie(ctx context.Context, value domain.Die) (domain.Die, error) {
	m := DieModel{
		LotID:      value.LotID,
		WaferID:    value.WaferID,
		HeadNum:    value.HeadNum,
		SiteNum:    value.SiteNum,
		X:          value.X,
		Y:          value.Y,
		PartID:     value.PartID,
		PartText:   value.PartText,
		HardBin:    value.HardBin,
		SoftBin:    value.SoftBin,
		PartFlag:   value.PartFlag,
		Passed:     value.Passed,
		NumTests:   value.NumTests,
		TestTimeMS: value.TestTimeMS,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Die{}, errors.Wrap(err, "create die")
	}
	value.ID = m.ID
	return value, nil
}

func (r *Repository) CreateBin(ctx context.Context, value domain.Bin) (domain.Bin, error) {
	m := BinModel{
		DieID:       value.DieID,
		HardBin:     value.HardBin,
		SoftBin:     value.SoftBin,
		HardBinName: value.HardBinName,
		SoftBinName: value.SoftBinName,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Bin{}, errors.Wrap(err, "create bin")
	}
	value.ID = m.ID
	return value, nil
}

// CreateTestItems inserts items in batches. An item whose (die, test number,
// type) already exists is skipped; the returned count excludes it.
func (r *Repository) CreateTestItems(ctx context.Context, items []domain.TestItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	rows := make([]TestItemModel, 0, len(items))
	for _, it := range items {
		rows = append(rows, TestItemModel{
			DieID:       it.DieID,
			TestSuiteID: it.TestSuiteID,
			TestNum:     it.TestNum,
			TestType:    it.TestType,
			TestText:    it.TestText,
			Result:      it.Result,
			Units:       it.Units,
			LoLimit:     it.LoLimit,
			HiLimit:     it.HiLimit,
			Failed:      it.Failed,
		})
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, itemBatchSize)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "create test items")
	}
	return res.RowsAffected, nil
}

func (r *Repository) CreateImportRun(ctx context.Context, value domain.ImportRun) error {
	ids := make([]string, 0, len(value.LotIDs))
	for _, id := range value.LotIDs {
		ids = append(ids, strconv.FormatUint(uint64(id), 10))
	}
	m := ImportRunModel{
		ID:         value.ID,
		Source:     value.Source,
		FileName:   value.FileName,
		SHA256:     value.SHA256,
		Records:    value.Records,
		Dies:       value.Dies,
		TestItems:  value.TestItems,
		Warnings:   value.Warnings,
		LotIDs:     strings.Join(ids, ","),
		StartedAt:  value.StartedAt,
		FinishedAt: value.FinishedAt,
	}
	return errors.Wrap(r.db.WithContext(ctx).Create(&m).Error, "create import run")
}

func (r *Repository) ListImportRuns(ctx context.Context, limit int) ([]domain.ImportRun, error) {
	rows := make([]ImportRunModel, 0)
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]domain.ImportRun, 0, len(rows))
	for _, m := range rows {
		run := domain.ImportRun{
			ID:         m.ID,
			Source:     m.Source,
			FileName:   m.FileName,
			SHA256:     m.SHA256,
			Records:    m.Records,
			Dies:       m.Dies,
			TestItems:  m.TestItems,
			Warnings:   m.Warnings,
			StartedAt:  m.StartedAt,
			FinishedAt: m.FinishedAt,
		}
		for _, s := range strings.Split(m.LotIDs, ",") {
			if id, err := strconv.ParseUint(s, 10, 64); err == nil {
				run.LotIDs = append(run.LotIDs, uint(id))
			}
		}
		result = append(result, run)
	}
	return result, nil
}

// DeleteLot removes a lot with its wafers, dies, bins, test items and site
// equipment. Test suites and definitions belong to the test program: they are
// removed with the last lot of that program and kept while any other lot of it
// remains.
func (r *Repository) DeleteLot(ctx context.Context, lotID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lot LotModel
		if err := tx.Take(&lot, lotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(domain.ErrNotFound, "lot %d", lotID)
			}
			return err
		}

		dies := tx.Model(&DieModel{}).Select("id").Where("lot_id = ?", lotID)
		steps := []struct {
			what string
			run  func() error
		}{
			{"test items", func() error { return tx.Where("die_id IN (?)", dies).Delete(&TestItemModel{}).Error }},
			{"bins", func() error { return tx.Where("die_id IN (?)", dies).Delete(&BinModel{}).Error }},
			{"dies", func() error { return tx.Where("lot_id = ?", lotID).Delete(&DieModel{}).Error }},
			{"wafers", func() error { return tx.Where("lot_id = ?", lotID).Delete(&WaferModel{}).Error }},
			{"site equipment", func() error { return tx.Where("lot_id = ?", lotID).Delete(&SiteEquipmentModel{}).Error }},
			{"lot", func() error { return tx.Delete(&LotModel{}, lotID).Error }},
		}
		for _, step := range steps {
			if err := step.run(); err != nil {
				return errors.Wrapf(err, "delete %s of lot %d", step.what, lotID)
			}
		}

		var remaining int64
		if err := tx.Model(&LotModel{}).Where("test_program_id = ?", lot.TestProgramID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		if err := tx.Where("test_program_id = ?", lot.TestProgramID).Delete(&TestDefinitionModel{}).Error; err != nil {
			return errors.Wrap(err, "delete test definitions")
		}
		return errors.Wrap(tx.Where("test_program_id = ?", lot.TestProgramID).Delete(&TestSuiteModel{}).Error, "delete test suites")
	})
}

func toDomainLot(m LotModel) domain.Lot {
	return domain.Lot{
		ID:            m.ID,
		TestProgramID: m.TestProgramID,
		Identifier:    m.Identifier,
		PartType:      m.PartType,
		SetupTime:     m.SetupTime,
		StartTime:     m.StartTime,
		FinishTime:    m.FinishTime,
		TesterType:    m.TesterType,
		NodeName:      m.NodeName,
		Facility:      m.Facility,
		Floor:         m.Floor,
		StationNum:    m.StationNum,
		ExecType:      m.ExecType,
		ExecVersion:   m.ExecVersion,
		Sublot:        m.Sublot,
		Operator:      m.Operator,
		TestTemp:      m.TestTemp,
		CreatedAt:     m.CreatedAt,
	}
}

func toDomainWafer(m WaferModel) domain.Wafer {
	return domain.Wafer{
		ID:          m.ID,
		LotID:       m.LotID,
		Identifier:  m.Identifier,
		HeadNum:     m.HeadNum,
		SiteGroup:   m.SiteGroup,
		StartTime:   m.StartTime,
		FinishTime:  m.FinishTime,
		PartCount:   m.PartCount,
		GoodCount:   m.GoodCount,
		RetestCount: m.RetestCount,
		AbortCount:  m.AbortCount,
		FuncCount:   m.FuncCount,
	}
}

func toDomainEquipment(m SiteEquipmentModel) domain.SiteEquipment {
	return domain.SiteEquipment{
		ID:            m.ID,
		LotID:         m.LotID,
		HeadNum:       m.HeadNum,
		SiteGroup:     m.SiteGroup,
		HandlerType:   m.HandlerType,
		HandlerID:     m.HandlerID,
		ProbeCardType: m.ProbeCardType,
		ProbeCardID:   m.ProbeCardID,
		LoadBoardType: m.LoadBoardType,
		LoadBoardID:   m.LoadBoardID,
		DIBType:       m.DIBType,
		DIBID:         m.DIBID,
		CableType:     m.CableType,
		CableID:       m.CableID,
		ContactorType: m.ContactorType,
		ContactorID:   m.ContactorID,
	}
}
