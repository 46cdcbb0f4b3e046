package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/zxspring21/AISEMITEST/internal/domain"
)

// memSink keeps everything a loader writes so tests can inspect it without a
// database.
type memSink struct {
	nextID uint
	keys   map[string]uint

	companies map[uint]domain.Company
	products  map[uint]domain.Product
	stages    map[uint]domain.Stage
	programs  map[uint]domain.TestProgram
	lots      map[uint]domain.Lot
	wafers    map[uint]domain.Wafer
	suites    map[uint]domain.TestSuite
	defs      map[string]domain.TestDefinition

	equipment []domain.SiteEquipment
	dies      []domain.Die
	bins      []domain.Bin
	items     []domain.TestItem
}

func newMemSink() *memSink {
	return &memSink{
		keys:      map[string]uint{},
		companies: map[uint]domain.Company{},
		products:  map[uint]domain.Product{},
		stages:    map[uint]domain.Stage{},
		programs:  map[uint]domain.TestProgram{},
		lots:      map[uint]domain.Lot{},
		wafers:    map[uint]domain.Wafer{},
		suites:    map[uint]domain.TestSuite{},
		defs:      map[string]domain.TestDefinition{},
	}
}

// id returns the id stored under key and whether it had to be allocated.
func (s *memSink) id(key string) (uint, bool) {
	if id, ok := s.keys[key]; ok {
		return id, false
	}
	s.nextID++
	s.keys[key] = s.nextID
	return s.nextID, true
}

func (s *memSink) UpsertCompany(_ context.Context, name string) (domain.Company, error) {
	id, created := s.id("company|" + name)
	if created {
		s.companies[id] = domain.Company{ID: id, Name: name}
	}
	return s.companies[id], nil
}

func (s *memSink) UpsertProduct(_ context.Context, companyID uint, name string) (domain.Product, error) {
	id, created := s.id(fmt.Sprintf("product|%d|%s", companyID, name))
	if created {
		s.products[id] = domain.Product{ID: id, CompanyID: companyID, Name: name}
	}
	return s.products[id], nil
}

func (s *memSink) UpsertStage(_ context.Context, productID uint, name string) (domain.Stage, error) {
	id, created := s.id(fmt.Sprintf("stage|%d|%s", productID, name))
	if created {
		s.stages[id] = domain.Stage{ID: id, ProductID: productID, Name: name}
	}
	return s.stages[id], nil
}

func (s *memSink) UpsertTestProgram(_ context.Context, stageID uint, name, revision string) (domain.TestProgram, error) {
	id, created := s.id(fmt.Sprintf("program|%d|%s|%s", stageID, name, revision))
	if created {
		s.programs[id] = domain.TestProgram{ID: id, StageID: stageID, Name: name, Revision: revision}
	}
	return s.programs[id], nil
}

func (s *memSink) UpsertLot(_ context.Context, value domain.Lot) (domain.Lot, error) {
	id, created := s.id(fmt.Sprintf("lot|%d|%s", value.TestProgramID, value.Identifier))
	if created {
		value.ID = id
		s.lots[id] = value
	}
	return s.lots[id], nil
}

func (s *memSink) FinishLot(_ context.Context, lotID uint, finish *time.Time) error {
	lot := s.lots[lotID]
	lot.FinishTime = finish
	s.lots[lotID] = lot
	return nil
}

func (s *memSink) UpsertWafer(_ context.Context, value domain.Wafer) (domain.Wafer, error) {
	id, created := s.id(fmt.Sprintf("wafer|%d|%s|%d", value.LotID, value.Identifier, value.HeadNum))
	if created {
		value.ID = id
		s.wafers[id] = value
	}
	return s.wafers[id], nil
}

func (s *memSink) CloseWafer(_ context.Context, waferID uint, value domain.WaferClose) error {
	w := s.wafers[waferID]
	w.FinishTime = value.FinishTime
	if value.PartCount != nil {
		w.PartCount = value.PartCount
	}
	if value.GoodCount != nil {
		w.GoodCount = value.GoodCount
	}
	if value.RetestCount != nil {
		w.RetestCount = value.RetestCount
	}
	if value.AbortCount != nil {
		w.AbortCount = value.AbortCount
	}
	if value.FuncCount != nil {
		w.FuncCount = value.FuncCount
	}
	s.wafers[waferID] = w
	return nil
}

func (s *memSink) UpsertSiteEquipment(_ context.Context, value domain.SiteEquipment) (domain.SiteEquipment, error) {
	id, created := s.id(fmt.Sprintf("sdr|%d|%d|%d", value.LotID, value.HeadNum, value.SiteGroup))
	if created {
		value.ID = id
		s.equipment = append(s.equipment, value)
	}
	return value, nil
}

func (s *memSink) UpsertTestSuite(_ context.Context, testProgramID uint, name string) (domain.TestSuite, error) {
	id, created := s.id(fmt.Sprintf("suite|%d|%s", testProgramID, name))
	if created {
		s.suites[id] = domain.TestSuite{ID: id, TestProgramID: testProgramID, Name: name}
	}
	return s.suites[id], nil
}

func (s *memSink) UpsertTestDefinition(_ context.Context, value domain.TestDefinition) (domain.TestDefinition, error) {
	key := fmt.Sprintf("%d|%d", value.TestProgramID, value.TestNum)
	if stored, ok := s.defs[key]; ok {
		return stored, nil
	}
	value.ID, _ = s.id("def|" + key)
	s.defs[key] = value
	return value, nil
}

func (s *memSink) CreateDie(_ context.Context, value domain.Die) (domain.Die, error) {
	s.nextID++
	value.ID = s.nextID
	s.dies = append(s.dies, value)
	return value, nil
}

func (s *memSink) CreateBin(_ context.Context, value domain.Bin) (domain.Bin, error) {
	s.nextID++
	value.ID = s.nextID
	s.bins = append(s.bins, value)
	return value, nil
}

func (s *memSink) CreateTestItems(_ context.Context, items []domain.TestItem) (int64, error) {
	s.items = append(s.items, items...)
	return int64(len(items)), nil
}

func (s *memSink) itemsOf(dieID uint) []domain.TestItem {
	var out []domain.TestItem
	for _, it := range s.items {
		if it.DieID == dieID {
			out = append(out, it)
		}
	}
	return out
}

func (s *memSink) binOf(dieID uint) (domain.Bin, bool) {
	for _, b := range s.bins {
		if b.DieID == dieID {
			return b, true
		}
	}
	return domain.Bin{}, false
}

var _ domain.Sink = (*memSink)(nil)
