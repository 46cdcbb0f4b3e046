// Package ingest turns an STDF record stream into the test-data hierarchy.
//
// A Loader is single-use and single-goroutine: it owns the session of one file
// and writes through a domain.Sink that is expected to be bound to one
// transaction, so a returned error means nothing of the file should be kept.
package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/zxspring21/AISEMITEST/internal/domain"
	"github.com/zxspring21/AISEMITEST/internal/metrics"
	"github.com/zxspring21/AISEMITEST/internal/stdf"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	unknownLot     = "UNKNOWN_LOT"
	unknownWafer   = "UNKNOWN_WAFER"
	defaultCompany = "DefaultCompany"
	defaultProduct = "DefaultProduct"
	defaultStage   = "DefaultStage"
	defaultProgram = "DefaultProgram"
)

// Overrides name the hierarchy when the lot header does not. Company always
// comes from here; Product and Stage only fill in for a blank PART_TYP or
// MODE_COD.
type Overrides struct {
	Company string
	Product string
	Stage   string
}

type Stats struct {
	Records int64  `json:"records"`
	LotIDs  []uint `json:"lot_ids"`
	// Wafers counts distinct wafers; a wafer resumed by a second WIR counts once.
	Wafers    int64 `json:"wafers"`
	Dies      int64 `json:"dies"`
	Bins      int64 `json:"bins"`
	TestItems int64 `json:"test_items"`
	// Discarded counts buffered results dropped without a die.
	Discarded int64          `json:"discarded"`
	Warnings  map[Kind]int64 `json:"warnings"`
}

func (s Stats) WarningCount() int64 {
	var n int64
	for _, v := range s.Warnings {
		n += v
	}
	return n
}

type Loader struct {
	sink      domain.Sink
	logger    *zap.Logger
	metrics   *metrics.IngestMetrics
	overrides Overrides
	sess      *session
	stats     Stats
	wafers    map[uint]struct{}
}

func NewLoader(sink domain.Sink, logger *zap.Logger, overrides Overrides) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		sink:      sink,
		logger:    logger,
		metrics:   metrics.NewIngestMetrics(),
		overrides: overrides,
		sess:      newSession(),
		stats:     Stats{Warnings: map[Kind]int64{}},
		wafers:    map[uint]struct{}{},
	}
}

func (l *Loader) State() State { return l.sess.state() }

func (l *Loader) Stats() Stats { return l.stats }

// Run consumes src until io.EOF. A read failure, including cancellation of
// ctx, is a KindDecode error.
func (l *Loader) Run(ctx context.Context, src stdf.Source) (Stats, error) {
	for {
		if err := ctx.Err(); err != nil {
			return l.stats, NewError(KindDecode, 0, errors.Wrap(err, "record stream interrupted"))
		}
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return l.stats, NewError(KindDecode, 0, errors.Wrapf(err, "after %d records", l.stats.Records))
		}
		if err := l.Handle(ctx, rec); err != nil {
			return l.stats, err
		}
	}

	if n := l.sess.buffered(); n > 0 {
		l.discard(0, "stream ended inside a part")
	}
	l.logger.Info("record stream consumed",
		zap.Int64("records", l.stats.Records),
		zap.Int("lots", len(l.stats.LotIDs)),
		zap.Int64("dies", l.stats.Dies),
		zap.Int64("test_items", l.stats.TestItems),
		zap.Int64("warnings", l.stats.WarningCount()),
	)
	return l.stats, nil
}

// Handle applies one record to the session.
func (l *Loader) Handle(ctx context.Context, rec stdf.Record) error {
	l.stats.Records++
	label := "other"
	if _, ok := rec.(stdf.Unknown); !ok {
		label = rec.Kind().String()
	}
	l.metrics.RecordRecord(label)

	var err error
	switch r := rec.(type) {
	case stdf.MIR:
		err = l.onMIR(ctx, r)
	case stdf.MRR:
		err = l.onMRR(ctx, r)
	case stdf.WIR:
		err = l.onWIR(ctx, r)
	case stdf.WRR:
		err = l.onWRR(ctx, r)
	case stdf.PIR:
		l.onPIR(r)
	case stdf.PTR:
		l.onResult(stdf.KindPTR, parametricItem(r))
	case stdf.FTR:
		l.onResult(stdf.KindFTR, functionalItem(r))
	case stdf.PRR:
		err = l.onPRR(ctx, r)
	case stdf.HBR:
		l.onBinSummary(stdf.KindHBR, l.sess.hardBins, r.HeadNum, r.SiteNum, r.BinNum, r.BinName)
	case stdf.SBR:
		l.onBinSummary(stdf.KindSBR, l.sess.softBins, r.HeadNum, r.SiteNum, r.BinNum, r.BinName)
	case stdf.TSR:
		err = l.onTSR(ctx, r)
	case stdf.SDR:
		err = l.onSDR(ctx, r)
	case stdf.FAR, stdf.Unknown:
	}
	if err != nil {
		return errors.Wrapf(err, "%s (record %d)", rec.Kind(), l.stats.Records)
	}
	return nil
}

func (l *Loader) onMIR(ctx context.Context, r stdf.MIR) error {
	if l.sess.buffered() > 0 {
		l.discard(stdf.KindMIR, "lot started inside a part")
	}

	company, err := l.sink.UpsertCompany(ctx, clip(firstNonBlank(l.overrides.Company, defaultCompany), 255))
	if err != nil {
		return err
	}
	product, err := l.sink.UpsertProduct(ctx, company.ID, clip(firstNonBlank(r.PartType, l.overrides.Product, defaultProduct), 255))
	if err != nil {
		return err
	}
	stage, err := l.sink.UpsertStage(ctx, product.ID, clip(firstNonBlank(r.ModeCode, l.overrides.Stage, defaultStage), 255))
	if err != nil {
		return err
	}
	program, err := l.sink.UpsertTestProgram(ctx, stage.ID, clip(firstNonBlank(r.JobName, defaultProgram), 255), clip(r.JobRev, 64))
	if err != nil {
		return err
	}

	lot, err := l.sink.UpsertLot(ctx, domain.Lot{
		TestProgramID: program.ID,
		Identifier:    clip(firstNonBlank(r.LotID, unknownLot), 255),
		PartType:      clip(r.PartType, 255),
		SetupTime:     l.timestamp(stdf.KindMIR, "SETUP_T", r.SetupTime),
		StartTime:     l.timestamp(stdf.KindMIR, "START_T", r.StartTime),
		TesterType:    clip(r.TesterType, 64),
		NodeName:      clip(r.NodeName, 64),
		Facility:      clip(r.FacilityID, 64),
		Floor:         clip(r.FloorID, 64),
		StationNum:    intPtr(r.StationNum),
		ExecType:      clip(r.ExecType, 64),
		ExecVersion:   clip(r.ExecVersion, 64),
		Sublot:        clip(r.SublotID, 64),
		Operator:      clip(r.OperatorName, 64),
		TestTemp:      clip(r.TestTemp, 64),
	})
	if err != nil {
		return err
	}

	l.sess.openLot(program, lot)
	l.addLot(lot.ID)
	l.logger.Info("lot opened",
		zap.Uint("lot_id", lot.ID),
		zap.String("lot", lot.Identifier),
		zap.String("company", company.Name),
		zap.String("product", product.Name),
		zap.String("stage", stage.Name),
		zap.String("program", program.Name),
		zap.String("revision", program.Revision),
	)
	return nil
}

func (l *Loader) onMRR(ctx context.Context, r stdf.MRR) error {
	if l.sess.lot == nil {
		l.warn(KindMissingContext, stdf.KindMRR, "lot end without a lot")
		return nil
	}
	finish := l.timestamp(stdf.KindMRR, "FINISH_T", r.FinishTime)
	if err := l.sink.FinishLot(ctx, l.sess.lot.ID, finish); err != nil {
		return err
	}
	l.sess.lot.FinishTime = finish
	return nil
}

func (l *Loader) onWIR(ctx context.Context, r stdf.WIR) error {
	if l.sess.lot == nil {
		l.warn(KindMissingContext, stdf.KindWIR, "wafer start without a lot", zap.String("wafer", r.WaferID))
		return nil
	}
	if l.sess.buffered() > 0 {
		l.discard(stdf.KindWIR, "wafer started inside a part")
	}
	l.sess.clearPart()

	wafer, err := l.sink.UpsertWafer(ctx, domain.Wafer{
		LotID:      l.sess.lot.ID,
		Identifier: clip(firstNonBlank(r.WaferID, unknownWafer), 255),
		HeadNum:    orDefault(int(r.HeadNum), 1),
		SiteGroup:  siteGroup(r.SiteGroup),
		StartTime:  l.timestamp(stdf.KindWIR, "START_T", r.StartTime),
	})
	if err != nil {
		return err
	}
	l.sess.wafer = &wafer
	if _, seen := l.wafers[wafer.ID]; !seen {
		l.wafers[wafer.ID] = struct{}{}
		l.stats.Wafers++
	}
	l.logger.Debug("wafer opened", zap.Uint("wafer_id", wafer.ID), zap.String("wafer", wafer.Identifier), zap.Int("head", wafer.HeadNum))
	return nil
}

func (l *Loader) onWRR(ctx context.Context, r stdf.WRR) error {
	wafer := l.sess.wafer
	l.sess.wafer = nil
	if wafer == nil {
		l.warn(KindMissingContext, stdf.KindWRR, "wafer end without an open wafer", zap.String("wafer", r.WaferID))
		return nil
	}
	return l.sink.CloseWafer(ctx, wafer.ID, domain.WaferClose{
		FinishTime:  l.timestamp(stdf.KindWRR, "FINISH_T", r.FinishTime),
		PartCount:   count(r.PartCount),
		GoodCount:   count(r.GoodCount),
		RetestCount: count(r.RetestCount),
		AbortCount:  count(r.AbortCount),
		FuncCount:   count(r.FuncCount),
	})
}

func (l *Loader) onPIR(r stdf.PIR) {
	if l.sess.lot == nil {
		l.warn(KindMissingContext, stdf.KindPIR, "part start without a lot")
		return
	}
	if l.sess.buffered() > 0 {
		l.discard(stdf.KindPIR, "part started before the previous part ended")
	}
	l.sess.clearPart()
	l.sess.part = &partKey{head: orDefault(int(r.HeadNum), 1), site: orDefault(int(r.SiteNum), 1)}
}

func (l *Loader) onResult(kind stdf.Kind, item domain.TestItem) {
	switch {
	case l.sess.lot == nil:
		l.warn(KindMissingContext, kind, "test result without a lot", zap.Int64("test_num", item.TestNum))
	case l.sess.part == nil:
		l.sess.strays++
	default:
		l.sess.results = append(l.sess.results, item)
	}
}

func (l *Loader) onPRR(ctx context.Context, r stdf.PRR) error {
	if l.sess.lot == nil {
		l.warn(KindMissingContext, stdf.KindPRR, "part end without a lot")
		l.sess.clearPart()
		return nil
	}

	head, site := orDefault(int(r.HeadNum), 1), orDefault(int(r.SiteNum), 1)

	die := domain.Die{
		LotID:      l.sess.lot.ID,
		HeadNum:    head,
		SiteNum:    site,
		X:          coord(r.XCoord),
		Y:          coord(r.YCoord),
		PartID:     clip(r.PartID, 255),
		PartText:   clip(r.PartText, 255),
		HardBin:    intPtr(r.HardBin),
		SoftBin:    softBin(r.SoftBin),
		PartFlag:   int(r.PartFlag),
		Passed:     partPassed(r.PartFlag),
		NumTests:   int(r.NumTest),
		TestTimeMS: int64(r.TestTime),
	}
	if l.sess.wafer != nil {
		die.WaferID = &l.sess.wafer.ID
	}
	die, err := l.sink.CreateDie(ctx, die)
	if err != nil {
		return err
	}
	l.stats.Dies++
	l.metrics.RecordCreated("die", 1)

	if die.HardBin != nil {
		if err := l.createBin(ctx, die); err != nil {
			return err
		}
	}

	open := l.sess.part
	if open == nil {
		if l.sess.buffered() > 0 {
			l.discard(stdf.KindPRR, "part end without a part start", zap.Int("head", head), zap.Int("site", site))
		}
		l.sess.clearPart()
		return nil
	}
	if *open != (partKey{head: head, site: site}) {
		l.logger.Debug("part end closes a part started on another site",
			zap.Int("part_head", open.head), zap.Int("part_site", open.site),
			zap.Int("head", head), zap.Int("site", site))
	}
	return l.flush(ctx, die)
}

func (l *Loader) createBin(ctx context.Context, die domain.Die) error {
	hard := *die.HardBin
	bin := domain.Bin{
		DieID:       die.ID,
		HardBin:     hard,
		SoftBin:     die.SoftBin,
		HardBinName: binName(l.sess.hardBins.lookup(die.HeadNum, die.SiteNum, hard), hard),
	}
	if die.SoftBin != nil {
		bin.SoftBinName = binName(l.sess.softBins.lookup(die.HeadNum, die.SiteNum, *die.SoftBin), *die.SoftBin)
	}
	if _, err := l.sink.CreateBin(ctx, bin); err != nil {
		return err
	}
	l.stats.Bins++
	l.metrics.RecordCreated("bin", 1)
	return nil
}

type itemKey struct {
	num int64
	typ string
}

// flush writes the buffered results of the open part against die. Suites are
// resolved from what the lot has declared so far; a repeated test keeps its
// first result.
func (l *Loader) flush(ctx context.Context, die domain.Die) error {
	items := make([]domain.TestItem, 0, len(l.sess.results))
	seen := make(map[itemKey]struct{}, len(l.sess.results))
	for _, it := range l.sess.results {
		key := itemKey{num: it.TestNum, typ: it.TestType}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		it.DieID = die.ID
		it.TestSuiteID = l.sess.suites.suiteFor(it.TestNum)
		items = append(items, it)
	}
	if dropped := len(l.sess.results) - len(items); dropped > 0 {
		l.logger.Debug("repeated test results skipped", zap.Uint("die_id", die.ID), zap.Int("results", dropped))
	}
	l.sess.clearPart()

	n, err := l.sink.CreateTestItems(ctx, items)
	if err != nil {
		return err
	}
	l.stats.TestItems += n
	l.metrics.RecordCreated("test_item", n)
	return nil
}

func (l *Loader) onBinSummary(kind stdf.Kind, reg binRegistry, head, site *uint8, bin *uint16, name string) {
	if l.sess.lot == nil {
		l.warn(KindMissingContext, kind, "bin summary without a lot")
		return
	}
	if head == nil || bin == nil {
		l.logger.Debug("bin summary without head or bin number ignored", zap.Stringer("record", kind))
		return
	}
	s := allSites
	if site != nil {
		s = int(*site)
	}
	reg.record(int(*head), s, int(*bin), clip(name, 255))
}

func (l *Loader) onTSR(ctx context.Context, r stdf.TSR) error {
	name := clip(r.SeqName, 255)
	if name == "" {
		return nil
	}
	if l.sess.program == nil {
		l.warn(KindMissingContext, stdf.KindTSR, "test summary without a test program", zap.String("suite", name))
		return nil
	}

	suite, err := l.sink.UpsertTestSuite(ctx, l.sess.program.ID, name)
	if err != nil {
		return err
	}
	if r.TestNum == nil {
		return nil
	}
	testNum := int64(*r.TestNum)
	if _, err := l.sink.UpsertTestDefinition(ctx, domain.TestDefinition{
		TestProgramID: l.sess.program.ID,
		TestSuiteID:   &suite.ID,
		TestNum:       testNum,
		TestType:      clip(r.TestType, 8),
		Name:          clip(r.TestName, 512),
		Label:         clip(r.TestLabel, 255),
		ExecCount:     count(r.ExecCount),
		FailCount:     count(r.FailCount),
		AlarmCount:    count(r.AlarmCount),
	}); err != nil {
		return err
	}
	l.sess.suites[testNum] = suite.ID
	return nil
}

func (l *Loader) onSDR(ctx context.Context, r stdf.SDR) error {
	if l.sess.lot == nil {
		l.warn(KindMissingContext, stdf.KindSDR, "site description without a lot")
		return nil
	}
	_, err := l.sink.UpsertSiteEquipment(ctx, domain.SiteEquipment{
		LotID:         l.sess.lot.ID,
		HeadNum:       orDefault(int(r.HeadNum), 1),
		SiteGroup:     siteGroup(r.SiteGroup),
		HandlerType:   clip(r.HandlerType, 128),
		HandlerID:     clip(r.HandlerID, 128),
		ProbeCardType: clip(r.CardType, 128),
		ProbeCardID:   clip(r.CardID, 128),
		LoadBoardType: clip(r.LoadBoardType, 128),
		LoadBoardID:   clip(r.LoadBoardID, 128),
		DIBType:       clip(r.DIBType, 128),
		DIBID:         clip(r.DIBID, 128),
		CableType:     clip(r.CableType, 128),
		CableID:       clip(r.CableID, 128),
		ContactorType: clip(r.ContactorType, 128),
		ContactorID:   clip(r.ContactorID, 128),
	})
	return err
}

// discard drops everything buffered for the open part and closes it.
func (l *Loader) discard(rec stdf.Kind, msg string, fields ...zap.Field) {
	n := l.sess.buffered()
	l.stats.Discarded += int64(n)
	fields = append(fields, zap.Int("results", n))
	if p := l.sess.part; p != nil {
		fields = append(fields, zap.Int("part_head", p.head), zap.Int("part_site", p.site))
	}
	l.warn(KindOrphanedBuffer, rec, msg, fields...)
	l.sess.clearPart()
}

func (l *Loader) warn(kind Kind, rec stdf.Kind, msg string, fields ...zap.Field) {
	l.stats.Warnings[kind]++
	l.metrics.RecordWarning(kind.String())

	level := zapcore.WarnLevel
	if kind == KindMissingContext {
		level = zapcore.DebugLevel
	}
	fields = append(fields, zap.Stringer("error_kind", kind))
	if rec != 0 {
		fields = append(fields, zap.Stringer("record", rec))
	}
	if ce := l.logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *Loader) addLot(id uint) {
	for _, seen := range l.stats.LotIDs {
		if seen == id {
			return
		}
	}
	l.stats.LotIDs = append(l.stats.LotIDs, id)
}

func binName(name string, bin int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("Bin%d", bin)
}
