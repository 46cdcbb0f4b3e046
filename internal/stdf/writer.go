package stdf

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Writer encodes records as STDF V4. A FAR is emitted before the first record.
// A nil optional field truncates the record there: it and every later field are
// left out, which readers see as absent.
type Writer struct {
	w       io.Writer
	order   binary.ByteOrder
	started bool
}

func NewWriter(w io.Writer, order binary.ByteOrder) *Writer {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Writer{w: w, order: order}
}

func (w *Writer) Write(rec Record) error {
	if !w.started {
		w.started = true
		if _, ok := rec.(FAR); !ok {
			if err := w.Write(FAR{CPUType: 2, Version: 4}); err != nil {
				return err
			}
		}
	}
	e := &enc{order: w.order}
	switch r := rec.(type) {
	case FAR:
		e.u1(r.CPUType)
		e.u1(r.Version)
	case MIR:
		e.u4(r.SetupTime)
		e.u4(r.StartTime)
		e.optU1(r.StationNum)
		e.c1(r.ModeCode)
		e.c1(r.RetestCode)
		e.c1(r.ProtectionCode)
		e.optU2(r.BurnTime)
		e.c1(r.CommandMode)
		for _, s := range []string{
			r.LotID, r.PartType, r.NodeName, r.TesterType, r.JobName, r.JobRev,
			r.SublotID, r.OperatorName, r.ExecType, r.ExecVersion, r.TestCode,
			r.TestTemp, r.UserText, r.AuxFile, r.PackageType, r.FamilyID,
			r.DateCode, r.FacilityID, r.FloorID, r.ProcessID, r.OperFrequency,
			r.SpecName, r.SpecVersion, r.FlowID, r.SetupID, r.DesignRev,
			r.EngineeringID, r.ROMCode, r.SerialNum, r.SupervisorName,
		} {
			e.cn(s)
		}
	case MRR:
		e.u4(r.FinishTime)
		e.c1(r.DispCode)
		e.cn(r.UserDesc)
		e.cn(r.ExcDesc)
	case HBR:
		e.binSummary(r.HeadNum, r.SiteNum, r.BinNum, r.BinCount, r.BinPF, r.BinName)
	case SBR:
		e.binSummary(r.HeadNum, r.SiteNum, r.BinNum, r.BinCount, r.BinPF, r.BinName)
	case SDR:
		e.u1(r.HeadNum)
		e.optU1(r.SiteGroup)
		e.u1(uint8(len(r.Sites)))
		for _, s := range r.Sites {
			e.u1(s)
		}
		for _, s := range []string{
			r.HandlerType, r.HandlerID, r.CardType, r.CardID,
			r.LoadBoardType, r.LoadBoardID, r.DIBType, r.DIBID,
			r.CableType, r.CableID, r.ContactorType, r.ContactorID,
			r.LaserType, r.LaserID, r.ExtraType, r.ExtraID,
		} {
			e.cn(s)
		}
	case WIR:
		e.u1(r.HeadNum)
		e.optU1(r.SiteGroup)
		e.u4(r.StartTime)
		e.cn(r.WaferID)
	case WRR:
		e.u1(r.HeadNum)
		e.optU1(r.SiteGroup)
		e.u4(r.FinishTime)
		for _, c := range []*uint32{r.PartCount, r.RetestCount, r.AbortCount, r.GoodCount, r.FuncCount} {
			e.optU4(c)
		}
		for _, s := range []string{r.WaferID, r.FabWaferID, r.FrameID, r.MaskID, r.UserDesc, r.ExcDesc} {
			e.cn(s)
		}
	case PIR:
		e.u1(r.HeadNum)
		e.u1(r.SiteNum)
	case PRR:
		e.u1(r.HeadNum)
		e.u1(r.SiteNum)
		e.u1(r.PartFlag)
		e.u2(r.NumTest)
		e.optU2(r.HardBin)
		e.optU2(r.SoftBin)
		e.optI2(r.XCoord)
		e.optI2(r.YCoord)
		e.u4(r.TestTime)
		e.cn(r.PartID)
		e.cn(r.PartText)
	case TSR:
		e.u1(r.HeadNum)
		e.u1(r.SiteNum)
		e.c1(r.TestType)
		e.optU4(r.TestNum)
		e.optU4(r.ExecCount)
		e.optU4(r.FailCount)
		e.optU4(r.AlarmCount)
		e.cn(r.TestName)
		e.cn(r.SeqName)
		e.cn(r.TestLabel)
	case PTR:
		e.u4(r.TestNum)
		e.u1(r.HeadNum)
		e.u1(r.SiteNum)
		e.optU1(r.TestFlag)
		e.optU1(r.ParmFlag)
		e.optR4(r.Result)
		e.cn(r.TestText)
		e.cn(r.AlarmID)
		e.optU1(r.OptFlag)
		e.optI1(r.ResScale)
		e.optI1(r.LoScale)
		e.optI1(r.HiScale)
		e.optR4(r.LoLimit)
		e.optR4(r.HiLimit)
		e.cn(r.Units)
	case FTR:
		e.u4(r.TestNum)
		e.u1(r.HeadNum)
		e.u1(r.SiteNum)
		e.optU1(r.TestFlag)
		e.optU1(r.OptFlag)
		e.optU4(r.CycleCount)
		e.optU4(r.RelVAddr)
		e.optU4(r.RepeatCount)
		e.optU4(r.NumFail)
		e.optI4(r.XFailAddr)
		e.optI4(r.YFailAddr)
		e.optI2(r.VectOffset)
		e.u2(0) // RTN_ICNT
		e.u2(0) // PGM_ICNT
		e.u2(0) // FAIL_PIN
		for _, s := range []string{r.VectorName, r.TimeSet, r.OpCode, r.TestText, r.AlarmID, r.ProgText, r.ResultText} {
			e.cn(s)
		}
	case Unknown:
		e.b = make([]byte, r.Size)
	default:
		return errors.Errorf("stdf: cannot encode %T", rec)
	}
	if len(e.b) > math.MaxUint16 {
		return errors.Errorf("stdf: %s body is %d bytes", rec.Kind(), len(e.b))
	}

	kind := rec.Kind()
	hdr := make([]byte, 4, 4+len(e.b))
	w.order.PutUint16(hdr, uint16(len(e.b)))
	hdr[2], hdr[3] = kind.Type(), kind.Sub()
	_, err := w.w.Write(append(hdr, e.b...))
	return errors.Wrap(err, "stdf: write record")
}

type enc struct {
	b       []byte
	order   binary.ByteOrder
	stopped bool
}

func (e *enc) put(n int, fn func([]byte)) {
	if e.stopped {
		return
	}
	buf := make([]byte, n)
	fn(buf)
	e.b = append(e.b, buf...)
}

func (e *enc) u1(v uint8)  { e.put(1, func(b []byte) { b[0] = v }) }
func (e *enc) u2(v uint16) { e.put(2, func(b []byte) { e.order.PutUint16(b, v) }) }
func (e *enc) u4(v uint32) { e.put(4, func(b []byte) { e.order.PutUint32(b, v) }) }

func (e *enc) c1(s string) {
	if s == "" {
		e.u1(' ')
		return
	}
	e.u1(s[0])
}

func (e *enc) cn(s string) {
	if len(s) > 255 {
		s = s[:255]
	}
	e.u1(uint8(len(s)))
	if !e.stopped {
		e.b = append(e.b, s...)
	}
}

func (e *enc) optU1(p *uint8) {
	if p == nil {
		e.stopped = true
		return
	}
	e.u1(*p)
}

func (e *enc) optU2(p *uint16) {
	if p == nil {
		e.stopped = true
		return
	}
	e.u2(*p)
}

func (e *enc) optU4(p *uint32) {
	if p == nil {
		e.stopped = true
		return
	}
	e.u4(*p)
}

func (e *enc) optI1(p *int8) {
	if p == nil {
		e.stopped = true
		return
	}
	e.u1(uint8(*p))
}

func (e *enc) optI2(p *int16) {
	if p == nil {
		e.stopped = true
		return
	}
	e.u2(uint16(*p))
}

func (e *enc) optI4(p *int32) {
	if p == nil {
		e.stopped = true
		return
	}
	e.u4(uint32(*p))
}

func (e *enc) optR4(p *float32) {
	if p == nil {
		e.stopped = true
		return
	}
	e.u4(math.Float32bits(*p))
}

func (e *enc) binSummary(head, site *uint8, bin *uint16, count *uint32, pf, name string) {
	e.optU1(head)
	e.optU1(site)
	e.optU2(bin)
	e.optU4(count)
	e.c1(pf)
	e.cn(name)
}
