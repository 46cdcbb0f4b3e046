package stdf

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

var (
	ErrNoFAR              = errors.New("stdf: stream does not start with a FAR record")
	ErrUnsupportedVersion = errors.New("stdf: unsupported STDF version")
	ErrTruncated          = errors.New("stdf: truncated record")
)

// Source yields records in file order and returns io.EOF after the last one.
type Source interface {
	Next() (Record, error)
}

// Reader decodes an STDF V4 byte stream. The byte order is taken from the
// leading FAR record.
type Reader struct {
	br     *bufio.Reader
	order  binary.ByteOrder
	hdr    [4]byte
	buf    []byte
	offset int64
	count  int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// Offset is the byte offset of the next record header.
func (r *Reader) Offset() int64 { return r.offset }

// Count is the number of records returned so far.
func (r *Reader) Count() int { return r.count }

func (r *Reader) Next() (Record, error) {
	n, err := io.ReadFull(r.br, r.hdr[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			if r.order == nil {
				return nil, errors.WithStack(ErrNoFAR)
			}
			return nil, io.EOF
		}
		return nil, errors.Wrapf(ErrTruncated, "record header at offset %d", r.offset)
	}
	if r.order == nil {
		if r.hdr[2] != 0 || r.hdr[3] != 10 {
			return nil, errors.WithStack(ErrNoFAR)
		}
		switch {
		case r.hdr[0] == 2 && r.hdr[1] == 0:
			r.order = binary.LittleEndian
		case r.hdr[0] == 0 && r.hdr[1] == 2:
			r.order = binary.BigEndian
		default:
			return nil, errors.WithStack(ErrNoFAR)
		}
	}

	size := int(r.order.Uint16(r.hdr[:2]))
	kind := kindOf(r.hdr[2], r.hdr[3])
	if cap(r.buf) < size {
		r.buf = make([]byte, size)
	}
	body := r.buf[:size]
	if _, err := io.ReadFull(r.br, body); err != nil {
		return nil, errors.Wrapf(ErrTruncated, "%s body at offset %d", kind, r.offset)
	}
	r.offset += int64(4 + size)
	r.count++

	return r.decode(kind, body)
}

func (r *Reader) decode(kind Kind, body []byte) (Record, error) {
	f := &fields{b: body, order: r.order}
	switch kind {
	case KindFAR:
		rec := FAR{CPUType: f.u1(), Version: f.u1()}
		if rec.Version != 4 {
			return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", rec.Version)
		}
		return rec, nil
	case KindMIR:
		return decodeMIR(f), nil
	case KindMRR:
		return MRR{FinishTime: f.u4(), DispCode: f.c1(), UserDesc: f.cn(), ExcDesc: f.cn()}, nil
	case KindHBR:
		h := HBR{HeadNum: f.optU1(), SiteNum: f.optU1(), BinNum: f.optU2(), BinCount: f.optU4()}
		h.BinPF, h.BinName = f.c1(), f.cn()
		return h, nil
	case KindSBR:
		s := SBR{HeadNum: f.optU1(), SiteNum: f.optU1(), BinNum: f.optU2(), BinCount: f.optU4()}
		s.BinPF, s.BinName = f.c1(), f.cn()
		return s, nil
	case KindSDR:
		return decodeSDR(f), nil
	case KindWIR:
		return WIR{HeadNum: f.u1(), SiteGroup: f.optU1(), StartTime: f.u4(), WaferID: f.cn()}, nil
	case KindWRR:
		w := WRR{HeadNum: f.u1(), SiteGroup: f.optU1(), FinishTime: f.u4()}
		w.PartCount, w.RetestCount, w.AbortCount = f.optU4(), f.optU4(), f.optU4()
		w.GoodCount, w.FuncCount = f.optU4(), f.optU4()
		w.WaferID, w.FabWaferID, w.FrameID = f.cn(), f.cn(), f.cn()
		w.MaskID, w.UserDesc, w.ExcDesc = f.cn(), f.cn(), f.cn()
		return w, nil
	case KindPIR:
		return PIR{HeadNum: f.u1(), SiteNum: f.u1()}, nil
	case KindPRR:
		p := PRR{HeadNum: f.u1(), SiteNum: f.u1(), PartFlag: f.u1(), NumTest: f.u2()}
		p.HardBin, p.SoftBin = f.optU2(), f.optU2()
		p.XCoord, p.YCoord = f.optI2(), f.optI2()
		p.TestTime, p.PartID, p.PartText = f.u4(), f.cn(), f.cn()
		return p, nil
	case KindTSR:
		t := TSR{HeadNum: f.u1(), SiteNum: f.u1(), TestType: f.c1(), TestNum: f.optU4()}
		t.ExecCount, t.FailCount, t.AlarmCount = f.optU4(), f.optU4(), f.optU4()
		t.TestName, t.SeqName, t.TestLabel = f.cn(), f.cn(), f.cn()
		return t, nil
	case KindPTR:
		p := PTR{TestNum: f.u4(), HeadNum: f.u1(), SiteNum: f.u1()}
		p.TestFlag, p.ParmFlag, p.Result = f.optU1(), f.optU1(), f.optR4()
		p.TestText, p.AlarmID = f.cn(), f.cn()
		p.OptFlag = f.optU1()
		p.ResScale, p.LoScale, p.HiScale = f.optI1(), f.optI1(), f.optI1()
		p.LoLimit, p.HiLimit = f.optR4(), f.optR4()
		p.Units = f.cn()
		return p, nil
	case KindFTR:
		return decodeFTR(f), nil
	}
	return Unknown{Typ: kind.Type(), Sub: kind.Sub(), Size: len(body)}, nil
}

func decodeMIR(f *fields) MIR {
	m := MIR{SetupTime: f.u4(), StartTime: f.u4(), StationNum: f.optU1()}
	m.ModeCode, m.RetestCode, m.ProtectionCode = f.c1(), f.c1(), f.c1()
	m.BurnTime = f.optU2()
	m.CommandMode = f.c1()
	for _, dst := range []*string{
		&m.LotID, &m.PartType, &m.NodeName, &m.TesterType, &m.JobName, &m.JobRev,
		&m.SublotID, &m.OperatorName, &m.ExecType, &m.ExecVersion, &m.TestCode,
		&m.TestTemp, &m.UserText, &m.AuxFile, &m.PackageType, &m.FamilyID,
		&m.DateCode, &m.FacilityID, &m.FloorID, &m.ProcessID, &m.OperFrequency,
		&m.SpecName, &m.SpecVersion, &m.FlowID, &m.SetupID, &m.DesignRev,
		&m.EngineeringID, &m.ROMCode, &m.SerialNum, &m.SupervisorName,
	} {
		*dst = f.cn()
	}
	return m
}

func decodeSDR(f *fields) SDR {
	s := SDR{HeadNum: f.u1(), SiteGroup: f.optU1()}
	cnt := int(f.u1())
	for i := 0; i < cnt && !f.done(); i++ {
		s.Sites = append(s.Sites, f.u1())
	}
	for _, dst := range []*string{
		&s.HandlerType, &s.HandlerID, &s.CardType, &s.CardID,
		&s.LoadBoardType, &s.LoadBoardID, &s.DIBType, &s.DIBID,
		&s.CableType, &s.CableID, &s.ContactorType, &s.ContactorID,
		&s.LaserType, &s.LaserID, &s.ExtraType, &s.ExtraID,
	} {
		*dst = f.cn()
	}
	return s
}

func decodeFTR(f *fields) FTR {
	t := FTR{TestNum: f.u4(), HeadNum: f.u1(), SiteNum: f.u1()}
	t.TestFlag, t.OptFlag = f.optU1(), f.optU1()
	t.CycleCount, t.RelVAddr, t.RepeatCount, t.NumFail = f.optU4(), f.optU4(), f.optU4(), f.optU4()
	t.XFailAddr, t.YFailAddr = f.optI4(), f.optI4()
	t.VectOffset = f.optI2()
	rtn, pgm := int(f.u2()), int(f.u2())
	f.skip(rtn * 2)
	f.skip((rtn + 1) / 2)
	f.skip(pgm * 2)
	f.skip((pgm + 1) / 2)
	f.dn()
	t.VectorName, t.TimeSet, t.OpCode = f.cn(), f.cn(), f.cn()
	t.TestText, t.AlarmID, t.ProgText, t.ResultText = f.cn(), f.cn(), f.cn(), f.cn()
	return t
}

// fields is a cursor over one record body. Reads past the end yield zero values
// and mark every later field as absent.
type fields struct {
	b     []byte
	order binary.ByteOrder
	short bool
}

func (f *fields) done() bool { return f.short || len(f.b) == 0 }

func (f *fields) take(n int) ([]byte, bool) {
	if f.short || len(f.b) < n {
		f.short = true
		f.b = nil
		return nil, false
	}
	v := f.b[:n]
	f.b = f.b[n:]
	return v, true
}

func (f *fields) skip(n int) { f.take(n) }

func (f *fields) u1() uint8 {
	v, _ := f.optU1Val()
	return v
}

func (f *fields) optU1Val() (uint8, bool) {
	b, ok := f.take(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (f *fields) u2() uint16 {
	b, ok := f.take(2)
	if !ok {
		return 0
	}
	return f.order.Uint16(b)
}

func (f *fields) u4() uint32 {
	b, ok := f.take(4)
	if !ok {
		return 0
	}
	return f.order.Uint32(b)
}

func (f *fields) optU1() *uint8 {
	if v, ok := f.optU1Val(); ok {
		return &v
	}
	return nil
}

func (f *fields) optU2() *uint16 {
	b, ok := f.take(2)
	if !ok {
		return nil
	}
	v := f.order.Uint16(b)
	return &v
}

func (f *fields) optU4() *uint32 {
	b, ok := f.take(4)
	if !ok {
		return nil
	}
	v := f.order.Uint32(b)
	return &v
}

func (f *fields) optI1() *int8 {
	b, ok := f.take(1)
	if !ok {
		return nil
	}
	v := int8(b[0])
	return &v
}

func (f *fields) optI2() *int16 {
	b, ok := f.take(2)
	if !ok {
		return nil
	}
	v := int16(f.order.Uint16(b))
	return &v
}

func (f *fields) optI4() *int32 {
	b, ok := f.take(4)
	if !ok {
		return nil
	}
	v := int32(f.order.Uint32(b))
	return &v
}

func (f *fields) optR4() *float32 {
	b, ok := f.take(4)
	if !ok {
		return nil
	}
	v := math.Float32frombits(f.order.Uint32(b))
	return &v
}

// c1 reads a single character; blank and NUL read as "".
func (f *fields) c1() string {
	b, ok := f.take(1)
	if !ok || b[0] == ' ' || b[0] == 0 {
		return ""
	}
	return string(b)
}

func (f *fields) cn() string {
	n, ok := f.optU1Val()
	if !ok {
		return ""
	}
	b, ok := f.take(int(n))
	if !ok {
		return ""
	}
	return string(b)
}

// dn skips a bit field whose length prefix counts bits.
func (f *fields) dn() {
	bits := int(f.u2())
	f.skip((bits + 7) / 8)
}

// SliceSource replays an in-memory record sequence.
type SliceSource struct {
	recs []Record
	pos  int
}

func NewSliceSource(recs ...Record) *SliceSource {
	return &SliceSource{recs: recs}
}

func (s *SliceSource) Next() (Record, error) {
	if s.pos >= len(s.recs) {
		return nil, io.EOF
	}
	rec := s.recs[s.pos]
	s.pos++
	return rec, nil
}
