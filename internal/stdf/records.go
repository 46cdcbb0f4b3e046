// Package stdf decodes STDF V4 test-data files into a stream of typed records.
//
// Only the record kinds the store consumes are decoded field by field; every other
// record is surfaced as Unknown so callers can skip it. Optional numeric fields are
// pointers: a nil pointer means the field was truncated away by the writer, which
// STDF allows for trailing fields.
package stdf

import "fmt"

// Kind identifies a record by its REC_TYP/REC_SUB pair.
type Kind uint16

func kindOf(typ, sub uint8) Kind { return Kind(uint16(typ)<<8 | uint16(sub)) }

const (
	KindFAR Kind = 0<<8 | 10
	KindMIR Kind = 1<<8 | 10
	KindMRR Kind = 1<<8 | 20
	KindHBR Kind = 1<<8 | 40
	KindSBR Kind = 1<<8 | 50
	KindSDR Kind = 1<<8 | 80
	KindWIR Kind = 2<<8 | 10
	KindWRR Kind = 2<<8 | 20
	KindPIR Kind = 5<<8 | 10
	KindPRR Kind = 5<<8 | 20
	KindTSR Kind = 10<<8 | 30
	KindPTR Kind = 15<<8 | 10
	KindFTR Kind = 15<<8 | 20
)

func (k Kind) Type() uint8 { return uint8(k >> 8) }
func (k Kind) Sub() uint8  { return uint8(k) }

func (k Kind) String() string {
	switch k {
	case KindFAR:
		return "FAR"
	case KindMIR:
		return "MIR"
	case KindMRR:
		return "MRR"
	case KindHBR:
		return "HBR"
	case KindSBR:
		return "SBR"
	case KindSDR:
		return "SDR"
	case KindWIR:
		return "WIR"
	case KindWRR:
		return "WRR"
	case KindPIR:
		return "PIR"
	case KindPRR:
		return "PRR"
	case KindTSR:
		return "TSR"
	case KindPTR:
		return "PTR"
	case KindFTR:
		return "FTR"
	}
	return fmt.Sprintf("REC(%d,%d)", k.Type(), k.Sub())
}

// Record is the closed set of decoded records. The unexported method keeps
// implementations inside this package.
type Record interface {
	Kind() Kind
	record()
}

// FAR is the file attributes record; it fixes the byte order of the stream.
type FAR struct {
	CPUType uint8
	Version uint8
}

// MIR is the master information record that opens a lot.
type MIR struct {
	SetupTime      uint32
	StartTime      uint32
	StationNum     *uint8
	ModeCode       string
	RetestCode     string
	ProtectionCode string
	BurnTime       *uint16
	CommandMode    string
	LotID          string
	PartType       string
	NodeName       string
	TesterType     string
	JobName        string
	JobRev         string
	SublotID       string
	OperatorName   string
	ExecType       string
	ExecVersion    string
	TestCode       string
	TestTemp       string
	UserText       string
	AuxFile        string
	PackageType    string
	FamilyID       string
	DateCode       string
	FacilityID     string
	FloorID        string
	ProcessID      string
	OperFrequency  string
	SpecName       string
	SpecVersion    string
	FlowID         string
	SetupID        string
	DesignRev      string
	EngineeringID  string
	ROMCode        string
	SerialNum      string
	SupervisorName string
}

// MRR is the master results record that closes a lot.
type MRR struct {
	FinishTime uint32
	DispCode   string
	UserDesc   string
	ExcDesc    string
}

// HBR is a hard bin summary. HeadNum 255 means all heads; SiteNum is absent for
// head-level summaries.
type HBR struct {
	HeadNum  *uint8
	SiteNum  *uint8
	BinNum   *uint16
	BinCount *uint32
	BinPF    string
	BinName  string
}

// SBR is a soft bin summary with the same layout as HBR.
type SBR struct {
	HeadNum  *uint8
	SiteNum  *uint8
	BinNum   *uint16
	BinCount *uint32
	BinPF    string
	BinName  string
}

// SDR describes the equipment attached to a site group.
type SDR struct {
	HeadNum       uint8
	SiteGroup     *uint8
	Sites         []uint8
	HandlerType   string
	HandlerID     string
	CardType      string
	CardID        string
	LoadBoardType string
	LoadBoardID   string
	DIBType       string
	DIBID         string
	CableType     string
	CableID       string
	ContactorType string
	ContactorID   string
	LaserType     string
	LaserID       string
	ExtraType     string
	ExtraID       string
}

// WIR opens a wafer.
type WIR struct {
	HeadNum   uint8
	SiteGroup *uint8
	StartTime uint32
	WaferID   string
}

// WRR closes a wafer. Counts of 0xFFFFFFFF mean "not recorded".
type WRR struct {
	HeadNum     uint8
	SiteGroup   *uint8
	FinishTime  uint32
	PartCount   *uint32
	RetestCount *uint32
	AbortCount  *uint32
	GoodCount   *uint32
	FuncCount   *uint32
	WaferID     string
	FabWaferID  string
	FrameID     string
	MaskID      string
	UserDesc    string
	ExcDesc     string
}

// PIR opens a part on a head/site.
type PIR struct {
	HeadNum uint8
	SiteNum uint8
}

// PRR closes a part and carries its final classification.
type PRR struct {
	HeadNum  uint8
	SiteNum  uint8
	PartFlag uint8
	NumTest  uint16
	HardBin  *uint16
	SoftBin  *uint16
	XCoord   *int16
	YCoord   *int16
	TestTime uint32
	PartID   string
	PartText string
}

// TSR summarizes one test; SeqName carries the test-suite grouping.
type TSR struct {
	HeadNum    uint8
	SiteNum    uint8
	TestType   string
	TestNum    *uint32
	ExecCount  *uint32
	FailCount  *uint32
	AlarmCount *uint32
	TestName   string
	SeqName    string
	TestLabel  string
}

// PTR is a parametric result.
type PTR struct {
	TestNum  uint32
	HeadNum  uint8
	SiteNum  uint8
	TestFlag *uint8
	ParmFlag *uint8
	Result   *float32
	TestText string
	AlarmID  string
	OptFlag  *uint8
	ResScale *int8
	LoScale  *int8
	HiScale  *int8
	LoLimit  *float32
	HiLimit  *float32
	Units    string
}

// FTR is a functional result. Pin arrays are skipped during decoding.
type FTR struct {
	TestNum     uint32
	HeadNum     uint8
	SiteNum     uint8
	TestFlag    *uint8
	OptFlag     *uint8
	CycleCount  *uint32
	RelVAddr    *uint32
	RepeatCount *uint32
	NumFail     *uint32
	XFailAddr   *int32
	YFailAddr   *int32
	VectOffset  *int16
	VectorName  string
	TimeSet     string
	OpCode      string
	TestText    string
	AlarmID     string
	ProgText    string
	ResultText  string
}

// Unknown is any record kind the store does not consume.
type Unknown struct {
	Typ  uint8
	Sub  uint8
	Size int
}

func (FAR) Kind() Kind       { return KindFAR }
func (MIR) Kind() Kind       { return KindMIR }
func (MRR) Kind() Kind       { return KindMRR }
func (HBR) Kind() Kind       { return KindHBR }
func (SBR) Kind() Kind       { return KindSBR }
func (SDR) Kind() Kind       { return KindSDR }
func (WIR) Kind() Kind       { return KindWIR }
func (WRR) Kind() Kind       { return KindWRR }
func (PIR) Kind() Kind       { return KindPIR }
func (PRR) Kind() Kind       { return KindPRR }
func (TSR) Kind() Kind       { return KindTSR }
func (PTR) Kind() Kind       { return KindPTR }
func (FTR) Kind() Kind       { return KindFTR }
func (u Unknown) Kind() Kind { return kindOf(u.Typ, u.Sub) }

func (FAR) record()     {}
func (MIR) record()     {}
func (MRR) record()     {}
func (HBR) record()     {}
func (SBR) record()     {}
func (SDR) record()     {}
func (WIR) record()     {}
func (WRR) record()     {}
func (PIR) record()     {}
func (PRR) record()     {}
func (TSR) record()     {}
func (PTR) record()     {}
func (FTR) record()     {}
func (Unknown) record() {}

// Ptr returns a pointer to v. It keeps record literals in tests and fixtures short.
func Ptr[T any](v T) *T { return &v }
