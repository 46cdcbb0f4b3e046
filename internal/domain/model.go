package domain

import "time"

type Company struct {
	ID   uint
	Name string
}

type Product struct {
	ID        uint
	CompanyID uint
	Name      string
}

type Stage struct {
	ID        uint
	ProductID uint
	Name      string
}

type TestProgram struct {
	ID       uint
	StageID  uint
	Name     string
	Revision string
}

type Lot struct {
	ID            uint
	TestProgramID uint
	Identifier    string
	PartType      string
	SetupTime     *time.Time
	StartTime     *time.Time
	FinishTime    *time.Time
	TesterType    string
	NodeName      string
	Facility      string
	Floor         string
	StationNum    *int
	ExecType      string
	ExecVersion   string
	Sublot        string
	Operator      string
	TestTemp      string
	CreatedAt     time.Time
}

type Wafer struct {
	ID          uint
	LotID       uint
	Identifier  string
	HeadNum     int
	SiteGroup   int
	StartTime   *time.Time
	FinishTime  *time.Time
	PartCount   *int64
	GoodCount   *int64
	RetestCount *int64
	AbortCount  *int64
	FuncCount   *int64
}

// WaferClose carries the attributes a WRR writes onto an open wafer. Nil fields
// leave the stored value untouched.
type WaferClose struct {
	FinishTime  *time.Time
	PartCount   *int64
	GoodCount   *int64
	RetestCount *int64
	AbortCount  *int64
	FuncCount   *int64
}

// Die is one tested part. WaferID is nil for packaged parts.
type Die struct {
	ID         uint
	LotID      uint
	WaferID    *uint
	HeadNum    int
	SiteNum    int
	X          *int
	Y          *int
	PartID     string
	PartText   string
	HardBin    *int
	SoftBin    *int
	PartFlag   int
	Passed     *bool
	NumTests   int
	TestTimeMS int64
}

type Bin struct {
	ID          uint
	DieID       uint
	HardBin     int
	SoftBin     *int
	HardBinName string
	SoftBinName string
}

type TestSuite struct {
	ID            uint
	TestProgramID uint
	Name          string
}

type TestDefinition struct {
	ID            uint
	TestProgramID uint
	TestSuiteID   *uint
	TestNum       int64
	TestType      string
	Name          string
	Label         string
	ExecCount     *int64
	FailCount     *int64
	AlarmCount    *int64
}

type TestItem struct {
	ID          uint
	DieID       uint
	TestSuiteID *uint
	TestNum     int64
	TestType    string
	TestText    string
	Result      *float64
	Units       string
	LoLimit     *float64
	HiLimit     *float64
	Failed      *bool
}

const (
	TestTypeParametric = "PTR"
	TestTypeFunctional = "FTR"
)

type SiteEquipment struct {
	ID            uint
	LotID         uint
	HeadNum       int
	SiteGroup     int
	HandlerType   string
	HandlerID     string
	ProbeCardType string
	ProbeCardID   string
	LoadBoardType string
	LoadBoardID   string
	DIBType       string
	DIBID         string
	CableType     string
	CableID       string
	ContactorType string
	ContactorID   string
}

type ImportRun struct {
	ID         string
	Source     string
	FileName   string
	SHA256     string
	Records    int64
	Dies       int64
	TestItems  int64
	Warnings   int64
	LotIDs     []uint
	StartedAt  time.Time
	FinishedAt time.Time
}

type LotSummary struct {
	Lot        Lot
	Company    string
	Product    string
	Stage      string
	Program    string
	Revision   string
	WaferCount int64
	DieCount   int64
	PassCount  int64
	FailCount  int64
	TestItems  int64
}

type BinCount struct {
	Kind  string
	Bin   int
	Name  string
	Count int64
}

type FailCount struct {
	TestNum  int64
	TestType string
	TestText string
	Suite    string
	Fails    int64
	Executed int64
}

type SuiteItems struct {
	Suite string
	Tests []SuiteTest
}

type SuiteTest struct {
	TestNum  int64
	TestType string
	TestText string
	Count    int64
}

type WaferYield struct {
	Wafer Wafer
	Dies  int64
	Pass  int64
	Fail  int64
}

type Overview struct {
	Companies int64
	Products  int64
	Lots      int64
	Wafers    int64
	Dies      int64
	TestItems int64
}
