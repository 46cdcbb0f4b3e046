package gormstore

import "time"

type CompanyModel struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:255;not null;uniqueIndex"`
}

func (CompanyModel) TableName() string { return "company" }

type ProductModel struct {
	ID        uint   `gorm:"primaryKey"`
	CompanyID uint   `gorm:"not null;uniqueIndex:uq_company_product"`
	Name      string `gorm:"size:255;not null;uniqueIndex:uq_company_product"`
}

func (ProductModel) TableName() string { return "product" }

type StageModel struct {
	ID        uint   `gorm:"primaryKey"`
	ProductID uint   `gorm:"not null;uniqueIndex:uq_product_stage"`
	Name      string `gorm:"size:255;not null;uniqueIndex:uq_product_stage"`
}

func (StageModel) TableName() string { return "stage" }

type TestProgramModel struct {
	ID       uint   `gorm:"primaryKey"`
	StageID  uint   `gorm:"not null;uniqueIndex:uq_stage_program"`
	Name     string `gorm:"size:255;not null;uniqueIndex:uq_stage_program"`
	Revision string `gorm:"size:64;not null;uniqueIndex:uq_stage_program"`
}

func (TestProgramModel) TableName() string { return "test_program" }

type LotModel struct {
	ID            uint   `gorm:"primaryKey"`
	TestProgramID uint   `gorm:"not null;uniqueIndex:uq_program_lot"`
	Identifier    string `gorm:"size:255;not null;uniqueIndex:uq_program_lot"`
	PartType      string `gorm:"size:255"`
	SetupTime     *time.Time
	StartTime     *time.Time
	FinishTime    *time.Time
	TesterType    string `gorm:"size:64"`
	NodeName      string `gorm:"size:64"`
	Facility      string `gorm:"size:64"`
	Floor         string `gorm:"size:64"`
	StationNum    *int
	ExecType      string `gorm:"size:64"`
	ExecVersion   string `gorm:"size:64"`
	Sublot        string `gorm:"size:64"`
	Operator      string `gorm:"size:64"`
	TestTemp      string `gorm:"size:64"`
	CreatedAt     time.Time
}

func (LotModel) TableName() string { return "lot" }

type WaferModel struct {
	ID          uint   `gorm:"primaryKey"`
	LotID       uint   `gorm:"not null;uniqueIndex:uq_lot_wafer"`
	Identifier  string `gorm:"size:255;not null;uniqueIndex:uq_lot_wafer"`
	HeadNum     int    `gorm:"not null;uniqueIndex:uq_lot_wafer"`
	SiteGroup   int    `gorm:"not null"`
	StartTime   *time.Time
	FinishTime  *time.Time
	PartCount   *int64
	GoodCount   *int64
	RetestCount *int64
	AbortCount  *int64
	FuncCount   *int64
}

func (WaferModel) TableName() string { return "wafer" }

type DieModel struct {
	ID         uint  `gorm:"primaryKey"`
	LotID      uint  `gorm:"not null;index"`
	WaferID    *uint `gorm:"index"`
	HeadNum    int   `gorm:"not null"`
	SiteNum    int   `gorm:"not null"`
	X          *int
	Y          *int
	PartID     string `gorm:"size:255"`
	PartText   string `gorm:"size:255"`
	HardBin    *int
	SoftBin    *int
	PartFlag   int `gorm:"not null"`
	Passed     *bool
	NumTests   int   `gorm:"not null"`
	TestTimeMS int64 `gorm:"column:test_time_ms;not null"`
}

func (DieModel) TableName() string { return "die" }

type BinModel struct {
	ID          uint `gorm:"primaryKey"`
	DieID       uint `gorm:"not null;uniqueIndex"`
	HardBin     int  `gorm:"not null"`
	SoftBin     *int
	HardBinName string `gorm:"size:255"`
	SoftBinName string `gorm:"size:255"`
}

func (BinModel) TableName() string { return "bin" }

type TestSuiteModel struct {
	ID            uint   `gorm:"primaryKey"`
	TestProgramID uint   `gorm:"not null;uniqueIndex:uq_program_suite"`
	Name          string `gorm:"size:255;not null;uniqueIndex:uq_program_suite"`
}

func (TestSuiteModel) TableName() string { return "test_suite" }

type TestDefinitionModel struct {
	ID            uint   `gorm:"primaryKey"`
	TestProgramID uint   `gorm:"not null;uniqueIndex:uq_program_test_num"`
	TestSuiteID   *uint  `gorm:"index"`
	TestNum       int64  `gorm:"not null;uniqueIndex:uq_program_test_num"`
	TestType      string `gorm:"size:8"`
	Name          string `gorm:"size:512"`
	Label         string `gorm:"size:255"`
	ExecCount     *int64
	FailCount     *int64
	AlarmCount    *int64
}

func (TestDefinitionModel) TableName() string { return "test_definition" }

type TestItemModel struct {
	ID          uint   `gorm:"primaryKey"`
	DieID       uint   `gorm:"not null;uniqueIndex:uq_die_test"`
	TestSuiteID *uint  `gorm:"index"`
	TestNum     int64  `gorm:"not null;uniqueIndex:uq_die_test"`
	TestType    string `gorm:"size:8;not null;uniqueIndex:uq_die_test"`
	TestText    string `gorm:"size:512"`
	Result      *float64
	Units       string `gorm:"size:64"`
	LoLimit     *float64
	HiLimit     *float64
	Failed      *bool
}

func (TestItemModel) TableName() string { return "test_item" }

type SiteEquipmentModel struct {
	ID            uint   `gorm:"primaryKey"`
	LotID         uint   `gorm:"not null;uniqueIndex:uq_lot_head_site"`
	HeadNum       int    `gorm:"not null;uniqueIndex:uq_lot_head_site"`
	SiteGroup     int    `gorm:"not null;uniqueIndex:uq_lot_head_site"`
	HandlerType   string `gorm:"size:128"`
	HandlerID     string `gorm:"size:128"`
	ProbeCardType string `gorm:"size:128"`
	ProbeCardID   string `gorm:"size:128"`
	LoadBoardType string `gorm:"size:128"`
	LoadBoardID   string `gorm:"size:128"`
	DIBType       string `gorm:"column:dib_type;size:128"`
	DIBID         string `gorm:"column:dib_id;size:128"`
	CableType     string `gorm:"size:128"`
	CableID       string `gorm:"size:128"`
	ContactorType string `gorm:"size:128"`
	ContactorID   string `gorm:"size:128"`
}

func (SiteEquipmentModel) TableName() string { return "site_equipment" }

type ImportRunModel struct {
	ID         string `gorm:"primaryKey;size:36"`
	Source     string `gorm:"not null"`
	FileName   string `gorm:"size:255"`
	SHA256     string `gorm:"column:sha256;size:64"`
	Records    int64
	Dies       int64
	TestItems  int64
	Warnings   int64
	LotIDs     string `gorm:"column:lot_ids"`
	StartedAt  time.Time
	FinishedAt time.Time
}

func (ImportRunModel) TableName() string { return "import_run" }
