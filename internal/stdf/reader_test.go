package stdf

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, order binary.ByteOrder, recs ...Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, order)
	for _, rec := range recs {
		require.NoError(t, w.Write(rec))
	}
	return buf.Bytes()
}

func readAll(t *testing.T, data []byte) ([]Record, error) {
	t.Helper()
	r := NewReader(bytes.NewReader(data))
	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func lotRecords() []Record {
	return []Record{
		MIR{
			SetupTime: 1700000000, StartTime: 1700000100, StationNum: Ptr[uint8](3),
			ModeCode: "P", BurnTime: Ptr[uint16](0), LotID: "LOT1", PartType: "PRODX",
			NodeName: "node-7", TesterType: "V93K", JobName: "PROG", JobRev: "B2",
			FacilityID: "FAB9",
		},
		SDR{HeadNum: 1, SiteGroup: Ptr[uint8](1), Sites: []uint8{1, 2}, HandlerType: "HT", CardID: "PC-01"},
		HBR{HeadNum: Ptr[uint8](1), SiteNum: Ptr[uint8](1), BinNum: Ptr[uint16](1), BinCount: Ptr[uint32](10), BinPF: "P", BinName: "PASS"},
		WIR{HeadNum: 1, SiteGroup: Ptr[uint8](255), StartTime: 1700000200, WaferID: "W01"},
		PIR{HeadNum: 1, SiteNum: 2},
		PTR{
			TestNum: 100, HeadNum: 1, SiteNum: 2, TestFlag: Ptr[uint8](0x80), ParmFlag: Ptr[uint8](0),
			Result: Ptr[float32](1.5), TestText: "VDD", AlarmID: "", OptFlag: Ptr[uint8](0),
			ResScale: Ptr[int8](0), LoScale: Ptr[int8](-3), HiScale: Ptr[int8](-3),
			LoLimit: Ptr[float32](1), HiLimit: Ptr[float32](2), Units: "V",
		},
		FTR{
			TestNum: 200, HeadNum: 1, SiteNum: 2, TestFlag: Ptr[uint8](0), OptFlag: Ptr[uint8](0xff),
			CycleCount: Ptr[uint32](0), RelVAddr: Ptr[uint32](0), RepeatCount: Ptr[uint32](1),
			NumFail: Ptr[uint32](0), XFailAddr: Ptr[int32](0), YFailAddr: Ptr[int32](0),
			VectOffset: Ptr[int16](0), VectorName: "scan", TestText: "SCAN_CHAIN",
		},
		PRR{
			HeadNum: 1, SiteNum: 2, PartFlag: 0x08, NumTest: 2, HardBin: Ptr[uint16](5),
			SoftBin: Ptr[uint16](65535), XCoord: Ptr[int16](-32768), YCoord: Ptr[int16](4),
			TestTime: 120, PartID: "17",
		},
		WRR{HeadNum: 1, SiteGroup: Ptr[uint8](255), FinishTime: 1700000300, PartCount: Ptr[uint32](1), RetestCount: Ptr[uint32](0), AbortCount: Ptr[uint32](0), GoodCount: Ptr[uint32](0), FuncCount: Ptr[uint32](0), WaferID: "W01"},
		TSR{HeadNum: 255, SiteNum: 255, TestType: "P", TestNum: Ptr[uint32](100), ExecCount: Ptr[uint32](1), FailCount: Ptr[uint32](1), AlarmCount: Ptr[uint32](0), TestName: "VDD", SeqName: "power"},
		MRR{FinishTime: 1700000400, DispCode: "X"},
	}
}

func TestReaderDecodesWriterOutputInBothByteOrders(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			want := lotRecords()
			got, err := readAll(t, encode(t, order, want...))
			require.NoError(t, err)
			require.Len(t, got, len(want)+1)
			assert.Equal(t, FAR{CPUType: 2, Version: 4}, got[0])
			for i := range want {
				assert.Equal(t, want[i], got[i+1], "record %d", i)
			}
		})
	}
}

func TestReaderTreatsTruncatedTrailingFieldsAsAbsent(t *testing.T) {
	data := encode(t, nil,
		PTR{TestNum: 7, HeadNum: 1, SiteNum: 1, TestFlag: Ptr[uint8](0), ParmFlag: Ptr[uint8](0), Result: Ptr[float32](3), TestText: "IDD"},
		HBR{HeadNum: Ptr[uint8](1)},
		PRR{HeadNum: 1, SiteNum: 1, PartFlag: 0, NumTest: 1, HardBin: Ptr[uint16](1)},
	)
	got, err := readAll(t, data)
	require.NoError(t, err)
	require.Len(t, got, 4)

	ptr := got[1].(PTR)
	assert.Equal(t, "IDD", ptr.TestText)
	assert.Nil(t, ptr.OptFlag)
	assert.Nil(t, ptr.LoLimit)
	assert.Nil(t, ptr.HiLimit)
	assert.Empty(t, ptr.Units)

	hbr := got[2].(HBR)
	require.NotNil(t, hbr.HeadNum)
	assert.Nil(t, hbr.SiteNum)
	assert.Nil(t, hbr.BinNum)

	prr := got[3].(PRR)
	assert.Equal(t, uint16(1), *prr.HardBin)
	assert.Nil(t, prr.SoftBin)
	assert.Nil(t, prr.XCoord)
	assert.Empty(t, prr.PartID)
}

func TestReaderPassesUnknownRecordsThrough(t *testing.T) {
	got, err := readAll(t, encode(t, nil, Unknown{Typ: 50, Sub: 10, Size: 6}, PIR{HeadNum: 1, SiteNum: 1}))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Unknown{Typ: 50, Sub: 10, Size: 6}, got[1])
	assert.Equal(t, "REC(50,10)", got[1].Kind().String())
	assert.Equal(t, KindPIR, got[2].Kind())
}

func TestReaderRequiresLeadingFAR(t *testing.T) {
	_, err := readAll(t, nil)
	assert.True(t, errors.Is(err, ErrNoFAR))

	var buf bytes.Buffer
	buf.Write([]byte{2, 0, 5, 10, 1, 1})
	_, err = readAll(t, buf.Bytes())
	assert.True(t, errors.Is(err, ErrNoFAR))
}

func TestReaderRejectsOtherVersions(t *testing.T) {
	_, err := readAll(t, encode(t, nil, FAR{CPUType: 2, Version: 3}))
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))
}

func TestReaderReportsTruncatedBody(t *testing.T) {
	data := encode(t, nil, PIR{HeadNum: 1, SiteNum: 1}, MIR{LotID: "LOT1", StationNum: Ptr[uint8](1), BurnTime: Ptr[uint16](0)})
	got, err := readAll(t, data[:len(data)-3])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTruncated))
	assert.Len(t, got, 2)
}

func TestSliceSource(t *testing.T) {
	src := NewSliceSource(PIR{HeadNum: 1, SiteNum: 1})
	rec, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, KindPIR, rec.Kind())
	_, err = src.Next()
	assert.Equal(t, io.EOF, err)
}
