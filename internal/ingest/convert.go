package ingest

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zxspring21/AISEMITEST/internal/domain"
	"github.com/zxspring21/AISEMITEST/internal/stdf"
	"go.uber.org/zap"
)

const (
	missingCoord = math.MinInt16
	noSoftBin    = math.MaxUint16
	missingCount = math.MaxUint32
	invalidTime  = math.MaxUint32

	// TEST_FLG bit 7: the test failed.
	testFailed = 0x80

	// OPT_FLAG bits that invalidate the low and high limits.
	noLoLimit = 0x10 | 0x40
	noHiLimit = 0x20 | 0x80

	// PART_FLG bits: 0x08 the part failed, 0x10 no pass/fail indication.
	partFailed    = 0x08
	partNoVerdict = 0x10
)

func parametricItem(r stdf.PTR) domain.TestItem {
	it := domain.TestItem{
		TestNum:  int64(r.TestNum),
		TestType: domain.TestTypeParametric,
		TestText: clip(r.TestText, 512),
		Units:    clip(r.Units, 64),
		Result:   finite(r.Result),
		LoLimit:  finite(r.LoLimit),
		HiLimit:  finite(r.HiLimit),
		Failed:   failed(r.TestFlag),
	}
	if r.OptFlag != nil {
		if *r.OptFlag&noLoLimit != 0 {
			it.LoLimit = nil
		}
		if *r.OptFlag&noHiLimit != 0 {
			it.HiLimit = nil
		}
	}
	return it
}

func functionalItem(r stdf.FTR) domain.TestItem {
	return domain.TestItem{
		TestNum:  int64(r.TestNum),
		TestType: domain.TestTypeFunctional,
		TestText: clip(r.TestText, 512),
		Failed:   failed(r.TestFlag),
	}
}

func failed(flag *uint8) *bool {
	if flag == nil {
		return nil
	}
	v := *flag&testFailed != 0
	return &v
}

func partPassed(flag uint8) *bool {
	if flag&partNoVerdict != 0 {
		return nil
	}
	v := flag&partFailed == 0
	return &v
}

// timestamp converts an STDF epoch-seconds field. Zero means unset; the all-ones
// value is reported as invalid.
func (l *Loader) timestamp(rec stdf.Kind, field string, v uint32) *time.Time {
	switch v {
	case 0:
		return nil
	case invalidTime:
		l.warn(KindInvalidTimestamp, rec, "timestamp out of range", zap.String("field", field), zap.Uint32("value", v))
		return nil
	}
	t := time.Unix(int64(v), 0).UTC()
	return &t
}

func finite(v *float32) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func count(v *uint32) *int64 {
	if v == nil || *v == missingCount {
		return nil
	}
	n := int64(*v)
	return &n
}

func coord(v *int16) *int {
	if v == nil || *v == missingCoord {
		return nil
	}
	n := int(*v)
	return &n
}

func softBin(v *uint16) *int {
	if v == nil || *v == noSoftBin {
		return nil
	}
	n := int(*v)
	return &n
}

func intPtr[T uint8 | uint16](v *T) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func siteGroup(v *uint8) int {
	if v == nil {
		return allSites
	}
	return int(*v)
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// clip trims s and cuts it to at most n runes.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
