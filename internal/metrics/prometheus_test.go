package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordLoad(t *testing.T) {
	m := NewIngestMetrics()
	okBefore := testutil.ToFloat64(LoadsTotal.WithLabelValues("ok"))
	bytesBefore := testutil.ToFloat64(LoadBytes)

	m.RecordLoad("ok", 2048, 250*time.Millisecond)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(LoadsTotal.WithLabelValues("ok")))
	assert.Equal(t, bytesBefore+2048, testutil.ToFloat64(LoadBytes))
}

func TestRecordCounters(t *testing.T) {
	m := NewIngestMetrics()
	ptr := testutil.ToFloat64(RecordsTotal.WithLabelValues("PTR"))
	dies := testutil.ToFloat64(EntitiesCreated.WithLabelValues("die"))
	orphans := testutil.ToFloat64(WarningsTotal.WithLabelValues("orphaned_buffer"))

	m.RecordRecord("PTR")
	m.RecordRecord("PTR")
	m.RecordCreated("die", 3)
	m.RecordWarning("orphaned_buffer")

	assert.Equal(t, ptr+2, testutil.ToFloat64(RecordsTotal.WithLabelValues("PTR")))
	assert.Equal(t, dies+3, testutil.ToFloat64(EntitiesCreated.WithLabelValues("die")))
	assert.Equal(t, orphans+1, testutil.ToFloat64(WarningsTotal.WithLabelValues("orphaned_buffer")))
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	assert.GreaterOrEqual(t, timer.Duration(), time.Duration(0))
}
