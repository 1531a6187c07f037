package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordEvent(KindReturnDO, OutcomeConflict)
	m.RecordEvent(KindReturnDO, OutcomeConflict)
	m.RecordAnomaly()
	m.RecordNotification("missing_total_liters", NoticeEmitted)
	m.ObserveSince("create_going", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues(KindReturnDO, OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BalanceAnomaliesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("missing_total_liters", NoticeEmitted)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordEvent(KindLPO, OutcomeLinked)
		m.RecordAnomaly()
		m.RecordNotification("both", NoticeDeduplicated)
		m.ObserveSince("details", time.Now())
	})
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
