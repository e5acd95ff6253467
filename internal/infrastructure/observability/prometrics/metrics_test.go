package prometrics

import (
	"testing"

	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterIsRegisteredOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, "cafeteria", "")

	a := r.Counter("stock_operations_total", "help", "operation", "outcome")
	b := r.Counter("stock_operations_total", "help", "operation", "outcome")

	a.Add(1, observability.L("operation", "reserve"), observability.L("outcome", "success"))
	b.Bind(observability.L("operation", "reserve"), observability.L("outcome", "success")).Add(2)

	n, err := testutil.GatherAndCount(reg, "cafeteria_stock_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, ok := r.(*registry).counters.Load("stock_operations_total")
	require.True(t, ok)
	got := testutil.ToFloat64(v.(*prometheus.CounterVec).WithLabelValues("reserve", "success"))
	assert.Equal(t, 3.0, got)
}

func TestStandardCoversEveryKey(t *testing.T) {
	counters, histograms := Standard(New(prometheus.NewRegistry(), "", ""))

	for _, k := range []observability.MetricKey{
		observability.MUsecaseRequests,
		observability.MHTTPRequests,
		observability.MExternalRequests,
		observability.MStockOperations,
		observability.MEventsRelayed,
	} {
		assert.Contains(t, counters, k)
	}
	for _, k := range []observability.MetricKey{
		observability.MUsecaseDuration,
		observability.MHTTPRequestDuration,
		observability.MExternalRequestDuration,
	} {
		assert.Contains(t, histograms, k)
	}
}
