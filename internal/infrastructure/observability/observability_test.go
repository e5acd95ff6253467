package observability

import (
	"testing"

	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/stretchr/testify/assert"
)

type countingCounter struct{ n float64 }

func (c *countingCounter) Add(d float64, _ ...observability.Label) { c.n += d }
func (c *countingCounter) Bind(...observability.Label) observability.BoundCounter {
	return observability.NopCounter().Bind()
}

func TestProviderResolvesRegisteredInstruments(t *testing.T) {
	c := &countingCounter{}
	tel := New(nil, nil, map[observability.MetricKey]observability.Counter{
		observability.MStockOperations: c,
	}, nil)

	tel.Metrics().Counter(observability.MStockOperations).Add(2)
	tel.Metrics().Counter(observability.MUsecaseRequests).Add(5)
	tel.Metrics().Histogram(observability.MUsecaseDuration).Observe(1)

	assert.Equal(t, 2.0, c.n)
	assert.NotNil(t, tel.Tracer())
	assert.NotNil(t, tel.Logger())
}
