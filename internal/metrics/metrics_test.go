package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordPriceFetch("price", nil, 0.1)
	m.RecordSubmission("SWAP", "submitted")
	m.SetLedgerRecords(3)
}

func gathered(t *testing.T, registry *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			key := family.GetName()
			for _, label := range metric.GetLabel() {
				key += "," + label.GetValue()
			}
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				out[key] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestRecordsToRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordPriceFetch("pricemulti", nil, 0.2)
	m.RecordPriceFetch("pricemulti", errors.New("boom"), 0.2)
	m.RecordCacheLookup("fresh", 3)
	m.RecordCacheLookup("miss", 0)
	m.SetLedgerRecords(4)

	values := gathered(t, registry)
	assert.Equal(t, 1.0, values["swapper_price_fetches_total,pricemulti,ok"])
	assert.Equal(t, 1.0, values["swapper_price_fetches_total,pricemulti,error"])
	assert.Equal(t, 2.0, values["swapper_price_fetch_duration_seconds,pricemulti"])
	assert.Equal(t, 3.0, values["swapper_price_cache_lookups_total,fresh"])
	assert.NotContains(t, values, "swapper_price_cache_lookups_total,miss")
	assert.Equal(t, 4.0, values["swapper_ledger_records"])
}
