package pricing

import "fmt"

// HistoryLimit is the number of candles requested per chart.
const HistoryLimit = 100

// HistorySpec selects a candle endpoint and aggregation.
type HistorySpec struct {
	Endpoint  string
	Aggregate int
	Limit     int
}

var intervalOrder = []string{"1h", "4h", "1d", "1w", "1M"}

var intervals = map[string]HistorySpec{
	"1h": {Endpoint: "histominute", Aggregate: 1, Limit: HistoryLimit},
	"4h": {Endpoint: "histominute", Aggregate: 4, Limit: HistoryLimit},
	"1d": {Endpoint: "histohour", Aggregate: 1, Limit: HistoryLimit},
	"1w": {Endpoint: "histohour", Aggregate: 4, Limit: HistoryLimit},
	"1M": {Endpoint: "histoday", Aggregate: 1, Limit: HistoryLimit},
}

// ParseInterval maps a chart interval (1h, 4h, 1d, 1w, 1M) to its spec.
func ParseInterval(interval string) (HistorySpec, error) {
	spec, ok := intervals[interval]
	if !ok {
		return HistorySpec{}, fmt.Errorf("unsupported interval %q (want one of %v)", interval, intervalOrder)
	}
	return spec, nil
}

// Intervals lists the supported chart intervals.
func Intervals() []string {
	return append([]string(nil), intervalOrder...)
}
