package model

import "time"

// QuoteEntry is a cached market price for a symbol in a quote currency.
type QuoteEntry struct {
	Symbol        string    `json:"symbol"`
	QuoteCurrency string    `json:"quote_currency"`
	Price         float64   `json:"price"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Fresh reports whether the entry is younger than ttl at now.
func (e QuoteEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// Candle is one bar of price history.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}
