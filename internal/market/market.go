// Package market looks up stock quotes and fundamentals for resolved symbols.
package market

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the provider has no quote for a symbol.
var ErrNotFound = errors.New("market: symbol not found")

// Regions
const (
	RegionKR = "KR"
	RegionUS = "US"
)

// Quote is one market snapshot. Metrics is keyed by metric code (PER, PBR, ...).
type Quote struct {
	Symbol   string             `json:"symbol"`
	Name     string             `json:"name"`
	Ticker   string             `json:"ticker"`
	Region   string             `json:"region"`
	Currency string             `json:"currency"`
	Price    float64            `json:"price"`
	Metrics  map[string]float64 `json:"metrics"`
	AsOf     time.Time          `json:"as_of"`
}

// Metric returns a metric value, reading CUR from Price.
func (q *Quote) Metric(code string) (float64, bool) {
	if q == nil {
		return 0, false
	}
	if code == "CUR" {
		return q.Price, q.Price > 0
	}
	v, ok := q.Metrics[code]
	return v, ok
}

// Service is the market-data collaborator.
type Service interface {
	Lookup(ctx context.Context, symbol, region string) (*Quote, error)
}
