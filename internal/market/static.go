package market

import (
	"context"
	"sync"
)

// Static serves quotes from a fixed table. It backs local development when no
// quote endpoint is configured, and tests.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]*Quote
}

// NewStatic creates an empty table
func NewStatic() *Static {
	return &Static{quotes: make(map[string]*Quote)}
}

// Put registers a quote under its symbol
func (s *Static) Put(q *Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Symbol] = q
}

// Lookup implements Service
func (s *Static) Lookup(ctx context.Context, symbol, _ string) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	return &cp, nil
}
