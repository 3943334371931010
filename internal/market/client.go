package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mentorchat/backend/pkg/config"
	"mentorchat/backend/pkg/logger"
)

// HTTPClient queries a JSON quote endpoint: GET {base}/quotes/{ticker}?region=KR
type HTTPClient struct {
	client  *http.Client
	baseURL string
	logger  *logger.Logger
}

// NewHTTPClient creates a client from market settings
func NewHTTPClient(cfg *config.Config, log *logger.Logger) *HTTPClient {
	if log == nil {
		log = logger.Discard()
	}
	return &HTTPClient{
		client:  &http.Client{Timeout: cfg.Market.Timeout},
		baseURL: strings.TrimRight(cfg.Market.BaseURL, "/"),
		logger:  log.WithComponent("market"),
	}
}

type quoteResponse struct {
	Ticker   string             `json:"ticker"`
	Name     string             `json:"name"`
	Currency string             `json:"currency"`
	Price    float64            `json:"price"`
	Metrics  map[string]float64 `json:"metrics"`
	AsOf     time.Time          `json:"as_of"`
}

// Lookup implements Service
func (c *HTTPClient) Lookup(ctx context.Context, symbol, region string) (*Quote, error) {
	listing, ok := Resolve(symbol)
	if !ok {
		return nil, ErrNotFound
	}
	if region == "" || listing.Region != "" {
		region = listing.Region
	}

	endpoint := fmt.Sprintf("%s/quotes/%s?region=%s", c.baseURL, url.PathEscape(listing.Ticker), url.QueryEscape(region))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("quote request failed", "ticker", listing.Ticker, "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("market: %s returned %d", listing.Ticker, resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("market: decode %s: %w", listing.Ticker, err)
	}

	q := &Quote{
		Symbol:   symbol,
		Name:     listing.Name,
		Ticker:   listing.Ticker,
		Region:   region,
		Currency: body.Currency,
		Price:    body.Price,
		Metrics:  body.Metrics,
		AsOf:     body.AsOf,
	}
	if body.Name != "" && listing.Name == listing.Ticker {
		q.Name = body.Name
	}
	if q.Currency == "" {
		q.Currency = CurrencyFor(region)
	}
	if q.Metrics == nil {
		q.Metrics = map[string]float64{}
	}
	return q, nil
}
