package retrieval

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"mentorchat/backend/internal/market"
	"mentorchat/backend/pkg/logger"
)

const artifactSourceID = "artifact"

// Result is the immutable output of one fetch.
type Result struct {
	Snippets []Snippet       `json:"snippets"`
	Quotes   []*market.Quote `json:"market_data,omitempty"`
}

// Empty reports whether the fetch produced no usable context.
func (r Result) Empty() bool {
	return len(r.Snippets) == 0 && len(r.Quotes) == 0
}

// Fetcher executes plans against the retriever and the market-data service.
type Fetcher struct {
	retriever Retriever
	market    market.Service
	logger    *logger.Logger
	tracer    trace.Tracer
}

// NewFetcher creates a fetcher. A nil market service skips market lookups.
func NewFetcher(retriever Retriever, marketSvc market.Service, log *logger.Logger) *Fetcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Fetcher{
		retriever: retriever,
		market:    marketSvc,
		logger:    log.WithComponent("retrieval"),
		tracer:    otel.Tracer("mentorchat/retrieval"),
	}
}

// Fetch issues every corpus and market call in the plan concurrently and waits
// for all of them. A failing source contributes nothing; the fetch itself
// never fails. Output order follows plan order.
func (f *Fetcher) Fetch(ctx context.Context, plan Plan) Result {
	ctx, span := f.tracer.Start(ctx, "retrieval.Fetch", trace.WithAttributes(
		attribute.String("intent", string(plan.Intent)),
		attribute.Int("corpora", len(plan.Corpora)),
		attribute.Int("market", len(plan.Market)),
		attribute.Bool("widened", plan.Widened),
	))
	defer span.End()

	snippets := make([][]Snippet, len(plan.Corpora))
	quotes := make([]*market.Quote, len(plan.Market))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range plan.Corpora {
		g.Go(func() error {
			snippets[i] = f.retrieve(gctx, plan.Query, q)
			return nil
		})
	}
	if f.market != nil {
		for i, q := range plan.Market {
			g.Go(func() error {
				quote, err := f.market.Lookup(gctx, q.Symbol, q.Region)
				switch {
				case errors.Is(err, market.ErrNotFound):
					f.logger.Debug("no quote", "symbol", q.Symbol)
				case err != nil:
					f.logger.Warn("market lookup failed", "symbol", q.Symbol, "error", err)
				default:
					quotes[i] = quote
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	var res Result
	if plan.Artifact != "" {
		res.Snippets = append(res.Snippets, Snippet{Text: plan.Artifact, SourceID: artifactSourceID, Score: 1})
	}
	for _, s := range snippets {
		res.Snippets = append(res.Snippets, s...)
	}
	for _, q := range quotes {
		if q != nil {
			res.Quotes = append(res.Quotes, q)
		}
	}

	span.SetAttributes(attribute.Int("snippets", len(res.Snippets)), attribute.Int("quotes", len(res.Quotes)))
	return res
}

func (f *Fetcher) retrieve(ctx context.Context, query string, q CorpusQuery) []Snippet {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("retriever panicked", "partition", q.Partition, "panic", r)
		}
	}()

	if q.Recent > 0 {
		if rr, ok := f.retriever.(RecentRetriever); ok {
			return rr.Recent(ctx, q.Partition, q.Recent)
		}
	}
	return f.retriever.Retrieve(ctx, q.Partition, query, q.TopK)
}
