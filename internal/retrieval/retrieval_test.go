package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorchat/backend/internal/intent"
	"mentorchat/backend/internal/market"
)

func loadIndex(t *testing.T) *Index {
	t.Helper()
	docs, err := LoadCorpora("")
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	return NewIndex(docs)
}

func TestEmbeddedCorporaPartitions(t *testing.T) {
	idx := loadIndex(t)

	assert.NotEmpty(t, idx.Documents("philosophy/buffett"))
	assert.NotEmpty(t, idx.Documents("portfolio/wood"))
	assert.NotEmpty(t, idx.Documents("macro/KR"))
	assert.Equal(t, len(idx.Documents("macro/KR"))+len(idx.Documents("macro/US")), len(idx.Documents("macro")))

	for _, d := range idx.Documents("philosophy/lynch") {
		assert.Equal(t, "lynch", d.Persona)
	}
}

func TestBM25RanksMatchingDocumentFirst(t *testing.T) {
	idx := loadIndex(t)

	hits := idx.Retrieve(context.Background(), "philosophy/buffett", "버핏의 인플레이션 관점은?", 3)
	require.NotEmpty(t, hits)
	assert.True(t, strings.HasPrefix(hits[0].SourceID, "buffett-inflation"), hits[0].SourceID)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestRetrieveNeverFails(t *testing.T) {
	idx := loadIndex(t)

	assert.Empty(t, idx.Retrieve(context.Background(), "philosophy/buffett", "", 5))
	assert.Empty(t, idx.Retrieve(context.Background(), "philosophy/nobody", "인플레이션", 5))
	assert.Empty(t, idx.Retrieve(context.Background(), "philosophy/buffett", "zzzz qqqq", 5))
	assert.NotNil(t, idx.Retrieve(context.Background(), "philosophy/buffett", "인플레이션", 0))
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	idx := loadIndex(t)

	hits := idx.Recent(context.Background(), "macro/US", 2)
	require.Len(t, hits, 2)
	assert.Equal(t, "us-macro-2024q2", hits[0].SourceID)
	assert.Equal(t, "us-macro-2024q1", hits[1].SourceID)
}

func TestLatestBySector(t *testing.T) {
	idx := loadIndex(t)

	docs := idx.Latest(CorpusMacro, []string{"자동차·부품"}, 5)
	require.Len(t, docs, 2)
	assert.Equal(t, "kr-macro-2024q2", docs[0].ID)
}

func TestRouteTable(t *testing.T) {
	r := DefaultRouter()
	ent := intent.Entities{Symbols: []string{"삼성전자", "애플"}, Region: "KR"}

	tests := []struct {
		in      intent.Intent
		corpora []string
		topK    []int
		market  int
	}{
		{intent.Philosophy, []string{"philosophy/buffett"}, []int{5}, 0},
		{intent.StockAnalysis, []string{"philosophy/buffett", "portfolio/buffett"}, []int{3, 3}, 2},
		{intent.StockMetrics, []string{"philosophy/buffett"}, []int{1}, 2},
		{intent.StockComparison, []string{"philosophy/buffett"}, []int{3}, 2},
		{intent.MacroOutlook, []string{"macro/KR", "philosophy/buffett"}, []int{4, 2}, 0},
		{intent.NewsAnalysis, []string{"macro/KR", "philosophy/buffett"}, []int{3, 3}, 2},
		{intent.ResearchAnalysis, []string{"macro/KR", "philosophy/buffett"}, []int{3, 3}, 2},
		{intent.Smalltalk, nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			plan := r.Route(tt.in, ent, "buffett", "q")
			var parts []string
			var ks []int
			for _, q := range plan.Corpora {
				parts = append(parts, q.Partition)
				ks = append(ks, q.TopK)
				assert.GreaterOrEqual(t, q.TopK, 1)
				assert.LessOrEqual(t, q.TopK, 5)
			}
			assert.Equal(t, tt.corpora, parts)
			assert.Equal(t, tt.topK, ks)
			assert.Len(t, plan.Market, tt.market)
		})
	}

	assert.True(t, r.Route(intent.Smalltalk, ent, "buffett", "hi").Skip())
}

func TestRouteMacroUsesRecencyWindow(t *testing.T) {
	plan := DefaultRouter().Route(intent.MacroOutlook, intent.Entities{}, "lynch", "경기 전망")

	require.NotEmpty(t, plan.Corpora)
	assert.Equal(t, "macro", plan.Corpora[0].Partition)
	assert.Equal(t, 4, plan.Corpora[0].Recent)
}

func TestRoutePortfolioTopicAddsCorpus(t *testing.T) {
	ent := intent.Entities{TopicKeywords: []string{"포트폴리오"}}
	plan := DefaultRouter().Route(intent.Philosophy, ent, "wood", "포트폴리오 철학")

	assert.True(t, plan.has(CorpusPortfolio))
}

func TestWidenBroadensCorpora(t *testing.T) {
	r := DefaultRouter()
	plan := r.Route(intent.MacroOutlook, intent.Entities{Region: "US"}, "buffett", "금리")
	wide := r.Widen(plan)

	assert.True(t, wide.Widened)
	assert.False(t, plan.Widened)
	assert.True(t, wide.has(CorpusPhilosophy))
	assert.True(t, wide.has(CorpusPortfolio))
	for _, q := range wide.Corpora {
		assert.Equal(t, 10, q.TopK)
	}
	// the original plan is untouched
	assert.Len(t, plan.Corpora, 2)
}

type stubRetriever struct {
	calls atomic.Int32
	panic bool
}

func (s *stubRetriever) Retrieve(_ context.Context, partition, _ string, topK int) []Snippet {
	s.calls.Add(1)
	if s.panic && strings.HasPrefix(partition, "portfolio") {
		panic("boom")
	}
	return []Snippet{{Text: partition, SourceID: partition, Score: float64(topK)}}
}

type failingMarket struct{}

func (failingMarket) Lookup(_ context.Context, symbol, _ string) (*market.Quote, error) {
	if symbol == "삼성전자" {
		return &market.Quote{Symbol: symbol, Price: 70000}, nil
	}
	if symbol == "카카오" {
		return nil, market.ErrNotFound
	}
	return nil, errors.New("upstream down")
}

func TestFetchToleratesPartialFailure(t *testing.T) {
	ret := &stubRetriever{panic: true}
	f := NewFetcher(ret, failingMarket{}, nil)

	plan := Plan{
		Query: "q",
		Corpora: []CorpusQuery{
			philosophy("buffett", 3),
			portfolio("buffett", 3),
		},
		Market: []MarketQuery{{Symbol: "삼성전자"}, {Symbol: "카카오"}, {Symbol: "애플"}},
	}
	res := f.Fetch(context.Background(), plan)

	assert.Equal(t, int32(2), ret.calls.Load())
	require.Len(t, res.Snippets, 1)
	assert.Equal(t, "philosophy/buffett", res.Snippets[0].SourceID)
	require.Len(t, res.Quotes, 1)
	assert.Equal(t, "삼성전자", res.Quotes[0].Symbol)
}

func TestFetchArtifactIsTopSnippet(t *testing.T) {
	f := NewFetcher(&stubRetriever{}, nil, nil)

	res := f.Fetch(context.Background(), Plan{
		Artifact: "기사 본문",
		Corpora:  []CorpusQuery{philosophy("lynch", 3)},
		Market:   []MarketQuery{{Symbol: "삼성전자"}},
	})

	require.Len(t, res.Snippets, 2)
	assert.Equal(t, "기사 본문", res.Snippets[0].Text)
	assert.Equal(t, 1.0, res.Snippets[0].Score)
	assert.Empty(t, res.Quotes)
}

func TestFetchUsesRecentForWindowedQueries(t *testing.T) {
	idx := loadIndex(t)
	f := NewFetcher(idx, nil, nil)

	res := f.Fetch(context.Background(), Plan{
		Query:   "아무 관련 없는 질문",
		Corpora: []CorpusQuery{macro("KR", 4, 4)},
	})

	require.Len(t, res.Snippets, 4)
	assert.Equal(t, "kr-macro-2024q2", res.Snippets[0].SourceID)
}
