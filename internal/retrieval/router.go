// Package retrieval decides which corpora and market lookups an intent needs
// and fetches them concurrently.
package retrieval

import (
	"slices"

	"mentorchat/backend/internal/intent"
	"mentorchat/backend/pkg/config"
)

// CorpusQuery is one retriever call in a plan. Recent > 0 selects the newest
// records of the partition instead of scoring against the query.
type CorpusQuery struct {
	Corpus    string `json:"corpus"`
	Partition string `json:"partition"`
	TopK      int    `json:"top_k"`
	Recent    int    `json:"recent,omitempty"`
}

// MarketQuery is one market-data lookup in a plan.
type MarketQuery struct {
	Symbol string `json:"symbol"`
	Region string `json:"region,omitempty"`
}

// Plan describes everything a single fetch will ask for.
type Plan struct {
	Intent   intent.Intent `json:"intent"`
	Persona  string        `json:"persona"`
	Query    string        `json:"query"`
	Corpora  []CorpusQuery `json:"corpora"`
	Market   []MarketQuery `json:"market,omitempty"`
	Artifact string        `json:"artifact,omitempty"`
	Widened  bool          `json:"widened,omitempty"`
}

// Skip reports whether the plan needs no retrieval at all.
func (p Plan) Skip() bool {
	return len(p.Corpora) == 0 && len(p.Market) == 0 && p.Artifact == ""
}

// Router holds the snippet budgets used to build plans.
type Router struct {
	DefaultTopK int
	RefineTopK  int
	MacroRecent int
}

// NewRouter reads budgets from the retrieval settings
func NewRouter(cfg *config.Config) *Router {
	return &Router{
		DefaultTopK: cfg.Retrieval.DefaultTopK,
		RefineTopK:  cfg.Retrieval.RefineTopK,
		MacroRecent: cfg.Retrieval.MacroRecent,
	}
}

// DefaultRouter uses the stock budgets: 5 snippets, 10 on refine, 4 recent macro records.
func DefaultRouter() *Router {
	return &Router{DefaultTopK: 5, RefineTopK: 10, MacroRecent: 4}
}

func philosophy(persona string, k int) CorpusQuery {
	return CorpusQuery{Corpus: CorpusPhilosophy, Partition: CorpusPhilosophy + "/" + persona, TopK: k}
}

func portfolio(persona string, k int) CorpusQuery {
	return CorpusQuery{Corpus: CorpusPortfolio, Partition: CorpusPortfolio + "/" + persona, TopK: k}
}

func macro(region string, k, recent int) CorpusQuery {
	p := CorpusMacro
	if region != "" {
		p += "/" + region
	}
	return CorpusQuery{Corpus: CorpusMacro, Partition: p, TopK: k, Recent: recent}
}

func marketFor(ent intent.Entities) []MarketQuery {
	out := make([]MarketQuery, 0, len(ent.Symbols))
	for _, s := range ent.Symbols {
		out = append(out, MarketQuery{Symbol: s, Region: ent.Region})
	}
	return out
}

// Route maps an intent and its entities to a retrieval plan. It is a pure
// table lookup: the same inputs always produce the same plan.
func (r *Router) Route(in intent.Intent, ent intent.Entities, persona, query string) Plan {
	plan := Plan{Intent: in, Persona: persona, Query: query}
	k := clampTopK(r.DefaultTopK)

	switch in {
	case intent.Philosophy:
		plan.Corpora = []CorpusQuery{philosophy(persona, k)}
	case intent.StockAnalysis:
		plan.Corpora = []CorpusQuery{philosophy(persona, 3), portfolio(persona, 3)}
		plan.Market = marketFor(ent)
	case intent.StockMetrics:
		plan.Corpora = []CorpusQuery{philosophy(persona, 1)}
		plan.Market = marketFor(ent)
	case intent.StockComparison:
		plan.Corpora = []CorpusQuery{philosophy(persona, 3)}
		plan.Market = marketFor(ent)
	case intent.MacroOutlook:
		plan.Corpora = []CorpusQuery{
			macro(ent.Region, r.MacroRecent, r.MacroRecent),
			philosophy(persona, 2),
		}
	case intent.NewsAnalysis, intent.ResearchAnalysis:
		plan.Corpora = []CorpusQuery{macro(ent.Region, 3, 0), philosophy(persona, 3)}
		plan.Market = marketFor(ent)
	default:
		return plan
	}

	if slices.Contains(ent.TopicKeywords, "포트폴리오") && !plan.has(CorpusPortfolio) {
		plan.Corpora = append(plan.Corpora, portfolio(persona, 3))
	}
	return plan
}

// Widen returns the refine-pass plan: every corpus query gets the refine
// budget and the philosophy and portfolio corpora are always included.
func (r *Router) Widen(p Plan) Plan {
	out := p
	out.Widened = true
	out.Corpora = make([]CorpusQuery, 0, len(p.Corpora)+2)
	for _, q := range p.Corpora {
		q.TopK = r.RefineTopK
		out.Corpora = append(out.Corpora, q)
	}
	if !out.has(CorpusPhilosophy) {
		out.Corpora = append(out.Corpora, philosophy(p.Persona, r.RefineTopK))
	}
	if !out.has(CorpusPortfolio) {
		out.Corpora = append(out.Corpora, portfolio(p.Persona, r.RefineTopK))
	}
	out.Market = slices.Clone(p.Market)
	return out
}

func (p Plan) has(corpus string) bool {
	for _, q := range p.Corpora {
		if q.Corpus == corpus {
			return true
		}
	}
	return false
}

func clampTopK(k int) int {
	switch {
	case k < 1:
		return 1
	case k > 5:
		return 5
	default:
		return k
	}
}
