// Package intent maps raw message text to one Intent plus extracted entities.
//
// Classification is rule based and total: every input, including the empty
// string, yields exactly one Intent. Rules are evaluated in a fixed priority
// order and the first match wins, so results are reproducible.
package intent

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Intent is the discrete request category that drives retrieval and generation.
type Intent string

const (
	Smalltalk        Intent = "SMALLTALK"
	Philosophy       Intent = "PHILOSOPHY"
	StockMetrics     Intent = "STOCK_METRICS"
	StockAnalysis    Intent = "STOCK_ANALYSIS"
	StockComparison  Intent = "STOCK_COMPARISON"
	MacroOutlook     Intent = "MACRO_OUTLOOK"
	NewsAnalysis     Intent = "NEWS_ANALYSIS"
	ResearchAnalysis Intent = "RESEARCH_ANALYSIS"
)

// All lists every intent in classification priority order.
var All = []Intent{
	NewsAnalysis, ResearchAnalysis, StockComparison, StockAnalysis,
	StockMetrics, MacroOutlook, Philosophy, Smalltalk,
}

// Entities are the structured fields extracted alongside the intent.
type Entities struct {
	Symbols          []string `json:"symbols"`
	Region           string   `json:"region,omitempty"`
	RequestedMetrics []string `json:"requested_metrics"`
	TopicKeywords    []string `json:"topic_keywords"`
	URLs             []string `json:"urls,omitempty"`
}

// Result is the classifier output.
type Result struct {
	Intent   Intent   `json:"intent"`
	Entities Entities `json:"entities"`
}

// Classifier is the single entry point every call site depends on.
type Classifier interface {
	Classify(text string) Result
}

// Rules is the keyword classifier. The zero value is ready to use.
type Rules struct{}

// Default is the process-wide classifier.
var Default Classifier = Rules{}

// Classify runs the default classifier.
func Classify(text string) Result {
	return Default.Classify(text)
}

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s<>"']+`)
	krCodePattern = regexp.MustCompile(`(^|[^0-9])([0-9]{6})([^0-9]|$)`)
)

// ExtractURLs returns the http(s) links in text in order of appearance.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(norm.NFKC.String(text), -1)
}

// input is the normalized view of one message shared by all rules.
type input struct {
	text    string // NFKC, lower-cased, URLs removed
	compact string // text without whitespace, for multi-word Korean cues
	tokens  map[string]bool
}

func prepare(raw string) (input, []string) {
	s := norm.NFKC.String(raw)
	urls := urlPattern.FindAllString(s, -1)
	s = urlPattern.ReplaceAllString(s, " ")
	s = strings.ToLower(s)

	in := input{
		text:    s,
		compact: strings.Join(strings.Fields(s), ""),
		tokens:  asciiTokens(s),
	}
	return in, urls
}

// asciiTokens splits on everything that is not an ASCII letter, digit or '&'.
// Hangul acts as a separator, so "per은" yields "per".
func asciiTokens(s string) map[string]bool {
	out := make(map[string]bool)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&'))
	})
	for _, f := range fields {
		out[f] = true
	}
	return out
}

func isASCII(s string) bool {
	for _, r := range s {
		if r >= unicode.MaxASCII {
			return false
		}
	}
	return true
}

// contains reports whether term occurs in the input, honoring token rules.
func (in input) contains(term string) bool {
	if isASCII(term) && !strings.Contains(term, " ") {
		return in.tokens[term]
	}
	if strings.Contains(in.text, term) {
		return true
	}
	return strings.Contains(in.compact, strings.ReplaceAll(term, " ", ""))
}

// index returns the earliest byte offset of term, or -1.
func (in input) index(term string) int {
	if isASCII(term) && !strings.Contains(term, " ") {
		if !in.tokens[term] {
			return -1
		}
		best := -1
		for off := 0; off < len(in.text); {
			i := strings.Index(in.text[off:], term)
			if i < 0 {
				break
			}
			pos := off + i
			end := pos + len(term)
			if boundary(in.text, pos-1) && boundary(in.text, end) {
				best = pos
				break
			}
			off = pos + 1
		}
		return best
	}
	return strings.Index(in.text, term)
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '&')
}

func (in input) any(terms []string) bool {
	for _, t := range terms {
		if in.contains(t) {
			return true
		}
	}
	return false
}

// Classify implements Classifier.
func (Rules) Classify(text string) Result {
	in, urls := prepare(text)

	ent := Entities{
		Symbols:          extractSymbols(in),
		Region:           extractRegion(in),
		RequestedMetrics: extractMetrics(in),
		TopicKeywords:    extractTopics(in),
		URLs:             urls,
	}

	return Result{Intent: decide(in, ent), Entities: ent}
}

func decide(in input, ent Entities) Intent {
	nSym := len(ent.Symbols)
	nMet := len(ent.RequestedMetrics)

	switch {
	case len(ent.URLs) > 0 || in.any(newsCues):
		return NewsAnalysis
	case in.any(researchCues):
		return ResearchAnalysis
	case nSym >= 2 || (nSym >= 1 && in.any(comparisonCues)):
		return StockComparison
	case nSym >= 1 && (nMet == 0 || in.any(analysisCues)):
		return StockAnalysis
	case nSym >= 1 && nMet > 0:
		return StockMetrics
	case in.any(macroCues):
		return MacroOutlook
	case in.any(philosophyCues) || nMet > 0:
		return Philosophy
	default:
		return Smalltalk
	}
}

type hit struct {
	pos   int
	value string
}

func orderedHits(in input, table []alias) []string {
	var hits []hit
	for _, a := range table {
		best := -1
		for _, term := range a.terms {
			if i := in.index(term); i >= 0 && (best < 0 || i < best) {
				best = i
			}
		}
		if best >= 0 {
			hits = append(hits, hit{pos: best, value: a.canonical})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.value)
	}
	return out
}

func extractSymbols(in input) []string {
	symbols := orderedHits(in, companyAliases)

	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		seen[s] = true
	}
	for _, m := range krCodePattern.FindAllStringSubmatch(in.text, -1) {
		if code := m[2]; !seen[code] {
			seen[code] = true
			symbols = append(symbols, code)
		}
	}
	return symbols
}

func extractRegion(in input) string {
	hits := orderedHits(in, regionAliases)
	if len(hits) == 0 {
		return ""
	}
	return hits[0]
}

// extractMetrics consumes matched spellings longest-first so nested words
// ("주당순이익" vs "순이익") resolve to a single metric.
func extractMetrics(in input) []string {
	type spelled struct {
		term, code string
	}
	var all []spelled
	for _, a := range metricAliases {
		for _, t := range a.terms {
			all = append(all, spelled{term: t, code: a.canonical})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return len(all[i].term) > len(all[j].term) })

	work := in.text
	type found struct {
		pos  int
		code string
	}
	var hits []found
	for _, sp := range all {
		if isASCII(sp.term) && !strings.Contains(sp.term, " ") {
			if in.tokens[sp.term] {
				hits = append(hits, found{pos: in.index(sp.term), code: sp.code})
			}
			continue
		}
		for {
			i := strings.Index(work, sp.term)
			if i < 0 {
				break
			}
			hits = append(hits, found{pos: i, code: sp.code})
			work = work[:i] + strings.Repeat(" ", len(sp.term)) + work[i+len(sp.term):]
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	out := []string{}
	seen := make(map[string]bool)
	add := func(code string) {
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	for _, h := range hits {
		if expanded, ok := metricExpansion[h.code]; ok {
			for _, c := range expanded {
				add(c)
			}
			continue
		}
		add(h.code)
	}
	return out
}

func extractTopics(in input) []string {
	return orderedHits(in, topicAliases)
}
