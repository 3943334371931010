package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// BM25 parameters
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Snippet is one scored retrieval hit. Snippets are never mutated after creation.
type Snippet struct {
	Text     string  `json:"text"`
	SourceID string  `json:"source_id"`
	Score    float64 `json:"score"`
}

// Retriever is the lexical retrieval collaborator. Retrieve returns an empty
// slice when nothing matches and never fails.
type Retriever interface {
	Retrieve(ctx context.Context, partition, query string, topK int) []Snippet
}

// RecentRetriever can also serve the newest records of a partition, used for
// recency-windowed corpora.
type RecentRetriever interface {
	Recent(ctx context.Context, partition string, n int) []Snippet
}

type indexedDoc struct {
	doc    Document
	terms  map[string]int
	length int
}

// Index is an in-memory BM25 index over corpus documents. It is read-only
// after construction and safe for concurrent use.
type Index struct {
	docs   []indexedDoc
	df     map[string]int
	avgLen float64
}

// NewIndex builds the index
func NewIndex(docs []Document) *Index {
	idx := &Index{df: make(map[string]int)}
	total := 0
	for _, d := range docs {
		tokens := tokenize(d.Title + " " + d.Text + " " + strings.Join(d.Tags, " "))
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t := range tf {
			idx.df[t]++
		}
		total += len(tokens)
		idx.docs = append(idx.docs, indexedDoc{doc: d, terms: tf, length: len(tokens)})
	}
	if len(idx.docs) > 0 {
		idx.avgLen = float64(total) / float64(len(idx.docs))
	}
	return idx
}

// Documents returns the documents in a partition, in load order.
func (idx *Index) Documents(partition string) []Document {
	var out []Document
	for _, d := range idx.docs {
		if inPartition(d.doc, partition) {
			out = append(out, d.doc)
		}
	}
	return out
}

func inPartition(d Document, partition string) bool {
	p := d.Partition()
	return partition == "" || p == partition || strings.HasPrefix(p, partition+"/")
}

// Retrieve implements Retriever
func (idx *Index) Retrieve(ctx context.Context, partition, query string, topK int) []Snippet {
	if topK <= 0 || ctx.Err() != nil {
		return []Snippet{}
	}
	qTerms := tokenize(query)
	if len(qTerms) == 0 {
		return []Snippet{}
	}

	n := float64(len(idx.docs))
	type scored struct {
		doc   Document
		score float64
	}
	var hits []scored
	for _, d := range idx.docs {
		if !inPartition(d.doc, partition) {
			continue
		}
		score := 0.0
		for _, q := range uniq(qTerms) {
			tf := float64(d.terms[q])
			if tf == 0 {
				continue
			}
			df := float64(idx.df[q])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			denom := tf + bm25K1*(1-bm25B+bm25B*float64(d.length)/idx.avgLen)
			score += idf * tf * (bm25K1 + 1) / denom
		}
		if score > 0 {
			hits = append(hits, scored{doc: d.doc, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]Snippet, 0, len(hits))
	for _, h := range hits {
		out = append(out, Snippet{Text: h.doc.Text, SourceID: h.doc.ID, Score: h.score})
	}
	return out
}

// Recent implements RecentRetriever. Every record gets score 1.
func (idx *Index) Recent(ctx context.Context, partition string, n int) []Snippet {
	if n <= 0 || ctx.Err() != nil {
		return []Snippet{}
	}
	docs := idx.Documents(partition)
	byRecency(docs)
	if len(docs) > n {
		docs = docs[:n]
	}
	out := make([]Snippet, 0, len(docs))
	for _, d := range docs {
		out = append(out, Snippet{Text: d.Text, SourceID: d.ID, Score: 1})
	}
	return out
}

// tokenize lower-cases, NFKC-normalizes and splits text into terms. Hangul
// words also contribute character bigrams so particles ("인플레이션은") still
// match their stems.
func tokenize(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var out []string
	for _, w := range words {
		runes := []rune(w)
		if !hasHangul(runes) {
			if len(runes) > 1 {
				out = append(out, w)
			}
			continue
		}
		out = append(out, w)
		for i := 0; i+1 < len(runes); i++ {
			out = append(out, string(runes[i:i+2]))
		}
	}
	return out
}

func hasHangul(runes []rune) bool {
	for _, r := range runes {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

func uniq(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Latest returns the newest documents of a corpus whose sectors overlap the
// given ones. With no sectors every document qualifies.
func (idx *Index) Latest(corpus string, sectors []string, n int) []Document {
	want := make(map[string]bool, len(sectors))
	for _, s := range sectors {
		want[s] = true
	}

	var out []Document
	for _, d := range idx.Documents(corpus) {
		if len(want) == 0 {
			out = append(out, d)
			continue
		}
		for _, s := range d.Sectors {
			if want[s] {
				out = append(out, d)
				break
			}
		}
	}
	byRecency(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
