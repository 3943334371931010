package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mentorchat/backend/internal/generation"
	"mentorchat/backend/internal/persona"
)

// ErrAnalysisUnavailable is returned when the analyst produced nothing usable.
var ErrAnalysisUnavailable = errors.New("analysis unavailable")

const maxArtifactRunes = 6000

// Sectors is the fixed sector taxonomy analyses are mapped onto.
var Sectors = []string{
	"에너지", "소재", "자본재", "상업·전문 서비스", "운송", "자동차·부품",
	"내구소비재·의류", "소비자 서비스", "임의소비재 유통·소매", "필수소비재 유통·소매",
	"식품·음료·담배", "생활용품", "헬스케어 장비·서비스", "제약·바이오·생명과학",
	"은행", "금융서비스", "보험", "소프트웨어·서비스", "기술하드웨어·장비",
	"반도체·장비", "통신서비스", "미디어·엔터테인먼트", "유틸리티",
}

var sectorAliases = map[string]string{
	"반도체":    "반도체·장비",
	"바이오":    "제약·바이오·생명과학",
	"제약":     "제약·바이오·생명과학",
	"자동차":    "자동차·부품",
	"소프트웨어":  "소프트웨어·서비스",
	"통신":     "통신서비스",
	"미디어":    "미디어·엔터테인먼트",
	"엔터테인먼트": "미디어·엔터테인먼트",
	"금융":     "금융서비스",
}

// Analysis is the structured reading of an artifact.
type Analysis struct {
	PersonaID       string   `json:"persona_id"`
	Summary         string   `json:"summary"`
	PositiveFactors []string `json:"positive_factors"`
	NegativeFactors []string `json:"negative_factors"`
	Commentary      string   `json:"commentary"`
	Sector          string   `json:"sector,omitempty"`
	RelatedSymbols  []string `json:"related_symbols,omitempty"`
}

type rawAnalysis struct {
	Summary       string          `json:"summary"`
	Positive      json.RawMessage `json:"positive"`
	Negative      json.RawMessage `json:"negative"`
	ExpertComment string          `json:"expert_comment"`
	Sector        string          `json:"sector"`
}

// Analyze asks the analyst for a structured reading of text in the persona's
// voice. Symbols are taken from the text itself, not from the model.
func (o *Orchestrator) Analyze(ctx context.Context, personaID, text string) (*Analysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	p, err := o.personas.Get(personaID)
	if err != nil {
		return nil, err
	}
	if o.analyst == nil {
		return nil, ErrAnalysisUnavailable
	}

	raw, err := o.analyst.Generate(ctx, generation.Request{
		System:   analyzeSystem(p),
		Messages: []generation.Message{{Role: generation.RoleUser, Content: "[자료]\n" + truncate(text, maxArtifactRunes)}},
		JSON:     true,
		Purpose:  "analyze",
	})
	if err != nil {
		o.logger.Warn("analysis failed", "persona", p.ID, "kind", generation.KindOf(err), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}

	a, err := parseAnalysis(raw)
	if err != nil {
		o.logger.Warn("malformed analysis", "persona", p.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}
	a.PersonaID = p.ID
	a.RelatedSymbols = o.classifier.Classify(text).Entities.Symbols
	return a, nil
}

func analyzeSystem(p *persona.Persona) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "너는 %s의 관점으로 자료를 분석하는 투자 멘토다.\n", p.DisplayName)
	for _, r := range p.VoiceRules {
		sb.WriteString("- " + r + "\n")
	}
	sb.WriteString("\n다음 JSON 형식으로만 답하라.\n")
	sb.WriteString(`{"summary": "세 문장 이내 요약", "positive": ["긍정 요인"], "negative": ["부정 요인"], "expert_comment": "너의 말투로 쓴 한 단락 코멘트", "sector": "업종"}`)
	sb.WriteString("\n\nsector는 다음 중 하나이거나 빈 문자열이다: " + strings.Join(Sectors, ", "))
	return sb.String()
}

func parseAnalysis(raw string) (*Analysis, error) {
	body, err := generation.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var r rawAnalysis
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, err
	}
	a := &Analysis{
		Summary:         strings.TrimSpace(r.Summary),
		PositiveFactors: listField(r.Positive),
		NegativeFactors: listField(r.Negative),
		Commentary:      strings.TrimSpace(r.ExpertComment),
		Sector:          NormalizeSector(r.Sector),
	}
	if a.Summary == "" && a.Commentary == "" && len(a.PositiveFactors) == 0 && len(a.NegativeFactors) == 0 {
		return nil, errors.New("empty analysis")
	}
	return a, nil
}

// listField accepts a JSON array of strings or a single string with one item
// per line, dropping bullets and blanks.
func listField(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}

	var items []string
	var arr []any
	var s string
	switch {
	case json.Unmarshal(raw, &arr) == nil:
		for _, v := range arr {
			if v != nil {
				items = append(items, fmt.Sprint(v))
			}
		}
	case json.Unmarshal(raw, &s) == nil:
		items = strings.Split(s, "\n")
	}

	for _, it := range items {
		it = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(it), "-*•·"))
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}

// NormalizeSector maps a model-provided sector onto Sectors. Unknown values
// yield "".
func NormalizeSector(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, known := range Sectors {
		if s == known {
			return known
		}
	}
	if v, ok := sectorAliases[s]; ok {
		return v
	}
	compact := strings.NewReplacer(" ", "", "·", "", "/", "").Replace(s)
	for _, known := range Sectors {
		if compact == strings.NewReplacer(" ", "", "·", "").Replace(known) {
			return known
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
