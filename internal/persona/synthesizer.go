package persona

import (
	"context"
	"fmt"
	"strings"

	"mentorchat/backend/internal/generation"
	"mentorchat/backend/internal/market"
	"mentorchat/backend/pkg/logger"
)

// Context is the structured material attached to a synthesis call.
type Context struct {
	Question string
	Quotes   []*market.Quote
}

// Synthesizer rewrites answers in a persona's voice with one generation call.
type Synthesizer struct {
	registry  *Registry
	generator generation.Generator
	logger    *logger.Logger
}

// NewSynthesizer creates a synthesizer
func NewSynthesizer(registry *Registry, gen generation.Generator, log *logger.Logger) *Synthesizer {
	if log == nil {
		log = logger.Discard()
	}
	return &Synthesizer{registry: registry, generator: gen, logger: log.WithComponent("synthesizer")}
}

// Synthesize returns the persona-voiced answer. Generation failures yield the
// persona's fixed fallback. The fact block always reaches the user: if the
// rewrite drops every value, a one-line footer restores them.
func (s *Synthesizer) Synthesize(ctx context.Context, personaID, answer string, sc Context) string {
	p, err := s.registry.Get(personaID)
	if err != nil {
		s.logger.LogError(err, "synthesize for unknown persona")
		return DefaultFallback
	}

	facts := factsFor(p, sc.Quotes)
	req := generation.Request{
		System: systemPrompt(p, facts),
		Messages: []generation.Message{{
			Role:    generation.RoleUser,
			Content: fmt.Sprintf("[질문]\n%s\n\n[초안 답변]\n%s\n\n초안의 내용을 유지하면서 너의 말투로 다시 써라. [핵심 지표]의 수치는 바꾸지 마라.", sc.Question, answer),
		}},
		Purpose: "synthesize",
	}

	out, err := s.generator.Generate(ctx, req)
	if err != nil {
		s.logger.Warn("synthesis failed", "persona", p.ID, "kind", generation.KindOf(err), "error", err)
		return p.Fallback()
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return p.Fallback()
	}

	if len(facts) > 0 && !mentionsAny(out, facts) {
		out += "\n\n" + factFooter(facts)
	}
	return out
}

// Converse answers small talk directly in the persona's voice. There is no
// draft to preserve and no fact block.
func (s *Synthesizer) Converse(ctx context.Context, personaID, text string, history []generation.Message) string {
	p, err := s.registry.Get(personaID)
	if err != nil {
		return DefaultFallback
	}

	msgs := make([]generation.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, generation.Message{Role: generation.RoleUser, Content: text})

	out, err := s.generator.Generate(ctx, generation.Request{
		System:   systemPrompt(p, nil) + "\n\n짧고 친근하게 답하라. 투자 조언이 필요한 질문이 아니면 수치를 지어내지 마라.",
		Messages: msgs,
		Purpose:  "smalltalk",
	})
	if err != nil {
		s.logger.Warn("small talk failed", "persona", p.ID, "kind", generation.KindOf(err), "error", err)
		return p.Fallback()
	}
	if out = strings.TrimSpace(out); out == "" {
		return p.Fallback()
	}
	return out
}

type quoteFacts struct {
	name  string
	facts []generation.Fact
}

func factsFor(p *Persona, quotes []*market.Quote) []quoteFacts {
	out := make([]quoteFacts, 0, len(quotes))
	for _, q := range quotes {
		if q == nil {
			continue
		}
		f := generation.QuoteFacts(q, p.PreferredMetrics)
		if len(f) > 0 {
			out = append(out, quoteFacts{name: q.Name, facts: f})
		}
	}
	return out
}

// systemPrompt is built deterministically: voice rules, profile, then the
// fact block ordered by the persona's preferred metrics.
func systemPrompt(p *Persona, facts []quoteFacts) string {
	var sb strings.Builder
	for _, r := range p.VoiceRules {
		sb.WriteString(r)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\n[투자 성향]\n투자 기간: %s\n관심 섹터: %s\n", p.InvestmentHorizon, strings.Join(p.PreferredSectors, ", "))

	if len(facts) > 0 {
		sb.WriteString("\n[핵심 지표]\n")
		for _, qf := range facts {
			parts := make([]string, 0, len(qf.facts))
			for _, f := range qf.facts {
				parts = append(parts, f.Label+" "+f.Value)
			}
			fmt.Fprintf(&sb, "- %s: %s\n", qf.name, strings.Join(parts, " · "))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// factFooter renders the compact one-line fact summary.
func factFooter(facts []quoteFacts) string {
	lines := make([]string, 0, len(facts))
	for _, qf := range facts {
		parts := make([]string, 0, 3)
		for i, f := range qf.facts {
			if i == 3 {
				break
			}
			parts = append(parts, f.Label+" "+f.Value)
		}
		lines = append(lines, qf.name+" "+strings.Join(parts, " · "))
	}
	return "[참고 지표] " + strings.Join(lines, " / ")
}

func mentionsAny(text string, facts []quoteFacts) bool {
	for _, qf := range facts {
		for _, f := range qf.facts {
			if strings.Contains(text, f.Value) {
				return true
			}
		}
	}
	return false
}
