package orchestrator

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mentorchat/backend/internal/generation"
	"mentorchat/backend/internal/intent"
	"mentorchat/backend/internal/market"
	"mentorchat/backend/internal/persona"
	"mentorchat/backend/internal/retrieval"
	"mentorchat/backend/internal/session"
)

// Reply paths
const (
	PathSmalltalk = "smalltalk"
	PathQuick     = "quick"
	PathLoop      = "loop"
	PathNoContext = "no_context"
	PathFallback  = "fallback"
)

type answer struct {
	Text       string
	Intent     intent.Intent
	Entities   intent.Entities
	State      generation.State
	Confidence float64
	Attempts   int
	Path       string
	Sources    []string
}

// answer runs classify, route, loop and synthesis for one message. artifact,
// when set, becomes the turn context the loop is grounded on.
func (o *Orchestrator) answer(ctx context.Context, p *persona.Persona, text, artifact string, history []session.Message) (ans answer) {
	started := time.Now()
	ctx, span := o.tracer.Start(ctx, "orchestrator.Answer", trace.WithAttributes(
		attribute.String("persona", p.ID),
	))
	defer span.End()

	cls := o.classifier.Classify(text)
	plan := o.router.Route(cls.Intent, cls.Entities, p.ID, text)
	plan.Artifact = artifact

	ans = answer{Intent: cls.Intent, Entities: cls.Entities}
	defer func() {
		span.SetAttributes(attribute.String("intent", string(ans.Intent)), attribute.String("path", ans.Path))
		o.record(ctx, ans, started)
	}()

	msgs := toMessages(history)

	if plan.Skip() {
		ans.Path = PathSmalltalk
		ans.Confidence = 1
		ans.Text = o.synth.Converse(ctx, p.ID, text, msgs)
		return ans
	}

	if cls.Intent == intent.StockMetrics && artifact == "" {
		if quick, ok := o.quickAnswer(ctx, plan, cls.Entities.RequestedMetrics); ok {
			ans.Path = PathQuick
			ans.Confidence = 1
			ans.Text = quick
			return ans
		}
	}

	out := o.loop.Run(ctx, generation.Input{Question: text, History: msgs, Plan: plan})
	ans.State = out.State
	ans.Confidence = out.Confidence
	ans.Attempts = out.Attempts
	ans.Sources = sources(out.Retrieval)

	switch {
	case out.Answer == "":
		ans.Path = PathFallback
		ans.Text = p.Fallback()
	case out.Answer == generation.NoContextReply:
		ans.Path = PathNoContext
		ans.Text = generation.NoContextReply
	default:
		ans.Path = PathLoop
		ans.Text = o.synth.Synthesize(ctx, p.ID, out.Draft, persona.Context{Question: text, Quotes: out.Retrieval.Quotes})
		if out.State == generation.StateRejected && ans.Text != p.Fallback() {
			ans.Text += "\n\n" + generation.Disclaimer
		}
	}
	return ans
}

// quickAnswer serves STOCK_METRICS straight from market data. It reports
// false when any requested value is missing so the full loop can explain.
func (o *Orchestrator) quickAnswer(ctx context.Context, plan retrieval.Plan, metrics []string) (string, bool) {
	if o.fetcher == nil || len(plan.Market) == 0 {
		return "", false
	}
	res := o.fetcher.Fetch(ctx, retrieval.Plan{
		Intent:  plan.Intent,
		Persona: plan.Persona,
		Query:   plan.Query,
		Market:  plan.Market,
	})
	if len(res.Quotes) == 0 {
		return "", false
	}
	if len(metrics) == 0 {
		metrics = []string{"CUR"}
	}

	lines := make([]string, 0, len(res.Quotes)*len(metrics))
	for _, q := range res.Quotes {
		for _, code := range metrics {
			v, ok := q.Metric(code)
			if !ok {
				return "", false
			}
			label := market.MetricLabel(code)
			lines = append(lines, q.Name+" "+label+topicParticle(label)+" "+market.FormatMetric(code, v, q.Currency)+"입니다.")
		}
	}
	return strings.Join(lines, "\n"), true
}

// topicParticle picks 은 or 는 for the last syllable of word. Latin
// abbreviations are read letter by letter; L, M, N and R end in a consonant.
func topicParticle(word string) string {
	r, _ := utf8.DecodeLastRuneInString(strings.TrimSpace(word))
	switch {
	case r >= 0xAC00 && r <= 0xD7A3:
		if (r-0xAC00)%28 != 0 {
			return "은"
		}
		return "는"
	case unicode.IsDigit(r):
		// 0 영, 1 일, 3 삼, 6 육, 7 칠, 8 팔
		if strings.ContainsRune("013678", r) {
			return "은"
		}
		return "는"
	}
	switch unicode.ToUpper(r) {
	case 'L', 'M', 'N', 'R':
		return "은"
	}
	return "는"
}

func toMessages(history []session.Message) []generation.Message {
	out := make([]generation.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case session.RoleUser:
			out = append(out, generation.Message{Role: generation.RoleUser, Content: m.Text})
		case session.RoleAssistant:
			out = append(out, generation.Message{Role: generation.RoleAssistant, Content: m.Text})
		}
	}
	return out
}

func sources(res retrieval.Result) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range res.Snippets {
		if s.SourceID == "" || seen[s.SourceID] {
			continue
		}
		seen[s.SourceID] = true
		out = append(out, s.SourceID)
	}
	return out
}
