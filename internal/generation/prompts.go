package generation

import (
	"fmt"
	"sort"
	"strings"

	"mentorchat/backend/internal/market"
	"mentorchat/backend/internal/retrieval"
)

const maxSnippetRunes = 600

const draftSystem = `너는 투자 멘토 서비스의 리서치 보조다.
아래 [근거]와 [시장 데이터]만 사용해 사용자의 질문에 한국어로 답하라.
근거에 없는 수치나 사실은 만들지 말고, 모르면 모른다고 말하라.
답변은 4~6문장으로 간결하게 작성하라.`

const validatorSystem = `너는 답변 검증기다. [질문], [근거], [초안]을 읽고 초안이 근거와 모순되지 않으며 질문에 답하는지 평가하라.
다음 형식의 JSON 객체 하나만 출력하라:
{"is_valid": true|false, "final_answer": "필요하면 고친 답변, 아니면 초안 그대로", "confidence": 0.0~1.0, "issues": ["문제점"]}`

// Evidence renders retrieval output as the shared context block used by the
// draft and validation prompts.
func Evidence(res retrieval.Result) string {
	var sb strings.Builder
	if len(res.Snippets) > 0 {
		sb.WriteString("[근거]\n")
		for _, s := range res.Snippets {
			fmt.Fprintf(&sb, "- (%s) %s\n", s.SourceID, truncateRunes(s.Text, maxSnippetRunes))
		}
	}
	if len(res.Quotes) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("[시장 데이터]\n")
		for _, q := range res.Quotes {
			sb.WriteString("- " + QuoteLine(q, nil) + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// QuoteLine renders one quote as "이름: 현재가 71,500원 · PER 12.3배 ...".
// Metrics listed in first come first; the rest follow in code order.
func QuoteLine(q *market.Quote, first []string) string {
	parts := make([]string, 0, len(q.Metrics)+1)
	for _, f := range QuoteFacts(q, first) {
		parts = append(parts, f.Label+" "+f.Value)
	}
	return q.Name + ": " + strings.Join(parts, " · ")
}

// Fact is one labelled, formatted market value.
type Fact struct {
	Code  string
	Label string
	Value string
}

// QuoteFacts lists the quote's values, preferred codes first.
func QuoteFacts(q *market.Quote, preferred []string) []Fact {
	seen := make(map[string]bool)
	var facts []Fact
	add := func(code string) {
		if seen[code] {
			return
		}
		v, ok := q.Metric(code)
		if !ok {
			return
		}
		seen[code] = true
		facts = append(facts, Fact{Code: code, Label: market.MetricLabel(code), Value: market.FormatMetric(code, v, q.Currency)})
	}

	add("CUR")
	for _, code := range preferred {
		add(code)
	}
	rest := make([]string, 0, len(q.Metrics))
	for code := range q.Metrics {
		rest = append(rest, code)
	}
	sort.Strings(rest)
	for _, code := range rest {
		add(code)
	}
	return facts
}

func draftRequest(in Input, res retrieval.Result) Request {
	system := draftSystem
	if ev := Evidence(res); ev != "" {
		system += "\n\n" + ev
	}
	msgs := make([]Message, 0, len(in.History)+1)
	msgs = append(msgs, in.History...)
	msgs = append(msgs, Message{Role: RoleUser, Content: in.Question})
	return Request{System: system, Messages: msgs, Purpose: "draft"}
}

func validateRequest(in Input, res retrieval.Result, draft string) Request {
	body := fmt.Sprintf("[질문]\n%s\n\n%s\n\n[초안]\n%s", in.Question, Evidence(res), draft)
	return Request{
		System:   validatorSystem,
		Messages: []Message{{Role: RoleUser, Content: body}},
		JSON:     true,
		Purpose:  "validate",
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
