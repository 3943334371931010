package persona

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorchat/backend/internal/generation"
	"mentorchat/backend/internal/market"
)

func TestRegistryDefaults(t *testing.T) {
	r := MustDefault()

	ids := make([]string, 0)
	for _, p := range r.List() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"buffett", "lynch", "wood"}, ids)

	p, err := r.Get("buffett")
	require.NoError(t, err)
	assert.Equal(t, "워렌 버핏", p.DisplayName)
	assert.Equal(t, "나는 오래 검증된 원칙을 따릅니다. 복잡함보다 단순함, 단기 이익보다 꾸준함을 중시합니다.", p.Intro)
	assert.Equal(t, []string{"PER", "PBR", "BPS", "EPS", "DIV_YIELD", "MKT_CAP"}, p.PreferredMetrics)
	assert.Equal(t, DefaultFallback, p.Fallback())
}

func TestRegistryAliases(t *testing.T) {
	r := MustDefault()

	tests := map[string]string{
		"cathie":         "wood",
		"ARK":            "wood",
		"Cathie Wood":    "wood",
		"peter":          "lynch",
		"peter-lynch":    "lynch",
		"warren":         "buffett",
		"warren_buffett": "buffett",
		" Buffett ":      "buffett",
	}
	for in, want := range tests {
		got, ok := r.Normalize(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, err := r.Get("soros")
	assert.ErrorIs(t, err, ErrUnknownPersona)
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte("personas:\n  - id: a\n  - id: a\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("personas: []"))
	assert.Error(t, err)
}

func samsung() *market.Quote {
	return &market.Quote{
		Symbol:   "삼성전자",
		Name:     "삼성전자",
		Currency: "KRW",
		Price:    71500,
		Metrics:  map[string]float64{"PER": 12.3, "PBR": 1.1, "VOL": 1000},
	}
}

func TestSynthesizePromptCarriesVoiceAndFacts(t *testing.T) {
	var got generation.Request
	gen := generation.GeneratorFunc(func(_ context.Context, req generation.Request) (string, error) {
		got = req
		return "삼성전자 현재가는 71,500원이고 PER은 12.3배입니다. 해자를 보십시오.", nil
	})
	s := NewSynthesizer(MustDefault(), gen, nil)

	out := s.Synthesize(context.Background(), "buffett", "초안", Context{Question: "삼성전자 분석해줘", Quotes: []*market.Quote{samsung()}})

	assert.Contains(t, got.System, "나는 워런 버핏이다")
	assert.Contains(t, got.System, "[핵심 지표]")
	// preferred metrics first: PER and PBR before VOL
	assert.Less(t, strings.Index(got.System, "PER 12.3배"), strings.Index(got.System, "거래량"))
	assert.Less(t, strings.Index(got.System, "PBR 1.1배"), strings.Index(got.System, "거래량"))
	assert.NotContains(t, out, "[참고 지표]")
}

func TestSynthesizeAppendsFooterWhenFactsDropped(t *testing.T) {
	gen := generation.GeneratorFunc(func(context.Context, generation.Request) (string, error) {
		return "좋은 기업은 오래 보유하십시오.", nil
	})
	s := NewSynthesizer(MustDefault(), gen, nil)

	out := s.Synthesize(context.Background(), "buffett", "초안", Context{Quotes: []*market.Quote{samsung()}})

	assert.Contains(t, out, "[참고 지표] 삼성전자 현재가 71,500원 · PER 12.3배 · PBR 1.1배")
}

func TestSynthesizeDeterministicPrompt(t *testing.T) {
	var systems []string
	gen := generation.GeneratorFunc(func(_ context.Context, req generation.Request) (string, error) {
		systems = append(systems, req.System)
		return "ok", nil
	})
	s := NewSynthesizer(MustDefault(), gen, nil)

	for i := 0; i < 3; i++ {
		s.Synthesize(context.Background(), "lynch", "초안", Context{Quotes: []*market.Quote{samsung()}})
	}
	assert.Equal(t, systems[0], systems[1])
	assert.Equal(t, systems[1], systems[2])
}

func TestSynthesizeFallback(t *testing.T) {
	gen := generation.GeneratorFunc(func(context.Context, generation.Request) (string, error) {
		return "", &generation.Error{Kind: generation.KindTimeout, Provider: "fake", Err: errors.New("slow")}
	})
	s := NewSynthesizer(MustDefault(), gen, nil)

	assert.Equal(t, DefaultFallback, s.Synthesize(context.Background(), "wood", "초안", Context{}))
	assert.Equal(t, DefaultFallback, s.Synthesize(context.Background(), "nobody", "초안", Context{}))
}

func TestConverse(t *testing.T) {
	var got generation.Request
	gen := generation.GeneratorFunc(func(_ context.Context, req generation.Request) (string, error) {
		got = req
		return " 반갑습니다. ", nil
	})
	s := NewSynthesizer(MustDefault(), gen, nil)

	out := s.Converse(context.Background(), "lynch", "안녕하세요", []generation.Message{{Role: generation.RoleUser, Content: "이전"}})
	assert.Equal(t, "반갑습니다.", out)
	assert.Equal(t, "smalltalk", got.Purpose)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "안녕하세요", got.Messages[1].Content)
	assert.NotContains(t, got.System, "[핵심 지표]")
}
