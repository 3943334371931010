package intent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIsTotal(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"안녕하세요",
		"???",
		"ㅋㅋㅋㅋ",
		" \t\n",
		"https://",
		"123456789012345",
	}

	valid := make(map[Intent]bool, len(All))
	for _, i := range All {
		valid[i] = true
	}

	for _, in := range inputs {
		res := Classify(in)
		assert.Truef(t, valid[res.Intent], "input %q produced %q", in, res.Intent)
	}
}

func TestClassifyScenarios(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		intent   Intent
		symbols  []string
		metrics  []string
		topics   []string
		region   string
	}{
		{
			name:   "persona view on inflation",
			text:   "버핏의 인플레이션 관점은?",
			intent: Philosophy,
			topics: []string{"인플레이션"},
		},
		{
			name:    "single stock analysis",
			text:    "삼성전자 분석해줘",
			intent:  StockAnalysis,
			symbols: []string{"삼성전자"},
		},
		{
			name:    "metric lookup",
			text:    "삼성전자 PER 알려줘",
			intent:  StockMetrics,
			symbols: []string{"삼성전자"},
			metrics: []string{"PER"},
		},
		{
			name:    "two symbols compare",
			text:    "애플이랑 테슬라 중에 뭐가 나아?",
			intent:  StockComparison,
			symbols: []string{"애플", "테슬라"},
		},
		{
			name:    "one symbol with comparison cue",
			text:    "엔비디아를 작년 대비로 보면?",
			intent:  StockComparison,
			symbols: []string{"엔비디아"},
		},
		{
			name:   "macro outlook",
			text:   "미국 기준금리 어떻게 될까요",
			intent: MacroOutlook,
			topics: []string{"금리"},
			region: "US",
		},
		{
			name:   "news wins over everything",
			text:   "삼성전자 PER 관련 뉴스 있어?",
			intent: NewsAnalysis,
			symbols: []string{"삼성전자"},
			metrics: []string{"PER"},
		},
		{
			name:   "research report",
			text:   "이 리포트 요약해줘",
			intent: ResearchAnalysis,
		},
		{
			name:    "metric without symbol",
			text:    "PER 낮은 게 좋은 건가요",
			intent:  Philosophy,
			metrics: []string{"PER"},
		},
		{
			name:   "smalltalk",
			text:   "안녕하세요 반가워요",
			intent: Smalltalk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(tt.text)
			assert.Equal(t, tt.intent, res.Intent)
			assert.ElementsMatch(t, tt.symbols, res.Entities.Symbols)
			assert.ElementsMatch(t, tt.metrics, res.Entities.RequestedMetrics)
			if tt.topics != nil {
				assert.Equal(t, tt.topics, res.Entities.TopicKeywords)
			}
			assert.Equal(t, tt.region, res.Entities.Region)
		})
	}
}

func TestClassifyPhilosophyHasNoEntities(t *testing.T) {
	res := Classify("버핏의 인플레이션 관점은?")

	assert.Empty(t, res.Entities.Symbols)
	assert.Empty(t, res.Entities.RequestedMetrics)
	assert.Empty(t, res.Entities.Region)
	assert.Equal(t, []string{"인플레이션"}, res.Entities.TopicKeywords)
}

func TestEmptyEntitiesEncodeAsArrays(t *testing.T) {
	b, err := json.Marshal(Classify("안녕하세요").Entities)
	require.NoError(t, err)

	assert.JSONEq(t, `{"symbols":[],"requested_metrics":[],"topic_keywords":[]}`, string(b))
}

func TestClassifyURLIsNews(t *testing.T) {
	res := Classify("이거 어때? https://example.com/a?utm_source=x")

	assert.Equal(t, NewsAnalysis, res.Intent)
	require.Len(t, res.Entities.URLs, 1)
	assert.Equal(t, "https://example.com/a?utm_source=x", res.Entities.URLs[0])
}

func TestSymbolsOrderedAndDeduped(t *testing.T) {
	res := Classify("테슬라 tsla 그리고 애플 AAPL 비교")

	assert.Equal(t, StockComparison, res.Intent)
	assert.Equal(t, []string{"테슬라", "애플"}, res.Entities.Symbols)
}

func TestKoreanStockCode(t *testing.T) {
	res := Classify("005930 주가 알려줘")

	assert.Equal(t, []string{"005930"}, res.Entities.Symbols)
	assert.Equal(t, []string{"CUR"}, res.Entities.RequestedMetrics)
	assert.Equal(t, StockMetrics, res.Intent)
}

func TestASCIIKeywordsMatchWholeTokens(t *testing.T) {
	// "us" must not match inside "business", nor "per" inside "super"
	res := Classify("business is super")

	assert.Empty(t, res.Entities.Region)
	assert.Empty(t, res.Entities.RequestedMetrics)
	assert.Equal(t, Smalltalk, res.Intent)
}

func TestMetricsLongestMatchConsumed(t *testing.T) {
	res := Classify("주당순이익이랑 영업이익 알려줘")

	assert.Equal(t, []string{"EPS", "OP_INCOME"}, res.Entities.RequestedMetrics)
	assert.NotContains(t, res.Entities.RequestedMetrics, "NET_INCOME")
}

func TestMetricExpansion(t *testing.T) {
	res := Classify("카카오 52주 범위랑 실적")

	assert.Equal(t, []string{"52W_H", "52W_L", "SALES", "OP_INCOME", "NET_INCOME"}, res.Entities.RequestedMetrics)
	assert.Equal(t, StockMetrics, res.Intent)
}

func TestRegionFromTextNotSymbol(t *testing.T) {
	res := Classify("애플 분석")
	assert.Empty(t, res.Entities.Region)

	res = Classify("한국 시장에서 애플 분석")
	assert.Equal(t, "KR", res.Entities.Region)
}

func TestEconomicMoatIsNotMacro(t *testing.T) {
	res := Classify("경제적 해자가 뭔가요")

	assert.Equal(t, Philosophy, res.Intent)
	assert.Equal(t, []string{"해자"}, res.Entities.TopicKeywords)
}

func TestFullWidthInputNormalized(t *testing.T) {
	res := Classify("ＰＥＲ이 뭐야")

	assert.Equal(t, []string{"PER"}, res.Entities.RequestedMetrics)
}
