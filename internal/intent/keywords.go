package intent

// Keyword tables. ASCII entries match whole ASCII tokens ("us" never matches
// inside "business"); entries containing Hangul match as substrings of the
// normalized text. Tables are ordered: the first entry wins where ordering matters.

type alias struct {
	canonical string
	terms     []string
}

// companyAliases maps display names to the spellings users type.
var companyAliases = []alias{
	{"삼성전자", []string{"삼성전자", "삼전", "samsung"}},
	{"SK하이닉스", []string{"sk하이닉스", "하이닉스", "hynix"}},
	{"현대차", []string{"현대자동차", "현대차", "hyundai"}},
	{"NAVER", []string{"네이버", "naver"}},
	{"카카오", []string{"카카오", "kakao"}},
	{"LG에너지솔루션", []string{"lg에너지솔루션", "엘지에너지솔루션", "엔솔"}},
	{"셀트리온", []string{"셀트리온", "celltrion"}},
	{"POSCO홀딩스", []string{"posco홀딩스", "포스코홀딩스", "포스코"}},
	{"애플", []string{"애플", "apple", "aapl"}},
	{"테슬라", []string{"테슬라", "tesla", "tsla"}},
	{"엔비디아", []string{"엔비디아", "nvidia", "nvda"}},
	{"마이크로소프트", []string{"마이크로소프트", "microsoft", "msft"}},
	{"아마존", []string{"아마존", "amazon", "amzn"}},
	{"알파벳", []string{"알파벳", "구글", "alphabet", "google", "googl"}},
	{"코카콜라", []string{"코카콜라", "cocacola"}},
	{"버크셔해서웨이", []string{"버크셔해서웨이", "버크셔", "berkshire"}},
	{"뱅크오브아메리카", []string{"뱅크오브아메리카", "bofa"}},
	{"로쿠", []string{"로쿠", "roku"}},
	{"코인베이스", []string{"코인베이스", "coinbase", "coin"}},
	{"팔란티어", []string{"팔란티어", "palantir", "pltr"}},
}

// metricAliases maps user wording to metric codes. Longer spellings are
// matched first and consumed so "주당순이익" does not also yield NET_INCOME.
var metricAliases = []alias{
	{"PER", []string{"주가수익비율", "per"}},
	{"PBR", []string{"주가순자산비율", "pbr"}},
	{"EPS", []string{"주당순이익", "eps"}},
	{"BPS", []string{"주당순자산", "bps"}},
	{"ROE", []string{"자기자본이익률", "roe"}},
	{"DIV_YIELD", []string{"배당수익률", "배당률", "배당금", "dividend"}},
	{"MKT_CAP", []string{"시가총액", "시총", "marketcap"}},
	{"CUR", []string{"현재가", "주가", "가격", "price"}},
	{"52W_H", []string{"52주최고", "52주 최고", "52주 고가", "신고가"}},
	{"52W_L", []string{"52주최저", "52주 최저", "52주 저가", "신저가"}},
	{"52W", []string{"52주"}},
	{"VOL", []string{"거래량", "volume"}},
	{"TRADE_VALUE", []string{"거래대금"}},
	{"CHG_RT", []string{"등락률", "변동률", "상승률", "하락률"}},
	{"OP_INCOME", []string{"영업이익"}},
	{"NET_INCOME", []string{"순이익"}},
	{"SALES", []string{"매출액", "매출", "revenue", "sales"}},
	{"EARNINGS", []string{"실적", "earnings"}},
}

// metricExpansion turns umbrella codes into concrete fields.
var metricExpansion = map[string][]string{
	"52W":      {"52W_H", "52W_L"},
	"EARNINGS": {"SALES", "OP_INCOME", "NET_INCOME"},
}

var regionAliases = []alias{
	{"US", []string{"미국", "연준", "나스닥", "다우", "뉴욕증시", "월가", "us", "usa", "fed", "nasdaq", "nyse", "s&p", "sp500", "dow"}},
	{"KR", []string{"한국", "국내", "코스피", "코스닥", "한국은행", "한은", "kospi", "kosdaq", "korea"}},
}

// topicAliases yields canonical topic labels in the order they appear in the text.
var topicAliases = []alias{
	{"성장", []string{"성장", "growth"}},
	{"가치", []string{"가치투자", "저평가", "value"}},
	{"밸류에이션", []string{"밸류에이션", "valuation"}},
	{"배당", []string{"배당"}},
	{"안전마진", []string{"안전마진", "안전 마진"}},
	{"해자", []string{"해자", "moat"}},
	{"모멘텀", []string{"모멘텀", "momentum"}},
	{"사이클", []string{"사이클", "cycle"}},
	{"인플레이션", []string{"인플레이션", "인플레", "inflation"}},
	{"금리", []string{"금리", "rates"}},
	{"환율", []string{"환율", "달러"}},
	{"혁신", []string{"혁신", "파괴적", "disruptive", "innovation"}},
	{"리스크", []string{"리스크", "위험", "risk"}},
	{"포트폴리오", []string{"포트폴리오", "보유종목", "보유 종목", "보유한", "비중", "13f", "holdings", "portfolio"}},
	{"장기투자", []string{"장기투자", "장기 투자", "장기적"}},
	{"경기침체", []string{"경기침체", "침체", "recession"}},
	{"AI", []string{"인공지능", "ai"}},
	{"반도체", []string{"반도체", "semiconductor"}},
	{"전기차", []string{"전기차", "ev"}},
	{"바이오", []string{"바이오", "헬스케어", "biotech"}},
}

var (
	newsCues = []string{
		"뉴스", "기사", "속보", "헤드라인", "보도", "공시", "발표",
		"news", "article", "headline", "breaking",
	}
	researchCues = []string{
		"리포트", "보고서", "리서치", "애널리스트", "목표주가", "투자의견", "컨센서스",
		"백서", "논문", "첨부", "문서", "pdf",
		"report", "research", "analyst", "consensus", "whitepaper",
	}
	comparisonCues = []string{
		"비교", "대비", "어느 쪽", "어느쪽", "뭐가 더", "뭐가 나아", "뭐가 나을", "중에 어디", "차이",
		"vs", "versus", "compare",
	}
	analysisCues = []string{
		"분석", "전망", "어때", "어떤가", "어떨까", "괜찮", "사도 돼", "사도 될", "살까", "매수", "투자해도",
		"평가", "좋을까", "리스크",
		"analysis", "analyze", "outlook", "buy",
	}
	macroCues = []string{
		"기준금리", "금리", "환율", "경기", "경제 전망", "경제전망", "연준", "물가", "거시", "매크로",
		"고용", "실업률", "국채", "유가", "원화", "달러", "채권", "리세션", "증시 전망", "시장 전망",
		"fomc", "cpi", "ppi", "gdp", "macro", "recession", "fed", "rates", "yield",
	}
	philosophyCues = []string{
		"워렌버핏", "버핏", "피터린치", "린치", "캐시우드",
		"관점", "철학", "원칙", "생각", "투자법", "전략", "조언", "가치투자", "안전마진", "장기투자",
		"명언", "스타일", "방식", "가르침", "교훈", "마인드", "습관", "해자",
		"buffett", "lynch", "cathie", "philosophy", "principle", "advice", "mindset",
	}
)
