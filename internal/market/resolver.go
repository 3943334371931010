package market

import "regexp"

// Listing maps a display name to its exchange ticker.
type Listing struct {
	Name   string
	Ticker string
	Region string
}

var krCode = regexp.MustCompile(`^[0-9]{6}$`)

var listings = map[string]Listing{
	"삼성전자":     {"삼성전자", "005930", RegionKR},
	"SK하이닉스":   {"SK하이닉스", "000660", RegionKR},
	"현대차":      {"현대차", "005380", RegionKR},
	"NAVER":    {"NAVER", "035420", RegionKR},
	"카카오":      {"카카오", "035720", RegionKR},
	"LG에너지솔루션": {"LG에너지솔루션", "373220", RegionKR},
	"셀트리온":     {"셀트리온", "068270", RegionKR},
	"POSCO홀딩스":  {"POSCO홀딩스", "005490", RegionKR},
	"애플":       {"애플", "AAPL", RegionUS},
	"테슬라":      {"테슬라", "TSLA", RegionUS},
	"엔비디아":     {"엔비디아", "NVDA", RegionUS},
	"마이크로소프트":  {"마이크로소프트", "MSFT", RegionUS},
	"아마존":      {"아마존", "AMZN", RegionUS},
	"알파벳":      {"알파벳", "GOOGL", RegionUS},
	"코카콜라":     {"코카콜라", "KO", RegionUS},
	"버크셔해서웨이":  {"버크셔해서웨이", "BRK.B", RegionUS},
	"뱅크오브아메리카": {"뱅크오브아메리카", "BAC", RegionUS},
	"로쿠":       {"로쿠", "ROKU", RegionUS},
	"코인베이스":    {"코인베이스", "COIN", RegionUS},
	"팔란티어":     {"팔란티어", "PLTR", RegionUS},
}

// Resolve maps a canonical symbol (as produced by the classifier) to a listing.
// Bare six-digit codes resolve to KRX listings.
func Resolve(symbol string) (Listing, bool) {
	if l, ok := listings[symbol]; ok {
		return l, true
	}
	if krCode.MatchString(symbol) {
		for _, l := range listings {
			if l.Ticker == symbol {
				return l, true
			}
		}
		return Listing{Name: symbol, Ticker: symbol, Region: RegionKR}, true
	}
	return Listing{}, false
}

// CurrencyFor returns the quote currency for a region.
func CurrencyFor(region string) string {
	if region == RegionUS {
		return "USD"
	}
	return "KRW"
}
