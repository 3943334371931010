package market

import (
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.Korean)

var metricLabels = map[string]string{
	"CUR":         "현재가",
	"PER":         "PER",
	"PBR":         "PBR",
	"EPS":         "EPS",
	"BPS":         "BPS",
	"ROE":         "ROE",
	"DIV_YIELD":   "배당수익률",
	"MKT_CAP":     "시가총액",
	"52W_H":       "52주 최고가",
	"52W_L":       "52주 최저가",
	"VOL":         "거래량",
	"TRADE_VALUE": "거래대금",
	"CHG_RT":      "등락률",
	"SALES":       "매출액",
	"OP_INCOME":   "영업이익",
	"NET_INCOME":  "순이익",
}

// MetricLabel returns the Korean display label of a metric code.
func MetricLabel(code string) string {
	if l, ok := metricLabels[code]; ok {
		return l
	}
	return code
}

// FormatMetric renders a metric value with its unit, e.g. "12.3배",
// "71,500원", "$189.25", "3.1%".
func FormatMetric(code string, v float64, currency string) string {
	switch code {
	case "PER", "PBR":
		return decimal(v) + "배"
	case "ROE", "DIV_YIELD", "CHG_RT":
		return decimal(v) + "%"
	case "VOL":
		return printer.Sprintf("%d", int64(math.Round(v))) + "주"
	case "CUR", "EPS", "BPS", "52W_H", "52W_L":
		return Money(v, currency)
	case "MKT_CAP", "TRADE_VALUE", "SALES", "OP_INCOME", "NET_INCOME":
		return largeMoney(v, currency)
	default:
		return decimal(v)
	}
}

// Money formats a price: "71,500원" for KRW, "$189.25" for USD.
func Money(v float64, currency string) string {
	if currency == "USD" {
		return "$" + printer.Sprintf("%.2f", v)
	}
	return printer.Sprintf("%d", int64(math.Round(v))) + "원"
}

func largeMoney(v float64, currency string) string {
	if currency == "USD" {
		switch a := math.Abs(v); {
		case a >= 1e12:
			return "$" + decimal(v/1e12) + "T"
		case a >= 1e9:
			return "$" + decimal(v/1e9) + "B"
		case a >= 1e6:
			return "$" + decimal(v/1e6) + "M"
		}
		return Money(v, currency)
	}
	switch a := math.Abs(v); {
	case a >= 1e12:
		return decimal(v/1e12) + "조원"
	case a >= 1e8:
		return printer.Sprintf("%d", int64(math.Round(v/1e8))) + "억원"
	}
	return Money(v, currency)
}

// decimal prints at most two fractional digits without trailing zeros.
func decimal(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
