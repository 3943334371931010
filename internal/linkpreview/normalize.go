package linkpreview

import (
	"net/url"
	"strings"
)

var trackingPrefixes = []string{"utm_", "icid", "ga_", "fb_", "mc_"}

var trackingKeys = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"yclid":  true,
	"mc_cid": true,
	"mc_eid": true,
	"ref":    true,
}

func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	if trackingKeys[k] {
		return true
	}
	for _, p := range trackingPrefixes {
		if strings.HasPrefix(k, p) {
			return true
		}
	}
	return false
}

// Normalize canonicalizes a shared URL: it adds a missing scheme, lowercases
// the host and drops the fragment and tracking parameters. The remaining
// query keeps its original order.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ErrInvalidURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrScheme
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		kept := make([]string, 0)
		for _, pair := range strings.Split(u.RawQuery, "&") {
			if pair == "" {
				continue
			}
			key, value, _ := strings.Cut(pair, "=")
			if k, err := url.QueryUnescape(key); err == nil {
				key = k
			}
			if value == "" || isTrackingParam(key) {
				continue
			}
			kept = append(kept, pair)
		}
		u.RawQuery = strings.Join(kept, "&")
	}
	return u.String(), nil
}
