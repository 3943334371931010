// Package linkpreview fetches shared links and extracts OG metadata and body
// text for room threads.
package linkpreview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"mentorchat/backend/pkg/cache"
	"mentorchat/backend/pkg/config"
	"mentorchat/backend/pkg/logger"
)

var (
	ErrDisabled    = errors.New("link fetching disabled")
	ErrInvalidURL  = errors.New("invalid url")
	ErrScheme      = errors.New("url scheme not allowed")
	ErrBlockedHost = errors.New("host not allowed")
	ErrNotHTML     = errors.New("response is not html")
	ErrTooLarge    = errors.New("response body too large")
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

	DefaultMaxText = 4000
)

var htmlMIME = regexp.MustCompile(`(?i)(text/html|application/xhtml\+xml)`)

// Preview is the extracted view of one link.
type Preview struct {
	URL         string `json:"url"`
	Host        string `json:"host"`
	SiteName    string `json:"siteName,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Text        string `json:"text,omitempty"`
}

// Summary is the short text shown with a thread.
func (p *Preview) Summary() string {
	if p.Description != "" {
		return p.Description
	}
	return truncate(p.Text, 280)
}

type Options struct {
	Enabled      bool
	Timeout      time.Duration
	MaxBytes     int64
	MaxText      int
	AllowPrivate bool
	CacheTTL     time.Duration
}

// OptionsFrom reads link settings from cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Enabled:      cfg.Links.FetchEnabled,
		Timeout:      cfg.Links.Timeout,
		MaxBytes:     cfg.Links.MaxBytes,
		MaxText:      DefaultMaxText,
		AllowPrivate: cfg.Links.AllowPrivate,
		CacheTTL:     cfg.Cache.TTL,
	}
}

type Fetcher struct {
	client *http.Client
	cache  *cache.Cache
	opts   Options
	logger *logger.Logger
}

// New creates a fetcher. c may be nil to disable caching.
func New(opts Options, c *cache.Cache, log *logger.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 2 << 20
	}
	if opts.MaxText <= 0 {
		opts.MaxText = DefaultMaxText
	}
	if opts.CacheTTL < time.Minute {
		opts.CacheTTL = time.Minute
	}
	if log == nil {
		log = logger.Discard()
	}

	dialer := &net.Dialer{Timeout: opts.Timeout}
	if !opts.AllowPrivate {
		dialer.Control = dialControl
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        5,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}

	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				return checkURL(req.URL, opts.AllowPrivate)
			},
		},
		cache:  c,
		opts:   opts,
		logger: log.WithComponent("linkpreview"),
	}
}

func checkURL(u *url.URL, allowPrivate bool) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrScheme
	}
	if !allowPrivate && blockedHostname(u.Hostname()) {
		return ErrBlockedHost
	}
	return nil
}

// Fetch returns the preview for raw, serving repeated links from cache.
func (f *Fetcher) Fetch(ctx context.Context, raw string) (*Preview, error) {
	if !f.opts.Enabled {
		return nil, ErrDisabled
	}
	normalized, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(normalized)
	if err := checkURL(u, f.opts.AllowPrivate); err != nil {
		return nil, err
	}

	if p, ok := f.cached(normalized); ok {
		return p, nil
	}

	finalURL, doc, err := f.fetchHTML(ctx, normalized)
	if err != nil {
		f.logger.Warn("link fetch failed", "url", normalized, "error", err)
		return nil, err
	}

	p := extract(doc, finalURL, f.opts.MaxText)
	key := finalURL.String()
	f.store(key, p)
	if key != normalized {
		f.store(normalized, p)
	}
	cp := *p
	return &cp, nil
}

func (f *Fetcher) cached(key string) (*Preview, bool) {
	if f.cache == nil {
		return nil, false
	}
	v, ok := f.cache.Get("link:" + key)
	if !ok {
		return nil, false
	}
	p, ok := v.(Preview)
	if !ok {
		return nil, false
	}
	return &p, true
}

func (f *Fetcher) store(key string, p *Preview) {
	if f.cache == nil {
		return
	}
	f.cache.SetWithExpiration("link:"+key, *p, f.opts.CacheTTL)
}

func (f *Fetcher) fetchHTML(ctx context.Context, target string) (*url.URL, *goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, ErrBlockedHost):
			return nil, nil, ErrBlockedHost
		case errors.Is(err, ErrScheme):
			return nil, nil, ErrScheme
		}
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, nil, fmt.Errorf("link fetch: status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !htmlMIME.MatchString(contentType) {
		return nil, nil, ErrNotHTML
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, nil, err
	}
	if int64(len(raw)) > f.opts.MaxBytes {
		return nil, nil, ErrTooLarge
	}

	body, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		body = bytes.NewReader(raw)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, nil, err
	}
	return resp.Request.URL, doc, nil
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func extract(doc *goquery.Document, base *url.URL, maxText int) *Preview {
	p := &Preview{
		URL:  base.String(),
		Host: strings.ToLower(base.Hostname()),
	}

	p.Title = metaContent(doc, `meta[property="og:title"]`, `meta[name="og:title"]`)
	if p.Title == "" {
		p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	p.Description = metaContent(doc,
		`meta[property="og:description"]`, `meta[name="og:description"]`, `meta[name="description"]`)
	p.SiteName = metaContent(doc, `meta[property="og:site_name"]`, `meta[name="og:site_name"]`)
	if p.SiteName == "" {
		p.SiteName = strings.TrimPrefix(p.Host, "www.")
	}

	image := metaContent(doc, `meta[property="og:image"]`, `meta[name="og:image"]`, `meta[name="twitter:image"]`)
	if image != "" && !strings.HasPrefix(strings.ToLower(image), "data:") {
		if ref, err := url.Parse(image); err == nil {
			image = base.ResolveReference(ref).String()
		}
	}
	p.Image = image

	p.Text = truncate(cleanText(bodyText(doc)), maxText)
	return p
}

// bodyText prefers the longest article or main element and falls back to
// paragraphs of more than five words.
func bodyText(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()

	best := ""
	doc.Find("article, main").Each(func(_ int, s *goquery.Selection) {
		if t := cleanText(s.Text()); len(t) > len(best) {
			best = t
		}
	})
	if best != "" {
		return best
	}

	var parts []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		t := cleanText(s.Text())
		if len(strings.Fields(t)) > 5 {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}
