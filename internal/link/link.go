// Package link scrapes title, description and preview image of a web page
// for the editor's link cards.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

const (
	defaultTitle       = "No title"
	defaultDescription = "No description"
	maxBody            = 2 << 20
)

var (
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid url")
	// ErrThrottled is returned when a client exceeds its fetch rate.
	ErrThrottled = errors.New("too many link lookups")
	// ErrForbiddenHost is returned when a page resolves to a non-public
	// address.
	ErrForbiddenHost = errors.New("host is not publicly routable")
)

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// Image is the preview image of a page.
type Image struct {
	URL string `json:"url"`
}

// Meta is the scraped metadata of a page.
type Meta struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       Image  `json:"image"`
}

// Config tunes a Scraper.
type Config struct {
	Client   *http.Client
	CacheTTL time.Duration
	// Rate and Burst bound outbound fetches per client IP.
	Rate  rate.Limit
	Burst int
}

// Scraper fetches page metadata, caching results per URL.
type Scraper struct {
	client   *http.Client
	results  *ttlcache.Cache[string, Meta]
	limiters *ttlcache.Cache[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
	logger   *slog.Logger
}

// NewScraper builds a Scraper. Call Start to run cache expiry.
func NewScraper(cfg Config, logger *slog.Logger) *Scraper {
	if cfg.Client == nil {
		cfg.Client = PublicClient(10 * time.Second)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.Rate <= 0 {
		cfg.Rate = rate.Every(2 * time.Second)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	return &Scraper{
		client:   cfg.Client,
		results:  ttlcache.New(ttlcache.WithTTL[string, Meta](cfg.CacheTTL)),
		limiters: ttlcache.New(ttlcache.WithTTL[string, *rate.Limiter](5 * time.Minute)),
		rate:     cfg.Rate,
		burst:    cfg.Burst,
		logger:   logger,
	}
}

// PublicClient returns an HTTP client that only dials public addresses.
// The check runs on the resolved address, so redirects and DNS answers
// pointing inside the network are refused too.
func PublicClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: timeout, Control: publicOnly}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: timeout, Transport: transport}
}

func publicOnly(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrForbiddenHost, address)
	}
	addr := ap.Addr().Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() || addr.IsMulticast() ||
		sharedAddressSpace.Contains(addr) {
		return fmt.Errorf("%w: %s", ErrForbiddenHost, addr)
	}
	return nil
}

// Start runs expiry of cached results and idle limiters.
func (s *Scraper) Start() {
	go s.results.Start()
	go s.limiters.Start()
}

// Stop ends expiry. It must only be called after Start.
func (s *Scraper) Stop() {
	s.results.Stop()
	s.limiters.Stop()
}

// Normalize prefixes https:// when the scheme is missing and rejects
// anything that is not an absolute http(s) URL.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u.String(), nil
}

// Lookup returns the metadata of rawURL on behalf of client.
func (s *Scraper) Lookup(ctx context.Context, client, rawURL string) (Meta, error) {
	target, err := Normalize(rawURL)
	if err != nil {
		return Meta{}, err
	}
	if item := s.results.Get(target); item != nil {
		return item.Value(), nil
	}
	if !s.allow(client) {
		return Meta{}, ErrThrottled
	}
	meta, err := s.fetch(ctx, target)
	if err != nil {
		return Meta{}, err
	}
	s.results.Set(target, meta, ttlcache.DefaultTTL)
	return meta, nil
}

func (s *Scraper) allow(client string) bool {
	item, _ := s.limiters.GetOrSet(client, rate.NewLimiter(s.rate, s.burst))
	return item.Value().Allow()
}

func (s *Scraper) fetch(ctx context.Context, target string) (Meta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Meta{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; hsportal-linkbot/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := s.client.Do(req)
	if err != nil {
		return Meta{}, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Meta{}, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}
	return Parse(io.LimitReader(resp.Body, maxBody))
}

// Parse extracts metadata from an HTML document, filling in defaults.
func Parse(r io.Reader) (Meta, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Meta{}, fmt.Errorf("parse html: %w", err)
	}
	meta := Meta{
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Description: strings.TrimSpace(doc.Find(`meta[name="description"]`).First().AttrOr("content", "")),
		Image:       Image{URL: strings.TrimSpace(doc.Find(`meta[property="og:image"]`).First().AttrOr("content", ""))},
	}
	if meta.Title == "" {
		meta.Title = defaultTitle
	}
	if meta.Description == "" {
		meta.Description = defaultDescription
	}
	return meta, nil
}
