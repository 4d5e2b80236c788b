// Package fetch retrieves one page per call through the configured egress
// path and classifies every failure into a scrapeerr.Error.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"statscrape/internal/egress"
	"statscrape/internal/shared/logger"
	"statscrape/internal/shared/scrapeerr"
	"statscrape/internal/shared/types"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxRedirects = 20
)

// Target is an absolute URL to fetch. It is immutable once built.
type Target struct {
	raw string
}

// NewTarget validates that raw is an absolute http(s) URL.
func NewTarget(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target url %q: %w", raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return Target{}, fmt.Errorf("target url %q is not absolute", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, fmt.Errorf("target url %q: unsupported scheme %q", raw, u.Scheme)
	}
	return Target{raw: raw}, nil
}

func (t Target) String() string {
	return t.raw
}

// Response is a successful (non 4xx/5xx) upstream answer.
type Response struct {
	URL        string
	StatusCode int
	Reason     string
	Body       []byte
	// Proxy is the relay URL the request went through, empty when direct.
	Proxy string
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithClock replaces the clock used for egress selection.
func WithClock(clock egress.Clock) Option {
	return func(f *Fetcher) {
		f.clock = clock
	}
}

// WithTimeout overrides the request timeout from the config.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// Fetcher issues exactly one GET per Fetch call. It is safe for concurrent
// use: every call runs on its own clone of the base collector.
type Fetcher struct {
	collector    *colly.Collector
	selector     egress.EndpointSelector
	clock        egress.Clock
	timeout      time.Duration
	maxRedirects int
	log          zerolog.Logger
}

// New builds a fetcher from the [fetch] section and an egress selector.
func New(cfg types.FetchConf, selector egress.EndpointSelector, opts ...Option) *Fetcher {
	if selector == nil {
		selector = egress.DirectOnly{}
	}
	f := &Fetcher{
		selector:     selector,
		clock:        time.Now,
		timeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
		maxRedirects: cfg.MaxRedirects,
		log:          logger.WithComponent("Fetch"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.timeout <= 0 {
		f.timeout = defaultTimeout
	}
	if f.maxRedirects <= 0 {
		f.maxRedirects = defaultMaxRedirects
	}

	collectorOpts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	}
	if cfg.UserAgent != "" {
		collectorOpts = append(collectorOpts, colly.UserAgent(cfg.UserAgent))
	}
	if cfg.DetectCharset {
		collectorOpts = append(collectorOpts, colly.DetectCharset())
	}

	c := colly.NewCollector(collectorOpts...)
	c.SetRequestTimeout(f.timeout)
	c.SetProxyFunc(egress.ProxyFunc(f.selector, f.clock))
	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= f.maxRedirects {
			return errTooManyRedirects
		}
		return nil
	})
	f.collector = c
	return f
}

// Fetch retrieves override when non-empty, otherwise target. Failures are
// returned as *scrapeerr.Error; nothing is retried.
func (f *Fetcher) Fetch(ctx context.Context, target Target, override string) (*Response, error) {
	pageURL := target.String()
	if override != "" {
		pageURL = override
	}
	if ctx == nil {
		ctx = context.Background()
	}

	l := f.log.With().Str("request_id", uuid.NewString()).Str("url", pageURL).Logger()

	var proxy string
	c := f.collector.Clone()
	c.Context = egress.WithProxySink(ctx, &proxy)

	var resp *Response
	c.OnRequest(func(r *colly.Request) {
		l.Info().Msg("Requesting URL.")
	})
	c.OnResponse(func(r *colly.Response) {
		resp = &Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Reason:     reasonPhrase(r.StatusCode),
			Body:       r.Body,
			Proxy:      proxy,
		}
		l.Info().Int("status_code", r.StatusCode).Str("proxy", proxy).Msg("Response received.")
	})

	if err := c.Visit(pageURL); err != nil {
		classified := classify(pageURL, err)
		l.Warn().Err(err).Str("kind", classified.Kind.String()).Msg("Request failed.")
		return nil, classified
	}
	if resp == nil {
		// colly aborted without an error (e.g. a filtered URL).
		return nil, scrapeerr.Transport(pageURL, errors.New("no response received"))
	}

	if err := scrapeerr.Upstream(pageURL, resp.StatusCode, resp.Reason); err != nil {
		l.Warn().Int("status_code", resp.StatusCode).Msg(err.Detail)
		return nil, err
	}

	l.Debug().Int("status_code", resp.StatusCode).Int("bytes", len(resp.Body)).Msg("Successfully fetched URL.")
	return resp, nil
}

func reasonPhrase(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return strconv.Itoa(code)
}
