// Package egress decides how each outbound request leaves the host: directly,
// or through one relay from a pool.
package egress

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"statscrape/internal/shared/logger"
	"statscrape/internal/shared/types"
)

// Path is the network route for one request. The zero value is direct.
type Path struct {
	// Endpoint is "host:port" of the relay; empty means direct.
	Endpoint string
	// Scheme forces the proxy URL scheme (e.g. "socks5"). Empty uses the
	// target's own scheme.
	Scheme string
}

// Direct reports whether the request bypasses relays.
func (p Path) Direct() bool {
	return p.Endpoint == ""
}

// ProxyURL returns the relay URL for a target scheme, or nil for direct.
func (p Path) ProxyURL(targetScheme string) *url.URL {
	if p.Direct() {
		return nil
	}
	scheme := p.Scheme
	if scheme == "" {
		scheme = targetScheme
	}
	if scheme == "" {
		scheme = "http"
	}
	return &url.URL{Scheme: scheme, Host: p.Endpoint}
}

func (p Path) String() string {
	if p.Direct() {
		return "direct"
	}
	if p.Scheme != "" {
		return fmt.Sprintf("relay(%s://%s)", p.Scheme, p.Endpoint)
	}
	return fmt.Sprintf("relay(%s)", p.Endpoint)
}

// EndpointSelector picks the egress path for a request to a target scheme.
// Implementations must be safe for concurrent use.
type EndpointSelector interface {
	Select(now time.Time, scheme string) Path
}

// Clock returns the current time; tests substitute a fixed one.
type Clock func() time.Time

// DirectOnly never uses a relay.
type DirectOnly struct{}

func (DirectOnly) Select(time.Time, string) Path {
	return Path{}
}

// StaticPool picks pool[floor(unix seconds) mod N]. Selection depends only on
// the clock, so every request within the same second uses the same relay and
// a dead relay stays selected until the window moves on.
type StaticPool struct {
	endpoints []string
}

// NewStaticPool copies endpoints; the pool is read-only afterwards.
func NewStaticPool(endpoints []string) *StaticPool {
	return &StaticPool{endpoints: append([]string(nil), endpoints...)}
}

// Len returns the pool size.
func (s *StaticPool) Len() int {
	return len(s.endpoints)
}

func (s *StaticPool) Select(now time.Time, _ string) Path {
	if len(s.endpoints) == 0 {
		return Path{}
	}
	return Path{Endpoint: s.endpoints[timeIndex(now, len(s.endpoints))]}
}

// timeIndex is floor(t) mod n for a non-negative result.
func timeIndex(now time.Time, n int) int {
	i := now.Unix() % int64(n)
	if i < 0 {
		i += int64(n)
	}
	return int(i)
}

// New builds the selector named by cfg.Mode. source is only consulted for
// the health mode.
func New(cfg types.EgressConf, pool []string, source RelaySource) (EndpointSelector, error) {
	l := logger.WithComponent("Egress")
	switch cfg.Mode {
	case "", types.EgressDirect:
		l.Info().Msg("Outbound requests connect directly.")
		return DirectOnly{}, nil
	case types.EgressStatic:
		if len(pool) == 0 {
			l.Warn().Msg("Static egress pool is empty, requests will connect directly.")
		} else {
			l.Info().Int("relays", len(pool)).Msg("Using time-keyed static relay pool.")
		}
		return NewStaticPool(pool), nil
	case types.EgressHealth:
		if source == nil {
			return nil, fmt.Errorf("egress mode %q requires a relay source", cfg.Mode)
		}
		l.Info().Msg("Using health-checked relay pool.")
		return NewHealthCheckedPool(source), nil
	default:
		return nil, fmt.Errorf("unknown egress mode %q", cfg.Mode)
	}
}

type proxySinkKey struct{}

// WithProxySink returns a context under which ProxyFunc records the relay URL
// of every request it routes into dst. Direct requests reset dst to "".
// http.Client copies the request before asking for a proxy, so the context is
// the only channel back to the caller.
func WithProxySink(ctx context.Context, dst *string) context.Context {
	return context.WithValue(ctx, proxySinkKey{}, dst)
}

func recordProxy(ctx context.Context, proxy string) {
	if dst, ok := ctx.Value(proxySinkKey{}).(*string); ok && dst != nil {
		*dst = proxy
	}
}

// ProxyFunc adapts a selector to colly. The chosen proxy URL goes to the sink
// installed by WithProxySink and to colly.ProxyURLKey on the request context.
func ProxyFunc(sel EndpointSelector, clock Clock) colly.ProxyFunc {
	if clock == nil {
		clock = time.Now
	}
	return func(pr *http.Request) (*url.URL, error) {
		u := sel.Select(clock(), pr.URL.Scheme).ProxyURL(pr.URL.Scheme)
		if u == nil {
			recordProxy(pr.Context(), "")
			return nil, nil
		}
		recordProxy(pr.Context(), u.String())
		ctx := context.WithValue(pr.Context(), colly.ProxyURLKey, u.String())
		*pr = *pr.WithContext(ctx)
		return u, nil
	}
}
