package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statscrape/internal/egress"
	"statscrape/internal/shared/scrapeerr"
	"statscrape/internal/shared/types"
)

func newTestFetcher(sel egress.EndpointSelector, opts ...Option) *Fetcher {
	cfg := types.FetchConf{TimeoutSeconds: 5, UserAgent: "statscrape-test", MaxRedirects: 5}
	return New(cfg, sel, opts...)
}

func mustTarget(t *testing.T, raw string) Target {
	t.Helper()
	target, err := NewTarget(raw)
	require.NoError(t, err)
	return target
}

func requireKind(t *testing.T, err error, kind scrapeerr.Kind) *scrapeerr.Error {
	t.Helper()
	require.Error(t, err)
	var se *scrapeerr.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, kind, se.Kind, "unexpected kind for %v", err)
	return se
}

func TestNewTarget(t *testing.T) {
	_, err := NewTarget("https://www.transfermarkt.com/spieler/1")
	assert.NoError(t, err)

	for _, raw := range []string{"", "/relative/path", "ftp://host/file", "://bad"} {
		_, err := NewTarget(raw)
		assert.Error(t, err, raw)
	}
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "statscrape-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h1>Profile</h1></body></html>")
	}))
	defer srv.Close()

	f := newTestFetcher(egress.DirectOnly{})
	resp, err := f.Fetch(context.Background(), mustTarget(t, srv.URL+"/profil"), "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", resp.Reason)
	assert.Contains(t, string(resp.Body), "<h1>Profile</h1>")
	assert.Empty(t, resp.Proxy)

	// Same URL twice: revisits are allowed.
	_, err = f.Fetch(context.Background(), mustTarget(t, srv.URL+"/profil"), "")
	require.NoError(t, err)
}

func TestFetch_OverrideURL(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	f := newTestFetcher(nil)
	_, err := f.Fetch(context.Background(), mustTarget(t, srv.URL+"/target"), srv.URL+"/override")
	require.NoError(t, err)
	assert.Equal(t, []string{"/override"}, paths)
}

func TestFetch_ClientErrorCarriesStatusAndURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	pageURL := srv.URL + "/spieler/404"
	_, err := newTestFetcher(nil).Fetch(context.Background(), mustTarget(t, pageURL), "")
	se := requireKind(t, err, scrapeerr.ClientError)
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Contains(t, se.Detail, pageURL)
	assert.Contains(t, se.Detail, "Not Found")
}

func TestFetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestFetcher(nil).Fetch(context.Background(), mustTarget(t, srv.URL), "")
	se := requireKind(t, err, scrapeerr.ServerError)
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
	assert.Equal(t, "Server Error. Service Unavailable for url: "+srv.URL, se.Detail)
}

func TestFetch_RedirectLoopIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	pageURL := srv.URL + "/loop"
	_, err := newTestFetcher(nil).Fetch(context.Background(), mustTarget(t, pageURL), "")
	se := requireKind(t, err, scrapeerr.NotFound)
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Equal(t, "Not found for url: "+pageURL, se.Detail)
}

func TestFetch_ConnectionRefusedIsUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	pageURL := "http://" + addr + "/page"
	_, err = newTestFetcher(nil).Fetch(context.Background(), mustTarget(t, pageURL), "")
	se := requireKind(t, err, scrapeerr.UpstreamUnavailable)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Contains(t, se.Detail, pageURL)
}

func TestFetch_TimeoutIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	f := newTestFetcher(nil, WithTimeout(100*time.Millisecond))
	_, err := f.Fetch(context.Background(), mustTarget(t, srv.URL), "")
	se := requireKind(t, err, scrapeerr.UpstreamError)
	assert.Contains(t, se.Detail, "Error for url: "+srv.URL+".")
}

func TestFetch_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "late")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher(nil).Fetch(ctx, mustTarget(t, srv.URL), "")
	requireKind(t, err, scrapeerr.UpstreamError)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetch_ThroughStaticRelay(t *testing.T) {
	var relayed []string
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A forward proxy receives the absolute target URL.
		relayed = append(relayed, r.URL.String())
		fmt.Fprint(w, "<p>via relay</p>")
	}))
	defer relay.Close()

	relayURL, err := url.Parse(relay.URL)
	require.NoError(t, err)
	pool := egress.NewStaticPool([]string{relayURL.Host})
	fixed := func() time.Time { return time.Unix(42, 0) }

	f := newTestFetcher(pool, WithClock(fixed))
	resp, err := f.Fetch(context.Background(), mustTarget(t, "http://stats.example.test/wettbewerb/GB1"), "")
	require.NoError(t, err)
	assert.Equal(t, "<p>via relay</p>", string(resp.Body))
	assert.Equal(t, []string{"http://stats.example.test/wettbewerb/GB1"}, relayed)
	assert.Equal(t, "http://"+relayURL.Host, resp.Proxy)
}

func TestFetch_DeadRelayIsUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := ln.Addr().String()
	require.NoError(t, ln.Close())

	f := newTestFetcher(egress.NewStaticPool([]string{dead}))
	_, err = f.Fetch(context.Background(), mustTarget(t, "http://stats.example.test/"), "")
	requireKind(t, err, scrapeerr.UpstreamUnavailable)
}
