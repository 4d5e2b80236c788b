package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statscrape/internal/extract"
	"statscrape/internal/shared/types"
)

func testConfig(t *testing.T, mode string) (*types.Config, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := types.DefaultConfig()
	cfg.EgressConf.Mode = mode
	cfg.EgressConf.RelaysFile = "relays.txt"
	cfg.RelayPoolConf.SourcesFile = "sources.json"
	cfg.WebConf.Port = 0
	return cfg, dir
}

func TestNew_ResolvesFilesAgainstConfigDir(t *testing.T) {
	cfg, dir := testConfig(t, types.EgressDirect)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sources.json"), []byte(`[
		{"name": "a", "url": "https://relays.example.test/a", "row_xpath": "//tr", "host_xpath": "td[1]", "port_xpath": "td[2]"}
	]`), 0644))

	a, err := New(cfg, dir)
	require.NoError(t, err)
	assert.NotNil(t, a.Fetcher)
	assert.NotNil(t, a.Pool)
	assert.False(t, a.NeedsPool())
	assert.Equal(t, filepath.Join(dir, "relays.db.txt"), a.path("relays.db.txt"))
	assert.Equal(t, "/abs/relays.txt", a.path("/abs/relays.txt"))
}

func TestNew_StaticPoolRoutesThroughRelay(t *testing.T) {
	var proxied atomic.Bool
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied.Store(r.URL.IsAbs())
		fmt.Fprint(w, `<html><body><h1>Relayed</h1></body></html>`)
	}))
	defer relay.Close()

	cfg, dir := testConfig(t, types.EgressStatic)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relays.txt"), []byte(relay.Listener.Addr().String()+"\n"), 0644))

	a, err := New(cfg, dir)
	require.NoError(t, err)

	p, err := extract.Load(context.Background(), a.Fetcher, "http://stats.example.test/club/1")
	require.NoError(t, err)
	got, ok, err := p.SingleText("//h1/text()", extract.Default())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Relayed", got)
	assert.True(t, proxied.Load())
}

func TestNew_UnknownEgressMode(t *testing.T) {
	cfg, dir := testConfig(t, "carrier-pigeon")
	_, err := New(cfg, dir)
	assert.Error(t, err)
}

func TestServe_StopsOnContextDone(t *testing.T) {
	cfg, dir := testConfig(t, types.EgressHealth)
	a, err := New(cfg, dir)
	require.NoError(t, err)
	assert.True(t, a.NeedsPool())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	_, err = os.Stat(filepath.Join(dir, "relays.db.txt"))
	assert.NoError(t, err)
}
