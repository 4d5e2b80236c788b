package validator

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statscrape/relaypool/model"
)

// connectProxy is a minimal HTTP CONNECT relay.
func connectProxy(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodConnect {
			http.Error(w, "CONNECT only", http.StatusMethodNotAllowed)
			return
		}
		upstream, err := net.DialTimeout("tcp", r.Host, 5*time.Second)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		hj, ok := w.(http.Hijacker)
		if !ok {
			upstream.Close()
			http.Error(w, "no hijack", http.StatusInternalServerError)
			return
		}
		client, buf, err := hj.Hijack()
		if err != nil {
			upstream.Close()
			return
		}
		_, _ = client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
		if n := buf.Reader.Buffered(); n > 0 {
			pending, _ := buf.Reader.Peek(n)
			_, _ = upstream.Write(pending)
		}
		go func() {
			_, _ = io.Copy(upstream, client)
			upstream.Close()
		}()
		_, _ = io.Copy(client, upstream)
		client.Close()
	}))
}

func relayFor(t *testing.T, addr, protocol string) *model.Relay {
	t.Helper()
	host, port, err := model.ParseEndpoint(addr)
	require.NoError(t, err)
	return model.NewRelay(host, port, protocol, "test")
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestValidate_HTTPConnectRelay(t *testing.T) {
	target := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()
	relay := connectProxy(t)
	defer relay.Close()

	v := NewValidator(5*time.Second, 2, target.Listener.Addr().String())
	good := relayFor(t, relay.Listener.Addr().String(), "http")
	bad := relayFor(t, closedAddr(t), "https")
	bad.FailureCount = 2

	out := v.Validate(context.Background(), []*model.Relay{good, bad})
	require.Len(t, out, 2)

	assert.Equal(t, "http", good.VerifiedProtocol)
	assert.Equal(t, 1, good.SuccessCount)
	assert.Equal(t, 0, good.FailureCount)
	assert.True(t, good.Healthy())

	assert.Empty(t, bad.VerifiedProtocol)
	assert.Equal(t, 3, bad.FailureCount)
	assert.Equal(t, time.Duration(0), bad.Latency)
	assert.False(t, bad.Healthy())
}

func TestValidate_Socks5DeadRelay(t *testing.T) {
	v := NewValidator(2*time.Second, 1, "127.0.0.1:"+strconv.Itoa(1))
	r := relayFor(t, closedAddr(t), "socks5")
	r.SuccessCount = 4

	v.Validate(context.Background(), []*model.Relay{r})
	assert.Empty(t, r.VerifiedProtocol)
	assert.Equal(t, 0, r.SuccessCount)
	assert.Equal(t, 1, r.FailureCount)
}

func TestValidate_Empty(t *testing.T) {
	v := NewValidator(0, 0, "")
	assert.Empty(t, v.Validate(context.Background(), nil))
	assert.Equal(t, defaultValidationTarget, v.target)
	assert.Equal(t, 5, v.concurrency)
}
