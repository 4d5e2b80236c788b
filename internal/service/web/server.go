// Package web exposes extraction and relay pool maintenance over HTTP, plus
// a websocket stream of relay pool updates.
package web

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"statscrape/internal/shared/logger"
	"statscrape/internal/shared/types"
)

// loggingListener logs accepted connections at debug level.
type loggingListener struct {
	net.Listener
}

func (l loggingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		log := logger.WithComponent("Web")
		log.Debug().Str("remote_addr", conn.RemoteAddr().String()).Msg("Connection accepted.")
	}
	return conn, err
}

// basicAuthMiddleware 检查 user 和 password 是否已配置。
// 如果配置了，它将强制执行 HTTP Basic Authentication。
func basicAuthMiddleware(next http.Handler, user, pass string) http.Handler {
	// 如果用户名或密码未设置，则不启用认证，直接返回原始处理器
	if user == "" || pass == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("Unauthorized.\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter wires the API routes. hub may be nil, which disables /ws.
func NewRouter(cfg types.WebConf, handler *Handler, hub *Hub) http.Handler {
	mux := http.NewServeMux()
	protect := func(fn http.HandlerFunc) http.Handler {
		return basicAuthMiddleware(fn, cfg.User, cfg.Password)
	}

	mux.Handle("/api/extract", protect(handler.HandleExtract))
	mux.Handle("/api/relays", protect(handler.HandleRelays))
	mux.Handle("/api/relays/import", protect(handler.HandleImportRelays))
	mux.Handle("/api/relays/validate", protect(handler.HandleValidateRelays))
	mux.Handle("/api/relays/delete", protect(handler.HandleDeleteRelays))

	if hub != nil {
		mux.Handle("/ws", protect(func(w http.ResponseWriter, r *http.Request) {
			ServeWs(hub, w, r)
		}))
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// StartServer listens on the configured port and serves router in the
// background. It returns nil when the web API is disabled (port <= 0).
func StartServer(wg *sync.WaitGroup, cfg types.WebConf, router http.Handler) (*http.Server, error) {
	l := logger.WithComponent("Web")
	if cfg.Port <= 0 {
		l.Info().Msg("Web API is disabled (port is 0 or not set).")
		return nil, nil
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start web API on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	l.Info().Msgf("Web API is listening on http://%s", addr)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(loggingListener{Listener: listener}); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("Web server error.")
		}
		l.Info().Msg("Web server stopped.")
	}()
	return srv, nil
}
