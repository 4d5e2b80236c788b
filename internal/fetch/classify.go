package fetch

import (
	"context"
	"errors"
	"net"
	"syscall"

	"statscrape/internal/shared/scrapeerr"
)

var errTooManyRedirects = errors.New("too many redirects")

// classify maps a transport error from colly/net/http onto the taxonomy.
func classify(pageURL string, err error) *scrapeerr.Error {
	var classified *scrapeerr.Error
	if errors.As(err, &classified) {
		return classified
	}
	if errors.Is(err, errTooManyRedirects) {
		return scrapeerr.RedirectLoop(pageURL, err)
	}
	if isConnectionError(err) {
		return scrapeerr.Unavailable(pageURL, err)
	}
	return scrapeerr.Transport(pageURL, err)
}

// isConnectionError reports failures to establish a connection, to the
// upstream or to the relay. Timeouts are not connection errors.
func isConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return !dnsErr.IsTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return false
		}
		if opErr.Op == "dial" || opErr.Op == "proxyconnect" {
			return true
		}
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}
