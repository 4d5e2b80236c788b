package validator

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"statscrape/internal/shared/logger"
	"statscrape/relaypool/model"
)

const defaultValidationTarget = "www.transfermarkt.com:443" // Use a target that requires TLS

// Validator checks that relays can tunnel to the validation target.
type Validator struct {
	timeout     time.Duration
	concurrency int
	target      string
	now         func() time.Time
}

func NewValidator(timeout time.Duration, concurrency int, target string) *Validator {
	if concurrency <= 0 {
		concurrency = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if target == "" {
		target = defaultValidationTarget
	}
	return &Validator{
		timeout:     timeout,
		concurrency: concurrency,
		target:      target,
		now:         time.Now,
	}
}

// Validate checks every relay with at most concurrency checks in flight and
// updates each relay's counters in place. Callers pass relays they own; the
// manager hands in copies and merges the results back under its lock.
func (v *Validator) Validate(ctx context.Context, relays []*model.Relay) []*model.Relay {
	l := logger.WithComponent("RelayPool/Validator")
	if len(relays) == 0 {
		return relays
	}

	l.Info().Int("count", len(relays)).Int("concurrency", v.concurrency).Msg("Starting validation batch...")

	var wg sync.WaitGroup
	resultsChan := make(chan *model.Relay, len(relays))
	semaphore := make(chan struct{}, v.concurrency)

	for _, r := range relays {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(relay *model.Relay) {
			defer wg.Done()
			defer func() { <-semaphore }()

			v.validateSingleRelay(ctx, relay)
			resultsChan <- relay
		}(r)
	}

	wg.Wait()
	close(resultsChan)

	validated := make([]*model.Relay, 0, len(relays))
	for r := range resultsChan {
		validated = append(validated, r)
	}

	l.Info().Msg("Validation batch finished.")
	return validated
}

// validateSingleRelay dispatches on the scraped protocol.
func (v *Validator) validateSingleRelay(ctx context.Context, r *model.Relay) {
	startTime := v.now()
	var err error

	r.VerifiedProtocol = ""

	switch r.ScrapedProtocol {
	case "socks5":
		err = v.checkSocks5Connect(ctx, r)
		if err == nil {
			r.VerifiedProtocol = "socks5"
		}
	default:
		err = v.checkHTTPConnect(ctx, r)
		if err == nil {
			r.VerifiedProtocol = "http"
		}
	}

	r.LastChecked = v.now()

	if err != nil {
		l := logger.WithComponent("RelayPool/Validator")
		l.Debug().Err(err).Str("relay_id", r.ID).Msg("Relay check failed.")
		r.SuccessCount = 0
		r.FailureCount++
		r.Latency = 0
		return
	}
	r.FailureCount = 0
	r.SuccessCount++
	r.Latency = r.LastChecked.Sub(startTime)
}

// checkHTTPConnect sends a HEAD request to the target through the relay,
// which forces an HTTP CONNECT tunnel.
func (v *Validator) checkHTTPConnect(ctx context.Context, r *model.Relay) error {
	proxyURL, err := url.Parse("http://" + r.Endpoint())
	if err != nil {
		return err
	}

	dialer := &net.Dialer{
		Timeout:   v.timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyURL(proxyURL),
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		IdleConnTimeout:       v.timeout,
		TLSHandshakeTimeout:   v.timeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     true,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   v.timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+v.target, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("received non-successful status code: %d", resp.StatusCode)
	}
	return nil
}

// checkSocks5Connect opens a SOCKS5 connection to the target through the relay.
func (v *Validator) checkSocks5Connect(ctx context.Context, r *model.Relay) error {
	dialer, err := proxy.SOCKS5("tcp", r.Endpoint(), nil, &net.Dialer{Timeout: v.timeout})
	if err != nil {
		return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cd, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return fmt.Errorf("SOCKS5 dialer does not support contexts")
	}
	conn, err := cd.DialContext(ctx, "tcp", v.target)
	if err != nil {
		return err
	}
	return conn.Close()
}
