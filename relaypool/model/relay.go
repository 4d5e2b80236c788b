package model

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Protocol suffixes used in relay IDs.
const (
	suffixHTTP  = "-H"
	suffixSOCKS = "-S"
)

// Relay 定义了一个出口 relay 的完整信息，是 relay pool 的核心数据结构。
// 它在内存中使用，并通过API序列化为JSON，但通过FileStorage持久化为纯文本。
type Relay struct {
	// 核心信息
	ID   string `json:"id"` // "host:port-H" or "host:port-S"
	Host string `json:"host"`
	Port int    `json:"port"`

	// 元数据
	Source string `json:"source"` // 来源, a relay source name or "manual-import"

	// ScrapedProtocol is what the source claims ("http", "https", "socks5").
	// It is a hint for the validator.
	ScrapedProtocol string `json:"scraped_protocol"`

	// VerifiedProtocol is "http" (CONNECT works) or "socks5" after a
	// successful check, empty otherwise.
	VerifiedProtocol string `json:"verified_protocol"`

	// 健康状态与生命周期管理
	Latency      time.Duration `json:"latency"`
	LastChecked  time.Time     `json:"last_checked"`
	NextChecked  time.Time     `json:"next_checked"`
	FailureCount int           `json:"failure_count"`
	SuccessCount int           `json:"success_count"`
}

// NewRelay builds an unchecked relay that is due for validation now.
func NewRelay(host string, port int, protocol, source string) *Relay {
	now := time.Now()
	return &Relay{
		ID:              RelayID(host, port, protocol),
		Host:            host,
		Port:            port,
		Source:          source,
		ScrapedProtocol: protocol,
		LastChecked:     now,
		NextChecked:     now,
	}
}

// ParseEndpoint splits "host:port" and validates the port.
func ParseEndpoint(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	if host == "" {
		return "", 0, fmt.Errorf("missing host in %q", s)
	}
	return host, port, nil
}

// RelayID is "host:port" plus a protocol suffix, so the same endpoint can be
// tracked once as HTTP and once as SOCKS.
func RelayID(host string, port int, protocol string) string {
	suffix := suffixHTTP
	if protocol == "socks5" {
		suffix = suffixSOCKS
	}
	return net.JoinHostPort(host, strconv.Itoa(port)) + suffix
}

// Endpoint returns "host:port".
func (r *Relay) Endpoint() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Healthy reports whether the last check passed.
func (r *Relay) Healthy() bool {
	return r.VerifiedProtocol != "" && r.SuccessCount > 0
}
