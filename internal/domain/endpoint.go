package domain

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint identifies a single egress path. It is immutable once added to
// the pool; equality is by value, so it can be used directly as a map key.
type Endpoint struct {
	Host   string
	Port   uint16
	Scheme string // http, https or socks5
}

// Addr returns the host:port form used for dialing.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// URL returns the scheme://host:port form.
func (e Endpoint) URL() string {
	return fmt.Sprintf("%s://%s", e.Scheme, e.Addr())
}

func (e Endpoint) String() string {
	return e.URL()
}

// ParseEndpoint parses a single proxy address. Accepted forms are
// "host:port" and "scheme://host:port" with scheme http, https or socks5.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("empty proxy address")
	}

	scheme := "http"
	if idx := strings.Index(raw, "://"); idx >= 0 {
		scheme = strings.ToLower(raw[:idx])
		raw = raw[idx+3:]
	}

	switch scheme {
	case "http", "https", "socks5":
	default:
		return Endpoint{}, fmt.Errorf("unsupported proxy scheme %q", scheme)
	}

	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid proxy address %q: %w", raw, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid proxy port %q", portStr)
	}

	if host == "" {
		return Endpoint{}, fmt.Errorf("invalid proxy address %q: empty host", raw)
	}

	return Endpoint{Host: host, Port: uint16(port), Scheme: scheme}, nil
}

// ParseEndpointList parses a newline- or comma-separated proxy list.
// Malformed lines are skipped, comment lines (#) are ignored.
func ParseEndpointList(text string) []Endpoint {
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, ",", "\n")

	lines := strings.Split(text, "\n")
	endpoints := make([]Endpoint, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		endpoint, err := ParseEndpoint(line)
		if err != nil {
			continue
		}
		endpoints = append(endpoints, endpoint)
	}

	return endpoints
}
