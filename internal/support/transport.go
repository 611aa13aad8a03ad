package support

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"shrike/internal/domain"
)

// baseTransport builds the shared transport configuration. Keep-alives are
// disabled so every attempt dials fresh: pooled connections through a
// half-dead proxy would poison later attempts.
func baseTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 0,
		}).DialContext,
		DisableKeepAlives:     true,
		MaxIdleConns:          0,
		MaxIdleConnsPerHost:   0,
		IdleConnTimeout:       0,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// ProxyTransport returns a transport that routes traffic through the given
// egress endpoint. HTTP and HTTPS proxies go through the standard CONNECT
// path; socks5 endpoints get a SOCKS dialer.
func ProxyTransport(endpoint domain.Endpoint, timeout time.Duration) (*http.Transport, error) {
	transport := baseTransport(timeout)

	switch endpoint.Scheme {
	case "http", "https":
		proxyURL := &url.URL{
			Scheme: endpoint.Scheme,
			Host:   endpoint.Addr(),
		}
		transport.Proxy = http.ProxyURL(proxyURL)

	case "socks5":
		socksDialer, err := proxy.SOCKS5("tcp", endpoint.Addr(), nil, &net.Dialer{
			Timeout: timeout,
		})
		if err != nil {
			return nil, err
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if contextDialer, ok := socksDialer.(proxy.ContextDialer); ok {
				return contextDialer.DialContext(ctx, network, addr)
			}
			return socksDialer.Dial(network, addr)
		}

	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", endpoint.Scheme)
	}

	// Untrusted egress paths frequently terminate TLS with self-signed
	// certificates; certificate validation is skipped for proxied traffic.
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return transport, nil
}

// DirectTransport returns a transport for the proxy-less fallback attempt.
func DirectTransport(timeout time.Duration) *http.Transport {
	return baseTransport(timeout)
}
