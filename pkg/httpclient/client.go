// Package httpclient builds the *http.Client pkg/vendorclient sends every
// dispatch API request through: a timeout, a transport-level retry for
// transient failures, and a logging layer that stamps the correlation ID
// and redacts sensitive query parameters before a request line hits the
// log. The vendor's own 401/403-refresh-and-retry-once contract lives in
// vendorclient.Client.do, one layer up — this package only knows about
// ordinary transport-level retryability (5xx/429/408/network errors), not
// the vendor's application-level status envelope.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// New builds an *http.Client from cfg: TLS 1.2+ with pooled connections,
// wrapped by a logging transport and, when cfg.RetryAttempts > 0, a retry
// transport around that.
func New(cfg Config) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseTransport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	logging := newLoggingTransport(baseTransport, cfg.UserAgent)

	var transport http.RoundTripper = logging
	if cfg.RetryAttempts > 0 {
		transport = newRetryTransport(logging, cfg)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}, nil
}
