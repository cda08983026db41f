package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"
)

// TLSConfig holds TLS options for self-hosted endpoints (the "private"
// provider family) that run behind internal CAs.
type TLSConfig struct {
	InsecureSkipVerify bool   // skip certificate verification (dev/test only)
	CACertificate      string // path to a custom CA certificate file
}

// ConfigureTLS builds an http.Transport from the TLS options.
func ConfigureTLS(config *TLSConfig) (*http.Transport, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{},
	}

	if config != nil && config.CACertificate != "" {
		caCert, err := os.ReadFile(config.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate from %s: %w", config.CACertificate, err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %s", config.CACertificate)
		}

		transport.TLSClientConfig.RootCAs = caCertPool
	}

	if config != nil && config.InsecureSkipVerify {
		transport.TLSClientConfig.InsecureSkipVerify = true
	}

	return transport, nil
}

// WithTLSConfig configures the underlying http.Client transport. Errors are
// reported by leaving the default transport in place; callers that need
// strict behavior should call ConfigureTLS themselves.
func WithTLSConfig(config *TLSConfig) (Option, error) {
	transport, err := ConfigureTLS(config)
	if err != nil {
		return nil, err
	}
	return func(c *Client) {
		if c.client == nil {
			c.client = &http.Client{Timeout: 60 * time.Second}
		}
		c.client.Transport = transport
	}, nil
}
