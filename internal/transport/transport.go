// Package transport provides the HTTPS client the protocol engine
// talks to the validation server with.  It handles the "how" of data
// movement — TLS material, authorization headers, retry on
// server-directed backpressure — independent of what the requests mean
// (which is the engine's job).
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bfussell/libamvp/config"
	"github.com/bfussell/libamvp/internal/metrics"
	"github.com/bfussell/libamvp/internal/retry"
)

// Logger is the slice of util.Logger the transport needs.  The engine
// substitutes an adapter that routes through its progress callback.
type Logger interface {
	Verbose(format string, args ...interface{})
}

// TLSFiles names the PEM material used for the server connection.
// Empty fields fall back to the system trust store / no client auth.
type TLSFiles struct {
	CAFile   string // CA chain to verify the server certificate
	CertFile string // client certificate for mutual TLS
	KeyFile  string // client private key for mutual TLS
}

// Client is an authenticated JSON client for one validation server.
type Client struct {
	HTTP    *http.Client
	Backoff *retry.Backoff
	Logger  Logger
	Stats   *metrics.Collector

	token string // bearer JWT, set after login
}

// NewClient builds a Client from the given TLS material.
func NewClient(files TLSFiles, logger Logger, stats *metrics.Collector) (*Client, error) {
	tlsCfg, err := tlsConfig(files)
	if err != nil {
		return nil, err
	}
	return &Client{
		HTTP: &http.Client{
			Timeout:   config.DefaultRequestTimeout,
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		},
		Backoff: &retry.Backoff{
			InitialDelay: time.Second,
			MaxDelay:     60 * time.Second,
			Multiplier:   2.0,
			MaxAttempts:  config.DefaultRetryMax,
			Jitter:       true,
		},
		Logger: logger,
		Stats:  stats,
	}, nil
}

// SetToken installs the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) { c.token = token }

// Token returns the current bearer token.
func (c *Client) Token() string { return c.token }

// tlsConfig assembles a tls.Config from PEM files.  With no CA file
// the system pool is used as-is; the client cert pair is only loaded
// when both halves are present.
func tlsConfig(files TLSFiles) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if files.CAFile != "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		pem, err := os.ReadFile(files.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA chain %s: %w", files.CAFile, err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no usable certificates in %s", files.CAFile)
		}
		cfg.RootCAs = pool
	}

	if files.CertFile != "" && files.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert/key: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
