package github

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL     = "https://api.github.com"
	DefaultGraphQLURL = "https://api.github.com/graphql"
)

// Config holds connection settings for the GitHub API
type Config struct {
	APIURL            string        `koanf:"api_url"`
	GraphQLURL        string        `koanf:"graphql_url"`
	Token             string        `koanf:"token"`
	MaxConnections    int           `koanf:"max_connections"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	ConnectTimeout    time.Duration `koanf:"connect_timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`

	// CaptureDir, when set, records every API response below it
	CaptureDir string `koanf:"capture_dir"`
}

// DefaultConfig returns the public GitHub endpoints with pooled connections
func DefaultConfig() Config {
	return Config{
		APIURL:            DefaultAPIURL,
		GraphQLURL:        DefaultGraphQLURL,
		MaxConnections:    10,
		RequestTimeout:    300 * time.Second,
		ConnectTimeout:    30 * time.Second,
		RequestsPerSecond: 10,
	}
}

// NewHTTPClient builds the shared client: bounded connections per host, request
// pacing and, when a token is configured, bearer authentication.
func NewHTTPClient(cfg Config) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxConnsPerHost:     cfg.MaxConnections,
		MaxIdleConnsPerHost: cfg.MaxConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
	}

	var rt http.RoundTripper = base
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rt = &pacedTransport{
			base:    rt,
			limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		}
	}
	if cfg.Token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   rt,
		}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   cfg.RequestTimeout,
	}
}

// pacedTransport waits for a limiter token before every request
type pacedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
