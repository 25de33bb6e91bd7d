package api

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tmoretti/wfm-data/internal/ratelimit"
)

// DefaultBaseURL is the production Warframe Market API root.
const DefaultBaseURL = "https://api.warframe.market/v1"

// Client provides access to the Warframe Market REST API.
type Client struct {
	baseURL    string
	platform   string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *slog.Logger

	maxRetries int
	retryDelay time.Duration

	closed atomic.Bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client. The client holds the pooled
// connection session shared by all fetches; release it with Close.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  baseURL,
		platform: "pc",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:    ratelimit.New(ratelimit.DefaultCallsPerSecond),
		logger:     slog.Default(),
		maxRetries: 3,
		retryDelay: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Close releases the client's connection pool. The client must not be used
// afterwards; requests return ErrClientClosed.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry ceiling and the backoff base. Each retry waits
// at least delay × attempt number.
func WithRetries(max int, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryDelay = delay
	}
}

// WithLimiter sets the shared rate limiter.
func WithLimiter(l *ratelimit.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPlatform sets the Platform request header (default "pc").
func WithPlatform(platform string) ClientOption {
	return func(c *Client) {
		c.platform = platform
	}
}
