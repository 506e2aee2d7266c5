package fflog

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Client using the functional options pattern.
type Option func(*config)

// config holds internal configuration for the client.
// Zero durations mean "use the built-in default" of the component that
// owns the knob.
type config struct {
	logger     *slog.Logger
	httpClient *http.Client

	baseURL  string
	nodePath string
	cacheDir string

	bundleMaxAge   time.Duration
	readyTimeout   time.Duration
	batchWait      time.Duration
	liveWait       time.Duration
	settleBase     time.Duration
	settlePerLine  time.Duration
	settleMax      time.Duration
	tickInterval   time.Duration
	idleThreshold  time.Duration
	rescanInterval time.Duration
}

func defaultClientConfig() *config {
	return &config{
		nodePath: "node",
	}
}

func applyOptions(opts []Option) *config {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// validate checks for invalid option values.
func (c *config) validate() error {
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"bundle max age", c.bundleMaxAge},
		{"ready timeout", c.readyTimeout},
		{"batch wait timeout", c.batchWait},
		{"live wait timeout", c.liveWait},
		{"settle base", c.settleBase},
		{"settle per line", c.settlePerLine},
		{"settle max", c.settleMax},
		{"tick interval", c.tickInterval},
		{"idle threshold", c.idleThreshold},
		{"rescan interval", c.rescanInterval},
	}
	for _, v := range durations {
		if v.d < 0 {
			return fmt.Errorf("%s must be non-negative, got %v", v.name, v.d)
		}
	}
	if c.nodePath == "" {
		return fmt.Errorf("node path must not be empty")
	}
	return nil
}

// WithLogger sets the logger for all client activity.
// If logger is nil, logging is disabled (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used for the report service and
// bundle downloads. The client's cookie jar is replaced by the session
// jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the report service endpoint. Mainly for tests
// against a local server.
func WithBaseURL(u string) Option {
	return func(c *config) {
		c.baseURL = u
	}
}

// WithNodePath sets the Node.js binary that runs the vendor parser.
// Default: "node" from PATH.
func WithNodePath(path string) Option {
	return func(c *config) {
		c.nodePath = path
	}
}

// WithCacheDir overrides where the parser bundle is cached.
func WithCacheDir(dir string) Option {
	return func(c *config) {
		c.cacheDir = dir
	}
}

// WithBundleMaxAge sets how old a cached parser bundle may get before it
// is refreshed. Default: 24 hours.
func WithBundleMaxAge(d time.Duration) Option {
	return func(c *config) {
		c.bundleMaxAge = d
	}
}

// WithReadyTimeout bounds the wait for the parser subprocess's ready
// signal on startup. Default: 10 seconds.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *config) {
		c.readyTimeout = d
	}
}

// WithBatchWaitTimeout bounds each parser response wait during batch
// uploads, where a missing response is fatal. Default: 15 seconds.
func WithBatchWaitTimeout(d time.Duration) Option {
	return func(c *config) {
		c.batchWait = d
	}
}

// WithLiveWaitTimeout bounds each parser response wait during live
// sessions, where a missing response just means no data this round.
// Default: 5 seconds.
func WithLiveWaitTimeout(d time.Duration) Option {
	return func(c *config) {
		c.liveWait = d
	}
}

// WithSettleBase sets the minimum pause after handing lines to the
// parser. Default: 500ms.
func WithSettleBase(d time.Duration) Option {
	return func(c *config) {
		c.settleBase = d
	}
}

// WithSettlePerLine sets how much the settle pause grows per submitted
// line. Default: half a millisecond.
func WithSettlePerLine(d time.Duration) Option {
	return func(c *config) {
		c.settlePerLine = d
	}
}

// WithSettleMax caps the settle pause. Default: 10 seconds.
func WithSettleMax(d time.Duration) Option {
	return func(c *config) {
		c.settleMax = d
	}
}

// WithTickInterval paces the live loop's batching. Default: 500ms.
func WithTickInterval(d time.Duration) Option {
	return func(c *config) {
		c.tickInterval = d
	}
}

// WithIdleThreshold sets how long the live log must stay quiet before a
// fight check runs. Default: 5 seconds.
func WithIdleThreshold(d time.Duration) Option {
	return func(c *config) {
		c.idleThreshold = d
	}
}

// WithRescanInterval sets how often a live session rescans the log
// directory for a newer file. Default: 60 seconds.
func WithRescanInterval(d time.Duration) Option {
	return func(c *config) {
		c.rescanInterval = d
	}
}
