// Package bundle acquires the vendor parser bundle: a cached copy when
// fresh, otherwise downloaded from the log service, wrapped in the host
// harness, and written back to the cache as one self-contained script.
package bundle

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fflog/fflog-go/internal/bridge"
	"github.com/fflog/fflog-go/internal/safefile"
)

//go:embed harness.js
var harnessJS string

const (
	// DefaultBaseURL is the log service origin serving the parser page.
	DefaultBaseURL = "https://www.fflogs.com"

	// DefaultMaxAge is how long a cached bundle counts as fresh.
	DefaultMaxAge = 24 * time.Hour

	defaultUserAgent = "FFLogsUploader/8.17.115"
	bundleFileName   = "parser_bundle.js"

	// maxFetchBytes caps one HTTP body read. The parser script is a few
	// megabytes; anything near the cap is not the artifact we want.
	maxFetchBytes = 64 * 1024 * 1024

	downloadTries = 3
)

var (
	// parserSrcRe locates the versioned parser script reference inside
	// the parser page. The filename embeds a content hash, so there is
	// no stable URL to hardcode.
	parserSrcRe = regexp.MustCompile(`src="([^"]+parser-ff[^"]+)"`)

	// glueRe captures the inline script wiring the parser to its host
	// callbacks. Identified by the collect-fights forwarder it defines.
	glueRe = regexp.MustCompile(`<script type="text/javascript">([\s\S]*?ipcCollectFights[\s\S]*?)</script>`)
)

// DownloadError reports a failed fetch of the parser page or script.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("downloading parser bundle: %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Config configures bundle acquisition. Zero values get defaults.
type Config struct {
	// BaseURL is the log service origin. Default DefaultBaseURL.
	BaseURL string

	// UserAgent identifies the client on parser page fetches.
	UserAgent string

	// CacheDir holds the assembled bundle. Default DefaultCacheDir().
	CacheDir string

	// MaxAge is the cache freshness window. Default DefaultMaxAge.
	MaxAge time.Duration

	// HTTPClient performs the fetches. Default: 30s timeout client.
	HTTPClient *http.Client

	// Logger receives download diagnostics. Default discard.
	Logger *slog.Logger
}

func (c Config) withDefaults() (Config, error) {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.CacheDir == "" {
		dir, err := DefaultCacheDir()
		if err != nil {
			return c, err
		}
		c.CacheDir = dir
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c, nil
}

// DefaultCacheDir returns the bundle cache directory, creating it if
// needed: $XDG_CACHE_HOME/fflog, falling back to ~/.cache/fflog.
func DefaultCacheDir() (string, error) {
	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		cacheHome = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(cacheHome, "fflog")

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}

	return dir, nil
}

// Ensure returns the path of a ready-to-run bundle. A cached copy
// younger than MaxAge is returned as is; otherwise the bundle is
// downloaded, assembled, and cached. When the download fails but a
// stale copy exists, the stale copy is returned with a warning so an
// offline client keeps working.
func Ensure(ctx context.Context, cfg Config) (string, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return "", err
	}

	path := filepath.Join(cfg.CacheDir, bundleFileName)
	cached := false
	if fi, statErr := os.Stat(path); statErr == nil {
		cached = true
		if age := time.Since(fi.ModTime()); age < cfg.MaxAge {
			cfg.Logger.Debug("using cached parser bundle", "path", path, "age", age.Round(time.Second))
			return path, nil
		}
	}

	data, err := download(ctx, cfg)
	if err != nil {
		if cached {
			cfg.Logger.Warn("parser bundle download failed, using stale cache", "path", path, "err", err)
			return path, nil
		}
		return "", err
	}

	if err := os.MkdirAll(cfg.CacheDir, 0700); err != nil {
		return "", fmt.Errorf("creating bundle cache dir: %w", err)
	}
	if err := safefile.WriteAtomic(path, data, 0600); err != nil {
		return "", fmt.Errorf("caching parser bundle: %w", err)
	}
	cfg.Logger.Info("parser bundle refreshed", "path", path, "bytes", len(data))
	return path, nil
}

// download fetches the parser page, resolves and fetches the versioned
// parser script it references, and assembles the runnable bundle.
func download(ctx context.Context, cfg Config) ([]byte, error) {
	pageURL := fmt.Sprintf(
		"%s/desktop-client/parser?id=1&ts=%d&metersEnabled=false&liveFightDataEnabled=false",
		cfg.BaseURL, time.Now().UnixMilli(),
	)
	page, err := fetch(ctx, cfg, pageURL)
	if err != nil {
		return nil, err
	}

	m := parserSrcRe.FindSubmatch(page)
	if m == nil {
		return nil, &DownloadError{URL: pageURL, Err: errors.New("no parser script reference in page")}
	}
	scriptURL, err := resolveRef(cfg.BaseURL, string(m[1]))
	if err != nil {
		return nil, &DownloadError{URL: string(m[1]), Err: err}
	}

	parser, err := fetch(ctx, cfg, scriptURL)
	if err != nil {
		return nil, err
	}

	var glue []byte
	if gm := glueRe.FindSubmatch(page); gm != nil {
		glue = gm[1]
	} else {
		cfg.Logger.Warn("parser page carried no glue script, bundle may not respond to commands")
	}

	return assemble(parser, glue), nil
}

// assemble concatenates harness, parser, and glue, then a trailer that
// announces readiness. The trailer runs only after everything before it
// evaluated, which is exactly the condition the handshake stands for.
func assemble(parser, glue []byte) []byte {
	var buf []byte
	buf = append(buf, harnessJS...)
	buf = append(buf, "\n\n"...)
	buf = append(buf, parser...)
	buf = append(buf, "\n\n"...)
	buf = append(buf, glue...)
	trailer := fmt.Sprintf("\n;console.log('__IPC__:{\"channel\":%q}');\n", bridge.ReadyChannel)
	buf = append(buf, trailer...)
	return buf
}

func resolveRef(base, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if refURL.IsAbs() {
		return ref, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// fetch GETs one URL with retries. Server-side errors are retried with
// exponential backoff; a well-formed non-5xx refusal is permanent.
func fetch(ctx context.Context, cfg Config, rawURL string) ([]byte, error) {
	op := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", cfg.UserAgent)

		resp, err := cfg.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("status %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("status %s", resp.Status))
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
		if err != nil {
			return nil, err
		}
		return body, nil
	}

	notify := func(err error, wait time.Duration) {
		cfg.Logger.Debug("retrying parser bundle fetch", "url", rawURL, "wait", wait, "err", err)
	}

	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(downloadTries),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	return body, nil
}
