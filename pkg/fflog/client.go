package fflog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fflog/fflog-go/internal/bridge"
	"github.com/fflog/fflog-go/internal/bundle"
	"github.com/fflog/fflog-go/internal/livelog"
	"github.com/fflog/fflog-go/internal/logfinder"
	"github.com/fflog/fflog-go/internal/parse"
	"github.com/fflog/fflog-go/internal/safefile"
	"github.com/fflog/fflog-go/internal/upload"
)

// maxLogLine bounds one combat log line when reading a file for batch
// upload. Network lines stay far below this.
const maxLogLine = 1024 * 1024

// Guild is one guild the logged-in account may file reports under.
type Guild = upload.Guild

// UploadOptions carries the report attributes for a batch upload.
type UploadOptions struct {
	// Region the log was recorded in. Empty defaults to NA.
	Region Region

	Visibility  Visibility
	Description string

	// GuildID files the report under a guild from Guilds(); zero means
	// personal logs.
	GuildID int

	// FileName overrides the name recorded on the report. Empty uses
	// the uploaded file's base name.
	FileName string
}

// LiveOptions carries the report attributes for a live session.
type LiveOptions struct {
	// Region the log is being recorded in. Empty defaults to NA.
	Region Region

	Visibility  Visibility
	Description string
	GuildID     int

	// UploadPrevious also parses what the current log file already
	// contains. Off, the session starts at the present end of file.
	UploadPrevious bool
}

// Client uploads combat logs to the logging service, either from a file
// or live from a growing log directory.
//
// Status methods are safe to call from any goroutine. Login, UploadLog,
// and the live session controls share one parser subprocess and must be
// driven by a single goroutine at a time.
type Client struct {
	cfg *config
	log *slog.Logger

	api  *upload.Client
	pipe *upload.Pipeline

	mu      sync.Mutex
	account *upload.Account
	bridge  *bridge.Bridge
	engine  *livelog.Engine

	// Final values of the last stopped live session, so status survives
	// StopLiveLog.
	lastCode   string
	lastFights int
}

// New creates a client. The parser bundle is fetched lazily on the
// first operation that needs the parser.
func New(opts ...Option) (*Client, error) {
	cfg := applyOptions(opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	api, err := upload.New(upload.Config{
		BaseURL:    cfg.baseURL,
		HTTPClient: cfg.httpClient,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:  cfg,
		log:  log,
		api:  api,
		pipe: upload.NewPipeline(api, log),
	}, nil
}

// Login authenticates against the logging service and remembers the
// account. Bad credentials surface as an *AuthError.
func (c *Client) Login(ctx context.Context, email, password string) error {
	acct, err := c.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	// The service rotates the XSRF token here. Uploads re-echo whatever
	// cookie is current, so a refresh failure is not fatal.
	if err := c.api.RefreshToken(ctx); err != nil {
		c.log.Warn("token refresh failed", "err", err)
	}
	c.mu.Lock()
	c.account = acct
	c.mu.Unlock()
	return nil
}

// Guilds returns the guilds of the logged-in account, nil before Login.
func (c *Client) Guilds() []Guild {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.account == nil {
		return nil
	}
	out := make([]Guild, len(c.account.Guilds))
	copy(out, c.account.Guilds)
	return out
}

// Username returns the logged-in account name, empty before Login.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.account == nil {
		return ""
	}
	return c.account.UserName
}

// IsLoggedIn reports whether Login has succeeded.
func (c *Client) IsLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account != nil
}

// IsLiveLogging reports whether a live session is running.
func (c *Client) IsLiveLogging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine != nil && c.engine.Running()
}

// LiveFightCount returns how many fights the current live session has
// uploaded. After StopLiveLog it keeps the finished session's total.
func (c *Client) LiveFightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return c.lastFights
	}
	return c.engine.FightCount()
}

// CurrentReportCode returns the live session's report code, empty until
// the first fight forces report creation. After StopLiveLog it keeps
// the finished session's code.
func (c *Client) CurrentReportCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return c.lastCode
	}
	return c.engine.ReportCode()
}

// UploadLog parses a finished combat log file and uploads every fight
// in it as one report. It returns the report code.
//
// The whole file is handed to the parser in one batch, so large files
// take a while before the first upload call goes out.
func (c *Client) UploadLog(ctx context.Context, path string, opts UploadOptions) (string, error) {
	c.mu.Lock()
	if c.account == nil {
		c.mu.Unlock()
		return "", ErrNotLoggedIn
	}
	if c.engine != nil {
		c.mu.Unlock()
		return "", ErrLiveSessionActive
	}
	br, err := c.interpreterLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return "", err
	}

	lines, err := readLogLines(path)
	if err != nil {
		return "", err
	}
	c.log.Info("uploading log file", "path", path, "lines", len(lines))

	if err := br.Restart(ctx); err != nil {
		return "", err
	}
	defer br.Stop()

	region := opts.Region
	if region == "" {
		region = RegionNA
	}
	sess := parse.NewSession(br, parse.Config{
		SettleBase:    c.cfg.settleBase,
		SettlePerLine: c.cfg.settlePerLine,
		SettleMax:     c.cfg.settleMax,
		WaitTimeout:   c.cfg.batchWait,
		Logger:        c.log,
	})
	res, err := sess.Run(ctx, parse.Request{
		Lines:             lines,
		Region:            string(region),
		PushFightIfNeeded: true,
		FirstBacklog:      true,
	})
	if err != nil {
		return "", err
	}
	if len(res.Fights) == 0 {
		return "", ErrNoFights
	}

	meta := upload.Meta{
		FileName:    opts.FileName,
		Region:      region.Wire(),
		Visibility:  int(opts.Visibility),
		Description: opts.Description,
		GuildID:     opts.GuildID,
	}
	if meta.FileName == "" {
		meta.FileName = filepath.Base(path)
	}
	return c.pipe.Run(ctx, meta, res, false)
}

// StartLiveLog begins watching dir for combat log growth and uploading
// fights as they complete. dir may be empty to use the FFLOG_LOGDIR
// environment variable. The session runs until StopLiveLog or Close.
func (c *Client) StartLiveLog(ctx context.Context, dir string, opts LiveOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.account == nil {
		return ErrNotLoggedIn
	}
	if c.engine != nil {
		return ErrLiveSessionActive
	}

	resolved, err := logfinder.FindLogDir(dir)
	if err != nil {
		return err
	}

	br, err := c.interpreterLocked(ctx)
	if err != nil {
		return err
	}
	if err := br.Restart(ctx); err != nil {
		return err
	}

	region := opts.Region
	if region == "" {
		region = RegionNA
	}
	liveWait := c.cfg.liveWait
	if liveWait <= 0 {
		liveWait = parse.LiveWaitTimeout
	}
	sess := parse.NewSession(br, parse.Config{
		SettleBase:    c.cfg.settleBase,
		SettlePerLine: c.cfg.settlePerLine,
		SettleMax:     c.cfg.settleMax,
		WaitTimeout:   liveWait,
		Logger:        c.log,
	})

	engine, err := livelog.New(livelog.Config{
		Dir:    resolved,
		Region: string(region),
		Meta: upload.Meta{
			Region:      region.Wire(),
			Visibility:  int(opts.Visibility),
			Description: opts.Description,
			GuildID:     opts.GuildID,
		},
		UploadPrevious: opts.UploadPrevious,
		TickInterval:   c.cfg.tickInterval,
		IdleThreshold:  c.cfg.idleThreshold,
		RescanInterval: c.cfg.rescanInterval,
		Parser:         sess,
		Reporter:       c.pipe,
		Logger:         c.log,
	})
	if err != nil {
		br.Stop()
		return err
	}
	if err := engine.Start(ctx); err != nil {
		br.Stop()
		return err
	}
	c.engine = engine
	return nil
}

// StopLiveLog ends the live session: remaining lines are flushed, an
// in-progress fight is pushed out and uploaded, and the report is
// terminated. Returns ErrNoLiveSession when no session was started.
//
// The session's final report code and fight count stay readable via
// CurrentReportCode and LiveFightCount afterwards.
func (c *Client) StopLiveLog() error {
	c.mu.Lock()
	engine := c.engine
	br := c.bridge
	c.engine = nil
	c.mu.Unlock()
	if engine == nil {
		return ErrNoLiveSession
	}
	engine.Stop()
	if br != nil {
		br.Stop()
	}
	c.mu.Lock()
	c.lastCode = engine.ReportCode()
	c.lastFights = engine.FightCount()
	c.mu.Unlock()
	return nil
}

// Close stops any live session and the parser subprocess. The client
// must not be used afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	engine := c.engine
	br := c.bridge
	c.engine = nil
	c.bridge = nil
	c.mu.Unlock()
	if engine != nil {
		engine.Stop()
	}
	if br != nil {
		br.Stop()
	}
}

// interpreterLocked returns the shared parser bridge, fetching and
// assembling the bundle on first use. Caller holds c.mu.
func (c *Client) interpreterLocked(ctx context.Context) (*bridge.Bridge, error) {
	if c.bridge != nil {
		return c.bridge, nil
	}
	path, err := bundle.Ensure(ctx, bundle.Config{
		BaseURL:    c.cfg.baseURL,
		CacheDir:   c.cfg.cacheDir,
		MaxAge:     c.cfg.bundleMaxAge,
		HTTPClient: c.cfg.httpClient,
		Logger:     c.log,
	})
	if err != nil {
		return nil, fmt.Errorf("parser bundle: %w", err)
	}
	c.bridge = bridge.New(bridge.Config{
		NodePath:     c.cfg.nodePath,
		BundlePath:   path,
		ReadyTimeout: c.cfg.readyTimeout,
		Logger:       c.log,
	})
	return c.bridge, nil
}

// readLogLines loads a finished log file as newline-free lines. Blank
// lines are dropped; the parser has no use for them.
func readLogLines(path string) ([]string, error) {
	f, _, err := safefile.OpenRegular(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLogLine)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}
