// Package livelog tails an active combat log and uploads fights as
// they finish. One engine owns one live session: a single goroutine
// batches incoming lines, feeds them to the parser on a fixed tick,
// checks for finished fights once the log goes quiet, and pushes each
// new fight to the report service the moment it appears.
package livelog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/fflog/fflog-go/internal/bridge"
	"github.com/fflog/fflog-go/internal/logfinder"
	"github.com/fflog/fflog-go/internal/parse"
	"github.com/fflog/fflog-go/internal/tailer"
	"github.com/fflog/fflog-go/internal/upload"
)

const (
	// DefaultTickInterval paces batching: pending lines are flushed to
	// the parser once per tick.
	DefaultTickInterval = 500 * time.Millisecond

	// DefaultIdleThreshold is how long the log must stay quiet before a
	// fight check runs. Mid-pull the game writes continuously; silence
	// usually means a fight just ended.
	DefaultIdleThreshold = 5 * time.Second

	// DefaultRescanInterval is how often the directory is rescanned for
	// a newer log file.
	DefaultRescanInterval = 60 * time.Second

	// DefaultShutdownTimeout bounds the final flush, check and terminate
	// once the session context is gone.
	DefaultShutdownTimeout = 30 * time.Second
)

// Parser is the slice of the parse session the engine drives.
// *parse.Session satisfies it.
type Parser interface {
	Feed(ctx context.Context, req parse.FeedRequest) error
	Check(ctx context.Context, req parse.CheckRequest) (*parse.Result, error)
}

// Reporter is the slice of the upload pipeline the engine drives.
// *upload.Pipeline satisfies it.
type Reporter interface {
	Create(ctx context.Context, meta upload.Meta) (string, error)
	UploadFight(ctx context.Context, code string, res *parse.Result, i int, live bool) error
	Finish(ctx context.Context, code string)
}

// Config configures an Engine. Parser, Reporter and Dir are required;
// zero durations get defaults.
type Config struct {
	// Dir is the resolved log directory to watch.
	Dir string

	// Region is forwarded with every feed.
	Region string

	// Meta seeds lazy report creation. FileName defaults to the watched
	// file's base name when empty.
	Meta upload.Meta

	// UploadPrevious also parses the content the starting file already
	// holds. Off, the session begins at the current end of file.
	UploadPrevious bool

	TickInterval    time.Duration
	IdleThreshold   time.Duration
	RescanInterval  time.Duration
	ShutdownTimeout time.Duration

	Parser   Parser
	Reporter Reporter
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = DefaultIdleThreshold
	}
	if c.RescanInterval <= 0 {
		c.RescanInterval = DefaultRescanInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Engine runs one live session. All session state lives in the loop
// goroutine; Engine itself only mirrors what status readers need.
type Engine struct {
	cfg Config
	log *slog.Logger

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	fightCount int
	reportCode string
}

// ErrDirRequired, ErrParserRequired and ErrReporterRequired reject an
// Engine wired without its collaborators.
var (
	ErrDirRequired      = errors.New("livelog: log directory required")
	ErrParserRequired   = errors.New("livelog: parser required")
	ErrReporterRequired = errors.New("livelog: reporter required")
)

// New validates cfg and returns an engine. No goroutines start here.
func New(cfg Config) (*Engine, error) {
	if cfg.Dir == "" {
		return nil, ErrDirRequired
	}
	if cfg.Parser == nil {
		return nil, ErrParserRequired
	}
	if cfg.Reporter == nil {
		return nil, ErrReporterRequired
	}
	cfg = cfg.withDefaults()
	return &Engine{cfg: cfg, log: cfg.Logger}, nil
}

// Start resolves the newest log file, opens the tailer and launches the
// session loop. An empty directory is fine, the loop waits for a file
// to appear. Calling Start on a running engine is a logged no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.log.Warn("live session already running")
		return nil
	}

	log := e.log.With("session", uuid.NewString())
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * e.cfg.TickInterval
	bo.MaxInterval = 30 * time.Second
	st := &session{bo: bo, lastData: time.Now(), lastRescan: time.Now()}
	if err := e.openInitial(st, log); err != nil {
		return err
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.running = true
	e.fightCount = 0
	e.reportCode = ""
	go e.run(ctx, st, log)
	return nil
}

// Stop ends the session and blocks until the final flush and terminate
// are done. Safe to call multiple times, and before Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Running reports whether the session loop is alive.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// FightCount returns how many fights this session has uploaded.
func (e *Engine) FightCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fightCount
}

// ReportCode returns the live report's code, empty until the first
// fight forces creation.
func (e *Engine) ReportCode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reportCode
}

func (e *Engine) setFightCount(n int) {
	e.mu.Lock()
	e.fightCount = n
	e.mu.Unlock()
}

func (e *Engine) setReportCode(code string) {
	e.mu.Lock()
	e.reportCode = code
	e.mu.Unlock()
}

// session is the loop-owned state. Nothing outside run and its helpers
// touches it.
type session struct {
	file    string
	tl      *tailer.Tailer
	pending []string

	lastData   time.Time
	lastRescan time.Time

	reportCode string
	uploaded   int

	fedOnce    bool
	dirty      bool
	forceCheck bool

	bo *backoff.ExponentialBackOff
}

func (e *Engine) run(ctx context.Context, st *session, log *slog.Logger) {
	defer close(e.done)
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	tick := time.NewTicker(e.cfg.TickInterval)
	defer tick.Stop()

	for {
		// Nil channels when no file is being tailed yet; those cases
		// then never fire.
		var lines <-chan string
		var tailErrs <-chan error
		if st.tl != nil {
			lines = st.tl.Lines()
			tailErrs = st.tl.Errors()
		}

		select {
		case <-ctx.Done():
			e.finish(st, log)
			return

		case line, ok := <-lines:
			if !ok {
				st.tl = nil // reopened by the next rescan
				continue
			}
			st.pending = append(st.pending, line)
			st.lastData = time.Now()

		case err, ok := <-tailErrs:
			if ok && err != nil {
				log.Warn("tail error", "file", st.file, "err", err)
			}

		case <-tick.C:
			if err := e.tick(ctx, st, log); err != nil {
				if ctx.Err() != nil {
					e.finish(st, log)
					return
				}
				log.Warn("live round failed", "err", err)
				e.pause(ctx, st)
				continue
			}
			st.bo.Reset()
		}
	}
}

// openInitial resolves the newest log file if one exists and starts
// tailing it. An empty directory is not an error; the rescan picks the
// file up once the game creates it. A missing directory is.
func (e *Engine) openInitial(st *session, log *slog.Logger) error {
	if info, err := os.Stat(e.cfg.Dir); err != nil {
		return fmt.Errorf("log directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("log directory %s: not a directory", e.cfg.Dir)
	}

	file, err := logfinder.FindLatestLogFile(e.cfg.Dir)
	if errors.Is(err, logfinder.ErrNoLogFiles) {
		log.Info("no log file yet, watching for one", "dir", e.cfg.Dir)
		return nil
	}
	if err != nil {
		return err
	}

	cfg := tailer.DefaultConfig()
	cfg.FromStart = e.cfg.UploadPrevious
	tl, err := e.openTailer(file, cfg)
	if err != nil {
		return err
	}
	st.file = file
	st.tl = tl
	st.forceCheck = e.cfg.UploadPrevious
	log.Info("live session started", "file", file, "from_start", cfg.FromStart)
	return nil
}

// openTailer deliberately detaches the tailer from the session context:
// the final flush after cancellation still needs to drain what the
// tailer buffered. finish stops it explicitly.
func (e *Engine) openTailer(file string, cfg tailer.Config) (*tailer.Tailer, error) {
	return tailer.New(context.Background(), file, cfg)
}

// tick is one loop round: rescan when due, flush pending lines, and
// check for fights once the log has gone quiet.
func (e *Engine) tick(ctx context.Context, st *session, log *slog.Logger) error {
	if st.tl == nil || time.Since(st.lastRescan) >= e.cfg.RescanInterval {
		st.lastRescan = time.Now()
		if err := e.rescan(st, log); err != nil {
			return err
		}
	}

	if len(st.pending) > 0 {
		if err := e.feed(ctx, st, log); err != nil {
			return err
		}
		if st.forceCheck {
			// The first backlog read of a pre-existing file may already
			// contain finished fights; don't sit on them until idle.
			st.forceCheck = false
			return e.check(ctx, st, false, log)
		}
		return nil
	}

	if st.dirty && time.Since(st.lastData) > e.cfg.IdleThreshold {
		if err := e.check(ctx, st, false, log); err != nil {
			return err
		}
		st.dirty = false
	}
	return nil
}

// feed hands the pending batch to the parser. Pending is kept on
// failure so the next tick retries the same lines, except when the
// failure came after delivery.
func (e *Engine) feed(ctx context.Context, st *session, log *slog.Logger) error {
	lines := len(st.pending)
	err := e.cfg.Parser.Feed(ctx, parse.FeedRequest{
		ReportCode:   st.reportCode,
		Lines:        st.pending,
		Region:       e.cfg.Region,
		FirstBacklog: !st.fedOnce && e.cfg.UploadPrevious,
	})
	var delivered *parse.DeliveredError
	if err != nil && !errors.As(err, &delivered) {
		return err
	}

	// The batch reached the parser even when the settle pause was cut
	// short. It must leave pending either way, or the shutdown flush
	// would feed the same lines a second time and corrupt the final
	// fights.
	st.pending = nil
	st.fedOnce = true
	st.dirty = true
	if err != nil {
		return err
	}
	log.Debug("flushed lines", "count", lines, "file", st.file)
	return nil
}

// check collects finished fights and uploads the ones not seen before.
// The report is created lazily on the first new fight, so a session
// that never sees a fight never creates one.
func (e *Engine) check(ctx context.Context, st *session, push bool, log *slog.Logger) error {
	res, err := e.cfg.Parser.Check(ctx, parse.CheckRequest{
		ReportCode:        st.reportCode,
		PushFightIfNeeded: push,
	})
	if err != nil {
		if errors.Is(err, bridge.ErrWaitTimeout) {
			// Live tier: a missing response means no data this round.
			log.Debug("fight check got no response")
			return nil
		}
		return err
	}
	if len(res.Fights) <= st.uploaded {
		return nil
	}

	if st.reportCode == "" {
		meta := e.cfg.Meta
		if meta.FileName == "" {
			meta.FileName = filepath.Base(st.file)
		}
		code, err := e.cfg.Reporter.Create(ctx, meta)
		if err != nil {
			return err
		}
		st.reportCode = code
		e.setReportCode(code)
		log.Info("live report created", "code", code)
	}

	// Upload only the tail beyond what this session already sent; the
	// parser keeps returning earlier fights and those must never go up
	// twice.
	for i := st.uploaded; i < len(res.Fights); i++ {
		if err := e.cfg.Reporter.UploadFight(ctx, st.reportCode, res, i, true); err != nil {
			return err
		}
		st.uploaded = i + 1
		e.setFightCount(st.uploaded)
		log.Info("fight uploaded", "fight", res.Fights[i].Name, "segment", i+1, "code", st.reportCode)
	}
	return nil
}

// rescan switches to a newer log file when one appears. The remainder
// of the old file is drained into pending first so nothing written
// around rotation is lost.
func (e *Engine) rescan(st *session, log *slog.Logger) error {
	newest, err := logfinder.FindLatestLogFile(e.cfg.Dir)
	if errors.Is(err, logfinder.ErrNoLogFiles) {
		return nil
	}
	if err != nil {
		return err
	}
	if st.tl != nil && newest == st.file {
		return nil
	}

	if st.tl != nil {
		_ = st.tl.Stop()
		for line := range st.tl.Lines() {
			st.pending = append(st.pending, line)
		}
		log.Info("switching to newer log file", "from", st.file, "to", newest)
	} else {
		log.Info("log file appeared", "file", newest)
	}

	// A file that shows up mid-session is new content in its entirety.
	cfg := tailer.DefaultConfig()
	cfg.FromStart = true
	tl, err := e.openTailer(newest, cfg)
	if err != nil {
		return err
	}
	st.file = newest
	st.tl = tl
	st.lastData = time.Now()
	return nil
}

// finish is the shutdown path: drain and flush whatever is left, force
// the parser to push an in-progress fight, upload the remainder, then
// terminate the report if one was ever created. Runs on its own bounded
// context because the session context is already gone.
func (e *Engine) finish(st *session, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()

	if st.tl != nil {
		_ = st.tl.Stop()
		for line := range st.tl.Lines() {
			st.pending = append(st.pending, line)
		}
	}
	if len(st.pending) > 0 {
		if err := e.feed(ctx, st, log); err != nil {
			log.Warn("final flush failed", "err", err)
		}
	}

	// Nothing ever reached the parser: no fights to push, no report to
	// terminate, skip the protocol round entirely.
	if !st.fedOnce {
		log.Info("live session ended", "fights", 0)
		return
	}

	if err := e.check(ctx, st, true, log); err != nil {
		log.Warn("final fight check failed", "err", err)
	}
	if st.reportCode != "" {
		e.cfg.Reporter.Finish(ctx, st.reportCode)
	}
	log.Info("live session ended", "code", st.reportCode, "fights", st.uploaded)
}

// pause sleeps out the current backoff interval after a failed round so
// a dead interpreter or unreachable service is not hammered every tick.
func (e *Engine) pause(ctx context.Context, st *session) {
	timer := time.NewTimer(st.bo.NextBackOff())
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
