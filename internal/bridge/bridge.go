package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// ReadyChannel is the topic label of the handshake event the bundle
// harness emits once the vendor code has finished evaluating.
const ReadyChannel = "parser-ready"

const (
	// DefaultReadyTimeout bounds the wait for the ready handshake.
	DefaultReadyTimeout = 10 * time.Second

	// maxEventLineBytes caps one stdout line. Collected master tables
	// and fight payloads arrive as single JSON lines and can be large.
	maxEventLineBytes = 10 * 1024 * 1024
)

// Config configures a Bridge. Zero values get defaults except
// BundlePath, which is required: the bridge assumes a ready-to-run
// bundle and never downloads one itself.
type Config struct {
	// NodePath is the interpreter binary. Default "node".
	NodePath string

	// BundlePath is the assembled parser bundle passed as the
	// interpreter's only argument.
	BundlePath string

	// ReadyTimeout bounds the startup handshake. Default 10s.
	ReadyTimeout time.Duration

	// Logger receives lifecycle and diagnostic output. Default discard.
	Logger *slog.Logger
}

type state int

const (
	stateStopped state = iota
	stateStarting
	stateReady
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Bridge owns at most one interpreter process and the protocol queue
// over its stdio streams. All methods are safe for concurrent use,
// though a single orchestrator normally drives it.
type Bridge struct {
	cfg Config
	log *slog.Logger

	ids     atomic.Int64
	writeMu sync.Mutex // serializes stdin writes

	mu         sync.Mutex
	state      state
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	queue      *eventQueue
	stdoutDone chan struct{}
	stderrDone chan struct{}
}

// New returns a stopped bridge. Call Start (or Restart) before use.
func New(cfg Config) *Bridge {
	if cfg.NodePath == "" {
		cfg.NodePath = "node"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = discardLogger
	}
	return &Bridge{cfg: cfg, log: log}
}

// Running reports whether the interpreter has completed the ready
// handshake and accepts messages.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateReady
}

// Start launches the interpreter with the bundle as its only argument,
// attaches the stdout/stderr readers, and waits for the ready
// handshake. On failure the process is killed and a *StartupError is
// returned; no messages have been sent.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.state != stateStopped {
		b.mu.Unlock()
		return fmt.Errorf("interpreter already started")
	}
	if b.cfg.BundlePath == "" {
		b.mu.Unlock()
		return &StartupError{Reason: "no parser bundle path"}
	}
	b.state = stateStarting
	b.mu.Unlock()

	cmd := exec.Command(b.cfg.NodePath, b.cfg.BundlePath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return b.failStart("stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return b.failStart("stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return b.failStart("stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return b.failStart("launching interpreter", err)
	}
	b.log.Debug("interpreter started", "pid", cmd.Process.Pid, "bundle", b.cfg.BundlePath)

	queue := newEventQueue()
	stdoutDone := make(chan struct{})
	stderrDone := make(chan struct{})
	go b.readEvents(stdout, queue, stdoutDone)
	go b.readStderr(stderr, stderrDone)

	b.mu.Lock()
	b.cmd = cmd
	b.stdin = stdin
	b.queue = queue
	b.stdoutDone = stdoutDone
	b.stderrDone = stderrDone
	b.mu.Unlock()

	// Handshake: the harness emits the ready event only after the whole
	// bundle evaluated, so seeing it means the parser accepts commands.
	if _, ok, w, cancel := queue.subscribe(OnChannel(ReadyChannel)); !ok {
		defer cancel()
		timer := time.NewTimer(b.cfg.ReadyTimeout)
		defer timer.Stop()
		select {
		case _, open := <-w.ch:
			if !open {
				b.Stop()
				return &StartupError{Reason: "interpreter stopped during startup"}
			}
		case <-stdoutDone:
			b.Stop()
			return &StartupError{Reason: "interpreter exited before ready"}
		case <-timer.C:
			b.Stop()
			return &StartupError{Reason: fmt.Sprintf("no ready signal within %s", b.cfg.ReadyTimeout)}
		case <-ctx.Done():
			b.Stop()
			return ctx.Err()
		}
	}

	if !b.markReady(queue) {
		return &StartupError{Reason: "interpreter stopped during startup"}
	}
	b.log.Info("interpreter ready", "pid", cmd.Process.Pid)
	return nil
}

// markReady completes startup. It refuses when this start no longer
// owns the bridge: a concurrent Stop, or a Stop plus a newer Start,
// landed between the handshake and here, and a stopped bridge must
// never read as ready again. The queue pointer identifies the attempt.
func (b *Bridge) markReady(q *eventQueue) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != stateStarting || b.queue != q {
		return false
	}
	b.state = stateReady
	return true
}

func (b *Bridge) failStart(reason string, err error) error {
	b.mu.Lock()
	b.state = stateStopped
	b.mu.Unlock()
	return &StartupError{Reason: reason, Err: err}
}

// Stop kills the interpreter if it is still running, drains the
// readers, and clears the event queue, releasing blocked WaitFor
// callers. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.state == stateStopped {
		b.mu.Unlock()
		return
	}
	cmd := b.cmd
	stdin := b.stdin
	queue := b.queue
	stdoutDone := b.stdoutDone
	stderrDone := b.stderrDone
	b.state = stateStopped
	b.cmd = nil
	b.stdin = nil
	b.queue = nil
	b.stdoutDone = nil
	b.stderrDone = nil
	b.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if stdoutDone != nil {
		<-stdoutDone
	}
	if stderrDone != nil {
		<-stderrDone
	}
	if cmd != nil {
		_ = cmd.Wait()
	}
	if queue != nil {
		if n := queue.len(); n > 0 {
			b.log.Debug("dropping unconsumed interpreter events", "count", n)
		}
		queue.close()
	}
	b.log.Debug("interpreter stopped")
}

// Restart tears down any running interpreter and starts a fresh one.
// Sessions restart the bridge on setup so state accumulated inside the
// vendor parser never leaks between sessions.
func (b *Bridge) Restart(ctx context.Context) error {
	b.Stop()
	return b.Start(ctx)
}

// Send serializes msg to one line and writes it to the interpreter's
// stdin synchronously. A correlation id is assigned when msg carries
// none. No response is awaited; pair with WaitFor.
func (b *Bridge) Send(msg Message) error {
	b.mu.Lock()
	stdin := b.stdin
	ready := b.state == stateReady
	b.mu.Unlock()
	if !ready || stdin == nil {
		return ErrNotRunning
	}

	payload := make(Message, len(msg)+1)
	maps.Copy(payload, msg)
	if _, ok := payload["id"]; !ok {
		payload["id"] = b.ids.Add(1)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode interpreter message: %w", err)
	}
	data = append(data, '\n')

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if _, err := stdin.Write(data); err != nil {
		return fmt.Errorf("write to interpreter: %w", err)
	}
	b.log.Debug("sent interpreter command", "command", payload["message"], "id", payload["id"])
	return nil
}

// WaitFor returns the first queued event matching pred, in arrival
// order, removing it from the queue. When none is queued it blocks the
// caller (never the reader) until a match arrives or timeout elapses,
// returning ErrWaitTimeout on timeout and ErrNotRunning if the bridge
// stops while waiting.
func (b *Bridge) WaitFor(pred Predicate, timeout time.Duration) (Event, error) {
	b.mu.Lock()
	queue := b.queue
	stopped := b.state == stateStopped
	b.mu.Unlock()
	if stopped || queue == nil {
		return Event{}, ErrNotRunning
	}

	ev, ok, w, cancel := queue.subscribe(pred)
	if ok {
		return ev, nil
	}
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case got, open := <-w.ch:
		if !open {
			return Event{}, ErrNotRunning
		}
		return got, nil
	case <-timer.C:
		// A push can hand the event to this waiter in the same instant
		// the timer fires. Deregister first; whatever sits in the buffer
		// after that arrived in time and must not be dropped.
		cancel()
		select {
		case got, open := <-w.ch:
			if open {
				return got, nil
			}
		default:
		}
		return Event{}, ErrWaitTimeout
	}
}

func (b *Bridge) readEvents(r io.Reader, queue *eventQueue, done chan struct{}) {
	defer close(done)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)
	for sc.Scan() {
		line := sc.Bytes()
		ev, ok := decodeLine(line)
		if !ok {
			if text := bytes.TrimSpace(line); len(text) > 0 {
				b.log.Debug("interpreter output", "text", preview(string(text), 200))
			}
			continue
		}
		queue.push(ev)
	}
	if err := sc.Err(); err != nil {
		// Expected after Stop kills the process and closes the pipe.
		b.log.Debug("interpreter stdout closed", "err", err)
	}
}

func (b *Bridge) readStderr(r io.Reader, done chan struct{}) {
	defer close(done)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if text := sc.Text(); text != "" {
			b.log.Debug("interpreter stderr", "text", preview(text, 200))
		}
	}
}

func preview(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
