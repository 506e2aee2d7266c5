// Package tailer follows a growing log file and delivers complete lines.
package tailer

import (
	"context"
	"io"
	"strings"

	"github.com/nxadm/tail"
)

// Config controls how a file is followed.
type Config struct {
	// FromStart reads the file from offset 0 instead of the current end.
	FromStart bool

	// Poll uses stat polling instead of filesystem notifications. Game
	// log directories frequently live on network shares or inside Wine
	// prefixes where notifications go missing, so polling is the default.
	Poll bool
}

// DefaultConfig returns the recommended configuration: poll the file,
// deliver only lines appended after the tail starts.
func DefaultConfig() Config {
	return Config{Poll: true}
}

// Tailer follows one file. The file may be truncated or written by
// other processes while tailed; truncation resets the read position to
// the start of the file.
type Tailer struct {
	inner *tail.Tail
	lines chan string
	errs  chan error
}

// New starts following path. The file must exist; callers that expect
// the file to appear later retry discovery themselves. Lines are
// delivered on Lines() until Stop is called or ctx is cancelled.
func New(ctx context.Context, path string, cfg Config) (*Tailer, error) {
	tcfg := tail.Config{
		Follow:    true,
		ReOpen:    false,
		Poll:      cfg.Poll,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	}
	if !cfg.FromStart {
		tcfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	inner, err := tail.TailFile(path, tcfg)
	if err != nil {
		return nil, err
	}

	t := &Tailer{
		inner: inner,
		lines: make(chan string, 256),
		errs:  make(chan error, 1),
	}
	go t.pump(ctx)
	return t, nil
}

// Lines returns the channel of complete lines, closed after Stop.
func (t *Tailer) Lines() <-chan string { return t.lines }

// Errors returns the channel of tail errors, closed after Stop.
func (t *Tailer) Errors() <-chan error { return t.errs }

// Stop halts the tail and releases the file handle. The Lines and
// Errors channels close once the pump drains.
func (t *Tailer) Stop() error {
	err := t.inner.Stop()
	t.inner.Cleanup()
	return err
}

// pump converts the library's line stream into plain strings, trimming
// the carriage return game logs carry on Windows.
func (t *Tailer) pump(ctx context.Context) {
	defer close(t.lines)
	defer close(t.errs)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-t.inner.Lines:
			if !ok {
				return
			}
			if line.Err != nil {
				select {
				case t.errs <- line.Err:
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case t.lines <- strings.TrimRight(line.Text, "\r"):
			case <-ctx.Done():
				return
			}
		}
	}
}
