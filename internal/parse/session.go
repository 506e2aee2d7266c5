// Package parse drives the vendor parser through the interpreter
// bridge: it feeds raw log lines in and extracts fight segments and
// master-table material out.
package parse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fflog/fflog-go/internal/bridge"
)

const (
	// DefaultSettleBase is the minimum pause after parse-lines. The
	// vendor parser works asynchronously and emits no completion signal
	// for that step, so the pause is load-bearing, not cosmetic.
	DefaultSettleBase = 500 * time.Millisecond

	// DefaultSettlePerLine scales the pause with submitted volume.
	DefaultSettlePerLine = 500 * time.Microsecond

	// DefaultSettleMax caps the pause for very large backlogs.
	DefaultSettleMax = 10 * time.Second

	// DefaultWaitTimeout bounds each WaitFor during one-shot batch
	// processing, where a missing response is a hard failure.
	DefaultWaitTimeout = 15 * time.Second

	// LiveWaitTimeout is the shorter tier used per live-tail check,
	// where a missing response just means "no data this round".
	LiveWaitTimeout = 5 * time.Second
)

// Interpreter is the slice of the bridge a session drives.
// *bridge.Bridge satisfies it.
type Interpreter interface {
	Send(bridge.Message) error
	WaitFor(bridge.Predicate, time.Duration) (bridge.Event, error)
}

// Config tunes a Session. Zero values get defaults.
type Config struct {
	SettleBase    time.Duration
	SettlePerLine time.Duration
	SettleMax     time.Duration

	// WaitTimeout bounds each WaitFor. Batch sessions keep the default;
	// live sessions use LiveWaitTimeout.
	WaitTimeout time.Duration

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.SettleBase <= 0 {
		c.SettleBase = DefaultSettleBase
	}
	if c.SettlePerLine <= 0 {
		c.SettlePerLine = DefaultSettlePerLine
	}
	if c.SettleMax <= 0 {
		c.SettleMax = DefaultSettleMax
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// FeedRequest is one delivery of raw lines to the parser.
type FeedRequest struct {
	// ReportCode, when set, is announced via set-report-code before
	// parsing. Live sessions leave it empty until a report exists.
	ReportCode string

	// Lines are the raw log lines to feed the parser, newline-free.
	Lines []string

	// Region is the resolved region string ("NA", "EU", ...).
	Region string

	// FirstBacklog doubles the settle delay. Set when Lines is the very
	// first read of an existing file, typically the largest batch a
	// live session ever submits.
	FirstBacklog bool
}

// CheckRequest asks the parser for everything it has finished so far.
type CheckRequest struct {
	// ReportCode is echoed on collect-master-info.
	ReportCode string

	// PushFightIfNeeded forces an in-progress fight out of the parser.
	// Set only on the final flush at session end.
	PushFightIfNeeded bool
}

// Request is one complete processing unit: a feed followed by a check.
type Request struct {
	ReportCode        string
	Lines             []string
	Region            string
	PushFightIfNeeded bool
	FirstBacklog      bool
}

// Fight is one encounter extracted from a fights event.
type Fight struct {
	Name      string
	StartTime int64
	EndTime   int64

	// Events is the fight's raw combat event text, uploaded verbatim
	// inside the segment payload.
	Events string
}

// Result is the outcome of one processing unit. StartTime and EndTime
// are unit-global: they come from the fights event itself and are
// shared by every segment uploaded from this unit.
type Result struct {
	Fights    []Fight
	StartTime int64
	EndTime   int64
	Master    MasterInfo
}

// DeliveredError marks a feed whose context ended during the settle
// pause, after parse-lines was already written. The parser holds the
// submitted lines; feeding them again would parse every line twice.
type DeliveredError struct {
	Err error
}

func (e *DeliveredError) Error() string {
	return fmt.Sprintf("lines delivered, settle interrupted: %v", e.Err)
}

func (e *DeliveredError) Unwrap() error {
	return e.Err
}

// Session drives protocol rounds against one started interpreter. Not
// safe for concurrent Run calls; batch and live flows each own one
// session at a time.
type Session struct {
	interp Interpreter
	cfg    Config
	log    *slog.Logger
}

// NewSession binds a session to an interpreter.
func NewSession(interp Interpreter, cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{interp: interp, cfg: cfg, log: cfg.Logger}
}

// Feed announces the report code when known, hands the lines to the
// parser, and gives it time to settle. The parser accumulates state
// across feeds; nothing is collected here. A context interruption
// during the settle surfaces as *DeliveredError: the lines are with
// the parser by then and must not be submitted again.
func (s *Session) Feed(ctx context.Context, req FeedRequest) error {
	if req.ReportCode != "" {
		err := s.interp.Send(bridge.Message{
			"message":    "set-report-code",
			"reportCode": req.ReportCode,
		})
		if err != nil {
			return fmt.Errorf("set-report-code: %w", err)
		}
	}

	err := s.interp.Send(bridge.Message{
		"message":        "parse-lines",
		"lines":          req.Lines,
		"region":         req.Region,
		"scanning":       false,
		"selectedFights": []int{},
	})
	if err != nil {
		return fmt.Errorf("parse-lines: %w", err)
	}

	if err := s.settle(ctx, len(req.Lines), req.FirstBacklog); err != nil {
		return err
	}
	s.log.Debug("fed lines", "lines", len(req.Lines))
	return nil
}

// Check collects the fights and master info the parser has accumulated.
// Wait timeouts surface as bridge.ErrWaitTimeout wrapped in context;
// callers decide whether that is fatal.
func (s *Session) Check(ctx context.Context, req CheckRequest) (*Result, error) {
	err := s.interp.Send(bridge.Message{
		"message":           "collect-fights",
		"pushFightIfNeeded": req.PushFightIfNeeded,
	})
	if err != nil {
		return nil, fmt.Errorf("collect-fights: %w", err)
	}
	fightsEv, err := s.interp.WaitFor(bridge.HasField("fights"), s.cfg.WaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("collecting fights: %w", err)
	}

	err = s.interp.Send(bridge.Message{
		"message":    "collect-master-info",
		"reportCode": req.ReportCode,
	})
	if err != nil {
		return nil, fmt.Errorf("collect-master-info: %w", err)
	}
	masterEv, err := s.interp.WaitFor(bridge.HasField("actorsString"), s.cfg.WaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("collecting master info: %w", err)
	}

	res := extract(fightsEv, masterEv)
	s.log.Debug("collected parser state", "fights", len(res.Fights))
	return res, nil
}

// Run performs one full protocol round, a feed followed immediately by
// a check. Batch uploads use it once per file.
func (s *Session) Run(ctx context.Context, req Request) (*Result, error) {
	feed := FeedRequest{
		ReportCode:   req.ReportCode,
		Lines:        req.Lines,
		Region:       req.Region,
		FirstBacklog: req.FirstBacklog,
	}
	if err := s.Feed(ctx, feed); err != nil {
		return nil, err
	}
	return s.Check(ctx, CheckRequest{
		ReportCode:        req.ReportCode,
		PushFightIfNeeded: req.PushFightIfNeeded,
	})
}

// settleDuration sizes the pause after parse-lines: the base floor plus
// a per-line component, doubled for the first backlog read, capped.
func settleDuration(cfg Config, lines int, firstBacklog bool) time.Duration {
	d := cfg.SettleBase + time.Duration(lines)*cfg.SettlePerLine
	if firstBacklog {
		d *= 2
	}
	if d > cfg.SettleMax {
		d = cfg.SettleMax
	}
	return d
}

// settle pauses proportionally to submitted volume so the parser can
// chew through the lines before collection starts. It always runs
// after a successful parse-lines write, so an interruption here is
// reported as delivery, not as failure to feed.
func (s *Session) settle(ctx context.Context, lines int, firstBacklog bool) error {
	timer := time.NewTimer(settleDuration(s.cfg, lines, firstBacklog))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return &DeliveredError{Err: ctx.Err()}
	}
}

// extract pulls fights and master material out of the two collected
// events. The vendor payload shape is not guaranteed field-by-field, so
// every absent field degrades to a fixed default instead of failing the
// unit.
func extract(fightsEv, masterEv bridge.Event) *Result {
	res := &Result{
		Master: MasterInfo{LogVersion: 72, GameVersion: 1},
	}

	if v, ok := fightsEv.Field("startTime"); ok {
		res.StartTime = v.Int()
	}
	if v, ok := fightsEv.Field("endTime"); ok {
		res.EndTime = v.Int()
	}
	if v, ok := fightsEv.Field("logVersion"); ok {
		res.Master.LogVersion = v.Int()
	}
	if v, ok := fightsEv.Field("gameVersion"); ok {
		res.Master.GameVersion = v.Int()
	}
	if v, ok := fightsEv.Field("logFileDetails"); ok {
		res.Master.LogFileDetails = v.String()
	}

	if fights, ok := fightsEv.Field("fights"); ok {
		for _, f := range fights.Array() {
			fight := Fight{Name: "Unknown"}
			if v := f.Get("name"); v.Exists() {
				fight.Name = v.String()
			}
			if v := f.Get("startTime"); v.Exists() {
				fight.StartTime = v.Int()
			}
			if v := f.Get("endTime"); v.Exists() {
				fight.EndTime = v.Int()
			}
			if v := f.Get("events"); v.Exists() {
				fight.Events = v.String()
			}
			res.Fights = append(res.Fights, fight)
		}
	}

	for _, sec := range []struct {
		field string
		dst   *string
	}{
		{"actorsString", &res.Master.Actors},
		{"abilitiesString", &res.Master.Abilities},
		{"tuplesString", &res.Master.Tuples},
		{"petsString", &res.Master.Pets},
	} {
		if v, ok := masterEv.Field(sec.field); ok {
			*sec.dst = v.String()
		}
	}

	return res
}
