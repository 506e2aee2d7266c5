package parse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fflog/fflog-go/internal/bridge"
)

// fakeInterp records sends and serves canned events to WaitFor in
// arrival order, mirroring the real queue's matching behavior.
type fakeInterp struct {
	sent    []bridge.Message
	queued  []bridge.Event
	sendErr error
}

func (f *fakeInterp) Send(m bridge.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeInterp) WaitFor(pred bridge.Predicate, _ time.Duration) (bridge.Event, error) {
	for i, ev := range f.queued {
		if pred(ev) {
			f.queued = append(f.queued[:i], f.queued[i+1:]...)
			return ev, nil
		}
	}
	return bridge.Event{}, bridge.ErrWaitTimeout
}

func (f *fakeInterp) queue(raw string) {
	f.queued = append(f.queued, bridge.EventFromJSON([]byte(raw)))
}

func fastConfig() Config {
	return Config{
		SettleBase:    time.Millisecond,
		SettlePerLine: time.Nanosecond,
		SettleMax:     10 * time.Millisecond,
		WaitTimeout:   time.Second,
	}
}

func TestRunSendsProtocolSequence(t *testing.T) {
	interp := &fakeInterp{}
	interp.queue(`{"channel":"ipc-collect-fights","data":{
		"fights":[
			{"name":"Pull 1","startTime":1000,"endTime":2000,"events":"e1\ne2"},
			{"name":"Pull 2","startTime":3000,"endTime":4000,"events":"e3"}
		],
		"startTime":500,"endTime":4500,
		"logVersion":81,"gameVersion":2,"logFileDetails":"details"
	}}`)
	interp.queue(`{"channel":"ipc-collect-master-info","data":{
		"actorsString":"a1\na2","abilitiesString":"b1","tuplesString":"","petsString":"p1"
	}}`)

	s := NewSession(interp, fastConfig())
	res, err := s.Run(context.Background(), Request{
		ReportCode: "abc123",
		Lines:      []string{"line1", "line2"},
		Region:     "NA",
	})
	require.NoError(t, err)

	require.Len(t, interp.sent, 4)
	assert.Equal(t, "set-report-code", interp.sent[0]["message"])
	assert.Equal(t, "abc123", interp.sent[0]["reportCode"])

	parseMsg := interp.sent[1]
	assert.Equal(t, "parse-lines", parseMsg["message"])
	assert.Equal(t, []string{"line1", "line2"}, parseMsg["lines"])
	assert.Equal(t, "NA", parseMsg["region"])
	assert.Equal(t, false, parseMsg["scanning"])
	assert.Empty(t, parseMsg["selectedFights"])

	assert.Equal(t, "collect-fights", interp.sent[2]["message"])
	assert.Equal(t, false, interp.sent[2]["pushFightIfNeeded"])

	assert.Equal(t, "collect-master-info", interp.sent[3]["message"])
	assert.Equal(t, "abc123", interp.sent[3]["reportCode"])

	require.Len(t, res.Fights, 2)
	assert.Equal(t, Fight{Name: "Pull 1", StartTime: 1000, EndTime: 2000, Events: "e1\ne2"}, res.Fights[0])
	assert.Equal(t, Fight{Name: "Pull 2", StartTime: 3000, EndTime: 4000, Events: "e3"}, res.Fights[1])
	assert.Equal(t, int64(500), res.StartTime)
	assert.Equal(t, int64(4500), res.EndTime)
	assert.Equal(t, int64(81), res.Master.LogVersion)
	assert.Equal(t, int64(2), res.Master.GameVersion)
	assert.Equal(t, "details", res.Master.LogFileDetails)
	assert.Equal(t, "a1\na2", res.Master.Actors)
	assert.Equal(t, "b1", res.Master.Abilities)
	assert.Equal(t, "", res.Master.Tuples)
	assert.Equal(t, "p1", res.Master.Pets)
}

func TestRunSkipsReportCodeWhenEmpty(t *testing.T) {
	interp := &fakeInterp{}
	interp.queue(`{"data":{"fights":[]}}`)
	interp.queue(`{"data":{"actorsString":""}}`)

	s := NewSession(interp, fastConfig())
	_, err := s.Run(context.Background(), Request{Lines: []string{"l"}, Region: "EU"})
	require.NoError(t, err)

	require.Len(t, interp.sent, 3)
	assert.Equal(t, "parse-lines", interp.sent[0]["message"])
	assert.Equal(t, "collect-fights", interp.sent[1]["message"])
	assert.Equal(t, "collect-master-info", interp.sent[2]["message"])
	assert.Equal(t, "", interp.sent[2]["reportCode"])
}

func TestRunForwardsPushFightIfNeeded(t *testing.T) {
	interp := &fakeInterp{}
	interp.queue(`{"data":{"fights":[]}}`)
	interp.queue(`{"data":{"actorsString":""}}`)

	s := NewSession(interp, fastConfig())
	_, err := s.Run(context.Background(), Request{PushFightIfNeeded: true})
	require.NoError(t, err)

	for _, m := range interp.sent {
		if m["message"] == "collect-fights" {
			assert.Equal(t, true, m["pushFightIfNeeded"])
			return
		}
	}
	t.Fatal("collect-fights never sent")
}

func TestRunDefaultsAbsentFields(t *testing.T) {
	interp := &fakeInterp{}
	// Fight entry and headers entirely bare, sections missing.
	interp.queue(`{"data":{"fights":[{}]}}`)
	interp.queue(`{"actorsString":"top-level"}`)

	s := NewSession(interp, fastConfig())
	res, err := s.Run(context.Background(), Request{Lines: []string{"l"}})
	require.NoError(t, err)

	require.Len(t, res.Fights, 1)
	assert.Equal(t, Fight{Name: "Unknown", StartTime: 0, EndTime: 0, Events: ""}, res.Fights[0])
	assert.Equal(t, int64(0), res.StartTime)
	assert.Equal(t, int64(0), res.EndTime)
	assert.Equal(t, int64(72), res.Master.LogVersion)
	assert.Equal(t, int64(1), res.Master.GameVersion)
	assert.Equal(t, "", res.Master.LogFileDetails)
	assert.Equal(t, "top-level", res.Master.Actors, "top-level emission path must be honored")
	assert.Equal(t, "", res.Master.Abilities)
}

func TestFeedSendsNoCollectCommands(t *testing.T) {
	interp := &fakeInterp{}
	s := NewSession(interp, fastConfig())

	err := s.Feed(context.Background(), FeedRequest{
		ReportCode: "abc123",
		Lines:      []string{"l1"},
		Region:     "JP",
	})
	require.NoError(t, err)

	require.Len(t, interp.sent, 2)
	assert.Equal(t, "set-report-code", interp.sent[0]["message"])
	assert.Equal(t, "parse-lines", interp.sent[1]["message"])
	assert.Equal(t, "JP", interp.sent[1]["region"])
}

func TestCheckCollectsWithoutFeeding(t *testing.T) {
	interp := &fakeInterp{}
	interp.queue(`{"data":{"fights":[{"name":"Pull 1"}]}}`)
	interp.queue(`{"data":{"actorsString":"a1"}}`)

	s := NewSession(interp, fastConfig())
	res, err := s.Check(context.Background(), CheckRequest{ReportCode: "abc123"})
	require.NoError(t, err)

	require.Len(t, interp.sent, 2)
	assert.Equal(t, "collect-fights", interp.sent[0]["message"])
	assert.Equal(t, "collect-master-info", interp.sent[1]["message"])
	assert.Equal(t, "abc123", interp.sent[1]["reportCode"])
	require.Len(t, res.Fights, 1)
	assert.Equal(t, "Pull 1", res.Fights[0].Name)
	assert.Equal(t, "a1", res.Master.Actors)
}

func TestRunFightsTimeoutIsSurfaced(t *testing.T) {
	interp := &fakeInterp{} // nothing queued
	s := NewSession(interp, fastConfig())

	_, err := s.Run(context.Background(), Request{Lines: []string{"l"}})
	assert.ErrorIs(t, err, bridge.ErrWaitTimeout)
}

func TestRunStopsWhenContextCancelledDuringSettle(t *testing.T) {
	interp := &fakeInterp{}
	cfg := fastConfig()
	cfg.SettleBase = 10 * time.Second
	cfg.SettleMax = 10 * time.Second
	s := NewSession(interp, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Run(ctx, Request{Lines: []string{"l"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, interp.sent, 1, "collection must not start after cancellation")
}

func TestFeedInterruptedMidSettleReportsDelivery(t *testing.T) {
	interp := &fakeInterp{}
	cfg := fastConfig()
	cfg.SettleBase = 10 * time.Second
	cfg.SettleMax = 10 * time.Second
	s := NewSession(interp, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Feed(ctx, FeedRequest{Lines: []string{"l"}})

	var delivered *DeliveredError
	require.ErrorAs(t, err, &delivered, "parse-lines went out before the interruption")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, interp.sent, 1)
}

func TestFeedSendFailureIsNotDelivery(t *testing.T) {
	interp := &fakeInterp{sendErr: bridge.ErrNotRunning}
	s := NewSession(interp, fastConfig())

	err := s.Feed(context.Background(), FeedRequest{Lines: []string{"l"}})
	require.Error(t, err)
	var delivered *DeliveredError
	assert.False(t, errors.As(err, &delivered), "nothing reached the parser, a retry is safe")
}

func TestSettleDuration(t *testing.T) {
	cfg := Config{
		SettleBase:    500 * time.Millisecond,
		SettlePerLine: 500 * time.Microsecond,
		SettleMax:     10 * time.Second,
	}

	tests := []struct {
		name         string
		lines        int
		firstBacklog bool
		want         time.Duration
	}{
		{name: "empty batch keeps the floor", lines: 0, want: 500 * time.Millisecond},
		{name: "scales with volume", lines: 1000, want: time.Second},
		{name: "first backlog doubles", lines: 1000, firstBacklog: true, want: 2 * time.Second},
		{name: "caps at max", lines: 100000, want: 10 * time.Second},
		{name: "doubling cannot exceed max", lines: 100000, firstBacklog: true, want: 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, settleDuration(cfg, tt.lines, tt.firstBacklog))
		})
	}
}
