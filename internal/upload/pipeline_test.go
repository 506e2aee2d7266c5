package upload

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/fflog/fflog-go/internal/parse"
)

// reportServer records the order of report calls it receives.
type reportServer struct {
	*httptest.Server

	mu    sync.Mutex
	calls []string

	failSegments  bool
	failTerminate bool
}

func newReportServer(t *testing.T) *reportServer {
	t.Helper()
	rs := &reportServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/desktop-client/create-report", func(w http.ResponseWriter, r *http.Request) {
		rs.record("create")
		fmt.Fprint(w, `"CODE123"`)
	})
	mux.HandleFunc("/desktop-client/set-report-master-table/CODE123", func(w http.ResponseWriter, r *http.Request) {
		rs.record("master")
	})
	mux.HandleFunc("/desktop-client/add-report-segment/CODE123", func(w http.ResponseWriter, r *http.Request) {
		if rs.failSegments {
			rs.record("segment:fail")
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		_, _, params := readUpload(t, r)
		rs.record(fmt.Sprintf("segment:%d", gjson.Get(params, "segmentId").Int()))
	})
	mux.HandleFunc("/desktop-client/terminate-report/CODE123", func(w http.ResponseWriter, r *http.Request) {
		rs.record("terminate")
		if rs.failTerminate {
			http.Error(w, "too late", http.StatusInternalServerError)
		}
	})
	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

func (rs *reportServer) record(call string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.calls = append(rs.calls, call)
}

func (rs *reportServer) sequence() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.calls...)
}

func twoFightResult() *parse.Result {
	return &parse.Result{
		Fights: []parse.Fight{
			{Name: "Pull 1", StartTime: 1000, EndTime: 2000, Events: "e1\ne2"},
			{Name: "Pull 2", StartTime: 3000, EndTime: 4000, Events: "e3"},
		},
		StartTime: 500,
		EndTime:   4500,
		Master:    parse.MasterInfo{LogVersion: 72, GameVersion: 1, Actors: "a1"},
	}
}

func TestPipelineRunCallSequence(t *testing.T) {
	srv := newReportServer(t)
	p := NewPipeline(newTestClient(t, srv.URL), nil)

	code, err := p.Run(context.Background(), Meta{FileName: "c.log"}, twoFightResult(), false)
	require.NoError(t, err)
	assert.Equal(t, "CODE123", code)

	assert.Equal(t,
		[]string{"create", "master", "segment:1", "master", "segment:2", "terminate"},
		srv.sequence(),
		"exactly 1+2N+1 calls, master before every segment")
}

func TestPipelineRunZeroFights(t *testing.T) {
	srv := newReportServer(t)
	p := NewPipeline(newTestClient(t, srv.URL), nil)

	code, err := p.Run(context.Background(), Meta{}, &parse.Result{}, false)
	require.NoError(t, err)
	assert.Equal(t, "CODE123", code)
	assert.Equal(t, []string{"create", "terminate"}, srv.sequence())
}

func TestPipelineRunFailsFastOnSegmentError(t *testing.T) {
	srv := newReportServer(t)
	srv.failSegments = true
	p := NewPipeline(newTestClient(t, srv.URL), nil)

	code, err := p.Run(context.Background(), Meta{}, twoFightResult(), false)
	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "CODE123", code, "the created code is still reported")

	seq := srv.sequence()
	assert.Equal(t, []string{"create", "master", "segment:fail"}, seq,
		"no further writes and no terminate after a failed segment")
	for _, call := range seq {
		assert.False(t, strings.HasPrefix(call, "segment:2"), "second fight must not upload")
	}
}

func TestPipelineRunSwallowsTerminateFailure(t *testing.T) {
	srv := newReportServer(t)
	srv.failTerminate = true
	p := NewPipeline(newTestClient(t, srv.URL), nil)

	code, err := p.Run(context.Background(), Meta{}, twoFightResult(), false)
	require.NoError(t, err, "terminate failures never fail the upload")
	assert.Equal(t, "CODE123", code)
	assert.Contains(t, srv.sequence(), "terminate")
}

func TestPipelineUploadFightUsesUnitTimes(t *testing.T) {
	var params string
	mux := http.NewServeMux()
	mux.HandleFunc("/desktop-client/set-report-master-table/CODE", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/desktop-client/add-report-segment/CODE", func(w http.ResponseWriter, r *http.Request) {
		_, _, params = readUpload(t, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewPipeline(newTestClient(t, srv.URL), nil)
	res := twoFightResult()
	require.NoError(t, p.UploadFight(context.Background(), "CODE", res, 1, false))

	assert.Equal(t, int64(500), gjson.Get(params, "start").Int(), "unit start, not the fight's own")
	assert.Equal(t, int64(4500), gjson.Get(params, "end").Int(), "unit end, not the fight's own")
	assert.Equal(t, int64(2), gjson.Get(params, "segmentId").Int())
	assert.False(t, gjson.Get(params, "isLiveLog").Bool())
	assert.False(t, gjson.Get(params, "isRealTime").Bool())
}
