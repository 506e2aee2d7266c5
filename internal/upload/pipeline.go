package upload

import (
	"context"
	"io"
	"log/slog"

	"github.com/fflog/fflog-go/internal/parse"
)

// Pipeline realizes one report from parsed data. For N fights it issues
// exactly 1 create, then per fight one master-table write followed by
// one segment write, then 1 terminate, strictly in order and never
// concurrently.
type Pipeline struct {
	client *Client
	log    *slog.Logger
}

// NewPipeline binds a pipeline to a logged-in client.
func NewPipeline(client *Client, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{client: client, log: logger}
}

// Run uploads every fight of res under a freshly created report and
// returns the report code. Any create or write failure aborts the run;
// a terminate failure is logged and swallowed. When a write fails the
// already-created code is still returned so the caller can report what
// the service may have persisted.
func (p *Pipeline) Run(ctx context.Context, meta Meta, res *parse.Result, live bool) (string, error) {
	code, err := p.client.CreateReport(ctx, meta)
	if err != nil {
		return "", err
	}

	for i := range res.Fights {
		if err := p.UploadFight(ctx, code, res, i, live); err != nil {
			return code, err
		}
	}

	p.Finish(ctx, code)
	p.log.Info("report uploaded", "code", code, "fights", len(res.Fights))
	return code, nil
}

// Create opens a report without writing anything to it. Live sessions
// create lazily, once the first finished fight shows up.
func (p *Pipeline) Create(ctx context.Context, meta Meta) (string, error) {
	return p.client.CreateReport(ctx, meta)
}

// UploadFight sends the current master table, rebuilt fresh from res,
// immediately followed by fight i's segment. Exposed on its own because
// live sessions drive per-fight uploads while owning create and
// terminate themselves.
func (p *Pipeline) UploadFight(ctx context.Context, code string, res *parse.Result, i int, live bool) error {
	if err := p.client.SetMasterTable(ctx, code, res.Master.Table()); err != nil {
		return err
	}

	fight := res.Fights[i]
	seg := Segment{
		Index:     i + 1,
		Name:      fight.Name,
		Events:    fight.Events,
		StartTime: res.StartTime,
		EndTime:   res.EndTime,
		Live:      live,
	}
	return p.client.AddSegment(ctx, code, seg)
}

// Finish terminates the report. Failures get the same treatment Run
// gives them, logged and swallowed, the report stays usable server-side.
func (p *Pipeline) Finish(ctx context.Context, code string) {
	if err := p.client.Terminate(ctx, code); err != nil {
		p.log.Warn("terminate report failed", "code", code, "err", err)
	}
}
