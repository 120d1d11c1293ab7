package receipt_process

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/datatypes"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	jobrt "github.com/yungbote/stockscan-backend/internal/jobs/runtime"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts/pipeline"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

type fakeRunner struct {
	gotID uuid.UUID
	res   pipeline.Result
	err   error
	stage string
}

func (f *fakeRunner) Run(_ context.Context, id uuid.UUID, sink receipts.ProgressSink) (pipeline.Result, error) {
	f.gotID = id
	if f.stage != "" {
		sink.Progress(f.stage, 33, "checkpoint")
	}
	return f.res, f.err
}

func newJob(entity *uuid.UUID, payload string) *jobrt.Context {
	job := &types.JobRun{
		ID:         uuid.New(),
		JobType:    types.JobTypeReceiptProcess,
		EntityType: types.JobEntityReceipt,
		EntityID:   entity,
		Status:     types.JobStatusRunning,
		Attempts:   1,
		Payload:    datatypes.JSON([]byte(payload)),
	}
	return jobrt.NewContext(context.Background(), job, jobrt.Deps{MaxAttempts: 5})
}

func TestRunSucceedsWithProposal(t *testing.T) {
	id := uuid.New()
	runner := &fakeRunner{res: pipeline.Result{
		Status:   types.ReceiptPendingConfirmation,
		Proposal: &types.Proposal{ReceiptID: id, TotalItems: 2, UnmatchedItems: []types.UnmatchedItem{{Name: "x"}}},
	}}
	jc := newJob(&id, `{}`)
	if err := New(nil, runner).Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runner.gotID != id {
		t.Fatalf("runner got %s", runner.gotID)
	}
	if jc.Job.Status != types.JobStatusSucceeded || jc.Job.Stage != "done" {
		t.Fatalf("job: %+v", jc.Job)
	}
	if string(jc.Job.Result) == "" {
		t.Fatalf("result not stored")
	}
}

func TestRunReadsReceiptFromPayload(t *testing.T) {
	id := uuid.New()
	runner := &fakeRunner{res: pipeline.Result{Skipped: true, Status: types.ReceiptConfirmed}}
	jc := newJob(nil, `{"receipt_id":"`+id.String()+`"}`)
	_ = New(nil, runner).Run(jc)
	if runner.gotID != id || jc.Job.Stage != "skipped" || jc.Job.Status != types.JobStatusSucceeded {
		t.Fatalf("runner=%s job=%+v", runner.gotID, jc.Job)
	}
}

func TestRunFailurePolicy(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		name       string
		err        error
		stage      string
		wantStatus string
		wantStage  string
	}{
		{"retryable", receipts.NewError(receipts.KindTransport, "extract", "reset", nil), "", types.JobStatusFailed, receipts.StageExtraction},
		{"rate limited after progress", receipts.NewError(receipts.KindRateLimited, "validate", "429", nil), receipts.StageMatching, types.JobStatusFailed, receipts.StageMatching},
		{"no items", receipts.NewError(receipts.KindNoItemsExtracted, "run", "nothing", nil), "", types.JobStatusDead, receipts.StageExtraction},
		{"plain error", errors.New("disk full"), "", types.JobStatusDead, receipts.StageExtraction},
	}
	for _, tc := range cases {
		jc := newJob(&id, `{}`)
		_ = New(nil, &fakeRunner{err: tc.err, stage: tc.stage}).Run(jc)
		if jc.Job.Status != tc.wantStatus || jc.Job.Stage != tc.wantStage {
			t.Errorf("%s: status=%s stage=%s", tc.name, jc.Job.Status, jc.Job.Stage)
		}
		if jc.Job.Error == "" {
			t.Errorf("%s: error not recorded", tc.name)
		}
	}
}

func TestRunLogsFailureDecision(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		name      string
		err       error
		wantLevel zapcore.Level
		wantMsg   string
	}{
		{"retryable", receipts.NewError(receipts.KindTransport, "extract", "connection reset", nil), zapcore.WarnLevel, "Receipt run failed; leaving job for retry"},
		{"permanent", receipts.NewError(receipts.KindMalformedResponse, "validate", "bad json", nil), zapcore.ErrorLevel, "Receipt run failed permanently"},
	}
	for _, tc := range cases {
		core, logs := observer.New(zapcore.DebugLevel)
		log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

		_ = New(log, &fakeRunner{err: tc.err}).Run(newJob(&id, `{}`))

		entries := logs.FilterMessage(tc.wantMsg).All()
		if len(entries) != 1 {
			t.Fatalf("%s: expected one %q entry, got %+v", tc.name, tc.wantMsg, logs.All())
		}
		e := entries[0]
		if e.Level != tc.wantLevel {
			t.Errorf("%s: level=%s", tc.name, e.Level)
		}
		ctx := e.ContextMap()
		if ctx["receipt_id"] != id.String() || ctx["kind"] != string(receipts.KindOf(tc.err)) || ctx["job"] != types.JobTypeReceiptProcess {
			t.Errorf("%s: fields=%v", tc.name, ctx)
		}
	}
}

func TestRunRejectsMissingReceipt(t *testing.T) {
	runner := &fakeRunner{}
	jc := newJob(nil, `{"receipt_id":"not-a-uuid"}`)
	_ = New(nil, runner).Run(jc)
	if jc.Job.Status != types.JobStatusDead || jc.Job.Stage != "validate" {
		t.Fatalf("job: %+v", jc.Job)
	}
	if runner.gotID != uuid.Nil {
		t.Fatalf("runner must not be called")
	}
}
