package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/stockscan-backend/internal/data/aggregates"
	"github.com/yungbote/stockscan-backend/internal/data/repos"
	repotest "github.com/yungbote/stockscan-backend/internal/data/repos/testutil"
	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts/reconcile"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
)

var jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}

type memImages struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	saveErr error
}

func newMemImages() *memImages {
	return &memImages{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memImages) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[ref]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memImages) Save(_ context.Context, key string, r io.Reader, contentType string) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	m.types[key] = contentType
	return key, nil
}

func (m *memImages) URL(ref string) string { return "/files/" + ref }

type countingNotifier struct {
	mu      sync.Mutex
	created int
}

func (n *countingNotifier) JobCreated(*types.JobRun) {
	n.mu.Lock()
	n.created++
	n.mu.Unlock()
}
func (n *countingNotifier) JobProgress(*types.JobRun, string, int, string) {}
func (n *countingNotifier) JobFailed(*types.JobRun, string, string)        {}
func (n *countingNotifier) JobDone(*types.JobRun)                          {}

type stubReconciler struct {
	gotID    uuid.UUID
	gotItems []types.ValidatedItem
	err      error
}

func (s *stubReconciler) Reconcile(_ context.Context, id uuid.UUID, items []types.ValidatedItem) (reconcile.Result, error) {
	s.gotID, s.gotItems = id, items
	if s.err != nil {
		return reconcile.Result{}, s.err
	}
	return reconcile.Result{Transaction: &types.Transaction{ReceiptID: id, TotalItems: len(items)}}, nil
}

type receiptFixture struct {
	db         *gorm.DB
	svc        ReceiptService
	jobs       JobService
	jobRepo    repos.JobRunRepo
	receipts   repos.ReceiptRepo
	images     *memImages
	notify     *countingNotifier
	reconciler *stubReconciler
}

func newReceiptFixture(t *testing.T) receiptFixture {
	t.Helper()
	db := repotest.DB(t)
	log := repotest.Logger(t)
	f := receiptFixture{
		db:         db,
		jobRepo:    repos.NewJobRunRepo(db, log),
		receipts:   repos.NewReceiptRepo(db, log),
		images:     newMemImages(),
		notify:     &countingNotifier{},
		reconciler: &stubReconciler{},
	}
	f.jobs = NewJobService(db, log, f.jobRepo, repos.NewJobRunEventRepo(db, log), f.notify)
	lifecycle := aggregates.NewReceiptLifecycleAggregate(aggregates.ReceiptLifecycleAggregateDeps{
		Base:     aggregates.BaseDeps{DB: db, Log: log},
		Receipts: f.receipts,
	})
	f.svc = NewReceiptService(ReceiptServiceDeps{
		DB:         db,
		Log:        log,
		Receipts:   f.receipts,
		Lifecycle:  lifecycle,
		Jobs:       f.jobs,
		Images:     f.images,
		Reconciler: f.reconciler,
	})
	return f
}

func TestUploadCreatesReceiptAndJob(t *testing.T) {
	f := newReceiptFixture(t)
	ctx := context.Background()

	view, err := f.svc.Upload(ctx, UploadReceiptInput{Filename: "IMG_0001.JPG", Body: bytes.NewReader(jpegBytes)})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if view.Status != types.ReceiptProcessing {
		t.Fatalf("status: %s", view.Status)
	}
	wantRef := "receipts/" + view.ID.String() + ".jpg"
	if view.ImageReference != wantRef || view.ImageURL != "/files/"+wantRef {
		t.Fatalf("image ref=%q url=%q", view.ImageReference, view.ImageURL)
	}
	if f.images.types[wantRef] != "image/jpeg" {
		t.Fatalf("stored content type: %q", f.images.types[wantRef])
	}

	stored, err := f.receipts.GetByID(dbctx.Context{Ctx: ctx}, view.ID)
	if err != nil || stored == nil {
		t.Fatalf("receipt not persisted: %v", err)
	}
	if view.Job == nil || view.Job.JobType != types.JobTypeReceiptProcess || view.Job.Status != types.JobStatusQueued {
		t.Fatalf("job: %+v", view.Job)
	}
	if view.Job.EntityID == nil || *view.Job.EntityID != view.ID {
		t.Fatalf("job entity: %v", view.Job.EntityID)
	}
	if !strings.Contains(string(view.Job.Payload), view.ID.String()) {
		t.Fatalf("payload: %s", view.Job.Payload)
	}
	if f.notify.created != 1 {
		t.Fatalf("created notifications: %d", f.notify.created)
	}
}

func TestUploadRejectsBadImages(t *testing.T) {
	cases := []struct {
		name string
		body []byte
	}{
		{"empty", nil},
		{"text", []byte("hello, this is not an image")},
		{"too large", append(append([]byte{}, jpegBytes...), make([]byte, MaxReceiptImageBytes)...)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newReceiptFixture(t)
			_, err := f.svc.Upload(context.Background(), UploadReceiptInput{Filename: "x.jpg", Body: bytes.NewReader(tc.body)})
			if !receipts.IsKind(err, receipts.KindInvalidInput) {
				t.Fatalf("want invalid input, got %v", err)
			}
			if len(f.images.objects) != 0 {
				t.Fatalf("rejected upload was stored")
			}
		})
	}
}

func TestUploadStorageFailureCreatesNothing(t *testing.T) {
	f := newReceiptFixture(t)
	f.images.saveErr = errors.New("bucket unavailable")
	_, err := f.svc.Upload(context.Background(), UploadReceiptInput{Body: bytes.NewReader(jpegBytes)})
	if !receipts.IsKind(err, receipts.KindInternal) {
		t.Fatalf("want internal, got %v", err)
	}
	var n int64
	if err := f.db.Model(&types.Receipt{}).Count(&n).Error; err != nil || n != 0 {
		t.Fatalf("receipts: %d err=%v", n, err)
	}
}

func TestGetReceipt(t *testing.T) {
	f := newReceiptFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Get(ctx, uuid.New()); !receipts.IsKind(err, receipts.KindNotFound) {
		t.Fatalf("missing receipt: %v", err)
	}
	up, err := f.svc.Upload(ctx, UploadReceiptInput{Body: bytes.NewReader(jpegBytes)})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	got, err := f.svc.Get(ctx, up.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Job == nil || got.Job.ID != up.Job.ID {
		t.Fatalf("latest job: %+v", got.Job)
	}
}

func TestReprocess(t *testing.T) {
	ctx := context.Background()

	t.Run("failed receipt is queued again", func(t *testing.T) {
		f := newReceiptFixture(t)
		rec := repotest.SeedReceipt(t, ctx, f.db, types.ReceiptFailed)
		view, err := f.svc.Reprocess(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Reprocess: %v", err)
		}
		if view.Status != types.ReceiptProcessing || view.Job == nil {
			t.Fatalf("view: status=%s job=%v", view.Status, view.Job)
		}
		if _, err := f.svc.Reprocess(ctx, rec.ID); !receipts.IsKind(err, receipts.KindStateConflict) {
			t.Fatalf("second reprocess: %v", err)
		}
	})

	t.Run("reuses a queued run", func(t *testing.T) {
		f := newReceiptFixture(t)
		rec := repotest.SeedReceipt(t, ctx, f.db, types.ReceiptFailed)
		id := rec.ID
		existing, err := f.jobs.Enqueue(dbctx.Context{Ctx: ctx}, types.JobTypeReceiptProcess, types.JobEntityReceipt, &id, nil)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		view, err := f.svc.Reprocess(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Reprocess: %v", err)
		}
		if view.Job.ID != existing.ID {
			t.Fatalf("duplicate job enqueued")
		}
		var n int64
		f.db.Model(&types.JobRun{}).Where("entity_id = ?", rec.ID).Count(&n)
		if n != 1 {
			t.Fatalf("jobs for receipt: %d", n)
		}
	})

	t.Run("rejects other statuses", func(t *testing.T) {
		for _, st := range []types.ReceiptStatus{types.ReceiptProcessing, types.ReceiptPendingConfirmation, types.ReceiptConfirmed} {
			f := newReceiptFixture(t)
			rec := repotest.SeedReceipt(t, ctx, f.db, st)
			if _, err := f.svc.Reprocess(ctx, rec.ID); !receipts.IsKind(err, receipts.KindStateConflict) {
				t.Fatalf("%s: %v", st, err)
			}
		}
	})

	t.Run("missing receipt", func(t *testing.T) {
		f := newReceiptFixture(t)
		if _, err := f.svc.Reprocess(ctx, uuid.New()); !receipts.IsKind(err, receipts.KindNotFound) {
			t.Fatalf("got %v", err)
		}
	})
}

func TestConfirmDelegatesToReconciler(t *testing.T) {
	f := newReceiptFixture(t)
	id := uuid.New()
	items := []types.ValidatedItem{{ProductID: uuid.New(), ProductName: "น้ำปลา", Quantity: 2, Confidence: 1}}

	res, err := f.svc.Confirm(context.Background(), id, items)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if f.reconciler.gotID != id || len(f.reconciler.gotItems) != 1 || res.Transaction.TotalItems != 1 {
		t.Fatalf("reconciler call: id=%s items=%v", f.reconciler.gotID, f.reconciler.gotItems)
	}

	f.reconciler.err = receipts.NewError(receipts.KindStateConflict, "receipts.reconcile", "", nil)
	if _, err := f.svc.Confirm(context.Background(), id, items); !receipts.IsKind(err, receipts.KindStateConflict) {
		t.Fatalf("error kind lost: %v", err)
	}
}
