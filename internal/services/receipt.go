package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/stockscan-backend/internal/data/repos"
	types "github.com/yungbote/stockscan-backend/internal/domain"
	domainagg "github.com/yungbote/stockscan-backend/internal/domain/aggregates"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts/reconcile"
	"github.com/yungbote/stockscan-backend/internal/platform/dbctx"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/storage"
)

const MaxReceiptImageBytes = 20 << 20

type UploadReceiptInput struct {
	Filename string
	Body     io.Reader
}

type ReceiptView struct {
	*types.Receipt
	ImageURL string        `json:"image_url,omitempty"`
	Job      *types.JobRun `json:"job,omitempty"`
}

// Reconciler applies confirmed items to stock.
type Reconciler interface {
	Reconcile(ctx context.Context, receiptID uuid.UUID, items []types.ValidatedItem) (reconcile.Result, error)
}

type ReceiptService interface {
	// Upload stores the image, then creates the receipt and its queued
	// receipt_process job in one transaction.
	Upload(ctx context.Context, in UploadReceiptInput) (*ReceiptView, error)
	Get(ctx context.Context, id uuid.UUID) (*ReceiptView, error)
	// Reprocess moves a failed receipt back to processing and queues a run
	// unless one is already queued or running.
	Reprocess(ctx context.Context, id uuid.UUID) (*ReceiptView, error)
	Confirm(ctx context.Context, id uuid.UUID, items []types.ValidatedItem) (reconcile.Result, error)
}

type ReceiptServiceDeps struct {
	DB         *gorm.DB
	Log        *logger.Logger
	Receipts   repos.ReceiptRepo
	Lifecycle  domainagg.ReceiptLifecycleAggregate
	Jobs       JobService
	Images     receipts.ImageStore
	Reconciler Reconciler
}

type receiptService struct {
	db         *gorm.DB
	log        *logger.Logger
	receipts   repos.ReceiptRepo
	lifecycle  domainagg.ReceiptLifecycleAggregate
	jobs       JobService
	images     receipts.ImageStore
	reconciler Reconciler
}

func NewReceiptService(deps ReceiptServiceDeps) ReceiptService {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &receiptService{
		db:         deps.DB,
		log:        log.With("service", "ReceiptService"),
		receipts:   deps.Receipts,
		lifecycle:  deps.Lifecycle,
		jobs:       deps.Jobs,
		images:     deps.Images,
		reconciler: deps.Reconciler,
	}
}

func (s *receiptService) Upload(ctx context.Context, in UploadReceiptInput) (*ReceiptView, error) {
	const op = "receipts.upload"
	if in.Body == nil {
		return nil, receipts.NewError(receipts.KindInvalidInput, op, "missing image", nil)
	}
	data, err := io.ReadAll(io.LimitReader(in.Body, MaxReceiptImageBytes+1))
	if err != nil {
		return nil, receipts.NewError(receipts.KindInvalidInput, op, "could not read image", err)
	}
	if len(data) == 0 {
		return nil, receipts.NewError(receipts.KindInvalidInput, op, "image is empty", nil)
	}
	if len(data) > MaxReceiptImageBytes {
		return nil, receipts.Errorf(receipts.KindInvalidInput, op, "image exceeds %d MB", MaxReceiptImageBytes>>20)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, receipts.Errorf(receipts.KindInvalidInput, op, "unsupported file type %s", mt.String())
	}
	contentType := strings.TrimSpace(strings.Split(mt.String(), ";")[0])

	id := uuid.New()
	key := storage.ReceiptKey(id, in.Filename, contentType)
	ref, err := s.images.Save(ctx, key, bytes.NewReader(data), contentType)
	if err != nil {
		return nil, receipts.Wrap(receipts.KindInternal, op, fmt.Errorf("store image: %w", err))
	}

	rec := &types.Receipt{ID: id, ImageReference: ref, Status: types.ReceiptProcessing}
	var job *types.JobRun
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.receipts.Create(dbc, []*types.Receipt{rec}); err != nil {
			return fmt.Errorf("create receipt: %w", err)
		}
		rid := rec.ID
		j, err := s.jobs.Enqueue(dbc, types.JobTypeReceiptProcess, types.JobEntityReceipt, &rid, map[string]any{
			"receipt_id": rid.String(),
		})
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		s.log.Warn("receipt image stored without a receipt row", "image_reference", ref, "error", err)
		return nil, receipts.Wrap(receipts.KindInternal, op, err)
	}
	s.log.Info("receipt uploaded",
		"receipt_id", rec.ID,
		"job_id", job.ID,
		"content_type", contentType,
		"bytes", len(data),
	)
	return s.view(rec, job), nil
}

func (s *receiptService) Get(ctx context.Context, id uuid.UUID) (*ReceiptView, error) {
	const op = "receipts.get"
	rec, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.GetLatestForEntity(dbctx.Context{Ctx: ctx}, types.JobEntityReceipt, id, types.JobTypeReceiptProcess)
	if err != nil {
		s.log.Warn("latest receipt job lookup failed", "receipt_id", id, "error", err)
		job = nil
	}
	return s.view(rec, job), nil
}

func (s *receiptService) Reprocess(ctx context.Context, id uuid.UUID) (*ReceiptView, error) {
	const op = "receipts.reprocess"
	if _, err := s.load(ctx, op, id); err != nil {
		return nil, err
	}
	rec, err := s.lifecycle.ResetForReprocess(ctx, id)
	if err != nil {
		switch domainagg.CodeOf(err) {
		case domainagg.CodeConflict:
			return nil, receipts.NewError(receipts.KindStateConflict, op, "only failed receipts can be reprocessed", err)
		case domainagg.CodeNotFound:
			return nil, receipts.NewError(receipts.KindNotFound, op, "receipt not found", err)
		default:
			return nil, receipts.Wrap(receipts.KindInternal, op, err)
		}
	}

	job, created, err := s.jobs.EnqueueIfIdle(dbctx.Context{Ctx: ctx}, types.JobTypeReceiptProcess, types.JobEntityReceipt, id, map[string]any{
		"receipt_id": id.String(),
		"reprocess":  true,
	})
	if err != nil {
		// Put the receipt back so the caller can retry the request.
		if _, ferr := s.lifecycle.MarkFailed(context.WithoutCancel(ctx), domainagg.MarkReceiptFailedInput{
			ReceiptID: id,
			Message:   "reprocess could not be queued",
			RawText:   rec.RawExtractionText,
		}); ferr != nil {
			s.log.Error("receipt stuck in processing after enqueue failure", "receipt_id", id, "error", ferr)
		}
		return nil, receipts.Wrap(receipts.KindInternal, op, err)
	}
	s.log.Info("receipt reprocess queued", "receipt_id", id, "job_id", job.ID, "new_job", created)
	return s.view(rec, job), nil
}

func (s *receiptService) Confirm(ctx context.Context, id uuid.UUID, items []types.ValidatedItem) (reconcile.Result, error) {
	return s.reconciler.Reconcile(ctx, id, items)
}

func (s *receiptService) load(ctx context.Context, op string, id uuid.UUID) (*types.Receipt, error) {
	if id == uuid.Nil {
		return nil, receipts.NewError(receipts.KindInvalidInput, op, "missing receipt id", nil)
	}
	rec, err := s.receipts.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, receipts.Wrap(receipts.KindInternal, op, err)
	}
	if rec == nil {
		return nil, receipts.NewError(receipts.KindNotFound, op, "receipt not found", nil)
	}
	return rec, nil
}

func (s *receiptService) view(rec *types.Receipt, job *types.JobRun) *ReceiptView {
	v := &ReceiptView{Receipt: rec, Job: job}
	if s.images != nil && rec.ImageReference != "" {
		v.ImageURL = s.images.URL(rec.ImageReference)
	}
	return v
}
