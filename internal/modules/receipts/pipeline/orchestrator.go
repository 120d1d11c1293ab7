package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	domainagg "github.com/yungbote/stockscan-backend/internal/domain/aggregates"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/observability"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

// RawTextMarker prefixes the extraction text appended to failure messages.
const RawTextMarker = "ข้อมูลที่ OCR ได้:"

const (
	defaultItemConcurrency = 4
	defaultConfidenceWarn  = 0.8
	failWriteTimeout       = 10 * time.Second
	maxImageBytes          = 20 << 20
)

type Config struct {
	ItemConcurrency int
	Retry           receipts.RetryPolicy
	ConfidenceWarn  float64
}

func DefaultConfig() Config {
	return Config{
		ItemConcurrency: defaultItemConcurrency,
		Retry:           receipts.DefaultRetryPolicy(),
		ConfidenceWarn:  defaultConfidenceWarn,
	}
}

type Deps struct {
	Log       *logger.Logger
	Lifecycle domainagg.ReceiptLifecycleAggregate
	Images    receipts.ImageStore
	Extractor receipts.Extractor
	Matcher   receipts.Matcher
	Validator receipts.Validator
	Metrics   *observability.Metrics
	Config    Config
}

// Result is the outcome of one run. Skipped is set when the receipt had
// already left processing and the run did nothing.
type Result struct {
	Proposal *types.Proposal
	Skipped  bool
	Status   types.ReceiptStatus
}

// Orchestrator drives one receipt from processing to pending_confirmation or
// failed: extraction, per-item matching, per-item validation.
type Orchestrator struct {
	log       *logger.Logger
	lifecycle domainagg.ReceiptLifecycleAggregate
	images    receipts.ImageStore
	extractor receipts.Extractor
	matcher   receipts.Matcher
	validator receipts.Validator
	metrics   *observability.Metrics
	cfg       Config
}

func New(deps Deps) *Orchestrator {
	cfg := deps.Config
	if cfg.ItemConcurrency <= 0 {
		cfg.ItemConcurrency = defaultItemConcurrency
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = receipts.DefaultRetryPolicy()
	}
	if cfg.ConfidenceWarn <= 0 {
		cfg.ConfidenceWarn = defaultConfidenceWarn
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		log:       log.With("component", "ReceiptPipeline"),
		lifecycle: deps.Lifecycle,
		images:    deps.Images,
		extractor: deps.Extractor,
		matcher:   deps.Matcher,
		validator: deps.Validator,
		metrics:   deps.Metrics,
		cfg:       cfg,
	}
}

type matchedItem struct {
	extracted types.ExtractedItem
	product   types.MatchedProduct
}

// Run processes one receipt. Every error path, including panics and context
// cancellation, leaves the receipt failed with the error and the last known
// raw text; the error is still returned to the caller.
func (o *Orchestrator) Run(ctx context.Context, receiptID uuid.UUID, sink receipts.ProgressSink) (res Result, err error) {
	const op = "receipts.pipeline.run"
	if sink == nil {
		sink = receipts.NopProgress{}
	}
	ctx, span := observability.StartSpan(ctx, op, attribute.String("receipt.id", receiptID.String()))
	defer func() { observability.EndSpan(span, err) }()
	log := o.log.With("receipt_id", receiptID)

	begin, err := o.lifecycle.BeginProcessing(ctx, receiptID)
	if err != nil {
		if errors.Is(err, domainagg.ErrReceiptNotFound) {
			return Result{}, receipts.NewError(receipts.KindNotFound, op, "receipt not found", err)
		}
		return Result{}, receipts.Wrap(receipts.KindInternal, op, err)
	}
	if !begin.Started {
		log.Info("receipt already handled; skipping run", "status", begin.Receipt.Status)
		o.metrics.IncPipelineOutcome("skipped")
		return Result{Skipped: true, Status: begin.Receipt.Status}, nil
	}
	rec := begin.Receipt

	var raw *string
	defer func() {
		if p := recover(); p != nil {
			log.Error("pipeline panic", "panic", p, "stack", string(debug.Stack()))
			err = receipts.Errorf(receipts.KindInternal, op, "panic: %v", p)
			res = Result{}
		}
		if err != nil && o.fail(ctx, log, receiptID, err, raw) {
			res.Status = types.ReceiptFailed
		}
	}()

	img, err := o.loadImage(ctx, rec)
	if err != nil {
		return Result{}, err
	}

	// Extraction
	stageStart := time.Now()
	extracted, rawText, err := o.extract(ctx, img)
	if rawText != "" {
		raw = &rawText
		if perr := o.lifecycle.RecordExtraction(ctx, receiptID, rawText); perr != nil {
			o.observeStage(receipts.StageExtraction, perr, stageStart)
			return Result{}, fromLifecycle(op, perr)
		}
	}
	o.observeStage(receipts.StageExtraction, err, stageStart)
	if err != nil {
		return Result{}, receipts.Wrap(receipts.KindInternal, op, err)
	}
	if len(extracted) == 0 {
		shown := rawText
		if strings.TrimSpace(shown) == "" {
			shown = "N/A"
		}
		return Result{}, receipts.NewError(receipts.KindNoItemsExtracted, op,
			fmt.Sprintf("no items extracted from receipt\n\n%s %s", RawTextMarker, shown), nil)
	}
	o.metrics.AddPipelineItems(receipts.StageExtraction, "extracted", len(extracted))
	sink.Progress(receipts.StageExtraction, 33, fmt.Sprintf("อ่านรายการจากใบเสร็จได้ %d รายการ", len(extracted)))
	if err := ctx.Err(); err != nil {
		return Result{}, receipts.Wrap(receipts.KindInternal, op, err)
	}

	// Matching
	stageStart = time.Now()
	matched, unmatched := o.matchAll(ctx, log, extracted)
	o.metrics.AddPipelineItems(receipts.StageMatching, "matched", len(matched))
	o.metrics.AddPipelineItems(receipts.StageMatching, "unmatched", len(unmatched))
	if len(matched) == 0 {
		err = receipts.NewError(receipts.KindNoItemsMatched, op, "no products could be matched from the receipt", nil)
		o.observeStage(receipts.StageMatching, err, stageStart)
		return Result{}, err
	}
	o.observeStage(receipts.StageMatching, nil, stageStart)
	sink.Progress(receipts.StageMatching, 66, fmt.Sprintf("จับคู่สินค้าได้ %d จาก %d รายการ", len(matched), len(extracted)))
	if err := ctx.Err(); err != nil {
		return Result{}, receipts.Wrap(receipts.KindInternal, op, err)
	}

	// Validation
	stageStart = time.Now()
	validated := o.validateAll(ctx, log, matched)
	o.metrics.AddPipelineItems(receipts.StageValidation, "validated", len(validated))
	o.metrics.AddPipelineItems(receipts.StageValidation, "rejected", len(matched)-len(validated))
	if len(validated) == 0 {
		err = receipts.NewError(receipts.KindNoItemsValidated, op, "no items could be validated", nil)
		o.observeStage(receipts.StageValidation, err, stageStart)
		return Result{}, err
	}
	o.observeStage(receipts.StageValidation, nil, stageStart)
	sink.Progress(receipts.StageValidation, 100, fmt.Sprintf("ตรวจสอบและแปลงหน่วยแล้ว %d รายการ", len(validated)))
	if err := ctx.Err(); err != nil {
		return Result{}, receipts.Wrap(receipts.KindInternal, op, err)
	}

	proposal := types.Proposal{
		ReceiptID:      receiptID,
		Items:          validated,
		TotalItems:     len(validated),
		UnmatchedItems: unmatched,
		ImageURL:       o.images.URL(rec.ImageReference),
	}
	if err := o.lifecycle.Propose(ctx, domainagg.ProposeReceiptInput{ReceiptID: receiptID, Proposal: proposal}); err != nil {
		return Result{}, fromLifecycle(op, err)
	}
	o.metrics.IncPipelineOutcome("proposed")
	log.Info("receipt proposal ready",
		"items", len(validated),
		"unmatched", len(unmatched),
		"extracted", len(extracted),
	)
	return Result{Proposal: &proposal, Status: types.ReceiptPendingConfirmation}, nil
}

func (o *Orchestrator) loadImage(ctx context.Context, rec *types.Receipt) (receipts.Image, error) {
	const op = "receipts.pipeline.load_image"
	rc, err := o.images.Open(ctx, rec.ImageReference)
	if err != nil {
		return receipts.Image{}, receipts.NewError(receipts.KindInternal, op, "receipt image unavailable", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxImageBytes+1))
	if err != nil {
		return receipts.Image{}, receipts.NewError(receipts.KindInternal, op, "read receipt image", err)
	}
	if len(data) == 0 {
		return receipts.Image{}, receipts.NewError(receipts.KindInvalidInput, op, "receipt image is empty", nil)
	}
	if len(data) > maxImageBytes {
		return receipts.Image{}, receipts.NewError(receipts.KindInvalidInput, op, "receipt image is too large", nil)
	}
	return receipts.Image{
		Reference:   rec.ImageReference,
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}

// extract keeps the raw text of the last attempt even when it failed, so a
// malformed reply still ends up on the receipt.
func (o *Orchestrator) extract(ctx context.Context, img receipts.Image) ([]types.ExtractedItem, string, error) {
	var lastRaw string
	items, err := receipts.Retry(ctx, o.cfg.Retry, o.log, "extract", func(ctx context.Context) ([]types.ExtractedItem, error) {
		items, raw, err := o.extractor.Extract(ctx, img)
		if strings.TrimSpace(raw) != "" {
			lastRaw = raw
		}
		return items, err
	})
	return items, lastRaw, err
}

func (o *Orchestrator) matchAll(ctx context.Context, log *logger.Logger, items []types.ExtractedItem) ([]matchedItem, []types.UnmatchedItem) {
	type slot struct {
		product types.MatchedProduct
		ok      bool
	}
	slots := make([]slot, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ItemConcurrency)
	for i := range items {
		i := i
		g.Go(func() error {
			defer o.recoverItem(log, receipts.StageMatching, items[i].Name)
			mp, ok := o.matcher.Match(gctx, items[i].Name)
			slots[i] = slot{product: mp, ok: ok}
			return nil
		})
	}
	_ = g.Wait()

	matched := make([]matchedItem, 0, len(items))
	unmatched := make([]types.UnmatchedItem, 0)
	for i, s := range slots {
		if s.ok {
			matched = append(matched, matchedItem{extracted: items[i], product: s.product})
			continue
		}
		log.Warn("no matching product for item", "item", items[i].Name)
		unmatched = append(unmatched, types.UnmatchedItem{
			Name:         items[i].Name,
			Quantity:     items[i].QuantityText,
			OriginalText: items[i].OriginalText,
		})
	}
	return matched, unmatched
}

func (o *Orchestrator) validateAll(ctx context.Context, log *logger.Logger, items []matchedItem) []types.ValidatedItem {
	type slot struct {
		item types.ValidatedItem
		ok   bool
	}
	slots := make([]slot, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ItemConcurrency)
	for i := range items {
		i := i
		g.Go(func() error {
			defer o.recoverItem(log, receipts.StageValidation, items[i].extracted.Name)
			m := items[i]
			v, err := receipts.Retry(gctx, o.cfg.Retry, o.log, "validate", func(ctx context.Context) (types.ValidatedItem, error) {
				return o.validator.Validate(ctx, m.product, m.extracted.OriginalText, m.extracted.QuantityText)
			})
			if err != nil {
				log.Error("item validation failed; skipping",
					"item", m.extracted.Name,
					"product_id", m.product.ProductID,
					"kind", receipts.KindOf(err),
					"error", err,
				)
				return nil
			}
			if v.Confidence < o.cfg.ConfidenceWarn {
				log.Warn("low validation confidence",
					"item", m.extracted.Name,
					"product_id", v.ProductID,
					"confidence", v.Confidence,
				)
			}
			slots[i] = slot{item: v, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]types.ValidatedItem, 0, len(items))
	for _, s := range slots {
		if s.ok {
			out = append(out, s.item)
		}
	}
	return out
}

func (o *Orchestrator) recoverItem(log *logger.Logger, stage, item string) {
	if p := recover(); p != nil {
		log.Error("item panic; skipping", "stage", stage, "item", item, "panic", p, "stack", string(debug.Stack()))
	}
}

// fail runs on a context detached from cancellation so a canceled or timed
// out run still records the failed state.
func (o *Orchestrator) fail(ctx context.Context, log *logger.Logger, receiptID uuid.UUID, cause error, raw *string) bool {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()

	msg := FailureMessage(cause, raw)
	res, err := o.lifecycle.MarkFailed(fctx, domainagg.MarkReceiptFailedInput{
		ReceiptID: receiptID,
		Message:   msg,
		RawText:   raw,
	})
	switch {
	case err != nil:
		log.Error("could not record receipt failure", "error", err, "cause", cause)
		return false
	case !res.Applied:
		log.Warn("receipt left processing before failure was recorded", "cause", cause)
		return false
	}
	o.metrics.IncPipelineOutcome("failed")
	log.Error("receipt processing failed", "kind", receipts.KindOf(cause), "error", cause)
	return true
}

// FailureMessage renders err for the operator, appending the raw extraction
// text unless the message already carries it.
func FailureMessage(err error, raw *string) string {
	msg := "unknown error"
	if err != nil {
		var e *receipts.Error
		if errors.As(err, &e) && e.Message != "" && e.Cause == nil {
			msg = e.Message
		} else {
			msg = err.Error()
		}
	}
	if raw != nil && strings.TrimSpace(*raw) != "" && !strings.Contains(msg, RawTextMarker) {
		msg = fmt.Sprintf("%s\n\n%s %s", msg, RawTextMarker, *raw)
	}
	return msg
}

func (o *Orchestrator) observeStage(stage string, err error, start time.Time) {
	status := "ok"
	if err != nil {
		status = string(receipts.KindOf(err))
	}
	o.metrics.ObservePipelineStage(stage, status, time.Since(start))
}

func fromLifecycle(op string, err error) error {
	if domainagg.IsCode(err, domainagg.CodeConflict) {
		return receipts.NewError(receipts.KindStateConflict, op, "receipt is no longer processing", err)
	}
	return receipts.Wrap(receipts.KindInternal, op, err)
}
