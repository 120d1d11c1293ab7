package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/platform/gcp"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/platform/openai"
)

const (
	ModeVisionLLM = "vision_llm"
	ModeOCRLLM    = "ocr_llm"
)

// VisionExtractor sends the image to a multimodal model. The model reply is
// the raw extraction text.
type VisionExtractor struct {
	log *logger.Logger
	ai  openai.Client
}

func NewVisionExtractor(log *logger.Logger, ai openai.Client) (*VisionExtractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	return &VisionExtractor{log: log.With("component", "VisionExtractor"), ai: ai}, nil
}

// Extract returns the raw reply alongside parse failures so the caller can
// record what the model saw.
func (x *VisionExtractor) Extract(ctx context.Context, img receipts.Image) ([]types.ExtractedItem, string, error) {
	const op = "vision_extract"
	if len(img.Data) == 0 {
		return nil, "", receipts.Errorf(receipts.KindInvalidInput, op, "empty image %q", img.Reference)
	}
	reply, err := x.ai.GenerateTextWithImages(ctx, extractionSystem, extractionUser, []openai.ImageInput{{
		ImageURL: openai.DataURL(img.ContentType, img.Data),
		Detail:   "high",
	}})
	if err != nil {
		return nil, "", classify(op, err)
	}
	raw := strings.TrimSpace(reply)
	items, err := ParseItems(raw)
	if err != nil {
		x.log.Warn("unparseable extraction reply", "image", img.Reference, "error", err)
		return nil, raw, err
	}
	x.log.Info("items extracted", "image", img.Reference, "count", len(items))
	return items, raw, nil
}

// OCRExtractor reads the receipt with document OCR and asks a text model to
// structure the lines. The OCR text is the raw extraction text.
type OCRExtractor struct {
	log    *logger.Logger
	vision gcp.Vision
	ai     openai.Client
}

func NewOCRExtractor(log *logger.Logger, vision gcp.Vision, ai openai.Client) (*OCRExtractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if vision == nil {
		return nil, fmt.Errorf("vision client required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	return &OCRExtractor{log: log.With("component", "OCRExtractor"), vision: vision, ai: ai}, nil
}

func (x *OCRExtractor) Extract(ctx context.Context, img receipts.Image) ([]types.ExtractedItem, string, error) {
	const op = "ocr_extract"
	if len(img.Data) == 0 {
		return nil, "", receipts.Errorf(receipts.KindInvalidInput, op, "empty image %q", img.Reference)
	}
	res, err := x.vision.OCRImageBytes(ctx, img.Data, img.ContentType)
	if err != nil {
		return nil, "", classify(op, err)
	}
	raw := ""
	if res != nil {
		raw = strings.TrimSpace(res.PrimaryText)
	}
	if raw == "" {
		x.log.Warn("OCR found no text", "image", img.Reference)
		return nil, "", nil
	}
	obj, err := x.ai.GenerateJSON(ctx, ocrParseSystem, ocrParseUser(raw), "receipt_items", itemsSchema())
	if err != nil {
		return nil, raw, classify(op, err)
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, raw, receipts.NewError(receipts.KindMalformedResponse, op, "", err)
	}
	items, err := ParseItems(string(b))
	if err != nil {
		return nil, raw, err
	}
	x.log.Info("items extracted", "image", img.Reference, "count", len(items), "ocr_chars", len(raw))
	return items, raw, nil
}
