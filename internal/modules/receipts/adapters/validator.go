package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	types "github.com/yungbote/stockscan-backend/internal/domain"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/platform/openai"
)

const DefaultConfidenceWarn = 0.8

// LLMValidator confirms a match and converts the quantity into the
// product's base unit with a low-temperature structured call.
type LLMValidator struct {
	log       *logger.Logger
	ai        openai.Client
	warnBelow float64
	validate  *validator.Validate
}

func NewLLMValidator(log *logger.Logger, ai openai.Client, warnBelow float64) (*LLMValidator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	if warnBelow <= 0 {
		warnBelow = DefaultConfidenceWarn
	}
	return &LLMValidator{
		log:       log.With("component", "LLMValidator"),
		ai:        openai.WithTemperature(ai, 0.1),
		warnBelow: warnBelow,
		validate:  validator.New(),
	}, nil
}

type validationReply struct {
	ProductName  string   `json:"product_name"`
	Quantity     *float64 `json:"quantity"`
	Unit         string   `json:"unit"`
	Confidence   *float64 `json:"confidence"`
	OriginalText string   `json:"original_text"`
}

func (v *LLMValidator) Validate(ctx context.Context, matched types.MatchedProduct, originalText, quantityText string) (types.ValidatedItem, error) {
	const op = "validate_item"
	obj, err := v.ai.GenerateJSON(ctx, validationSystem, validationUser(matched, originalText, quantityText), "receipt_item_validation", validationSchema())
	if err != nil {
		return types.ValidatedItem{}, classify(op, err)
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return types.ValidatedItem{}, malformed(op, "encode validation reply: %v", err)
	}
	var reply validationReply
	if err := json.Unmarshal(b, &reply); err != nil {
		return types.ValidatedItem{}, malformed(op, "decode validation reply: %v", err)
	}
	return v.toItem(op, matched, originalText, reply)
}

func (v *LLMValidator) toItem(op string, matched types.MatchedProduct, originalText string, reply validationReply) (types.ValidatedItem, error) {
	if reply.Quantity == nil {
		return types.ValidatedItem{}, malformed(op, "validation reply without quantity")
	}
	q := *reply.Quantity
	if math.IsNaN(q) || q != math.Trunc(q) || q <= 0 || q > math.MaxInt32 {
		return types.ValidatedItem{}, malformed(op, "quantity %v is not a positive integer", q)
	}
	conf := 0.0
	if reply.Confidence != nil && !math.IsNaN(*reply.Confidence) {
		conf = math.Max(0, math.Min(1, *reply.Confidence))
	}
	item := types.ValidatedItem{
		ProductID:    matched.ProductID,
		ProductName:  firstNonEmpty(reply.ProductName, matched.ProductName),
		Quantity:     int(q),
		Unit:         firstNonEmpty(reply.Unit, matched.Unit),
		Confidence:   conf,
		OriginalText: firstNonEmpty(reply.OriginalText, originalText),
	}
	if err := v.validate.Struct(item); err != nil {
		return types.ValidatedItem{}, receipts.NewError(receipts.KindMalformedResponse, op, "validated item failed checks", err)
	}
	if item.Confidence < v.warnBelow {
		v.log.Warn("low confidence validation",
			"confidence", item.Confidence,
			"original_text", originalText,
			"product", item.ProductName,
		)
	}
	v.log.Debug("item validated",
		"product", item.ProductName,
		"quantity", item.Quantity,
		"unit", item.Unit,
		"confidence", item.Confidence,
	)
	return item, nil
}

func firstNonEmpty(vals ...string) string {
	for _, s := range vals {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
