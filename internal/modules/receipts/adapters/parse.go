package adapters

import (
	"encoding/json"
	"strconv"
	"strings"

	types "github.com/yungbote/stockscan-backend/internal/domain"
)

type rawItem struct {
	Name         string `json:"name"`
	Quantity     any    `json:"quantity"`
	OriginalText string `json:"original_text"`
}

// stripFences returns the body of the first fenced code block, preferring a
// ```json fence, or s unchanged when there is none.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, open := range []string{"```json", "```JSON", "```"} {
		i := strings.Index(s, open)
		if i < 0 {
			continue
		}
		rest := s[i+len(open):]
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		return strings.TrimSpace(rest)
	}
	return s
}

// jsonPayload isolates the JSON value in a model reply that may carry
// fences or a sentence around it.
func jsonPayload(s string) string {
	s = stripFences(s)
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		return s
	}
	if i, j := strings.Index(s, "["), strings.LastIndex(s, "]"); i >= 0 && j > i {
		return s[i : j+1]
	}
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		return s[i : j+1]
	}
	return s
}

// ParseItems decodes a model reply into extracted items. The reply is either
// a JSON array or an object with an "items" array.
func ParseItems(text string) ([]types.ExtractedItem, error) {
	const op = "parse_items"
	payload := jsonPayload(text)
	if payload == "" {
		return nil, malformed(op, "empty model reply")
	}
	var raws []rawItem
	if strings.HasPrefix(payload, "{") {
		var wrapper struct {
			Items []rawItem `json:"items"`
		}
		if err := json.Unmarshal([]byte(payload), &wrapper); err != nil {
			return nil, malformed(op, "decode items object: %v", err)
		}
		raws = wrapper.Items
	} else if err := json.Unmarshal([]byte(payload), &raws); err != nil {
		return nil, malformed(op, "decode items array: %v", err)
	}
	return cleanItems(raws), nil
}

// cleanItems drops items without a name or quantity and defaults the
// original text to the name.
func cleanItems(raws []rawItem) []types.ExtractedItem {
	out := make([]types.ExtractedItem, 0, len(raws))
	for _, r := range raws {
		name := strings.TrimSpace(r.Name)
		qty := quantityString(r.Quantity)
		if name == "" || qty == "" {
			continue
		}
		orig := strings.TrimSpace(r.OriginalText)
		if orig == "" {
			orig = name
		}
		out = append(out, types.ExtractedItem{Name: name, QuantityText: qty, OriginalText: orig})
	}
	return out
}

func quantityString(v any) string {
	switch q := v.(type) {
	case string:
		return strings.TrimSpace(q)
	case float64:
		return strconv.FormatFloat(q, 'f', -1, 64)
	case json.Number:
		return q.String()
	default:
		return ""
	}
}
