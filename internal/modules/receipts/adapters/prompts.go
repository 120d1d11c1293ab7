package adapters

import (
	"fmt"
	"strings"

	types "github.com/yungbote/stockscan-backend/internal/domain"
)

const extractionSystem = `คุณคือผู้ช่วยอ่านใบเสร็จและสกัดรายการสินค้า
ตอบกลับเป็น JSON array เท่านั้น ห้ามมีข้อความอื่น
แต่ละรายการมีรูปแบบ { "name": "ชื่อสินค้า", "quantity": "จำนวนและหน่วย", "original_text": "ข้อความตามที่พิมพ์บนใบเสร็จ" }`

const extractionUser = `อ่านรูปใบเสร็จนี้และสกัดสินค้าทุกรายการ

ตัวอย่าง:
[
  { "name": "โค้ก 325 มล.", "quantity": "6 กระป๋อง", "original_text": "โค้ก 325มล. x6" },
  { "name": "น้ำเปล่า", "quantity": "12 ขวด", "original_text": "น้ำเปล่า 12ขวด" }
]`

const ocrParseSystem = `คุณคือผู้ช่วยแยกรายการสินค้าจากข้อความ OCR ของใบเสร็จ
ให้คืนค่า items เป็นรายการสินค้า โดยแต่ละรายการมี name (ชื่อสินค้า), quantity (จำนวนและหน่วย) และ original_text (บรรทัดต้นฉบับ)
ข้ามบรรทัดที่ไม่ใช่สินค้า เช่น ยอดรวม ภาษี เงินทอน`

func ocrParseUser(rawText string) string {
	return "ข้อความจากใบเสร็จ:\n" + rawText
}

const validationSystem = `คุณคือผู้ช่วยยืนยันสินค้าและแปลงหน่วยจากใบเสร็จ
ตรวจว่าข้อความจากใบเสร็จตรงกับสินค้าในคลังหรือไม่ แล้วแปลงจำนวนเป็นจำนวนเต็มในหน่วยย่อยของสินค้า

ตัวอย่าง:
- "โค้กแพ็ค 6 กระป๋อง" -> quantity 6, unit "กระป๋อง"
- "น้ำเปล่า 12 ขวด" -> quantity 12, unit "ขวด"
- "ขนมปัง 2 แพ็ค" -> quantity 2, unit "แพ็ค"

ถ้าไม่แน่ใจหรือข้อมูลไม่ชัดเจน ให้ confidence ต่ำกว่า 0.8`

func validationUser(m types.MatchedProduct, originalText, quantityText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "สินค้าในคลัง: %q (หน่วย: %s)\n", m.ProductName, m.Unit)
	fmt.Fprintf(&b, "ข้อความจากใบเสร็จ: %q\n", originalText)
	if q := strings.TrimSpace(quantityText); q != "" {
		fmt.Fprintf(&b, "จำนวนที่อ่านได้: %q\n", q)
	}
	fmt.Fprintf(&b, "ความคล้ายคลึงจากการจับคู่: %.2f\n\n", m.SimilarityScore)
	b.WriteString("กรุณายืนยันและแปลงเป็นจำนวนชิ้นเดี่ยว")
	return b.String()
}

func itemsSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"name":          map[string]any{"type": "string"},
						"quantity":      map[string]any{"type": "string"},
						"original_text": map[string]any{"type": "string"},
					},
					"required": []any{"name", "quantity", "original_text"},
				},
			},
		},
		"required": []any{"items"},
	}
}

func validationSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"product_name":  map[string]any{"type": "string"},
			"quantity":      map[string]any{"type": "integer"},
			"unit":          map[string]any{"type": "string"},
			"confidence":    map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"original_text": map[string]any{"type": "string"},
		},
		"required": []any{"product_name", "quantity", "unit", "confidence", "original_text"},
	}
}
