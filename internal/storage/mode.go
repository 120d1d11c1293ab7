package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCS   Mode = "gcs"
	ModeS3    Mode = "s3"
)

// ParseMode accepts the OBJECT_STORAGE_MODE value. "gcs_emulator" selects
// the GCS store; the emulator itself is configured by STORAGE_EMULATOR_HOST.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "local":
		return ModeLocal, nil
	case "gcs", "gcs_emulator":
		return ModeGCS, nil
	case "s3":
		return ModeS3, nil
	default:
		return "", fmt.Errorf("unsupported object storage mode %q", raw)
	}
}

// ReceiptKey names the object for a receipt upload.
func ReceiptKey(receiptID uuid.UUID, filename, contentType string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(filename)))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".heic":
	default:
		ext = extForContentType(contentType)
	}
	return fmt.Sprintf("receipts/%s%s", receiptID, ext)
}

func extForContentType(ct string) string {
	switch strings.ToLower(strings.TrimSpace(ct)) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	default:
		return ".jpg"
	}
}

// ContentTypeForRef guesses the image type from the object name.
func ContentTypeForRef(ref string) string {
	switch strings.ToLower(path.Ext(ref)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}
