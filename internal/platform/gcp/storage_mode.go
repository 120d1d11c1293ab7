package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/stockscan-backend/internal/platform/envutil"
)

// BucketConfig selects the receipt bucket and how object URLs are built.
// A non-empty EmulatorHost talks to a fake-gcs server without credentials.
type BucketConfig struct {
	Bucket        string
	CDNDomain     string
	PublicBaseURL string
	EmulatorHost  string
}

func BucketConfigFromEnv() BucketConfig {
	return BucketConfig{
		Bucket:        envutil.String("RECEIPT_GCS_BUCKET_NAME", ""),
		CDNDomain:     envutil.String("RECEIPT_CDN_DOMAIN", ""),
		PublicBaseURL: envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", ""),
		EmulatorHost:  envutil.String("STORAGE_EMULATOR_HOST", ""),
	}
}

func (cfg BucketConfig) IsEmulator() bool {
	return strings.TrimSpace(cfg.EmulatorHost) != ""
}

func ValidateBucketConfig(cfg BucketConfig) error {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return fmt.Errorf("missing env var RECEIPT_GCS_BUCKET_NAME")
	}
	if cfg.IsEmulator() {
		if !isAbsoluteURL(cfg.EmulatorHost) {
			return fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", cfg.EmulatorHost)
		}
	}
	if raw := strings.TrimSpace(cfg.PublicBaseURL); raw != "" && !isAbsoluteURL(raw) {
		return fmt.Errorf("invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL like http://localhost:4443", raw)
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && strings.TrimSpace(u.Scheme) != "" && strings.TrimSpace(u.Host) != ""
}

// publicBaseURL resolves the prefix for public object URLs and reports
// where it came from.
func publicBaseURL(cfg BucketConfig) (string, string) {
	if raw := strings.TrimSpace(cfg.PublicBaseURL); raw != "" {
		return strings.TrimRight(raw, "/"), "object_storage_public_base_url"
	}
	if cfg.IsEmulator() {
		return strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"), "storage_emulator_host"
	}
	return "", "gcs_default"
}
