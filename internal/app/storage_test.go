package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/storage"
)

type namedStore struct{ name string }

func (s namedStore) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.name)), nil
}
func (s namedStore) Save(context.Context, string, io.Reader, string) (string, error) {
	return s.name, nil
}
func (s namedStore) URL(ref string) string { return s.name + "/" + ref }

func fakeFactories(calls *[]string, fail string) storeFactories {
	boom := errors.New("boom")
	return storeFactories{
		local: func(_ *logger.Logger, dir, _ string) (receipts.ImageStore, string, error) {
			*calls = append(*calls, "local")
			if fail == "local" {
				return nil, "", boom
			}
			return namedStore{"local"}, dir, nil
		},
		gcs: func(*logger.Logger) (receipts.ImageStore, error) {
			*calls = append(*calls, "gcs")
			if fail == "gcs" {
				return nil, boom
			}
			return namedStore{"gcs"}, nil
		},
		s3: func(context.Context, *logger.Logger) (receipts.ImageStore, error) {
			*calls = append(*calls, "s3")
			if fail == "s3" {
				return nil, boom
			}
			return namedStore{"s3"}, nil
		},
	}
}

func TestSelectImageStoreByMode(t *testing.T) {
	cases := []struct {
		mode    storage.Mode
		want    string
		wantDir string
	}{
		{storage.ModeLocal, "local", "/tmp/receipts"},
		{storage.ModeGCS, "gcs", ""},
		{storage.ModeS3, "s3", ""},
	}
	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			var calls []string
			cfg := Config{StorageMode: tc.mode, LocalStorageDir: "/tmp/receipts"}
			got, err := selectImageStore(context.Background(), logger.Nop(), cfg, fakeFactories(&calls, ""))
			if err != nil {
				t.Fatalf("selectImageStore: %v", err)
			}
			if len(calls) != 1 || calls[0] != tc.want {
				t.Fatalf("factory calls: want=[%s] got=%v", tc.want, calls)
			}
			if got.store.URL("x") != tc.want+"/x" {
				t.Fatalf("store: got URL %q", got.store.URL("x"))
			}
			if got.filesDir != tc.wantDir {
				t.Fatalf("filesDir: want=%q got=%q", tc.wantDir, got.filesDir)
			}
		})
	}
}

func TestSelectImageStoreWrapsFactoryError(t *testing.T) {
	var calls []string
	cfg := Config{StorageMode: storage.ModeS3}
	_, err := selectImageStore(context.Background(), logger.Nop(), cfg, fakeFactories(&calls, "s3"))
	if err == nil || !strings.Contains(err.Error(), "s3 image store") {
		t.Fatalf("expected wrapped s3 error, got %v", err)
	}
}

func TestSelectImageStoreUnknownMode(t *testing.T) {
	var calls []string
	cfg := Config{StorageMode: storage.Mode("ftp")}
	if _, err := selectImageStore(context.Background(), logger.Nop(), cfg, fakeFactories(&calls, "")); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if len(calls) != 0 {
		t.Fatalf("no factory should run, got %v", calls)
	}
}

func TestConfigFromDefaults(t *testing.T) {
	cfg, err := configFrom(newViper(), logger.Nop())
	if err != nil {
		t.Fatalf("configFrom: %v", err)
	}
	if cfg.StorageMode != storage.ModeLocal {
		t.Fatalf("storage mode: got %q", cfg.StorageMode)
	}
	if cfg.ExtractionMode != ExtractionVisionLLM {
		t.Fatalf("extraction mode: got %q", cfg.ExtractionMode)
	}
	if cfg.Match.VectorThreshold != 0.7 || cfg.Match.TextThreshold != 0.6 || cfg.Match.FuzzyThreshold != 0.7 {
		t.Fatalf("match thresholds: got %+v", cfg.Match)
	}
	if cfg.EmbeddingCacheTTL.Hours() != 168 {
		t.Fatalf("cache ttl: got %s", cfg.EmbeddingCacheTTL)
	}
	if cfg.Pipeline.Retry.Attempts != 3 {
		t.Fatalf("retry attempts: got %d", cfg.Pipeline.Retry.Attempts)
	}
	if len(cfg.CORSOrigins) != 0 {
		t.Fatalf("cors origins: got %v", cfg.CORSOrigins)
	}
}

func TestConfigFromOverrides(t *testing.T) {
	v := newViper()
	v.Set("OBJECT_STORAGE_MODE", "gcs_emulator")
	v.Set("EXTRACTION_MODE", "OCR_LLM")
	v.Set("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	v.Set("MATCH_FUZZY_THRESHOLD", 0.8)
	cfg, err := configFrom(v, logger.Nop())
	if err != nil {
		t.Fatalf("configFrom: %v", err)
	}
	if cfg.StorageMode != storage.ModeGCS {
		t.Fatalf("storage mode: got %q", cfg.StorageMode)
	}
	if cfg.ExtractionMode != ExtractionOCRLLM {
		t.Fatalf("extraction mode: got %q", cfg.ExtractionMode)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors origins: got %v", cfg.CORSOrigins)
	}
	if cfg.Match.FuzzyThreshold != 0.8 {
		t.Fatalf("fuzzy threshold: got %v", cfg.Match.FuzzyThreshold)
	}
}

func TestConfigFromRejectsBadModes(t *testing.T) {
	for key, val := range map[string]string{
		"OBJECT_STORAGE_MODE": "ftp",
		"EXTRACTION_MODE":     "tesseract",
	} {
		v := newViper()
		v.Set(key, val)
		if _, err := configFrom(v, logger.Nop()); err == nil {
			t.Fatalf("%s=%s: expected error", key, val)
		}
	}
}
