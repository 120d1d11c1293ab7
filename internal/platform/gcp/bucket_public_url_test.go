package gcp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

func TestPublicBaseURLGCSDefault(t *testing.T) {
	base, source := publicBaseURL(BucketConfig{Bucket: "receipts"})
	if base != "" {
		t.Fatalf("base: want empty got=%q", base)
	}
	if source != "gcs_default" {
		t.Fatalf("source: want=%q got=%q", "gcs_default", source)
	}
}

func TestPublicBaseURLEmulatorFallback(t *testing.T) {
	base, source := publicBaseURL(BucketConfig{Bucket: "receipts", EmulatorHost: "http://fake-gcs:4443/"})
	if base != "http://fake-gcs:4443" {
		t.Fatalf("base: want=%q got=%q", "http://fake-gcs:4443", base)
	}
	if source != "storage_emulator_host" {
		t.Fatalf("source: want=%q got=%q", "storage_emulator_host", source)
	}
}

func TestPublicBaseURLOverride(t *testing.T) {
	base, source := publicBaseURL(BucketConfig{
		Bucket:        "receipts",
		EmulatorHost:  "http://fake-gcs:4443",
		PublicBaseURL: "http://localhost:4443/",
	})
	if base != "http://localhost:4443" {
		t.Fatalf("base: want=%q got=%q", "http://localhost:4443", base)
	}
	if source != "object_storage_public_base_url" {
		t.Fatalf("source: want=%q got=%q", "object_storage_public_base_url", source)
	}
}

func TestGetPublicURL(t *testing.T) {
	cases := []struct {
		name string
		cfg  BucketConfig
		key  string
		want string
	}{
		{
			name: "gcs default",
			cfg:  BucketConfig{Bucket: "receipts"},
			key:  "r/1.jpg",
			want: "https://storage.googleapis.com/receipts/r/1.jpg",
		},
		{
			name: "cdn",
			cfg:  BucketConfig{Bucket: "receipts", CDNDomain: "cdn.example.com"},
			key:  "/r/1.jpg",
			want: "https://cdn.example.com/r/1.jpg",
		},
		{
			name: "emulator",
			cfg:  BucketConfig{Bucket: "receipts", EmulatorHost: "http://localhost:4443"},
			key:  "r/1.jpg",
			want: "http://localhost:4443/storage/v1/b/receipts/o/r%2F1.jpg?alt=media",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base, _ := publicBaseURL(tc.cfg)
			bs := &bucketService{log: logger.Nop(), cfg: tc.cfg, publicBase: base}
			if got := bs.GetPublicURL(tc.key); got != tc.want {
				t.Fatalf("GetPublicURL: want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestDownloadFileEmulator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/storage/v1/b/receipts/o/r%2F1.jpg" || r.URL.Query().Get("alt") != "media" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	bs := &bucketService{
		log:        logger.Nop(),
		httpClient: srv.Client(),
		cfg:        BucketConfig{Bucket: "receipts", EmulatorHost: srv.URL},
	}
	rc, err := bs.DownloadFile(context.Background(), "r/1.jpg")
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "jpeg-bytes" {
		t.Fatalf("body: want=%q got=%q", "jpeg-bytes", string(b))
	}

	if _, err := bs.DownloadFile(context.Background(), "missing.jpg"); err == nil {
		t.Fatalf("expected error for missing object")
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"a.JPG":      "image/jpeg",
		"a.png?x=1":  "image/png",
		"a.webp":     "image/webp",
		"a.unknown":  "",
		"dir/b.jpeg": "image/jpeg",
	}
	for key, want := range cases {
		if got := contentTypeForKey(key); got != want {
			t.Errorf("contentTypeForKey(%q): want=%q got=%q", key, want, got)
		}
	}
}
