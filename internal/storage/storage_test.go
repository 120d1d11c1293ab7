package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":             ModeLocal,
		"local":        ModeLocal,
		" GCS ":        ModeGCS,
		"gcs_emulator": ModeGCS,
		"s3":           ModeS3,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q): want=%q got=%q err=%v", in, want, got, err)
		}
	}
	if _, err := ParseMode("ftp"); err == nil {
		t.Fatalf("expected error for unsupported mode")
	}
}

func TestReceiptKey(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	cases := []struct {
		filename, ct, want string
	}{
		{"IMG_01.JPG", "", "receipts/11111111-2222-3333-4444-555555555555.jpg"},
		{"scan.png", "image/png", "receipts/11111111-2222-3333-4444-555555555555.png"},
		{"blob", "image/webp", "receipts/11111111-2222-3333-4444-555555555555.webp"},
		{"", "", "receipts/11111111-2222-3333-4444-555555555555.jpg"},
	}
	for _, tc := range cases {
		if got := ReceiptKey(id, tc.filename, tc.ct); got != tc.want {
			t.Errorf("ReceiptKey(%q,%q): want=%q got=%q", tc.filename, tc.ct, tc.want, got)
		}
	}
	if ContentTypeForRef("receipts/a.png") != "image/png" || ContentTypeForRef("receipts/a") != "image/jpeg" {
		t.Fatalf("ContentTypeForRef mismatch")
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	s, err := NewLocalStore(logger.Nop(), t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	ref, err := s.Save(ctx, "receipts/a.jpg", strings.NewReader("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ref != "receipts/a.jpg" {
		t.Fatalf("ref: want=%q got=%q", "receipts/a.jpg", ref)
	}
	rc, err := s.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "jpeg" {
		t.Fatalf("body: got=%q", string(b))
	}
	if got := s.URL(ref); got != "/files/receipts/a.jpg" {
		t.Fatalf("URL: got=%q", got)
	}

	if _, err := s.Open(ctx, "receipts/missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestLocalStoreConfinesRefs(t *testing.T) {
	s, err := NewLocalStore(logger.Nop(), t.TempDir(), "http://cdn.local/")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()
	ref, err := s.Save(ctx, "../../etc/x.jpg", strings.NewReader("x"), "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ref != "etc/x.jpg" {
		t.Fatalf("ref should stay inside the store dir, got %q", ref)
	}
	if _, err := s.Save(ctx, "", strings.NewReader("x"), ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if got := s.URL(ref); got != "http://cdn.local/etc/x.jpg" {
		t.Fatalf("URL: got=%q", got)
	}
}

type fakeBucket struct {
	objects map[string][]byte
}

func (f *fakeBucket) UploadFile(_ context.Context, key string, r io.Reader, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = b
	return nil
}

func (f *fakeBucket) DownloadFile(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := f.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeBucket) DeleteFile(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeBucket) GetPublicURL(key string) string { return "https://bucket/" + key }

func TestGCSStore(t *testing.T) {
	fb := &fakeBucket{objects: map[string][]byte{}}
	s := NewGCSStore(fb)
	ref, err := s.Save(context.Background(), "/receipts/a.jpg", strings.NewReader("img"), "image/jpeg")
	if err != nil || ref != "receipts/a.jpg" {
		t.Fatalf("Save: ref=%q err=%v", ref, err)
	}
	rc, err := s.Open(context.Background(), ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	if s.URL(ref) != "https://bucket/receipts/a.jpg" {
		t.Fatalf("URL: got=%q", s.URL(ref))
	}
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) Put(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	b, _ := io.ReadAll(body)
	full := "pfx/" + key
	f.objects[full] = b
	return full, nil
}

func (f *fakeS3) Get(_ context.Context, fullKey string) (io.ReadCloser, error) {
	b, ok := f.objects[fullKey]
	if !ok {
		return nil, errors.New("missing")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeS3) PresignedURL(_ context.Context, fullKey string) string { return "signed:" + fullKey }

func TestS3Store(t *testing.T) {
	s := NewS3Store(&fakeS3{objects: map[string][]byte{}})
	ref, err := s.Save(context.Background(), "receipts/a.jpg", strings.NewReader("img"), "image/jpeg")
	if err != nil || ref != "pfx/receipts/a.jpg" {
		t.Fatalf("Save: ref=%q err=%v", ref, err)
	}
	rc, err := s.Open(context.Background(), ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = rc.Close()
	if s.URL(ref) != "signed:pfx/receipts/a.jpg" {
		t.Fatalf("URL: got=%q", s.URL(ref))
	}
}
