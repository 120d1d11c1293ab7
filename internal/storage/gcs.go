package storage

import (
	"context"
	"io"
	"strings"

	"github.com/yungbote/stockscan-backend/internal/platform/gcp"
)

// GCSStore stores images in the receipt bucket. Refs are object keys.
type GCSStore struct {
	bucket gcp.BucketService
}

func NewGCSStore(bucket gcp.BucketService) *GCSStore {
	return &GCSStore{bucket: bucket}
}

func (s *GCSStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	return s.bucket.DownloadFile(ctx, strings.TrimLeft(ref, "/"))
}

func (s *GCSStore) Save(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if err := s.bucket.UploadFile(ctx, key, r, contentType); err != nil {
		return "", err
	}
	return key, nil
}

func (s *GCSStore) URL(ref string) string {
	return s.bucket.GetPublicURL(ref)
}
