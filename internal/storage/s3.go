package storage

import (
	"context"
	"io"
	"time"
)

type S3Objects interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Get(ctx context.Context, fullKey string) (io.ReadCloser, error)
	PresignedURL(ctx context.Context, fullKey string) string
}

// S3Store stores images in an S3 bucket. Refs are full object keys
// including the configured prefix.
type S3Store struct {
	objects S3Objects
}

func NewS3Store(objects S3Objects) *S3Store {
	return &S3Store{objects: objects}
}

func (s *S3Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	return s.objects.Get(ctx, ref)
}

func (s *S3Store) Save(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	return s.objects.Put(ctx, key, r, contentType)
}

func (s *S3Store) URL(ref string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.objects.PresignedURL(ctx, ref)
}
