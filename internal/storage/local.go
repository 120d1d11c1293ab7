package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

var ErrNotFound = errors.New("image not found")

// LocalStore keeps images under a directory. Refs are slash separated keys
// relative to that directory.
type LocalStore struct {
	log        *logger.Logger
	dir        string
	publicBase string
}

func NewLocalStore(log *logger.Logger, dir, publicBase string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("missing env var LOCAL_STORAGE_DIR")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{
		log:        log.With("service", "LocalImageStore"),
		dir:        abs,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

func (s *LocalStore) path(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + strings.TrimSpace(ref)))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("empty image reference")
	}
	p := filepath.Join(s.dir, clean)
	if !strings.HasPrefix(p, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("image reference %q escapes storage dir", ref)
	}
	return p, nil
}

func (s *LocalStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, err
	}
	return f, nil
}

func (s *LocalStore) Save(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("commit image: %w", err)
	}
	ref := filepath.ToSlash(strings.TrimPrefix(p, s.dir+string(filepath.Separator)))
	s.log.Debug("image saved", "ref", ref, "content_type", contentType)
	return ref, nil
}

func (s *LocalStore) URL(ref string) string {
	ref = strings.TrimLeft(ref, "/")
	if s.publicBase == "" {
		return "/files/" + ref
	}
	return s.publicBase + "/" + ref
}

// Dir is the root directory served under /files.
func (s *LocalStore) Dir() string { return s.dir }
