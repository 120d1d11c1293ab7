package app

import (
	"context"
	"fmt"

	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/platform/awsx"
	"github.com/yungbote/stockscan-backend/internal/platform/gcp"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/storage"
)

// imageStore is the selected receipt image backend. filesDir is set only for
// the local store, whose files the router serves directly.
type imageStore struct {
	store    receipts.ImageStore
	filesDir string
}

type storeFactories struct {
	local func(log *logger.Logger, dir, publicBase string) (receipts.ImageStore, string, error)
	gcs   func(log *logger.Logger) (receipts.ImageStore, error)
	s3    func(ctx context.Context, log *logger.Logger) (receipts.ImageStore, error)
}

func defaultStoreFactories() storeFactories {
	return storeFactories{
		local: func(log *logger.Logger, dir, publicBase string) (receipts.ImageStore, string, error) {
			ls, err := storage.NewLocalStore(log, dir, publicBase)
			if err != nil {
				return nil, "", err
			}
			return ls, ls.Dir(), nil
		},
		gcs: func(log *logger.Logger) (receipts.ImageStore, error) {
			bucket, err := gcp.NewBucketService(log, gcp.BucketConfigFromEnv())
			if err != nil {
				return nil, err
			}
			return storage.NewGCSStore(bucket), nil
		},
		s3: func(ctx context.Context, log *logger.Logger) (receipts.ImageStore, error) {
			objects, err := awsx.NewS3(ctx, log, awsx.S3ConfigFromEnv())
			if err != nil {
				return nil, err
			}
			return storage.NewS3Store(objects), nil
		},
	}
}

func newImageStore(ctx context.Context, log *logger.Logger, cfg Config) (imageStore, error) {
	return selectImageStore(ctx, log, cfg, defaultStoreFactories())
}

func selectImageStore(ctx context.Context, log *logger.Logger, cfg Config, f storeFactories) (imageStore, error) {
	log.Info("Selecting receipt image store", "mode", cfg.StorageMode)
	switch cfg.StorageMode {
	case storage.ModeLocal, "":
		store, dir, err := f.local(log, cfg.LocalStorageDir, cfg.LocalPublicBase)
		if err != nil {
			return imageStore{}, fmt.Errorf("local image store: %w", err)
		}
		return imageStore{store: store, filesDir: dir}, nil
	case storage.ModeGCS:
		store, err := f.gcs(log)
		if err != nil {
			return imageStore{}, fmt.Errorf("gcs image store: %w", err)
		}
		return imageStore{store: store}, nil
	case storage.ModeS3:
		store, err := f.s3(ctx, log)
		if err != nil {
			return imageStore{}, fmt.Errorf("s3 image store: %w", err)
		}
		return imageStore{store: store}, nil
	default:
		return imageStore{}, fmt.Errorf("unsupported object storage mode %q", cfg.StorageMode)
	}
}
