package awsx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/yungbote/stockscan-backend/internal/platform/envutil"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("s3 object not found")

// S3Config holds the receipt bucket settings. Empty values fall back to the
// standard AWS config and credential chain.
type S3Config struct {
	Region       string
	Profile      string
	Bucket       string
	Prefix       string
	Endpoint     string
	UsePathStyle bool
	PresignTTL   time.Duration
}

func S3ConfigFromEnv() S3Config {
	return S3Config{
		Region:       envutil.String("AWS_REGION", ""),
		Profile:      envutil.String("AWS_PROFILE", ""),
		Bucket:       envutil.String("RECEIPT_S3_BUCKET", ""),
		Prefix:       envutil.String("RECEIPT_S3_PREFIX", ""),
		Endpoint:     envutil.String("S3_ENDPOINT", ""),
		UsePathStyle: envutil.Bool("S3_USE_PATH_STYLE", false),
		PresignTTL:   envutil.Seconds("S3_PRESIGN_TTL_SECONDS", 15*time.Minute),
	}
}

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*presignedRequest, error)
}

type presignedRequest struct {
	URL string
}

type sdkPresigner struct {
	c *s3.PresignClient
}

func (p sdkPresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*presignedRequest, error) {
	out, err := p.c.PresignGetObject(ctx, in, optFns...)
	if err != nil {
		return nil, err
	}
	return &presignedRequest{URL: out.URL}, nil
}

// S3 wraps the SDK client with the narrow surface the image store needs.
type S3 struct {
	log     *logger.Logger
	api     objectAPI
	presign presigner
	cfg     S3Config
}

func NewS3(ctx context.Context, log *logger.Logger, cfg S3Config) (*S3, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("missing env var RECEIPT_S3_BUCKET")
	}
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	if cfg.Prefix != "" && !strings.HasSuffix(cfg.Prefix, "/") {
		cfg.Prefix += "/"
	}
	s := newS3(log, client, sdkPresigner{c: s3.NewPresignClient(client)}, cfg)
	s.log.Info("S3 storage initialized", "bucket", cfg.Bucket, "region", awsCfg.Region, "path_style", cfg.UsePathStyle)
	return s, nil
}

func newS3(log *logger.Logger, api objectAPI, p presigner, cfg S3Config) *S3 {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	return &S3{log: log.With("service", "S3"), api: api, presign: p, cfg: cfg}
}

func (s *S3) Bucket() string { return s.cfg.Bucket }

func (s *S3) key(k string) string {
	return s.cfg.Prefix + strings.TrimLeft(k, "/")
}

// Put uploads body under key and returns the full object key.
func (s *S3) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	full := s.key(key)
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(full),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("failed to upload object to S3: %w", err)
	}
	return full, nil
}

// Get streams the object stored at the full key. Caller must Close it.
func (s *S3) Get(ctx context.Context, fullKey string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, fullKey)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	return out.Body, nil
}

func (s *S3) Delete(ctx context.Context, fullKey string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

// PresignedURL returns a time-limited GET URL, or "" when signing fails.
func (s *S3) PresignedURL(ctx context.Context, fullKey string) string {
	if s.presign == nil {
		return ""
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(fullKey),
	}, s3.WithPresignExpires(s.cfg.PresignTTL))
	if err != nil {
		s.log.Warn("presign failed", "key", fullKey, "error", err)
		return ""
	}
	return req.URL
}
