package gcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/stockscan-backend/internal/platform/ctxutil"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

type Vision interface {
	OCRImageBytes(ctx context.Context, img []byte, mimeType string) (*VisionOCRResult, error)
	Close() error
}

type VisionOCRResult struct {
	Provider    string          `json:"provider"`
	MimeType    string          `json:"mime_type,omitempty"`
	PrimaryText string          `json:"primary_text"`
	Pages       []VisionOCRPage `json:"pages,omitempty"`
}

type VisionOCRPage struct {
	PageNumber int     `json:"page_number"`
	Confidence float64 `json:"confidence"`
	Blocks     int     `json:"blocks"`
}

// VisionError carries the gRPC status of a failed annotate call translated
// to the nearest HTTP status so callers can classify it like any other
// provider error.
type VisionError struct {
	Op     string
	Code   codes.Code
	Status int
	Err    error
}

func (e *VisionError) Error() string {
	return fmt.Sprintf("%s: vision %s (http %d): %v", e.Op, e.Code, e.Status, e.Err)
}

func (e *VisionError) Unwrap() error { return e.Err }

func (e *VisionError) HTTPStatusCode() int { return e.Status }

type annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
}

var _ annotator = (*vision.ImageAnnotatorClient)(nil)

type visionService struct {
	log     *logger.Logger
	client  annotator
	closeFn func() error
	timeout time.Duration
}

func NewVision(log *logger.Logger) (Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	vClient, err := vision.NewImageAnnotatorClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &visionService{
		log:     log.With("service", "gcp.Vision"),
		client:  vClient,
		closeFn: vClient.Close,
		timeout: 60 * time.Second,
	}, nil
}

func (s *visionService) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

func (s *visionService) OCRImageBytes(ctx context.Context, img []byte, mimeType string) (*VisionOCRResult, error) {
	empty := &VisionOCRResult{Provider: "gcp_vision", MimeType: mimeType}
	if len(img) == 0 {
		return empty, nil
	}

	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{{
		Image:    &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		ImageContext: &visionpb.ImageContext{
			LanguageHints: []string{"th", "en"},
		},
	}}}
	resp, err := s.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, visionErr("BatchAnnotateImages", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return empty, nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, visionErr("annotate", status.ErrorProto(r0.Error))
	}

	fta := r0.FullTextAnnotation
	if fta == nil || strings.TrimSpace(fta.Text) == "" {
		return empty, nil
	}

	pages := make([]VisionOCRPage, 0, len(fta.Pages))
	for i, p := range fta.Pages {
		if p == nil {
			continue
		}
		pages = append(pages, VisionOCRPage{
			PageNumber: i + 1,
			Confidence: float64(p.Confidence),
			Blocks:     len(p.Blocks),
		})
	}
	s.log.Debug("Vision OCR complete", "mime_type", mimeType, "pages", len(pages), "chars", len(fta.Text))

	return &VisionOCRResult{
		Provider:    "gcp_vision",
		MimeType:    mimeType,
		PrimaryText: cleanLines(fta.Text),
		Pages:       pages,
	}, nil
}

func visionErr(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("vision %s: %w", op, err)
	}
	return &VisionError{Op: op, Code: st.Code(), Status: httpStatusForCode(st.Code()), Err: err}
}

func httpStatusForCode(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Canceled:
		return 499
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
