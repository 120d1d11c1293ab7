package adapters

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/platform/httpx"
	"github.com/yungbote/stockscan-backend/internal/platform/openai"
)

// classify tags a provider error with the receipt error kind that drives
// retry decisions. Errors that already carry a kind pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *receipts.Error
	if errors.As(err, &re) {
		return err
	}
	code := httpx.StatusCodeOf(err)
	switch {
	case code == http.StatusTooManyRequests:
		e := receipts.NewError(receipts.KindRateLimited, op, "provider rate limited", err)
		var he *openai.HTTPError
		if errors.As(err, &he) {
			e.RetryAfter = he.RetryAfter
		}
		return e
	case errors.Is(err, openai.ErrMalformedOutput):
		return receipts.NewError(receipts.KindMalformedResponse, op, "", err)
	case errors.Is(err, context.Canceled):
		return receipts.NewError(receipts.KindInternal, op, "canceled", err)
	case httpx.IsRetryableError(err):
		return receipts.NewError(receipts.KindTransport, op, "", err)
	case code >= 400 && code < 500:
		return receipts.NewError(receipts.KindProviderRejected, op, "", err)
	case isTransport(err):
		return receipts.NewError(receipts.KindTransport, op, "", err)
	default:
		return receipts.NewError(receipts.KindInternal, op, "", err)
	}
}

func isTransport(err error) bool {
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func malformed(op, format string, args ...any) error {
	return receipts.Errorf(receipts.KindMalformedResponse, op, format, args...)
}
