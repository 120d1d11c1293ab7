package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
		_ = c.Error(err)
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

// RespondErr picks the status from the error: *apierr.Error carries its own,
// receipt-flow errors map by kind, anything else is a 500.
func RespondErr(c *gin.Context, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) && ae.Status != 0 {
		RespondError(c, ae.Status, ae.Code, ae)
		return
	}
	var re *receipts.Error
	if errors.As(err, &re) {
		status := StatusForKind(re.Kind)
		msg := re.Message
		if msg == "" || status >= http.StatusInternalServerError {
			msg = http.StatusText(status)
		}
		_ = c.Error(err)
		c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: string(re.Kind)}})
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		RespondError(c, http.StatusServiceUnavailable, "canceled", err)
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorEnvelope{Error: APIError{
		Message: http.StatusText(http.StatusInternalServerError),
		Code:    string(receipts.KindInternal),
	}})
}

func StatusForKind(k receipts.Kind) int {
	switch k {
	case receipts.KindInvalidInput:
		return http.StatusBadRequest
	case receipts.KindNotFound, receipts.KindProductNotFound:
		return http.StatusNotFound
	case receipts.KindStateConflict:
		return http.StatusConflict
	case receipts.KindNoItemsExtracted, receipts.KindNoItemsMatched, receipts.KindNoItemsValidated:
		return http.StatusUnprocessableEntity
	case receipts.KindRateLimited:
		return http.StatusTooManyRequests
	case receipts.KindTransport, receipts.KindProviderRejected, receipts.KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
