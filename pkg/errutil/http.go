package errutil

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HTTPStatus converts the CoreStatus to its closest HTTP status code.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusPaymentRequired:
		return http.StatusPaymentRequired
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	case StatusUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case StatusUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusClientClosedRequest:
		return 499
	case StatusNotImplemented:
		return http.StatusNotImplemented
	case StatusBadGateway:
		return http.StatusBadGateway
	case StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	case StatusTimeout, StatusGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Normalize turns any error into a BaseError so handlers can render it.
func Normalize(err error) BaseError {
	var base BaseError
	if errors.As(err, &base) {
		return base
	}

	var coder interface{ Status() CoreStatus }
	if errors.As(err, &coder) {
		return BaseError{Code: coder.Status(), Message: err.Error(), Err: err}
	}

	if errors.Is(err, context.Canceled) {
		return BaseError{Code: StatusClientClosedRequest, Message: "request cancelled", Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return BaseError{Code: StatusTimeout, Message: "request timed out", Err: err}
	}

	return BaseError{Code: StatusInternal, Message: "internal error", Err: err}
}

// Abort writes err as a JSON error body and stops the gin handler chain.
func Abort(c *gin.Context, err error) {
	base := Normalize(err)
	c.AbortWithStatusJSON(base.Code.HTTPStatus(), base.JSON())
}
