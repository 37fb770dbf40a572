package errutil

import (
	"errors"
	"fmt"
	"strings"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) JSON() map[string]any {
	return map[string]any{
		"error": map[string]any{
			"code":    e.Code,
			"message": e.Message,
			"details": e.Details,
		},
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = append(be.Details, details...) }
}

func WithField(field, message string) Option {
	return WithDetails(Detail{Field: strings.TrimSpace(field), Message: message})
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func newWithCause(code CoreStatus, msg string, err error, options []Option) error {
	if err != nil {
		options = append([]Option{WithErr(err)}, options...)
	}
	return New(code, msg, options...)
}

// CodeOf returns the status carried by err, StatusUnknown when err carries none.
func CodeOf(err error) CoreStatus {
	if err == nil {
		return ""
	}
	var coder interface{ Status() CoreStatus }
	if errors.As(err, &coder) {
		return coder.Status()
	}
	return StatusUnknown
}

// Is reports whether err carries the given status anywhere in its chain.
func Is(err error, code CoreStatus) bool {
	return CodeOf(err) == code
}

func NotFound(msg string, err error, options ...Option) error {
	return newWithCause(StatusNotFound, msg, err, options)
}

func UnprocessableEntity(msg string, err error, options ...Option) error {
	return newWithCause(StatusUnprocessableEntity, msg, err, options)
}

func Conflict(msg string, err error, options ...Option) error {
	return newWithCause(StatusConflict, msg, err, options)
}

func BadRequest(msg string, err error, options ...Option) error {
	return newWithCause(StatusBadRequest, msg, err, options)
}

func ValidationFailed(msg string, err error, options ...Option) error {
	return newWithCause(StatusValidationFailed, msg, err, options)
}

func Internal(msg string, err error, options ...Option) error {
	return newWithCause(StatusInternal, msg, err, options)
}

func Timeout(msg string, err error, options ...Option) error {
	return newWithCause(StatusTimeout, msg, err, options)
}

func Forbidden(msg string, err error, options ...Option) error {
	return newWithCause(StatusForbidden, msg, err, options)
}

func PaymentRequired(msg string, err error, options ...Option) error {
	return newWithCause(StatusPaymentRequired, msg, err, options)
}

func ClientClosedRequest(msg string, err error, options ...Option) error {
	return newWithCause(StatusClientClosedRequest, msg, err, options)
}

func ServiceUnavailable(msg string, err error, options ...Option) error {
	return newWithCause(StatusServiceUnavailable, msg, err, options)
}
