package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies failures at the proxy boundary.
type ErrorKind string

const (
	KindConfigMissing          ErrorKind = "config_missing"
	KindInvalidInput           ErrorKind = "invalid_input"
	KindNotFound               ErrorKind = "not_found"
	KindUpstreamUnavailable    ErrorKind = "upstream_unavailable"
	KindUpstreamTimeout        ErrorKind = "upstream_timeout"
	KindUpstreamRejected       ErrorKind = "upstream_rejected"
	KindUpstreamInvalidContent ErrorKind = "upstream_invalid_content"
	KindVerificationFailed     ErrorKind = "verification_failed"
)

// HTTPStatus returns the response status for the kind.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindConfigMissing:
		return http.StatusInternalServerError
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstreamUnavailable, KindUpstreamRejected, KindUpstreamInvalidContent:
		return http.StatusBadGateway
	case KindVerificationFailed:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the error type handlers turn into JSON bodies.
type AppError struct {
	Kind    ErrorKind
	Message string
	Detail  string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

func ConfigMissing(setting string) *AppError {
	return &AppError{Kind: KindConfigMissing, Message: setting + " is not configured"}
}

func InvalidInput(message string) *AppError {
	return &AppError{Kind: KindInvalidInput, Message: message}
}

func NotFound(message string) *AppError {
	return &AppError{Kind: KindNotFound, Message: message}
}

func UpstreamRejected(message, detail string) *AppError {
	return &AppError{Kind: KindUpstreamRejected, Message: message, Detail: detail}
}

func InvalidContent(message, detail string) *AppError {
	return &AppError{Kind: KindUpstreamInvalidContent, Message: message, Detail: detail}
}

func VerificationFailed(message string) *AppError {
	return &AppError{Kind: KindVerificationFailed, Message: message}
}

// UpstreamFailure wraps a transport error. Deadline and net timeouts are
// reported as KindUpstreamTimeout, everything else as KindUpstreamUnavailable.
func UpstreamFailure(message string, err error) *AppError {
	kind := KindUpstreamUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindUpstreamTimeout
	}
	return &AppError{Kind: kind, Message: message, Err: err}
}
