package model

import (
	"fmt"
	"net/http"

	"github.com/Laisky/errors/v2"
)

// ErrorType classifies relay failures per the gateway taxonomy. The type
// drives both the HTTP status surfaced to the caller and the failover
// decision (transient errors may advance to the next candidate).
type ErrorType string

const (
	ErrorTypeInvalidRequest    ErrorType = "invalid_request"
	ErrorTypeUnauthorized      ErrorType = "unauthorized"
	ErrorTypeForbidden         ErrorType = "forbidden"
	ErrorTypeTooManyRequests   ErrorType = "too_many_requests"
	ErrorTypeNoEligible        ErrorType = "no_eligible_provider"
	ErrorTypeUpstreamTransient ErrorType = "upstream_transient"
	ErrorTypeUpstreamPermanent ErrorType = "upstream_permanent"
	ErrorTypeInternal          ErrorType = "internal"

	// ErrorTypeGateway marks errors produced by the gateway itself rather
	// than relayed from an upstream provider.
	ErrorTypeGateway ErrorType = "shinway_error"
)

// Error is the OpenAI-compatible error payload.
type Error struct {
	Message string    `json:"message"`
	Type    ErrorType `json:"type"`
	Param   string    `json:"param,omitempty"`
	Code    any       `json:"code,omitempty"`

	// RawError keeps the original wrapped error for logging and failover
	// classification. Never serialized.
	RawError error `json:"-"`
}

// ErrorWithStatusCode pairs an error payload with the HTTP status to surface.
type ErrorWithStatusCode struct {
	Error
	StatusCode int `json:"status_code"`

	// RetryAfter carries the upstream Retry-After hint in seconds, when any.
	RetryAfter int `json:"-"`
}

// String implements fmt.Stringer for terse log lines.
func (e *ErrorWithStatusCode) String() string {
	return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Type, e.Message)
}

// IsTransient reports whether the failure is eligible for failover before the
// first byte has been delivered.
func (e *ErrorWithStatusCode) IsTransient() bool {
	if e == nil {
		return false
	}
	switch e.Type {
	case ErrorTypeUpstreamTransient:
		return true
	case ErrorTypeTooManyRequests:
		// 429 is transient only with a short Retry-After; the failover
		// controller decides wait-in-place vs next candidate.
		return true
	}
	return e.StatusCode >= http.StatusInternalServerError
}

// IsAuthLike reports auth/permission/quota failures from the upstream.
func (e *ErrorWithStatusCode) IsAuthLike() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// NewError builds a gateway-originated error with the given classification.
func NewError(statusCode int, errType ErrorType, err error, code string) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{
		StatusCode: statusCode,
		Error: Error{
			Message:  err.Error(),
			Type:     errType,
			Code:     code,
			RawError: err,
		},
	}
}

// WrapUpstreamError classifies a raw upstream HTTP failure: network errors
// and 5xx are transient, auth/quota keep their status, other 4xx are
// permanent with the provider's reason attached.
func WrapUpstreamError(statusCode int, provider string, err error) *ErrorWithStatusCode {
	errType := ErrorTypeUpstreamPermanent
	switch {
	case statusCode >= http.StatusInternalServerError || statusCode == 0:
		errType = ErrorTypeUpstreamTransient
		if statusCode == 0 {
			statusCode = http.StatusBadGateway
		}
	case statusCode == http.StatusTooManyRequests:
		errType = ErrorTypeTooManyRequests
	case statusCode == http.StatusUnauthorized:
		errType = ErrorTypeUnauthorized
	case statusCode == http.StatusForbidden:
		errType = ErrorTypeForbidden
	}

	return &ErrorWithStatusCode{
		StatusCode: statusCode,
		Error: Error{
			Message:  err.Error(),
			Type:     errType,
			RawError: errors.Wrapf(err, "upstream %s", provider),
		},
	}
}
