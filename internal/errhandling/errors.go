// Package errhandling provides error types and classification for the
// prospectsync workflows.
//
// Two layers live here. ClassifiedError categorises a single HTTP or network
// failure (authentication, validation, server...). RunError binds a failure to
// the workflow call site that produced it and to the process exit code the
// CLI reports for that site. Every failure is fatal: nothing is retried.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// ErrorCategory groups remote failures by cause.
type ErrorCategory string

const (
	// CategoryNetwork covers timeouts, refused connections, DNS failures and
	// a cancelled run.
	CategoryNetwork ErrorCategory = "network"
	// CategoryAuthentication covers 401 and 403 and token endpoint refusals.
	CategoryAuthentication ErrorCategory = "authentication"
	// CategoryValidation covers 4xx responses not listed elsewhere, and
	// Pardot replies with stat "fail" on a 200.
	CategoryValidation ErrorCategory = "validation"
	CategoryRateLimit  ErrorCategory = "rate_limit"
	CategoryServer     ErrorCategory = "server"
	CategoryNotFound   ErrorCategory = "not_found"
	CategoryUnknown    ErrorCategory = "unknown"
)

// ClassifiedError is a remote failure with its category and, for HTTP
// failures, the response status.
type ClassifiedError struct {
	Category    ErrorCategory
	StatusCode  int
	Message     string
	OriginalErr error
}

func (e *ClassifiedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s error: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Category, e.StatusCode, e.Message)
}

func (e *ClassifiedError) Unwrap() error {
	return e.OriginalErr
}

// httpStatusCategory lists the statuses whose category is not implied by
// their class.
var httpStatusCategory = map[int]ErrorCategory{
	http.StatusUnauthorized:    CategoryAuthentication,
	http.StatusForbidden:       CategoryAuthentication,
	http.StatusNotFound:        CategoryNotFound,
	http.StatusTooManyRequests: CategoryRateLimit,
}

// ClassifyHTTPStatus classifies a non-success response. 5xx is a server
// error, other 4xx a validation error; statuses outside 4xx and 5xx keep
// message and are unknown.
func ClassifyHTTPStatus(statusCode int, message string) *ClassifiedError {
	e := &ClassifiedError{StatusCode: statusCode}
	category, known := httpStatusCategory[statusCode]
	switch {
	case known:
		e.Category = category
	case statusCode >= 500:
		e.Category = CategoryServer
	case statusCode >= 400:
		e.Category = CategoryValidation
	default:
		e.Category = CategoryUnknown
		e.Message = message
		return e
	}
	e.Message = http.StatusText(statusCode)
	if e.Message == "" {
		e.Message = "unexpected status"
	}
	return e
}

// ClassifyNetworkError classifies a failure to get any response at all.
func ClassifyNetworkError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{Category: CategoryUnknown, Message: "nil error"}
	}
	network := func(msg string) *ClassifiedError {
		return &ClassifiedError{Category: CategoryNetwork, Message: msg, OriginalErr: err}
	}

	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
		urlErr *url.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return network("request timeout")
	case errors.Is(err, context.Canceled):
		return network("run cancelled")
	case errors.As(err, &opErr):
		return network(fmt.Sprintf("%s %s failed", opErr.Op, opErr.Net))
	case errors.As(err, &dnsErr):
		return network("cannot resolve " + dnsErr.Name)
	case errors.As(err, &urlErr):
		return network(fmt.Sprintf("%s %s failed", urlErr.Op, urlErr.URL))
	}
	return &ClassifiedError{Category: CategoryUnknown, Message: err.Error(), OriginalErr: err}
}

// ClassifyError returns the classification already in err's chain, or
// classifies err as a transport failure.
func ClassifyError(err error) *ClassifiedError {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}
	return ClassifyNetworkError(err)
}

// GetErrorCategory returns the category in err's chain, CategoryUnknown when
// there is none.
func GetErrorCategory(err error) ErrorCategory {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Category
	}
	return CategoryUnknown
}

func NewNetworkError(message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryNetwork, Message: message, OriginalErr: originalErr}
}

func NewAuthenticationError(statusCode int, message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryAuthentication, StatusCode: statusCode, Message: message, OriginalErr: originalErr}
}

func NewValidationError(statusCode int, message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryValidation, StatusCode: statusCode, Message: message, OriginalErr: originalErr}
}
