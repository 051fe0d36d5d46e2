package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindRateLimit ErrorKind = "rate_limit"
	KindMalformed ErrorKind = "malformed"
	KindRejected  ErrorKind = "rejected"
)

// ServiceError is a failed call to the generative-text service.
type ServiceError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later.
func (e *ServiceError) Retryable() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	return e.Kind == KindNetwork || e.Kind == KindRateLimit
}

// KindOf returns the service error kind of err, or "" for other errors.
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func malformed(provider string, format string, args ...any) *ServiceError {
	return &ServiceError{Provider: provider, Kind: KindMalformed, Err: fmt.Errorf(format, args...)}
}

// classifyStatus maps an HTTP status from the provider API.
func classifyStatus(provider string, status int, err error) *ServiceError {
	kind := KindRejected
	switch {
	case status == 429:
		kind = KindRateLimit
	case status == 408 || status >= 500:
		kind = KindNetwork
	case mentionsQuota(err):
		kind = KindRateLimit
	}
	return &ServiceError{Provider: provider, Kind: kind, StatusCode: status, Err: err}
}

// classifyTransport maps an error that carried no HTTP status.
func classifyTransport(provider string, err error) *ServiceError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.As(err, &netErr):
		return &ServiceError{Provider: provider, Kind: KindNetwork, Err: err}
	case mentionsQuota(err):
		return &ServiceError{Provider: provider, Kind: KindRateLimit, Err: err}
	default:
		return &ServiceError{Provider: provider, Kind: KindNetwork, Err: err}
	}
}

func mentionsQuota(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "rate limit")
}
