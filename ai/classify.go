package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ClassifyHTTP maps a round-trip outcome (status code, transport error) into
// the error-class taxonomy. Every adapter's HTTP call site routes through
// this function so classification is applied uniformly.
func ClassifyHTTP(status int, err error) ErrorClass {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
			return ErrTimeout
		case strings.Contains(msg, "connection refused"),
			strings.Contains(msg, "no such host"),
			strings.Contains(msg, "dns"):
			return ErrUnavailable
		default:
			return ErrOther
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusNotFound:
		return ErrModelNotFound
	case status >= 500:
		return ErrUnavailable
	case status >= 400:
		return ErrOther
	default:
		return ""
	}
}

// Wrap builds a *ProviderError from a classified failure.
func Wrap(provider string, class ErrorClass, err error) error {
	if err == nil {
		err = errors.New(string(class))
	}
	return &ProviderError{Provider: provider, Class: class, Err: err}
}
