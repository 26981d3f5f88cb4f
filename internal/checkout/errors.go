package checkout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrCheckoutInProgress = errors.New("checkout is already being submitted")
	ErrCheckoutFinished   = errors.New("checkout already completed")
)

// ValidationError lists the form fields that stopped a checkout before any
// request was made. Fields maps the JSON field name to the failed rule.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// RequestError is a failed call to the payment service. Message carries the
// service's own error text when it sent one.
type RequestError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("checkout request failed: %v", e.Err)
	}
	return fmt.Sprintf("checkout request failed with status %d", e.StatusCode)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
