package main

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNoCategoriesSelected = errors.New("no dork categories selected")
	ErrQuotaExceeded        = errors.New("daily quota exceeded")
	ErrCancelled            = errors.New("run cancelled")
	ErrExecutorBusy         = errors.New("executor already running a batch")
	ErrMissingCredentials   = errors.New("API key and CSE ID are required")
)

// RequestFailedError reports the query whose search call aborted a run
type RequestFailedError struct {
	Query string
	Err   error
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("query %q failed: %v", e.Query, e.Err)
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}

// APIError is a non-success HTTP status returned by the search API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP error %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Message)
}
