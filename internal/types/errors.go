package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrMaxRetries        = errors.New("max retries exceeded")
	ErrInvalidURL        = errors.New("invalid URL")
	ErrEmptyResponse     = errors.New("empty response body")
	ErrNoClaimReview     = errors.New("no claim review found")
	ErrTranslationFailed = errors.New("translation failed")
	ErrEmptyText         = errors.New("empty text")
	ErrNoProviders       = errors.New("no translation providers configured")
	ErrRobotsDisallowed  = errors.New("blocked by robots.txt")
)

// FetchErrorKind separates HTTP-level terminal failures from transport failures.
type FetchErrorKind int

const (
	// KindTerminal covers non-retryable statuses and exhausted retries.
	KindTerminal FetchErrorKind = iota
	// KindTransport covers DNS, connection and timeout failures. These are not retried.
	KindTransport
)

func (k FetchErrorKind) String() string {
	switch k {
	case KindTerminal:
		return "terminal"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Kind       FetchErrorKind
	Attempts   int
	Backoff    time.Duration // last backoff slept before giving up
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		if e.Backoff > 0 {
			return fmt.Sprintf("fetch error for %s (status %d, %s after %d attempts, last backoff %s): %v",
				e.URL, e.StatusCode, e.Kind, e.Attempts, e.Backoff.Round(time.Millisecond), e.Err)
		}
		return fmt.Sprintf("fetch error for %s (status %d, %s): %v", e.URL, e.StatusCode, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch error for %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransport reports whether the failure happened below the HTTP layer.
func (e *FetchError) IsTransport() bool { return e.Kind == KindTransport }

// TranslationError is returned once every provider failed on every attempt.
type TranslationError struct {
	Text     string
	Attempts int
	Err      error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("could not translate %q after %d attempts: %v", e.Text, e.Attempts, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrTranslationFailed while Unwrap keeps the cause.
func (e *TranslationError) Is(target error) bool { return target == ErrTranslationFailed }

// ParseError wraps errors that occur during parsing.
type ParseError struct {
	URL    string
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (source=%q): %v", e.URL, e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the record pipeline.
type PipelineError struct {
	Stage  string
	Record *ClaimReviewRecord
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
