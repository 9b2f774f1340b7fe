package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized is returned when no verified user identity is available.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrGenerationFailed wraps any failure of the insight generator, including timeouts.
	ErrGenerationFailed = errors.New("insight generation failed")

	// ErrPersistenceFailed wraps store read/write errors.
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrProfileCommitFailed wraps a failed profile update.
	ErrProfileCommitFailed = errors.New("profile commit failed")

	// ErrNotOnboarded is returned when an insight is requested for a user without an industry.
	ErrNotOnboarded = errors.New("user not onboarded")

	// ErrInvalidIndustry is returned for an empty industry key.
	ErrInvalidIndustry = errors.New("invalid industry key")

	// ErrMalformedCompletion is returned when the LLM answered but the answer
	// cannot be used. Asking again with the same prompt does not help.
	ErrMalformedCompletion = errors.New("malformed llm completion")

	// ErrNotFound is returned by stores when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}
