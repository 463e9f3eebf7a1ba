package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	SyncErrorBadInput           = "SYNC_BAD_INPUT"
	SyncErrorConnectionNotFound = "SYNC_CONNECTION_NOT_FOUND"
	SyncErrorProviderNotFound   = "SYNC_PROVIDER_NOT_FOUND"
	SyncErrorTokenExpired       = "SYNC_TOKEN_EXPIRED"
	SyncErrorRefreshFailed      = "SYNC_TOKEN_REFRESH_FAILED"
	SyncErrorInsufficientScopes = "SYNC_INSUFFICIENT_SCOPES"
	SyncErrorRateLimited        = "SYNC_RATE_LIMITED"
	SyncErrorAPIRequestFailed   = "SYNC_API_REQUEST_FAILED"
	SyncErrorCrawlFailed        = "SYNC_CRAWL_FAILED"
	SyncErrorInternal           = "SYNC_INTERNAL_ERROR"
)

// RateLimitExceededError is returned when a provider keeps answering 429
// past the retry budget. RetryAfter carries the server's last requested
// backoff, zero when the header was absent.
type RateLimitExceededError struct {
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	if e == nil {
		return "rate limit exceeded"
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
	}
	return "rate limit exceeded"
}

// APIRequestError is a provider API call that failed beyond retry: a 4xx, an
// exhausted 5xx budget, or a network failure surfaced as status 500.
type APIRequestError struct {
	StatusCode int
	Body       string
}

func (e *APIRequestError) Error() string {
	if e == nil {
		return "api request failed"
	}
	return fmt.Sprintf("api request failed with status %d: %s", e.StatusCode, e.Body)
}

// SyncError tags a failure with the pipeline step it occurred in.
type SyncError struct {
	Step SyncStep
	Err  error
}

func (e *SyncError) Error() string {
	if e == nil {
		return "sync failed"
	}
	return fmt.Sprintf("sync step %s failed: %v", e.Step, e.Err)
}

func (e *SyncError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func syncErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureSyncErrorEnvelope(richErr)
	}

	var stepErr *SyncError
	if errors.As(err, &stepErr) {
		return newSyncError(err.Error(), goerrors.CategoryOperation, SyncErrorCrawlFailed).
			WithMetadata(map[string]any{"step": string(stepErr.Step)})
	}

	var rateErr *RateLimitExceededError
	if errors.As(err, &rateErr) {
		mapped := newSyncError(err.Error(), goerrors.CategoryRateLimit, SyncErrorRateLimited)
		if rateErr.RetryAfter > 0 {
			mapped = mapped.WithMetadata(map[string]any{
				"retry_after_seconds": int(rateErr.RetryAfter.Seconds()),
			})
		}
		return mapped
	}

	var apiErr *APIRequestError
	if errors.As(err, &apiErr) {
		return newSyncError(err.Error(), goerrors.CategoryExternal, SyncErrorAPIRequestFailed).
			WithMetadata(map[string]any{"status_code": apiErr.StatusCode})
	}

	switch {
	case errors.Is(err, ErrConnectionNotFound):
		return newSyncError(err.Error(), goerrors.CategoryNotFound, SyncErrorConnectionNotFound)
	case errors.Is(err, ErrProviderNotFound):
		return newSyncError(err.Error(), goerrors.CategoryNotFound, SyncErrorProviderNotFound)
	case errors.Is(err, ErrTokenExpired):
		return newSyncError(err.Error(), goerrors.CategoryAuth, SyncErrorTokenExpired)
	case errors.Is(err, ErrTokenRefreshFailed):
		return newSyncError(err.Error(), goerrors.CategoryAuth, SyncErrorRefreshFailed)
	case errors.Is(err, ErrInsufficientScopes):
		return newSyncError(err.Error(), goerrors.CategoryAuthz, SyncErrorInsufficientScopes)
	case errors.Is(err, ErrInvalidSyncStep), errors.Is(err, ErrInvalidCrawlType):
		return newSyncError(err.Error(), goerrors.CategoryBadInput, SyncErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureSyncErrorEnvelope(mapped)
}

// MapSyncError normalizes any error from this module into the categorized
// envelope consumers key on.
func MapSyncError(err error) *goerrors.Error {
	return syncErrorMapper(err)
}

func newSyncError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureSyncErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureSyncErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = syncHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultSyncTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultSyncTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return SyncErrorBadInput
	case goerrors.CategoryNotFound:
		return SyncErrorConnectionNotFound
	case goerrors.CategoryAuth:
		return SyncErrorTokenExpired
	case goerrors.CategoryAuthz:
		return SyncErrorInsufficientScopes
	case goerrors.CategoryRateLimit:
		return SyncErrorRateLimited
	case goerrors.CategoryExternal:
		return SyncErrorAPIRequestFailed
	case goerrors.CategoryOperation:
		return SyncErrorCrawlFailed
	default:
		return SyncErrorInternal
	}
}

func syncHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
