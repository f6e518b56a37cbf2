package nutrition

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/ollie-ward/mealscan/internal/provider"
)

// Code identifies one kind of analysis failure. The set is closed: every
// failure the pipeline can produce maps to exactly one of these, and
// anything unrecognized falls through to CodeUnknown.
type Code string

const (
	CodeTimeout       Code = "TIMEOUT"        // upstream call exceeded its deadline
	CodeNetwork       Code = "NETWORK_ERROR"  // no HTTP response received at all
	CodeAuth          Code = "AUTH_ERROR"     // HTTP 401 — bad or missing API key
	CodeRateLimit     Code = "RATE_LIMIT"     // HTTP 429
	CodeServer        Code = "SERVER_ERROR"   // HTTP 5xx
	CodeAPI           Code = "API_ERROR"      // any other HTTP error status
	CodeEmptyResponse Code = "EMPTY_RESPONSE" // assistant returned no content
	CodeEmptyInput    Code = "EMPTY_INPUT"    // blank meal text, nothing dispatched
	CodeParse         Code = "PARSE_ERROR"    // no calorie figure recoverable
	CodeSuperseded    Code = "SUPERSEDED"     // debounced call replaced by a newer one
	CodeUnknown       Code = "UNKNOWN_ERROR"
)

// AnalysisError is the structured failure every caller sees. The Retryable
// flag is the whole point: the pipeline never retries internally, so
// callers use it to decide whether resubmitting the same request could
// plausibly succeed.
type AnalysisError struct {
	Message   string `json:"message"`
	Code      Code   `json:"code"`
	Retryable bool   `json:"retryable"`
}

// Error makes AnalysisError satisfy the error interface.
func (e *AnalysisError) Error() string {
	return e.Message
}

// Classify maps any error from the analysis pipeline to an AnalysisError.
// It is pure and total: every input yields exactly one of the defined
// kinds. Errors that are already classified pass through unchanged.
func Classify(err error) *AnalysisError {
	// Already classified — the parser and the analyzer construct
	// AnalysisError values directly for their own failure modes.
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae
	}

	// Deadline / cancellation. The 30s per-request timeout surfaces as
	// context.DeadlineExceeded (usually wrapped in a *url.Error by the
	// HTTP client), and some transports report a net.Error with
	// Timeout() instead — both are the same condition to a caller.
	if errors.Is(err, context.DeadlineExceeded) {
		return &AnalysisError{
			Message:   "analysis request timed out",
			Code:      CodeTimeout,
			Retryable: true,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &AnalysisError{
			Message:   "analysis request timed out",
			Code:      CodeTimeout,
			Retryable: true,
		}
	}

	// HTTP error statuses from a provider adapter.
	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusUnauthorized:
			return &AnalysisError{
				Message:   "invalid API key for " + httpErr.Provider,
				Code:      CodeAuth,
				Retryable: false,
			}
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return &AnalysisError{
				Message:   "rate limited by " + httpErr.Provider,
				Code:      CodeRateLimit,
				Retryable: true,
			}
		case httpErr.StatusCode >= http.StatusInternalServerError:
			return &AnalysisError{
				Message:   httpErr.Provider + " returned a server error",
				Code:      CodeServer,
				Retryable: true,
			}
		default:
			return &AnalysisError{
				Message:   httpErr.Error(),
				Code:      CodeAPI,
				Retryable: true,
			}
		}
	}

	// A *url.Error that wasn't a timeout means the request never got an
	// HTTP response: DNS failure, refused connection, reset, and so on.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &AnalysisError{
			Message:   "could not reach the analysis service",
			Code:      CodeNetwork,
			Retryable: true,
		}
	}

	return &AnalysisError{
		Message:   "nutrition analysis failed: " + err.Error(),
		Code:      CodeUnknown,
		Retryable: false,
	}
}
