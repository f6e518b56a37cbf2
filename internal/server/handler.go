package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/ollie-ward/mealscan/internal/nutrition"
)

// analyzeRequest is the body of POST /v1/analyze and /v1/analyze/preview.
type analyzeRequest struct {
	MealText string `json:"meal_text"`

	// Session identifies one input surface (one open meal-entry form) for
	// the preview endpoint, so debouncing happens per client rather than
	// globally. Ignored by /v1/analyze.
	Session string `json:"session,omitempty"`
}

// handleHealth responds with a simple JSON status indicating the server is
// alive. Deliberately does not touch the upstream provider — a missing API
// key should not make the process look down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// handleAnalyze handles POST /v1/analyze: decode the meal text, run the
// analysis (retrying transient failures within the configured budget), and
// return either the nutrition estimate or a structured error.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// The taxonomy is closed, so a malformed body reuses EMPTY_INPUT:
		// no usable meal text arrived, and like blank input it is the
		// caller's to fix, not retry.
		writeError(w, &nutrition.AnalysisError{
			Message:   "invalid request body: " + err.Error(),
			Code:      nutrition.CodeEmptyInput,
			Retryable: false,
		})
		return
	}

	result, err := s.analyzeWithRetry(r.Context(), req.MealText)
	if err != nil {
		writeError(w, nutrition.Classify(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// analyzeWithRetry runs one analysis, resubmitting on retryable failures
// with capped exponential backoff. The pipeline itself never retries — the
// retryable flag exists precisely so this layer can make that call.
func (s *Server) analyzeWithRetry(ctx context.Context, mealText string) (*nutrition.NutritionResult, error) {
	var result *nutrition.NutritionResult

	op := func() error {
		res, err := s.analyzer.Analyze(ctx, mealText)
		if err != nil {
			ae := nutrition.Classify(err)
			if !ae.Retryable {
				// backoff.Permanent stops the retry loop immediately
				// and hands the error straight back.
				return backoff.Permanent(ae)
			}
			return ae
		}
		result = res
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	if s.cfg.Analysis.RetryBudget > 0 {
		expo.MaxElapsedTime = s.cfg.Analysis.RetryBudget
	}

	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

// statusFor maps an analysis error code to an HTTP status. Input problems
// are the caller's fault (4xx); everything upstream surfaces as a gateway
// problem.
func statusFor(code nutrition.Code) int {
	switch code {
	case nutrition.CodeEmptyInput:
		return http.StatusBadRequest
	case nutrition.CodeTimeout:
		return http.StatusGatewayTimeout
	case nutrition.CodeRateLimit:
		return http.StatusTooManyRequests
	case nutrition.CodeParse:
		return http.StatusUnprocessableEntity
	case nutrition.CodeSuperseded:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// writeError writes an AnalysisError as the JSON error body. The code and
// retryable flag go over the wire so the client can decide whether to show
// a "try again" affordance.
func writeError(w http.ResponseWriter, ae *nutrition.AnalysisError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(ae.Code))
	json.NewEncoder(w).Encode(map[string]any{
		"error":     ae.Message,
		"code":      ae.Code,
		"retryable": ae.Retryable,
	})
}
