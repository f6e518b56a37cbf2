// Package nutrition implements the meal analysis pipeline: prompt
// construction, provider dispatch, response parsing with a free-text
// fallback, a closed error taxonomy with retryability flags, and a
// debounce wrapper for bursty callers.
package nutrition

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ollie-ward/mealscan/internal/config"
	"github.com/ollie-ward/mealscan/internal/provider"
)

// requestTimeout bounds each upstream call. Independent of the debounce
// window: a debounced call that finally fires still gets the full 30s.
const requestTimeout = 30 * time.Second

// Analyzer is the end-to-end nutrition analysis pipeline. It owns no
// mutable state beyond its HTTP client — every call resolves the active
// provider fresh from configuration, so a provider switch takes effect on
// the next call.
type Analyzer struct {
	cfg    *config.Config
	client *http.Client
}

// NewAnalyzer creates an Analyzer backed by the given HTTP client.
func NewAnalyzer(cfg *config.Config, client *http.Client) *Analyzer {
	return &Analyzer{cfg: cfg, client: client}
}

// Analyze is the sole entry point: free-text meal description in, typed
// nutrition estimate out. Every failure comes back as an *AnalysisError
// carrying a code and a retryable flag; the pipeline itself never retries.
func (a *Analyzer) Analyze(ctx context.Context, mealText string) (*NutritionResult, error) {
	// Reject blank input before anything else — no provider resolution,
	// no network call.
	mealText = strings.TrimSpace(mealText)
	if mealText == "" {
		return nil, &AnalysisError{
			Message:   "meal description is empty",
			Code:      CodeEmptyInput,
			Retryable: false,
		}
	}

	pc := a.cfg.ResolveProvider()
	p := a.newProvider(pc)
	messages := BuildMessages(mealText)

	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := p.ChatCompletion(callCtx, pc.Model, messages)
	if err != nil {
		return nil, a.fail(err)
	}

	if strings.TrimSpace(resp.Content) == "" {
		return nil, &AnalysisError{
			Message:   "the model returned an empty response",
			Code:      CodeEmptyResponse,
			Retryable: true,
		}
	}

	result, err := Parse(resp.Content)
	if err != nil {
		return nil, a.fail(err)
	}

	// Perplexity reports its sources in the response envelope rather than
	// inside the JSON. If the model left sources empty, backfill from the
	// envelope's citation list before the result leaves the pipeline.
	if len(result.Sources) == 0 && len(resp.Citations) > 0 {
		result.Sources = resp.Citations
	}

	return result, nil
}

// newProvider builds the adapter for one resolved provider config. Cheap
// enough to do per call, which is what keeps provider selection fresh.
func (a *Analyzer) newProvider(pc config.ProviderConfig) provider.Provider {
	switch pc.Provider {
	case config.ProviderPerplexity:
		return provider.NewPerplexityProvider(pc.APIKey, pc.BaseURL, a.client)
	default:
		return provider.NewOpenAIProvider(pc.APIKey, pc.BaseURL, a.client)
	}
}

// fail classifies an error and, in debug mode, logs the raw underlying
// error for diagnostics. The classified value is returned either way — the
// log never alters what the caller sees.
func (a *Analyzer) fail(err error) *AnalysisError {
	if a.cfg.Debug {
		log.Printf("nutrition: analysis failed: %v", err)
	}
	return Classify(err)
}
