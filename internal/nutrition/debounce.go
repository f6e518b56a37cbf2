package nutrition

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounceDelay is the quiet window used when none is configured.
// Tuned for type-ahead input: long enough to swallow a burst of keystrokes,
// short enough that the user isn't left waiting.
const DefaultDebounceDelay = 800 * time.Millisecond

// AnalyzeFunc is the function a Debounced wrapper coalesces. In production
// this is Analyzer.Analyze; tests substitute fakes.
type AnalyzeFunc func(ctx context.Context, mealText string) (*NutritionResult, error)

// Outcome is the settled result of one debounced call: exactly one of
// Result and Err is set.
type Outcome struct {
	Result *NutritionResult
	Err    error
}

// Debounced wraps an AnalyzeFunc so that only the last call within a quiet
// window actually executes. Each new call stops the pending timer and
// aborts any in-flight request from a previous call on the same instance,
// so at most one upstream request is active per instance at a time.
//
// Superseded calls do not hang: their channel receives an AnalysisError
// with code SUPERSEDED. Leaving a channel forever unsettled is how callers
// leak goroutines, so "last call wins" is reported explicitly instead of
// silently.
type Debounced struct {
	analyze AnalyzeFunc
	delay   time.Duration

	// Single-slot state: at most one pending timer, one in-flight
	// cancellation, one waiting caller. Every new call replaces all
	// three. The mutex guards the slot — the design is single-flight,
	// but Go callers may still race on the way in.
	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
	waiter chan Outcome
}

// NewDebounced wraps analyze with a debounce window of delay. A zero or
// negative delay gets the default.
func NewDebounced(analyze AnalyzeFunc, delay time.Duration) *Debounced {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	return &Debounced{analyze: analyze, delay: delay}
}

// Analyze schedules mealText for analysis after the quiet window and
// returns a channel that settles with that call's outcome. If another call
// arrives first, this call's channel settles with SUPERSEDED instead and
// no request is ever dispatched for it.
//
// The returned channel is buffered, holds exactly one Outcome, and is
// never closed.
func (d *Debounced) Analyze(ctx context.Context, mealText string) <-chan Outcome {
	out := make(chan Outcome, 1)

	d.mu.Lock()
	defer d.mu.Unlock()

	// Displace the previous call, whatever state it was in. Stopping the
	// timer suppresses a not-yet-dispatched call entirely; cancelling the
	// context aborts one that already went out — its outcome is discarded
	// below, never surfaced.
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}
	if d.waiter != nil {
		d.waiter <- Outcome{Err: &AnalysisError{
			Message:   "superseded by a newer analysis request",
			Code:      CodeSuperseded,
			Retryable: false,
		}}
	}

	callCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.waiter = out

	d.timer = time.AfterFunc(d.delay, func() {
		result, err := d.analyze(callCtx, mealText)

		d.mu.Lock()
		if d.waiter != out {
			// A newer call displaced us mid-flight. It already settled
			// our channel with SUPERSEDED; this outcome is discarded.
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.cancel = nil
		d.waiter = nil
		d.mu.Unlock()

		cancel() // release the timeout/cancel resources for this call

		if err != nil {
			out <- Outcome{Err: err}
			return
		}
		out <- Outcome{Result: result}
	})

	return out
}
