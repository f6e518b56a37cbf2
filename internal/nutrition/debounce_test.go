package nutrition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAnalyzer records every dispatched meal text so tests can assert
// how many calls actually went out and with which input.
type countingAnalyzer struct {
	mu     sync.Mutex
	inputs []string
	result *NutritionResult
	err    error
}

func (c *countingAnalyzer) analyze(ctx context.Context, mealText string) (*NutritionResult, error) {
	c.mu.Lock()
	c.inputs = append(c.inputs, mealText)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

func (c *countingAnalyzer) dispatched() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.inputs...)
}

func TestDebouncedLastCallWins(t *testing.T) {
	fake := &countingAnalyzer{result: &NutritionResult{Calories: 450}}
	d := NewDebounced(fake.analyze, 80*time.Millisecond)

	// Three calls in quick succession, all inside the quiet window.
	first := d.Analyze(context.Background(), "app")
	time.Sleep(10 * time.Millisecond)
	second := d.Analyze(context.Background(), "apple")
	time.Sleep(10 * time.Millisecond)
	third := d.Analyze(context.Background(), "apple pie with cream")

	// The first two settle with SUPERSEDED without ever dispatching.
	for _, ch := range []<-chan Outcome{first, second} {
		select {
		case outcome := <-ch:
			require.Error(t, outcome.Err)
			var ae *AnalysisError
			require.True(t, errors.As(outcome.Err, &ae))
			assert.Equal(t, CodeSuperseded, ae.Code)
			assert.False(t, ae.Retryable)
		case <-time.After(time.Second):
			t.Fatal("superseded call never settled")
		}
	}

	// The third fires after the window and resolves with the result.
	select {
	case outcome := <-third:
		require.NoError(t, outcome.Err)
		assert.Equal(t, 450, outcome.Result.Calories)
	case <-time.After(time.Second):
		t.Fatal("final call never settled")
	}

	// Exactly one dispatch, carrying the last call's input.
	assert.Equal(t, []string{"apple pie with cream"}, fake.dispatched())
}

func TestDebouncedSingleCall(t *testing.T) {
	fake := &countingAnalyzer{result: &NutritionResult{Calories: 200}}
	d := NewDebounced(fake.analyze, 20*time.Millisecond)

	outcome := <-d.Analyze(context.Background(), "banana")
	require.NoError(t, outcome.Err)
	assert.Equal(t, 200, outcome.Result.Calories)
	assert.Equal(t, []string{"banana"}, fake.dispatched())
}

func TestDebouncedPropagatesError(t *testing.T) {
	wantErr := &AnalysisError{Message: "rate limited", Code: CodeRateLimit, Retryable: true}
	fake := &countingAnalyzer{err: wantErr}
	d := NewDebounced(fake.analyze, 20*time.Millisecond)

	outcome := <-d.Analyze(context.Background(), "banana")
	require.Error(t, outcome.Err)

	var ae *AnalysisError
	require.True(t, errors.As(outcome.Err, &ae))
	assert.Equal(t, CodeRateLimit, ae.Code)
}

func TestDebouncedCancelsInFlight(t *testing.T) {
	// The first call's analysis blocks until its context is cancelled;
	// the second call must abort it and still win cleanly.
	started := make(chan struct{})
	var mu sync.Mutex
	var cancelled bool

	analyze := func(ctx context.Context, mealText string) (*NutritionResult, error) {
		if mealText == "slow" {
			close(started)
			<-ctx.Done()
			mu.Lock()
			cancelled = true
			mu.Unlock()
			return nil, ctx.Err()
		}
		return &NutritionResult{Calories: 100}, nil
	}

	d := NewDebounced(analyze, 10*time.Millisecond)

	first := d.Analyze(context.Background(), "slow")

	// Wait until the first call is actually in flight, then displace it.
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first call never started")
	}
	second := d.Analyze(context.Background(), "fast")

	// First settles with SUPERSEDED — its cancellation outcome is
	// discarded, not surfaced.
	outcome := <-first
	var ae *AnalysisError
	require.True(t, errors.As(outcome.Err, &ae))
	assert.Equal(t, CodeSuperseded, ae.Code)

	outcome = <-second
	require.NoError(t, outcome.Err)
	assert.Equal(t, 100, outcome.Result.Calories)

	// The in-flight request really was aborted.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return cancelled
	}, time.Second, 10*time.Millisecond)
}

func TestDebouncedDefaultDelay(t *testing.T) {
	d := NewDebounced(nil, 0)
	assert.Equal(t, DefaultDebounceDelay, d.delay)
}
