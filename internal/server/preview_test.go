package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ollie-ward/mealscan/internal/nutrition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlePreviewDebounces(t *testing.T) {
	stub := &stubAnalyzer{result: &nutrition.NutritionResult{Calories: 500}}
	srv := New(testConfig(), stub) // 50ms debounce window
	ts := httptest.NewServer(srv)
	defer ts.Close()

	type reply struct {
		status int
		body   []byte
	}
	replies := make(chan reply, 3)

	post := func(text string) {
		b, _ := json.Marshal(analyzeRequest{MealText: text, Session: "entry-1"})
		resp, err := http.Post(ts.URL+"/v1/analyze/preview", "application/json", bytes.NewReader(b))
		if err != nil {
			replies <- reply{status: -1}
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		replies <- reply{status: resp.StatusCode, body: body}
	}

	// A keystroke burst: three previews inside the quiet window.
	go post("a")
	time.Sleep(20 * time.Millisecond)
	go post("ap")
	time.Sleep(20 * time.Millisecond)
	go post("apple pie")

	var superseded, succeeded int
	for i := 0; i < 3; i++ {
		select {
		case rep := <-replies:
			require.NotEqual(t, -1, rep.status, "request failed")
			switch rep.status {
			case http.StatusConflict:
				var errBody struct {
					Code string `json:"code"`
				}
				require.NoError(t, json.Unmarshal(rep.body, &errBody))
				assert.Equal(t, "SUPERSEDED", errBody.Code)
				superseded++
			case http.StatusOK:
				var result nutrition.NutritionResult
				require.NoError(t, json.Unmarshal(rep.body, &result))
				assert.Equal(t, 500, result.Calories)
				succeeded++
			default:
				t.Fatalf("unexpected status %d: %s", rep.status, rep.body)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("preview request never answered")
		}
	}

	assert.Equal(t, 2, superseded)
	assert.Equal(t, 1, succeeded)

	// Exactly one upstream dispatch, carrying the final keystroke state.
	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Equal(t, []string{"apple pie"}, stub.inputs)
}

func TestHandlePreviewSessionsAreIndependent(t *testing.T) {
	stub := &stubAnalyzer{result: &nutrition.NutritionResult{Calories: 100}}
	srv := New(testConfig(), stub)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	post := func(session, text string, out chan<- int) {
		b, _ := json.Marshal(analyzeRequest{MealText: text, Session: session})
		resp, err := http.Post(ts.URL+"/v1/analyze/preview", "application/json", bytes.NewReader(b))
		if err != nil {
			out <- -1
			return
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		out <- resp.StatusCode
	}

	// Two different sessions in the same window must not displace each
	// other — both analyses run.
	statuses := make(chan int, 2)
	go post("entry-1", "soup", statuses)
	go post("entry-2", "salad", statuses)

	for i := 0; i < 2; i++ {
		select {
		case status := <-statuses:
			assert.Equal(t, http.StatusOK, status)
		case <-time.After(5 * time.Second):
			t.Fatal("preview request never answered")
		}
	}
	assert.Equal(t, 2, stub.calls())
}

func TestHandlePreviewRequiresSession(t *testing.T) {
	srv := New(testConfig(), &stubAnalyzer{})

	w := postJSON(t, srv, "/v1/analyze/preview", analyzeRequest{MealText: "toast"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
