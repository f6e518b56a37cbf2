package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ollie-ward/mealscan/internal/nutrition"
)

// sessionTTL is how long an idle preview session sticks around before it is
// pruned. Sessions are tiny (one timer slot), so this only needs to bound
// growth, not be precise.
const sessionTTL = 10 * time.Minute

// handlePreview handles POST /v1/analyze/preview: the type-ahead variant of
// analyze. Calls carrying the same session value within the debounce window
// collapse into one upstream request — only the latest body is dispatched,
// earlier ones answer 409 with code SUPERSEDED (which preview clients
// simply ignore: a newer preview is already on its way).
//
// No retry here: previews are fired on every pause in typing, so a failed
// one is cheaper to drop than to retry.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Malformed body reuses EMPTY_INPUT, same as handleAnalyze: no
		// usable meal text arrived.
		writeError(w, &nutrition.AnalysisError{
			Message:   "invalid request body: " + err.Error(),
			Code:      nutrition.CodeEmptyInput,
			Retryable: false,
		})
		return
	}
	if req.Session == "" {
		writeError(w, &nutrition.AnalysisError{
			Message:   "preview requests require a session value",
			Code:      nutrition.CodeEmptyInput,
			Retryable: false,
		})
		return
	}

	debounced := s.sessionDebouncer(req.Session)

	select {
	case outcome := <-debounced.Analyze(r.Context(), req.MealText):
		if outcome.Err != nil {
			writeError(w, nutrition.Classify(outcome.Err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(outcome.Result)
	case <-r.Context().Done():
		// Client went away while we were debouncing; nothing to write.
	}
}

// sessionDebouncer returns the debounced analyzer for one session, creating
// it on first use and pruning idle sessions while it holds the lock.
func (s *Server) sessionDebouncer(session string) *nutrition.Debounced {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	now := time.Now()
	for key, sess := range s.sessions {
		if key != session && now.Sub(sess.lastUsed) > sessionTTL {
			delete(s.sessions, key)
		}
	}

	sess, ok := s.sessions[session]
	if !ok {
		sess = &previewSession{
			debounced: nutrition.NewDebounced(s.analyzer.Analyze, s.cfg.Analysis.DebounceDelay),
		}
		s.sessions[session] = sess
	}
	sess.lastUsed = now
	return sess.debounced
}
