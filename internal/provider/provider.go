// Package provider defines the Provider interface and LLM provider adapters.
//
// Every LLM backend (OpenAI, Perplexity) implements the Provider interface.
// The analysis pipeline works with these unified types, so it never needs
// to know which provider is actually handling a request — adding a third
// provider is a new file in this package plus one factory case.
package provider

import (
	"context"
	"fmt"
)

// Provider is the interface that every LLM backend must satisfy.
type Provider interface {
	// Name returns the provider identifier, e.g. "openai" or "perplexity".
	// Used for logging and error messages.
	Name() string

	// ChatCompletion sends one chat-completion request and returns the
	// complete response. Exactly one HTTP call per invocation — retry is
	// the caller's decision, informed by the error classifier.
	//
	// The context carries the per-request deadline. If it expires or is
	// cancelled (a superseded debounced call), the underlying HTTP call
	// is aborted.
	ChatCompletion(ctx context.Context, model string, messages []Message) (*ChatResponse, error)
}

// Message is a single message in the conversation, in the role + content
// shape both providers accept. Adapters may rewrite content during request
// translation (Perplexity appends its search instruction here).
type Message struct {
	Role    string `json:"role"`    // "system" or "user"
	Content string `json:"content"` // the message text
}

// ChatResponse is the unified response from a chat completion.
type ChatResponse struct {
	// Content is the assistant's raw text. It is supposed to be the JSON
	// object we asked for, but models sometimes return prose — the parser
	// deals with that. May be empty, which callers treat as a distinct
	// failure.
	Content string

	// Citations is the provider's top-level source list, when the provider
	// returns one (Perplexity does, OpenAI doesn't). Used to backfill the
	// result's sources when the model omits them from its JSON.
	Citations []string
}

// HTTPError is returned when the provider's API answers with a non-2xx
// status. It keeps the status code intact so the error classifier can map
// 401 / 429 / 5xx to their own error kinds instead of lumping everything
// into one opaque failure.
type HTTPError struct {
	Provider   string // which adapter produced this
	StatusCode int
	Body       string // response body snippet, for logs and messages
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// chatTemperature is fixed for every analysis call. Nutrition estimation
// wants consistency over creativity, so we stay well below the default 1.0.
const chatTemperature = 0.3

// maxErrorBody bounds how much of an upstream error body we keep around.
const maxErrorBody = 512
