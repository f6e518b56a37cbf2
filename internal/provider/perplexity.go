package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ---------------------------------------------------------------------------
// PerplexityProvider struct + constructor
// ---------------------------------------------------------------------------

// PerplexityProvider implements the Provider interface for Perplexity's chat
// completions API. Same pattern as OpenAIProvider — the endpoint path and
// envelope are OpenAI-compatible — with two differences:
//
//  1. Perplexity has no JSON mode; instead we request citations
//     (return_citations) and the response carries a top-level citations
//     array that becomes ChatResponse.Citations.
//  2. Perplexity models do live retrieval, so the user message gets an
//     extra instruction to search for accurate data from reliable sources.
type PerplexityProvider struct {
	apiKey  string
	baseURL string // e.g. "https://api.perplexity.ai"
	client  *http.Client
}

// NewPerplexityProvider creates a PerplexityProvider ready to make API calls.
func NewPerplexityProvider(apiKey, baseURL string, client *http.Client) *PerplexityProvider {
	return &PerplexityProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
	}
}

// Name returns the provider identifier.
func (p *PerplexityProvider) Name() string {
	return "perplexity"
}

// ---------------------------------------------------------------------------
// Perplexity API types (unexported)
// ---------------------------------------------------------------------------

// perplexityRequest is the top-level request body for /chat/completions.
type perplexityRequest struct {
	Model           string    `json:"model"`
	Messages        []Message `json:"messages"`
	Temperature     float64   `json:"temperature"`
	ReturnCitations bool      `json:"return_citations"`
}

// perplexityResponse is the subset of the response envelope we use. Unlike
// OpenAI, the envelope carries a top-level citations list — the URLs the
// model actually consulted.
type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// searchInstruction is appended to the user message so the model grounds its
// estimate in retrieved nutrition data instead of guessing from weights.
const searchInstruction = " Search for accurate nutrition data from reliable sources."

// ---------------------------------------------------------------------------
// ChatCompletion
// ---------------------------------------------------------------------------

// ChatCompletion sends a non-streaming request to Perplexity's
// /chat/completions endpoint and returns the assistant's text plus the
// citation list from the envelope.
func (p *PerplexityProvider) ChatCompletion(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	// Step 1: Build the Perplexity-shaped request. The incoming messages
	// are shared with other adapters, so copy before rewriting the user
	// message with the search instruction.
	msgs := make([]Message, len(messages))
	copy(msgs, messages)
	for i := range msgs {
		if msgs[i].Role == "user" {
			msgs[i].Content += searchInstruction
		}
	}

	ppxReq := &perplexityRequest{
		Model:           model,
		Messages:        msgs,
		Temperature:     chatTemperature,
		ReturnCitations: true,
	}

	// Step 2: Serialize to JSON.
	body, err := json.Marshal(ppxReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	// Step 3: Build and send the HTTP request. Perplexity uses standard
	// bearer-token auth, same as OpenAI.
	url := fmt.Sprintf("%s/chat/completions", p.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to perplexity: %w", err)
	}
	defer httpResp.Body.Close()

	// Step 4: Non-2xx becomes a typed HTTPError for the classifier.
	if httpResp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, &HTTPError{
			Provider:   p.Name(),
			StatusCode: httpResp.StatusCode,
			Body:       string(errBody),
		}
	}

	// Step 5: Decode the envelope, extract text and citations.
	var ppxResp perplexityResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&ppxResp); err != nil {
		return nil, fmt.Errorf("decoding perplexity response: %w", err)
	}

	resp := &ChatResponse{
		Citations: ppxResp.Citations,
	}
	if len(ppxResp.Choices) > 0 {
		resp.Content = ppxResp.Choices[0].Message.Content
	}

	return resp, nil
}
