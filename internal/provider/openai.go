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
// OpenAIProvider struct + constructor
// ---------------------------------------------------------------------------

// OpenAIProvider implements the Provider interface for OpenAI's chat
// completions API. It translates our unified messages into OpenAI's request
// shape, makes the HTTP call, and extracts the assistant text.
type OpenAIProvider struct {
	apiKey  string
	baseURL string       // e.g. "https://api.openai.com/v1"
	client  *http.Client // reusable HTTP client (manages connection pooling)
}

// NewOpenAIProvider creates an OpenAIProvider ready to make API calls.
// The *http.Client comes in as a parameter so tests can substitute a
// recorder or fake transport, and so main.go controls the transport.
func NewOpenAIProvider(apiKey, baseURL string, client *http.Client) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
	}
}

// Name returns the provider identifier.
func (o *OpenAIProvider) Name() string {
	return "openai"
}

// ---------------------------------------------------------------------------
// OpenAI API types (unexported — only this file uses them)
// ---------------------------------------------------------------------------

// openAIRequest is the top-level request body for /chat/completions.
//
// The interesting field is ResponseFormat: {"type": "json_object"} switches
// the model into JSON mode, which makes well-formed JSON output much more
// likely (though still not guaranteed — the parser keeps its fallback).
type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []Message             `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

// openAIResponse is the subset of the response envelope we care about:
// choices[0].message.content. Everything else (usage, fingerprints, logprobs)
// is ignored by the decoder.
type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ---------------------------------------------------------------------------
// ChatCompletion
// ---------------------------------------------------------------------------

// ChatCompletion sends a non-streaming request to OpenAI's /chat/completions
// endpoint and returns the assistant's text.
//
// Five-step flow: build request → serialize → HTTP POST → check status →
// decode and extract.
func (o *OpenAIProvider) ChatCompletion(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	// Step 1: Build the OpenAI-shaped request. JSON mode is always on —
	// the system prompt asks for a JSON object, and this flag makes the
	// model honor it.
	oaiReq := &openAIRequest{
		Model:          model,
		Messages:       messages,
		Temperature:    chatTemperature,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}

	// Step 2: Serialize to JSON.
	body, err := json.Marshal(oaiReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	// Step 3: Build and send the HTTP request. Standard bearer-token auth.
	url := fmt.Sprintf("%s/chat/completions", o.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to openai: %w", err)
	}
	defer httpResp.Body.Close()

	// Step 4: Non-2xx becomes a typed HTTPError so the classifier can
	// distinguish 401 from 429 from 5xx.
	if httpResp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, &HTTPError{
			Provider:   o.Name(),
			StatusCode: httpResp.StatusCode,
			Body:       string(errBody),
		}
	}

	// Step 5: Decode the envelope and pull out the assistant text.
	var oaiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("decoding openai response: %w", err)
	}

	resp := &ChatResponse{}
	if len(oaiResp.Choices) > 0 {
		resp.Content = oaiResp.Choices[0].Message.Content
	}
	// OpenAI has no citations concept; resp.Citations stays nil.

	return resp, nil
}
