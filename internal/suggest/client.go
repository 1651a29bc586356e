// Package suggest is the HTTP client for the external annotation
// suggester. The suggester is a black box: it takes document text and
// a label set and returns label + matched text + optional offsets +
// confidence. It may be down; callers degrade to an empty response.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"marginalia/api/internal/annotation"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns nil when baseURL is empty; the suggester is optional.
func New(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Request is a suggestion request for one document's text.
type Request struct {
	Text   string   `json:"text"`
	Task   string   `json:"task"`
	Labels []string `json:"labels,omitempty"`
	TopK   int      `json:"top_k"`
}

// Response carries the suggester's output plus its retrieval metadata.
type Response struct {
	Suggestions   []wireSuggestion `json:"suggestions"`
	ExemplarsUsed int              `json:"exemplars_used"`
}

// wireSuggestion matches the suggester's snake_case field names.
type wireSuggestion struct {
	Label      string  `json:"label"`
	Text       string  `json:"text"`
	SpanStart  *int    `json:"span_start"`
	SpanEnd    *int    `json:"span_end"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Exemplar is an approved annotation fed back to the suggester to
// improve future retrieval.
type Exemplar struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Label      string `json:"label"`
	SpanStart  int    `json:"span_start"`
	SpanEnd    int    `json:"span_end"`
	Context    string `json:"context"`
	Rationale  string `json:"rationale"`
}

// Health reports whether the suggester is reachable. Short timeout,
// never errors.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Suggest asks for annotation suggestions over the given text.
func (c *Client) Suggest(ctx context.Context, request Request) ([]annotation.Suggestion, int, error) {
	if request.Task == "" {
		request.Task = "ner"
	}
	var response Response
	if err := c.post(ctx, "/suggest", request, &response); err != nil {
		return nil, 0, err
	}
	suggestions := make([]annotation.Suggestion, 0, len(response.Suggestions))
	for _, item := range response.Suggestions {
		suggestions = append(suggestions, annotation.Suggestion{
			Label:      item.Label,
			Text:       item.Text,
			SpanStart:  item.SpanStart,
			SpanEnd:    item.SpanEnd,
			Confidence: item.Confidence,
			Rationale:  item.Rationale,
		})
	}
	return suggestions, response.ExemplarsUsed, nil
}

// AddExemplar feeds an approved annotation back to the suggester.
func (c *Client) AddExemplar(ctx context.Context, exemplar Exemplar) error {
	return c.post(ctx, "/exemplars", exemplar, nil)
}

// DeleteExemplar removes a previously added exemplar by text + label.
func (c *Client) DeleteExemplar(ctx context.Context, text, label string) error {
	payload := map[string]string{"text": text, "label": label}
	return c.post(ctx, "/exemplars/delete", payload, nil)
}

func (c *Client) post(ctx context.Context, path string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("suggester %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("suggester %s: unexpected status %d", path, resp.StatusCode)
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode suggester response: %w", err)
	}
	return nil
}
