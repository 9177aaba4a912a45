// Package jina provides a client for the Jina AI embeddings API.
package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/shelfmatch/internal/resilience"
)

// Defaults for the hosted API.
const (
	DefaultBaseURL = "https://api.jina.ai"
	DefaultModel   = "jina-embeddings-v3"
	DefaultTask    = "text-matching"
)

// Client defines the Jina embeddings operations.
type Client interface {
	// Embed returns one embedding per input, in input order.
	Embed(ctx context.Context, inputs []string) (*EmbedResponse, error)
}

// EmbedRequest is the body of POST /v1/embeddings.
type EmbedRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Normalized    bool     `json:"normalized"`
	EmbeddingType string   `json:"embedding_type"`
	Input         []string `json:"input"`
}

// EmbedResponse is the parsed embeddings response.
type EmbedResponse struct {
	Model string      `json:"model"`
	Data  []Embedding `json:"data"`
	Usage Usage       `json:"usage"`
}

// Embedding is one vector in an EmbedResponse.
type Embedding struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// Usage tracks token consumption.
type Usage struct {
	TotalTokens  int `json:"total_tokens"`
	PromptTokens int `json:"prompt_tokens"`
}

// Vectors returns the embeddings ordered by input index.
func (r *EmbedResponse) Vectors() [][]float32 {
	data := append([]Embedding(nil), r.Data...)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithModel selects the embedding model.
func WithModel(model string) Option {
	return func(c *httpClient) { c.model = model }
}

// WithTask selects the task adapter, e.g. "text-matching".
func WithTask(task string) Option {
	return func(c *httpClient) { c.task = task }
}

// WithDimensions truncates embeddings to n dimensions. Zero keeps the model
// default.
func WithDimensions(n int) Option {
	return func(c *httpClient) { c.dimensions = n }
}

// WithRate limits requests per second. Zero disables limiting.
func WithRate(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = NewAdaptiveLimiter(rate.Limit(perSec), 1)
		}
	}
}

type httpClient struct {
	apiKey     string
	baseURL    string
	model      string
	task       string
	dimensions int
	http       *http.Client
	limiter    *AdaptiveLimiter
}

// NewClient creates a new Jina embeddings client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		task:    DefaultTask,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed issues a single request. Retries are left to the caller; transport
// failures, 429 and 5xx come back as resilience.TransientError, other non-200
// statuses as resilience.PermanentError. A malformed body is neither.
func (c *httpClient) Embed(ctx context.Context, inputs []string) (*EmbedResponse, error) {
	if len(inputs) == 0 {
		return &EmbedResponse{Model: c.model}, nil
	}

	payload, err := json.Marshal(EmbedRequest{
		Model:         c.model,
		Task:          c.task,
		Dimensions:    c.dimensions,
		Normalized:    true,
		EmbeddingType: "float",
		Input:         inputs,
	})
	if err != nil {
		return nil, eris.Wrap(err, "jina: marshal embed request")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "jina: rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "jina: create embed request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		err = eris.Wrap(err, "jina: embed request failed")
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, resilience.NewTransientError(err, 0)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "jina: read response body"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("jina: embed status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests && c.limiter != nil {
			c.limiter.OnRateLimit()
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, resilience.Permanent(statusErr)
	}
	if c.limiter != nil {
		c.limiter.OnSuccess()
	}

	var result EmbedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal embed response")
	}
	if len(result.Data) != len(inputs) {
		return nil, eris.Errorf("jina: got %d embeddings for %d inputs", len(result.Data), len(inputs))
	}

	return &result, nil
}
