// Package embed populates fixed-dimension embedding columns for gold
// documents. Providers are interchangeable; all accept a batch of strings
// and return one vector per input.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/nucleus/homegraph/internal/config"
	"github.com/nucleus/homegraph/internal/fault"
)

// Provider is the minimal embed API.
type Provider interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name identifies the provider for the run report.
	Name() string
}

// New builds the configured provider. The timeout bounds each HTTP batch
// request; local providers ignore it.
func New(cfg config.Embedding, timeout time.Duration) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderVoyage:
		model := cfg.Model
		if model == "" {
			model = "voyage-3"
		}
		return &httpProvider{
			name:     config.ProviderVoyage,
			endpoint: "https://api.voyageai.com/v1/embeddings",
			apiKey:   cfg.APIKey,
			model:    model,
			client:   &http.Client{Timeout: timeout},
		}, nil
	case config.ProviderOpenAI:
		model := cfg.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		return &httpProvider{
			name:     config.ProviderOpenAI,
			endpoint: "https://api.openai.com/v1/embeddings",
			apiKey:   cfg.APIKey,
			model:    model,
			client:   &http.Client{Timeout: timeout},
		}, nil
	case config.ProviderLocal:
		return &localProvider{dim: cfg.Dimension}, nil
	case config.ProviderMock:
		return &mockProvider{dim: cfg.Dimension}, nil
	}
	return nil, fault.Newf(fault.CodeConfig, "unknown embedding provider %q", cfg.Provider)
}

// StatusError carries the HTTP status of a failed provider call so the
// batcher can distinguish transient failures (429, 5xx) from permanent ones.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding request failed: status=%d body=%s", e.Status, e.Body)
}

// Transient reports whether the call may succeed on retry.
func (e *StatusError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// httpProvider speaks the voyage/openai embeddings wire shape, which both
// vendors share: {"model": ..., "input": [...]} in, {"data": [{"embedding":
// [...]}]} out.
type httpProvider struct {
	name     string
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (p *httpProvider) Name() string { return p.name }

func (p *httpProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := json.Marshal(embedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if len(decoded.Data) != len(texts) {
		return nil, errors.New("embedding count mismatch")
	}
	out := make([][]float32, len(texts))
	for i, d := range decoded.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

// localProvider produces deterministic hashed bag-of-words embeddings
// without external services.
type localProvider struct {
	dim int
}

func (p *localProvider) Name() string { return config.ProviderLocal }

func (p *localProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if p.dim <= 0 {
		return nil, errors.New("invalid embedding dimension")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t, p.dim, true)
	}
	return out, nil
}

// mockProvider is the fully deterministic test provider: the vector is a
// pure function of the input text, L2-normalized so cosine similarity is
// well-defined.
type mockProvider struct {
	dim int
}

func (p *mockProvider) Name() string { return config.ProviderMock }

func (p *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if p.dim <= 0 {
		return nil, errors.New("invalid embedding dimension")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t, p.dim, true)
	}
	return out, nil
}

// hashEmbed folds word hashes into a fixed-length vector.
func hashEmbed(text string, dim int, normalize bool) []float32 {
	vec := make([]float32, dim)
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	for i := 0; i < dim; i++ {
		// xorshift over the text hash gives a stable pseudo-random vector
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		vec[i] = float32(int64(seed%2001)-1000) / 1000
	}
	if normalize {
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm > 0 {
			inv := float32(1 / math.Sqrt(norm))
			for i := range vec {
				vec[i] *= inv
			}
		}
	}
	return vec
}
