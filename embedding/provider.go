package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// HTTPProvider generates embeddings through an OpenAI-compatible embeddings
// endpoint.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	client  *http.Client
}

// HTTPOptions configures an HTTPProvider. Zero values fall back to sensible
// defaults.
type HTTPOptions struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Model is the embedding model name. Default: text-embedding-3-small.
	Model string

	// Dims is the expected vector dimension. Default: 1536.
	Dims int

	// Timeout bounds each request. Default: 30s.
	Timeout time.Duration
}

// NewHTTPProvider creates a provider for an OpenAI-compatible embeddings API.
func NewHTTPProvider(opts HTTPOptions) *HTTPProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-3-small"
	}
	if opts.Dims == 0 {
		opts.Dims = 1536
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &HTTPProvider{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		model:   opts.Model,
		dims:    opts.Dims,
		client:  &http.Client{Timeout: opts.Timeout},
	}
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Generate returns the embedding for one text.
func (p *HTTPProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.GenerateBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// GenerateBatch returns one embedding per input text, in order.
func (p *HTTPProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Input: texts, Model: p.model})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding: API error %d: %s", resp.StatusCode, string(b))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: expected %d vectors, got %d", len(texts), len(result.Data))
	}

	vecs := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		if len(d.Embedding) != p.dims {
			return nil, fmt.Errorf("embedding: expected dimension %d, got %d", p.dims, len(d.Embedding))
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// Dims reports the configured vector dimension.
func (p *HTTPProvider) Dims() int { return p.dims }

// SimulatedProvider derives deterministic pseudo-embeddings from a SHA-256
// hash of the input text. Equal texts produce equal vectors; nothing more is
// guaranteed. It stands in for a real model in tests and offline development.
type SimulatedProvider struct {
	dims int
}

// NewSimulatedProvider creates a simulated provider with the given dimension.
// A non-positive dimension defaults to 128.
func NewSimulatedProvider(dims int) *SimulatedProvider {
	if dims <= 0 {
		dims = 128
	}
	return &SimulatedProvider{dims: dims}
}

// Generate returns a unit-length pseudo-embedding derived from the text.
func (p *SimulatedProvider) Generate(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dims)
	seed := sha256.Sum256([]byte(text))

	// Expand the digest into dims values, re-hashing every 8 floats.
	var norm float64
	for i := 0; i < p.dims; i++ {
		if i > 0 && i%8 == 0 {
			seed = sha256.Sum256(seed[:])
		}
		bits := binary.LittleEndian.Uint32(seed[(i%8)*4:])
		// Map to [-1, 1).
		v := float64(int32(bits)) / float64(math.MaxInt32)
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// GenerateBatch returns one pseudo-embedding per input text.
func (p *SimulatedProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Generate(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Dims reports the configured vector dimension.
func (p *SimulatedProvider) Dims() int { return p.dims }
