package embedding

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// ErrDimensionMismatch is returned when two vectors of different lengths are
// compared.
var ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

// Provider generates fixed-dimension vectors for text. Implementations must
// return vectors of exactly Dims() elements for every input.
type Provider interface {
	// Generate returns the embedding vector for one text.
	Generate(ctx context.Context, text string) ([]float32, error)

	// GenerateBatch returns one embedding per input text, in order.
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dims reports the fixed vector dimension.
	Dims() int
}

// ZeroOnError wraps a provider so that generation failures degrade to a zero
// vector instead of propagating. Embedding is enrichment, not
// correctness-critical for storage; a record with a zero vector is still
// stored and searchable by structured filters.
type ZeroOnError struct {
	// Inner is the wrapped provider.
	Inner Provider

	// Logger receives a warning per degraded generation. Nil disables
	// logging.
	Logger *slog.Logger
}

// Generate returns the inner provider's vector, or a zero vector of the
// provider's dimension on failure.
func (z *ZeroOnError) Generate(ctx context.Context, text string) ([]float32, error) {
	vec, err := z.Inner.Generate(ctx, text)
	if err != nil {
		if z.Logger != nil {
			z.Logger.Warn("embedding generation failed, degrading to zero vector", "error", err)
		}
		return make([]float32, z.Inner.Dims()), nil
	}
	return vec, nil
}

// GenerateBatch degrades each failed text to a zero vector.
func (z *ZeroOnError) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := z.Inner.GenerateBatch(ctx, texts)
	if err != nil {
		if z.Logger != nil {
			z.Logger.Warn("batch embedding generation failed, degrading to zero vectors", "count", len(texts), "error", err)
		}
		vecs = make([][]float32, len(texts))
		for i := range vecs {
			vecs[i] = make([]float32, z.Inner.Dims())
		}
	}
	return vecs, nil
}

// Dims reports the inner provider's dimension.
func (z *ZeroOnError) Dims() int { return z.Inner.Dims() }

// Cosine computes cosine similarity between two vectors of equal dimension.
// The result lies in [-1, 1]. Zero vectors yield 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		af := float64(a[i])
		bf := float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// Euclidean computes a similarity score from Euclidean distance, mapped to
// (0, 1] via 1/(1+distance). Identical vectors score 1.
func Euclidean(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return 1 / (1 + math.Sqrt(sum)), nil
}

// Dot computes the raw dot product of two vectors of equal dimension.
func Dot(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot, nil
}

// Encode serializes a vector to its wire format: little-endian float32s.
// Every tier persists embeddings in this format.
func Encode(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// Decode deserializes the wire format produced by Encode.
func Decode(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding: blob length %d not a multiple of 4", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}
