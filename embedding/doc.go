// Package embedding provides the pluggable text-embedding contract for the
// memory engine, similarity math shared by every tier, and the float32
// wire encoding used to persist vectors.
//
// The engine treats embedding generation as best-effort enrichment: a
// provider failure degrades to a zero vector rather than failing the storage
// operation (see Generate of the wrapping helper ZeroOnError).
//
// Two providers ship with the package:
//
//   - HTTPProvider talks to an OpenAI-compatible embeddings endpoint.
//   - SimulatedProvider derives a deterministic pseudo-embedding from a hash
//     of the input text. It exists for tests and offline development and is
//     explicitly a placeholder for a real model call; its vectors carry no
//     semantic meaning beyond equal-text equality.
package embedding
