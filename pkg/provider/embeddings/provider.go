// Package embeddings defines the Provider interface for text-embedding backends.
//
// An embeddings provider maps text to dense float32 vectors. The family memory
// store embeds every remembered fact once on write and embeds each search query
// once on read; all vectors in one deployment come from the same model so that
// cosine similarity is meaningful.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions). Vectors from different providers or
// models must never be mixed in one similarity computation.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns a
	// float32 slice of length Dimensions() or an error if the request fails or
	// ctx is cancelled. Text is passed to the model verbatim.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider. Constant for the lifetime of the Provider instance.
	Dimensions() int

	// ModelID returns the model identifier used for embeddings (e.g.
	// "all-minilm"), for logging and deployment sanity checks.
	ModelID() string
}
