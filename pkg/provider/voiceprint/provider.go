// Package voiceprint defines the Encoder interface for speaker-embedding
// extraction.
//
// A voiceprint encoder turns an utterance into a fixed-length embedding
// vector that places utterances from the same speaker close together in
// vector space. The voice pipeline compares each incoming utterance's
// embedding against the enrolled family fingerprints by cosine similarity;
// the enrollment tool averages several sample embeddings into one
// fingerprint per user.
//
// Implementations must be safe for concurrent use.
package voiceprint

import "context"

// Encoder is the abstraction over any speaker-embedding backend.
type Encoder interface {
	// Encode computes the embedding of one mono utterance. samples are
	// normalized float32 values in [-1, 1] at the given rate. The returned
	// vector has exactly Dimensions() elements.
	Encode(ctx context.Context, samples []float32, sampleRate int) ([]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int
}
