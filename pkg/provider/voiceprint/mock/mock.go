// Package mock provides a test double for the voiceprint.Encoder interface.
package mock

import (
	"context"
	"sync"

	"github.com/foyerlabs/foyer/pkg/provider/voiceprint"
)

var _ voiceprint.Encoder = (*Encoder)(nil)

// Encoder is a mock voiceprint.Encoder. Configure the exported fields before
// use; calls are recorded for later inspection. Encoder is safe for
// concurrent use.
type Encoder struct {
	mu sync.Mutex

	// Embedding is returned by Encode when EncodeFunc is nil.
	Embedding []float32
	// Err is returned by Encode when EncodeFunc is nil.
	Err error
	// EncodeFunc, if set, computes the result of each Encode call.
	EncodeFunc func(samples []float32, sampleRate int) ([]float32, error)
	// Dims is returned by Dimensions. Defaults to len(Embedding) when zero.
	Dims int

	// Calls records the sample count and rate of each Encode call in order.
	Calls []EncodeCall
}

// EncodeCall captures the arguments of one Encode invocation.
type EncodeCall struct {
	SampleCount int
	SampleRate  int
}

// Encode implements voiceprint.Encoder.
func (e *Encoder) Encode(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Calls = append(e.Calls, EncodeCall{SampleCount: len(samples), SampleRate: sampleRate})
	if e.EncodeFunc != nil {
		return e.EncodeFunc(samples, sampleRate)
	}
	return e.Embedding, e.Err
}

// Dimensions implements voiceprint.Encoder.
func (e *Encoder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Dims > 0 {
		return e.Dims
	}
	return len(e.Embedding)
}

// CallCount returns the number of Encode calls made so far.
func (e *Encoder) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}
