// Package mock provides a scriptable embeddings.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/foyerlabs/foyer/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock embeddings.Provider. Configure the exported fields
// before use; calls are recorded and can be inspected afterwards. The zero
// value returns a nil vector for every Embed call.
//
// Provider is safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// EmbedResult is returned by Embed when EmbedFunc is nil.
	EmbedResult []float32
	// EmbedErr is returned by Embed when EmbedFunc is nil.
	EmbedErr error
	// EmbedFunc, if set, computes the result of each Embed call. It takes
	// precedence over EmbedResult and EmbedErr.
	EmbedFunc func(text string) ([]float32, error)
	// DimensionsValue is returned by Dimensions.
	DimensionsValue int
	// ModelIDValue is returned by ModelID. Defaults to "mock" when empty.
	ModelIDValue string

	// EmbedCalls records the text of each Embed call in order.
	EmbedCalls []string
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text)
	}
	return p.EmbedResult, p.EmbedErr
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ModelIDValue == "" {
		return "mock"
	}
	return p.ModelIDValue
}

// CallCount returns the number of Embed calls made so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.EmbedCalls)
}
