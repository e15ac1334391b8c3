// Package mock provides a test double for the stt.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/foyerlabs/foyer/pkg/audio"
	"github.com/foyerlabs/foyer/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// Provider is a mock stt.Provider. Configure the exported fields before use;
// calls are recorded for later inspection. Provider is safe for concurrent
// use.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when TranscribeFunc is nil.
	Result stt.Transcript
	// Err is returned by Transcribe when TranscribeFunc is nil.
	Err error
	// TranscribeFunc, if set, computes the result of each Transcribe call.
	TranscribeFunc func(frame audio.Frame) (stt.Transcript, error)
	// ModelIDValue is returned by ModelID. Defaults to "mock" when empty.
	ModelIDValue string

	// Frames records the frame of each Transcribe call in order.
	Frames []audio.Frame
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, frame audio.Frame) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Frames = append(p.Frames, frame)
	if p.TranscribeFunc != nil {
		return p.TranscribeFunc(frame)
	}
	return p.Result, p.Err
}

// ModelID implements stt.Provider.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ModelIDValue == "" {
		return "mock"
	}
	return p.ModelIDValue
}

// CallCount returns the number of Transcribe calls made so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Frames)
}
