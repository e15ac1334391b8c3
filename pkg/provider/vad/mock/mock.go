// Package mock provides a test double for the vad.Engine interface.
package mock

import (
	"sync"

	"github.com/foyerlabs/foyer/pkg/audio"
	"github.com/foyerlabs/foyer/pkg/provider/vad"
)

var _ vad.Engine = (*Engine)(nil)

// Engine is a mock vad.Engine. Configure the exported fields before use;
// calls are recorded for later inspection. Engine is safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	// Result is returned by Analyze when AnalyzeFunc is nil.
	Result vad.Result
	// Err is returned by Analyze when AnalyzeFunc is nil.
	Err error
	// AnalyzeFunc, if set, computes the result of each Analyze call.
	AnalyzeFunc func(frame audio.Frame) (vad.Result, error)

	// Frames records the frame of each Analyze call in order.
	Frames []audio.Frame
}

// Analyze implements vad.Engine.
func (e *Engine) Analyze(frame audio.Frame) (vad.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Frames = append(e.Frames, frame)
	if e.AnalyzeFunc != nil {
		return e.AnalyzeFunc(frame)
	}
	return e.Result, e.Err
}

// CallCount returns the number of Analyze calls made so far.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Frames)
}
