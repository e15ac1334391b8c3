// Package energy implements a frame-energy voice activity detector.
//
// The detector splits the utterance into short analysis frames, computes the
// RMS energy of each, and classifies the clip as speech when enough frames
// exceed the energy threshold. It needs no model files and runs in
// microseconds, which is exactly what the always-on voice sidecar wants as
// its first pipeline stage.
package energy

import (
	"errors"
	"math"

	"github.com/foyerlabs/foyer/pkg/audio"
	"github.com/foyerlabs/foyer/pkg/provider/vad"
)

const (
	defaultFrameMs         = 30
	defaultEnergyThreshold = 0.012
	defaultMinSpeechRatio  = 0.1
)

var _ vad.Engine = (*Engine)(nil)

// Engine is an energy-based vad.Engine. It is stateless between calls and
// safe for concurrent use.
type Engine struct {
	frameMs         int
	energyThreshold float64
	minSpeechRatio  float64
}

// Option is a functional option for Engine.
type Option func(*Engine)

// WithFrameMs sets the analysis frame duration in milliseconds. Defaults to
// 30 ms.
func WithFrameMs(ms int) Option {
	return func(e *Engine) {
		if ms > 0 {
			e.frameMs = ms
		}
	}
}

// WithEnergyThreshold sets the RMS energy above which a frame counts as
// speech, on normalized samples in [-1, 1]. Defaults to 0.012.
func WithEnergyThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 {
			e.energyThreshold = threshold
		}
	}
}

// WithMinSpeechRatio sets the fraction of speech frames required for the
// clip to count as containing speech. Defaults to 0.1.
func WithMinSpeechRatio(ratio float64) Option {
	return func(e *Engine) {
		if ratio > 0 {
			e.minSpeechRatio = ratio
		}
	}
}

// New constructs an energy Engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{
		frameMs:         defaultFrameMs,
		energyThreshold: defaultEnergyThreshold,
		minSpeechRatio:  defaultMinSpeechRatio,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Analyze implements vad.Engine. The frame is downmixed to mono before
// analysis; an empty clip yields no speech.
func (e *Engine) Analyze(frame audio.Frame) (vad.Result, error) {
	if frame.SampleRate <= 0 {
		return vad.Result{}, errors.New("energy vad: frame has no sample rate")
	}

	data := frame.Data
	if frame.Channels == 2 {
		data = audio.StereoToMono(data)
	}
	samples := audio.Float32Samples(data)
	if len(samples) == 0 {
		return vad.Result{}, nil
	}

	frameSamples := frame.SampleRate * e.frameMs / 1000
	if frameSamples <= 0 {
		frameSamples = len(samples)
	}

	var speechFrames, totalFrames int
	for start := 0; start < len(samples); start += frameSamples {
		end := min(start+frameSamples, len(samples))
		totalFrames++
		if rms(samples[start:end]) > e.energyThreshold {
			speechFrames++
		}
	}

	ratio := float64(speechFrames) / float64(totalFrames)
	return vad.Result{
		HasSpeech:   ratio >= e.minSpeechRatio,
		SpeechRatio: ratio,
	}, nil
}

func rms(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
