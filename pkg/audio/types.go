// Package audio provides the PCM frame type shared by the voice pipeline and
// its providers, a RIFF/WAV codec for uploads, and sample-format conversion
// helpers (channel downmix, resampling, int16 ↔ float32).
//
// All PCM data is 16-bit signed little-endian unless a function documents
// otherwise. Pipeline math (VAD, speaker embeddings) runs on []float32 in
// [-1, 1]; the converters in this package bridge the two representations.
package audio

import "time"

// Frame is a contiguous chunk of 16-bit little-endian PCM audio together
// with its format. A decoded upload is one Frame; providers receive Frames
// and never re-negotiate the format mid-call.
type Frame struct {
	// Data holds interleaved 16-bit LE samples (2 bytes per sample per channel).
	Data []byte

	// SampleRate in Hz (e.g. 16000 for speech models, 44100 for consumer WAVs).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	// Zero for one-shot uploads.
	Timestamp time.Duration
}

// Duration returns the play time of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Samples returns the number of per-channel sample points in the frame.
func (f Frame) Samples() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Data) / 2 / f.Channels
}
