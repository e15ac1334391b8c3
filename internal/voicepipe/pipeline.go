// Package voicepipe implements the voice sidecar's processing pipeline:
// voice-activity detection, speaker identification against the enrolled
// family fingerprints, transcription, and the access audit log.
//
// The pipeline is deliberately forgiving at the edges — a missing VAD
// assumes speech, a missing or failing transcriber yields an empty
// transcript — but strict in the middle: without a usable speaker
// identification the utterance is rejected and never transcribed, so
// nothing an unknown voice says reaches the household assistant.
package voicepipe

import (
	"context"
	"log/slog"
	"math"

	"github.com/foyerlabs/foyer/internal/observe"
	"github.com/foyerlabs/foyer/internal/transcript"
	"github.com/foyerlabs/foyer/pkg/audio"
	"github.com/foyerlabs/foyer/pkg/provider/stt"
	"github.com/foyerlabs/foyer/pkg/provider/vad"
)

// Pipeline outcome statuses.
const (
	StatusIdentified = "identified"
	StatusFallback   = "fallback"
	StatusRejected   = "rejected"
	StatusNoSpeech   = "no_speech"
)

// Result is the outcome of one pipeline invocation, serialized verbatim as
// the /voice/process response.
type Result struct {
	Status               string  `json:"status"`
	UserID               string  `json:"user_id,omitempty"`
	Confidence           float64 `json:"confidence"`
	Fallback             bool    `json:"fallback"`
	FallbackReason       string  `json:"fallback_reason,omitempty"`
	Transcript           string  `json:"transcript"`
	Language             string  `json:"language,omitempty"`
	AudioDurationSeconds float64 `json:"audio_duration_seconds"`
	SpeechRatio          float64 `json:"speech_ratio"`
}

// PipelineOption configures optional pipeline stages.
type PipelineOption func(*Pipeline)

// WithVAD sets the voice-activity detector. Without one the pipeline
// assumes every clip contains speech.
func WithVAD(v vad.Engine) PipelineOption {
	return func(p *Pipeline) {
		p.vad = v
	}
}

// WithTranscriber sets the speech-to-text provider. Without one, results
// carry an empty transcript and language "unknown".
func WithTranscriber(t stt.Provider) PipelineOption {
	return func(p *Pipeline) {
		p.transcriber = t
	}
}

// WithCorrector enables family-vocabulary transcript correction.
func WithCorrector(c *transcript.Corrector) PipelineOption {
	return func(p *Pipeline) {
		p.corrector = c
	}
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// Pipeline drives VAD → speaker ID → transcription for one utterance at a
// time and appends one audit entry per invocation. It is safe for
// concurrent use.
type Pipeline struct {
	speaker     *SpeakerIdentifier
	audit       *AuditLog
	vad         vad.Engine
	transcriber stt.Provider
	corrector   *transcript.Corrector
	metrics     *observe.Metrics
}

// NewPipeline builds a pipeline around the speaker identifier and audit
// log; the remaining stages are optional.
func NewPipeline(speaker *SpeakerIdentifier, audit *AuditLog, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		speaker: speaker,
		audit:   audit,
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs the full pipeline over one decoded utterance.
//
// Clips without speech return immediately as no_speech; rejected speakers
// are never transcribed. Transcription failures soften to an empty
// transcript with language "unknown" — by then the speaker is known, and
// the caller can still act on that.
func (p *Pipeline) Process(ctx context.Context, frame audio.Frame) Result {
	duration := round2(frame.Duration().Seconds())

	hasSpeech, ratio := true, 0.0
	if p.vad != nil {
		res, err := p.vad.Analyze(frame)
		if err != nil {
			slog.Warn("voice pipeline: vad failed, assuming speech", "err", err)
		} else {
			hasSpeech, ratio = res.HasSpeech, res.SpeechRatio
		}
	}
	if !hasSpeech {
		return p.finish(ctx, Result{
			Status:               StatusNoSpeech,
			AudioDurationSeconds: duration,
			SpeechRatio:          round4(ratio),
		})
	}

	id := p.speaker.Identify(ctx, frame)
	if id.UserID == "" {
		return p.finish(ctx, Result{
			Status:               StatusRejected,
			Confidence:           round4(id.Confidence),
			AudioDurationSeconds: duration,
			SpeechRatio:          round4(ratio),
		})
	}

	text, language := "", "unknown"
	if p.transcriber != nil {
		tr, err := p.transcriber.Transcribe(ctx, frame)
		switch {
		case err != nil:
			slog.Warn("voice pipeline: transcription failed", "user_id", id.UserID, "err", err)
		default:
			text = tr.Text
			if tr.Language != "" {
				language = tr.Language
			}
		}
	}
	if p.corrector != nil && text != "" {
		corrected, corrections := p.corrector.Correct(text)
		if len(corrections) > 0 {
			slog.Debug("voice pipeline: transcript corrected",
				"user_id", id.UserID, "corrections", len(corrections))
			text = corrected
		}
	}

	status := StatusIdentified
	if id.Fallback {
		status = StatusFallback
	}
	return p.finish(ctx, Result{
		Status:               status,
		UserID:               id.UserID,
		Confidence:           round4(id.Confidence),
		Fallback:             id.Fallback,
		FallbackReason:       id.FallbackReason,
		Transcript:           text,
		Language:             language,
		AudioDurationSeconds: duration,
		SpeechRatio:          round4(ratio),
	})
}

// finish records the decision metric and the audit entry, then returns the
// result unchanged. Audit failures are logged, never surfaced: the caller
// already has an answer for the user.
func (p *Pipeline) finish(ctx context.Context, r Result) Result {
	p.metrics.RecordVoiceDecision(ctx, r.Status)
	if err := p.audit.Record(AuditEntry{
		Event:                r.Status,
		UserID:               r.UserID,
		Confidence:           r.Confidence,
		FallbackReason:       r.FallbackReason,
		AudioDurationSeconds: r.AudioDurationSeconds,
	}); err != nil {
		slog.Error("voice pipeline: audit write failed", "err", err)
	}
	return r
}

// HealthStatus is the /health document of the voice sidecar. The keys are
// fixed by contract with the gateway and the ops dashboards.
type HealthStatus struct {
	Status        string   `json:"status"`
	VAD           string   `json:"vad"`
	SpeakerID     string   `json:"speaker_id"`
	Transcription string   `json:"transcription"`
	LoadedUsers   []string `json:"loaded_users"`
	WhisperModel  string   `json:"whisper_model"`
}

// Health reports per-component status. The aggregate is "error" only when
// speaker identification is unusable — everything else merely degrades.
func (p *Pipeline) Health() HealthStatus {
	vadStatus := "ok"
	if p.vad == nil {
		vadStatus = "error"
	}
	sttStatus, model := "ok", ""
	if p.transcriber == nil {
		sttStatus = "error"
	} else {
		model = p.transcriber.ModelID()
	}
	speakerStatus := p.speaker.Status()

	status := "ok"
	switch {
	case speakerStatus == "error":
		status = "error"
	case speakerStatus == "degraded" || vadStatus != "ok" || sttStatus != "ok":
		status = "degraded"
	}

	return HealthStatus{
		Status:        status,
		VAD:           vadStatus,
		SpeakerID:     speakerStatus,
		Transcription: sttStatus,
		LoadedUsers:   p.speaker.prints.Loaded(),
		WhisperModel:  model,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
