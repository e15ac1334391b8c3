package voicepipe

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/foyerlabs/foyer/pkg/audio"
	"github.com/foyerlabs/foyer/pkg/provider/voiceprint"
)

// Identification is the outcome of matching one utterance against the
// enrolled fingerprints. An empty UserID means the speaker was rejected.
type Identification struct {
	UserID         string
	Confidence     float64
	Fallback       bool
	FallbackReason string
}

// SpeakerIdentifier scores utterance embeddings against every loaded
// fingerprint and applies the three-tier confidence policy:
//
//   - best ≥ high threshold: identified as the best match.
//   - best < low threshold: rejected.
//   - in between: fall back to the single candidate above the low
//     threshold, or — with several candidates — to the one earliest in the
//     hierarchy (ordered most- to least-restrictive), so an ambiguous match
//     never grants a child's voice an adult's profile in reverse.
//
// Both thresholds are inclusive: a score exactly at the high threshold
// identifies, exactly at the low threshold falls back.
type SpeakerIdentifier struct {
	encoder   voiceprint.Encoder
	prints    *Fingerprints
	high, low float64
	hierarchy []string
}

// NewSpeakerIdentifier wires an embedding encoder to the fingerprint table.
// hierarchy orders user ids most-restrictive first.
func NewSpeakerIdentifier(encoder voiceprint.Encoder, prints *Fingerprints, high, low float64, hierarchy []string) *SpeakerIdentifier {
	return &SpeakerIdentifier{
		encoder:   encoder,
		prints:    prints,
		high:      high,
		low:       low,
		hierarchy: slices.Clone(hierarchy),
	}
}

// Identify embeds the utterance and applies the decision policy. With no
// fingerprints loaded, or when embedding fails, the utterance is rejected
// with zero confidence rather than erroring the whole pipeline.
func (s *SpeakerIdentifier) Identify(ctx context.Context, frame audio.Frame) Identification {
	table := s.prints.Table()
	if len(table) == 0 {
		slog.Warn("speaker id: no fingerprints loaded, rejecting utterance")
		return Identification{}
	}

	norm := audio.ToMono16k(frame)
	embedding, err := s.encoder.Encode(ctx, audio.Float32Samples(norm.Data), norm.SampleRate)
	if err != nil {
		slog.Error("speaker id: embedding failed", "err", err)
		return Identification{}
	}

	scores := make(map[string]float64, len(table))
	bestUser, bestScore := "", -1.0
	for user, print := range table {
		score := cosineSimilarity(embedding, print)
		scores[user] = score
		// Ties break on user id to keep the outcome deterministic.
		if score > bestScore || (score == bestScore && user < bestUser) {
			bestUser, bestScore = user, score
		}
	}

	return s.decide(scores, bestUser, bestScore)
}

func (s *SpeakerIdentifier) decide(scores map[string]float64, bestUser string, bestScore float64) Identification {
	if bestScore >= s.high {
		return Identification{UserID: bestUser, Confidence: bestScore}
	}
	if bestScore < s.low {
		return Identification{Confidence: bestScore}
	}

	var candidates []string
	for user, score := range scores {
		if score >= s.low {
			candidates = append(candidates, user)
		}
	}
	slices.Sort(candidates)

	if len(candidates) == 1 {
		return Identification{
			UserID:         candidates[0],
			Confidence:     bestScore,
			Fallback:       true,
			FallbackReason: "single_candidate: " + candidates[0],
		}
	}

	return Identification{
		UserID:         s.mostRestrictive(candidates),
		Confidence:     bestScore,
		Fallback:       true,
		FallbackReason: fmt.Sprintf("ambiguous_candidates: [%s]", strings.Join(candidates, ", ")),
	}
}

// mostRestrictive returns the first hierarchy entry present in candidates,
// or the first candidate when the hierarchy covers none of them.
func (s *SpeakerIdentifier) mostRestrictive(candidates []string) string {
	for _, user := range s.hierarchy {
		if slices.Contains(candidates, user) {
			return user
		}
	}
	return candidates[0]
}

// Status reports "ok" when every expected fingerprint is loaded, "degraded"
// when some are missing, and "error" when none are.
func (s *SpeakerIdentifier) Status() string {
	if len(s.prints.Loaded()) == 0 {
		return "error"
	}
	if len(s.prints.Missing()) > 0 {
		return "degraded"
	}
	return "ok"
}

// cosineSimilarity clamps to [0, 1]: anti-correlated embeddings carry no
// more identification signal than orthogonal ones.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return math.Min(1, math.Max(0, dot/(math.Sqrt(normA)*math.Sqrt(normB))))
}
