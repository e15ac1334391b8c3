package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/foyerlabs/foyer/internal/family"
	"github.com/foyerlabs/foyer/internal/health"
	"github.com/foyerlabs/foyer/internal/observe"
	"github.com/foyerlabs/foyer/pkg/provider/llm"
)

// maxUploadBytes bounds the multipart form kept in memory per request,
// mirroring the voice sidecar's own limit.
const maxUploadBytes = 32 << 20

// probeTimeout bounds each sidecar health check during /health fan-out.
const probeTimeout = 5 * time.Second

// VoiceService is the slice of the voice sidecar the gateway consumes.
type VoiceService interface {
	Process(ctx context.Context, filename string, wav []byte) (*VoiceResult, error)
	Health(ctx context.Context) (time.Duration, error)
}

// ChatService is the slice of the LLM sidecar the gateway consumes.
type ChatService interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatReply, error)
	Health(ctx context.Context) (time.Duration, error)
}

// LearnService is the slice of the learning sidecar the gateway consumes.
type LearnService interface {
	Submit(ctx context.Context, userID, content, source string) (*SubmitReply, error)
	Health(ctx context.Context) (time.Duration, error)
}

// Server exposes the household-facing HTTP API:
//
//	POST /chat
//	POST /voice
//	POST /learn
//	GET  /health
//	GET  /healthz, /readyz, /metrics
type Server struct {
	voice    VoiceService
	chat     ChatService
	learn    LearnService
	registry *family.Registry
	probes   *health.Handler
}

// NewServer wires the gateway's HTTP surface around the three sidecar
// clients. Request metrics come from [observe.Middleware] and the
// clients' own provider counters; the server adds no instruments.
func NewServer(voice VoiceService, chat ChatService, learn LearnService, registry *family.Registry) *Server {
	return &Server{
		voice:    voice,
		chat:     chat,
		learn:    learn,
		registry: registry,
		// The gateway holds no state of its own; it is live and ready
		// as soon as it listens. Sidecar reachability is /health's job.
		probes: health.New(),
	}
}

// Handler returns the route table. Wrap it with [observe.Middleware] in
// main so requests carry correlation IDs and HTTP metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /voice", s.handleVoice)
	mux.HandleFunc("POST /learn", s.handleLearn)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.probes.Register(mux)
	return mux
}

type chatWireRequest struct {
	UserID  string        `json:"user_id"`
	Message string        `json:"message"`
	History []llm.Message `json:"conversation_history"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatWireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", "")
		return
	}
	if _, ok := s.registry.Get(req.UserID); !ok {
		observe.Logger(r.Context()).Warn("gateway: unknown user_id", "user_id", req.UserID)
		writeError(w, http.StatusBadRequest, "invalid user_id",
			"user_id must be one of: "+strings.Join(s.registry.UserIDs(), ", "))
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required", "")
		return
	}

	reply, err := s.chat.Chat(r.Context(), ChatRequest{
		UserID:  req.UserID,
		Message: req.Message,
		History: req.History,
	})
	if err != nil {
		s.sidecarError(w, r, err, "llm sidecar unavailable")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// Voice responses for the two short-circuit outcomes keep the original
// minimal shape: nothing beyond the status (and the rejection score) is
// revealed about an utterance the household did not accept.
type voiceNoSpeechResponse struct {
	Status string `json:"status"`
}

type voiceRejectedResponse struct {
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
}

type voiceChatResponse struct {
	Status       string   `json:"status"`
	UserID       string   `json:"user_id"`
	Confidence   float64  `json:"confidence"`
	Transcript   string   `json:"transcript"`
	Response     string   `json:"response"`
	ModelUsed    string   `json:"model_used"`
	Fallback     bool     `json:"fallback"`
	MemoriesUsed []string `json:"memories_used,omitempty"`
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", err.Error())
		return
	}
	defer file.Close()

	wav, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read audio file", err.Error())
		return
	}

	filename := header.Filename
	if filename == "" {
		filename = "audio.wav"
	}

	result, err := s.voice.Process(r.Context(), filename, wav)
	if err != nil {
		s.sidecarError(w, r, err, "voice sidecar unavailable")
		return
	}

	log := observe.Logger(r.Context())
	switch result.Status {
	case StatusNoSpeech:
		log.Info("gateway: no speech detected")
		writeJSON(w, http.StatusOK, voiceNoSpeechResponse{Status: result.Status})

	case StatusRejected:
		log.Info("gateway: speaker rejected", "confidence", result.Confidence)
		writeJSON(w, http.StatusOK, voiceRejectedResponse{
			Status:     result.Status,
			Confidence: result.Confidence,
		})

	case StatusIdentified, StatusFallback:
		log.Info("gateway: speaker accepted",
			"status", result.Status,
			"user_id", result.UserID,
			"confidence", result.Confidence)

		// Voice turns carry no conversation history; each utterance
		// stands alone.
		reply, err := s.chat.Chat(r.Context(), ChatRequest{
			UserID:  result.UserID,
			Message: result.Transcript,
		})
		if err != nil {
			s.sidecarError(w, r, err, "llm sidecar unavailable")
			return
		}
		writeJSON(w, http.StatusOK, voiceChatResponse{
			Status:       result.Status,
			UserID:       result.UserID,
			Confidence:   result.Confidence,
			Transcript:   result.Transcript,
			Response:     reply.Response,
			ModelUsed:    reply.ModelUsed,
			Fallback:     result.Status == StatusFallback,
			MemoriesUsed: reply.MemoriesUsed,
		})

	default:
		log.Error("gateway: unknown voice status", "status", result.Status)
		writeError(w, http.StatusInternalServerError, "unexpected voice status", result.Status)
	}
}

type learnWireRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	var req learnWireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", "")
		return
	}
	if _, ok := s.registry.Get(req.UserID); !ok {
		observe.Logger(r.Context()).Warn("gateway: unknown user_id", "user_id", req.UserID)
		writeError(w, http.StatusBadRequest, "invalid user_id",
			"user_id must be one of: "+strings.Join(s.registry.UserIDs(), ", "))
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required", "")
		return
	}

	reply, err := s.learn.Submit(r.Context(), req.UserID, req.Content, req.Source)
	if err != nil {
		s.sidecarError(w, r, err, "learning sidecar unavailable")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// sidecarError maps a failed sidecar call onto the caller's response. A
// 4xx from the sidecar means the request itself was rejected and is
// relayed verbatim; everything else (transport failures, open breakers,
// sidecar 5xx) collapses to 503 so the caller knows to retry later.
func (s *Server) sidecarError(w http.ResponseWriter, r *http.Request, err error, unavailableMsg string) {
	var se *StatusError
	if errors.As(err, &se) && se.ClientCaused() {
		observe.Logger(r.Context()).Warn("gateway: sidecar rejected request",
			"service", se.Service, "status", se.Status)
		relay(w, se)
		return
	}
	observe.Logger(r.Context()).Error("gateway: sidecar request failed", "error", err)
	writeError(w, http.StatusServiceUnavailable, unavailableMsg, err.Error())
}

// relay writes a sidecar's own error reply through unchanged.
func relay(w http.ResponseWriter, se *StatusError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(se.Status)
	w.Write(se.Body)
}

type sidecarHealth struct {
	Status    string  `json:"status"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
}

type healthResponse struct {
	Status   string                   `json:"status"`
	Sidecars map[string]sidecarHealth `json:"sidecars"`
}

// handleHealth probes all three sidecars concurrently and aggregates:
// every sidecar reachable is "ok", none is "error", anything between is
// "degraded". The document always answers 200; the verdict is in the
// body.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]func(context.Context) (time.Duration, error){
		"voice":    s.voice.Health,
		"llm":      s.chat.Health,
		"learning": s.learn.Health,
	}

	var (
		mu       sync.Mutex
		sidecars = make(map[string]sidecarHealth, len(checks))
	)
	var g errgroup.Group
	for name, probe := range checks {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()

			latency, err := probe(ctx)
			h := sidecarHealth{Status: "ok", LatencyMs: float64(latency.Microseconds()) / 1000}
			if err != nil {
				observe.Logger(r.Context()).Warn("gateway: sidecar unreachable",
					"sidecar", name, "error", err)
				h = sidecarHealth{Status: "unreachable"}
			}
			mu.Lock()
			sidecars[name] = h
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	healthy := 0
	for _, h := range sidecars {
		if h.Status == "ok" {
			healthy++
		}
	}
	status := "degraded"
	switch healthy {
	case len(checks):
		status = "ok"
	case 0:
		status = "error"
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: status, Sidecars: sidecars})
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, errorResponse{Error: msg, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"response encoding failed"}`, http.StatusInternalServerError)
	}
}
