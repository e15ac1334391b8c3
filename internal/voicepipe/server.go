package voicepipe

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foyerlabs/foyer/internal/health"
	"github.com/foyerlabs/foyer/internal/observe"
	"github.com/foyerlabs/foyer/pkg/audio"
)

// maxUploadBytes bounds the multipart form kept in memory per request.
// A minute of 48 kHz stereo PCM is under 12 MiB, so 32 MiB leaves
// headroom for long utterances without letting a client exhaust RAM.
const maxUploadBytes = 32 << 20

// Server exposes the voice sidecar's HTTP API:
//
//	POST /voice/process
//	POST /voice/reload-embeddings
//	GET  /health
//	GET  /healthz, /readyz, /metrics
type Server struct {
	pipeline *Pipeline
	prints   *Fingerprints
	metrics  *observe.Metrics
	probes   *health.Handler
}

// NewServer wires the HTTP surface around a pipeline and its fingerprint
// table. Passing nil metrics selects [observe.DefaultMetrics].
func NewServer(pipeline *Pipeline, prints *Fingerprints, metrics *observe.Metrics) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		pipeline: pipeline,
		prints:   prints,
		metrics:  metrics,
		probes: health.New(health.Checker{
			Name:  "fingerprints",
			Check: prints.Ready,
		}),
	}
}

// Handler returns the route table. Wrap it with [observe.Middleware] in
// main so requests carry correlation IDs and HTTP metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /voice/process", s.handleProcess)
	mux.HandleFunc("POST /voice/reload-embeddings", s.handleReload)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.probes.Register(mux)
	return mux
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	header := singleFile(r.MultipartForm)
	if header == nil {
		writeError(w, http.StatusBadRequest, "exactly one audio file is required", "")
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".wav") {
		writeError(w, http.StatusBadRequest, "only WAV files are supported", "")
		return
	}

	f, err := header.Open()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audio processing failed", err.Error())
		return
	}
	defer f.Close()

	frame, err := audio.DecodeWAV(f)
	if err != nil {
		observe.Logger(r.Context()).Error("voice server: wav decode failed",
			"file", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "audio processing failed", err.Error())
		return
	}

	start := time.Now()
	result := s.pipeline.Process(r.Context(), frame)
	s.metrics.VoicePipelineDuration.Record(r.Context(), time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, result)
}

// singleFile returns the uploaded file when the form carries exactly
// one, regardless of the field name it arrived under.
func singleFile(form *multipart.Form) *multipart.FileHeader {
	var found *multipart.FileHeader
	for _, headers := range form.File {
		for _, h := range headers {
			if found != nil {
				return nil
			}
			found = h
		}
	}
	return found
}

type reloadResponse struct {
	Status       string   `json:"status"`
	LoadedUsers  []string `json:"loaded_users"`
	MissingUsers []string `json:"missing_users"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	loaded, missing := s.prints.Reload()
	observe.Logger(r.Context()).Info("voice server: fingerprints reloaded",
		"loaded", len(loaded), "missing", len(missing))
	writeJSON(w, http.StatusOK, reloadResponse{
		Status:       "reloaded",
		LoadedUsers:  loaded,
		MissingUsers: missing,
	})
}

// handleHealth reports the service-level health document. Degraded still
// answers 200 so the gateway keeps routing; only a dead speaker table
// takes the sidecar out of rotation.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	doc := s.pipeline.Health()
	status := http.StatusOK
	if doc.Status != "ok" && doc.Status != "degraded" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, doc)
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
