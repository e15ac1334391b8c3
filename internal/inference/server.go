package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foyerlabs/foyer/internal/family"
	"github.com/foyerlabs/foyer/internal/health"
	"github.com/foyerlabs/foyer/internal/observe"
	"github.com/foyerlabs/foyer/pkg/memory"
	"github.com/foyerlabs/foyer/pkg/provider/llm"
)

// defaultSearchTopK mirrors the chat recall depth for explicit searches.
const defaultSearchTopK = 5

// defaultAddSource labels memories added without an explicit source.
const defaultAddSource = "conversation"

// Server exposes the LLM sidecar's HTTP API:
//
//	POST   /chat
//	POST   /memory/add
//	POST   /memory/search
//	DELETE /memory/{user_id}/{memory_id}
//	GET    /classifier/explain
//	GET    /health
//	GET    /healthz, /readyz, /metrics
type Server struct {
	engine   *Engine
	store    memory.Store
	registry *family.Registry
	metrics  *observe.Metrics
	probes   *health.Handler
}

// NewServer wires the HTTP surface around an engine and its memory store.
// Passing nil metrics selects [observe.DefaultMetrics].
func NewServer(engine *Engine, store memory.Store, registry *family.Registry, metrics *observe.Metrics) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		engine:   engine,
		store:    store,
		registry: registry,
		metrics:  metrics,
		probes: health.New(health.Checker{
			Name:  "memory",
			Check: store.Healthy,
		}),
	}
}

// Handler returns the route table. Wrap it with [observe.Middleware] in
// main so requests carry correlation IDs and HTTP metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /memory/add", s.handleMemoryAdd)
	mux.HandleFunc("POST /memory/search", s.handleMemorySearch)
	mux.HandleFunc("DELETE /memory/{user_id}/{memory_id}", s.handleMemoryDelete)
	mux.HandleFunc("GET /classifier/explain", s.handleExplain)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.probes.Register(mux)
	return mux
}

// knownUser reports whether id names a family profile, optionally
// accepting the shared collection id.
func (s *Server) knownUser(id string, allowShared bool) bool {
	if _, ok := s.registry.Get(id); ok {
		return true
	}
	return allowShared && id == memory.SharedUser
}

type chatWireRequest struct {
	UserID              string        `json:"user_id"`
	Message             string        `json:"message"`
	ConversationHistory []llm.Message `json:"conversation_history"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatWireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !s.knownUser(req.UserID, false) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown user_id: %q", req.UserID), "")
		return
	}

	start := time.Now()
	result, err := s.engine.Chat(r.Context(), ChatRequest{
		UserID:  req.UserID,
		Message: req.Message,
		History: req.ConversationHistory,
	})
	s.metrics.ChatDuration.Record(r.Context(), time.Since(start).Seconds())

	if err != nil {
		var runtimeErr *RuntimeError
		switch {
		case errors.Is(err, memory.ErrUnknownUser):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown user_id: %q", req.UserID), "")
		case errors.As(err, &runtimeErr):
			observe.Logger(r.Context()).Warn("inference: runtime call failed", "user_id", req.UserID, "err", err)
			writeError(w, http.StatusServiceUnavailable, "inference failed", err.Error())
		default:
			observe.Logger(r.Context()).Error("inference: chat failed", "user_id", req.UserID, "err", err)
			writeError(w, http.StatusInternalServerError, "chat failed", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type memoryAddRequest struct {
	UserID   string            `json:"user_id"`
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata"`
}

type memoryAddResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleMemoryAdd(w http.ResponseWriter, r *http.Request) {
	var req memoryAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !s.knownUser(req.UserID, true) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown user_id: %q", req.UserID), "")
		return
	}
	if req.Source == "" {
		req.Source = defaultAddSource
	}

	id, err := s.store.Add(r.Context(), req.UserID, req.Content, req.Source, req.Metadata)
	if err != nil {
		s.metrics.RecordMemoryOp(r.Context(), "add", "error")
		observe.Logger(r.Context()).Error("inference: memory add failed", "user_id", req.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "memory add failed", err.Error())
		return
	}
	s.metrics.RecordMemoryOp(r.Context(), "add", "ok")

	writeJSON(w, http.StatusOK, memoryAddResponse{ID: id, Status: "added"})
}

type memorySearchRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	TopK   int    `json:"top_k"`
}

type memorySearchResponse struct {
	Results []memory.SearchResult `json:"results"`
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	var req memorySearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !s.knownUser(req.UserID, false) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown user_id: %q", req.UserID), "")
		return
	}
	if req.TopK <= 0 {
		req.TopK = defaultSearchTopK
	}

	results, err := s.store.Search(r.Context(), req.UserID, req.Query, req.TopK)
	if err != nil {
		s.metrics.RecordMemoryOp(r.Context(), "search", "error")
		observe.Logger(r.Context()).Error("inference: memory search failed", "user_id", req.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "memory search failed", err.Error())
		return
	}
	s.metrics.RecordMemoryOp(r.Context(), "search", "ok")

	if results == nil {
		results = []memory.SearchResult{}
	}
	writeJSON(w, http.StatusOK, memorySearchResponse{Results: results})
}

type memoryDeleteRequest struct {
	CallerID string `json:"caller_id"`
}

type memoryDeleteResponse struct {
	Status   string `json:"status"`
	MemoryID string `json:"memory_id"`
}

func (s *Server) handleMemoryDelete(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	memoryID := r.PathValue("memory_id")

	var req memoryDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	// Authorisation first: an outsider probing the endpoint learns nothing
	// about which user ids exist.
	if !s.registry.IsAdmin(req.CallerID) {
		writeError(w, http.StatusForbidden,
			fmt.Sprintf("caller_id %q is not authorized to delete memories", req.CallerID), "")
		return
	}
	if !s.knownUser(userID, true) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown user_id: %q", userID), "")
		return
	}

	deleted, err := s.store.Delete(r.Context(), userID, memoryID)
	if err != nil {
		s.metrics.RecordMemoryOp(r.Context(), "delete", "error")
		observe.Logger(r.Context()).Error("inference: memory delete failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "memory delete failed", err.Error())
		return
	}
	s.metrics.RecordMemoryOp(r.Context(), "delete", "ok")

	if !deleted {
		writeError(w, http.StatusNotFound, fmt.Sprintf("memory %q not found", memoryID), "")
		return
	}
	writeJSON(w, http.StatusOK, memoryDeleteResponse{Status: "deleted", MemoryID: memoryID})
}

type explainResponse struct {
	ModelSelected string `json:"model_selected"`
	Reason        string `json:"reason"`
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	message := r.URL.Query().Get("message")
	if userID == "" || message == "" {
		writeError(w, http.StatusBadRequest, "user_id and message query parameters are required", "")
		return
	}

	model, reason := s.engine.Explain(r.Context(), userID, message)
	writeJSON(w, http.StatusOK, explainResponse{ModelSelected: model, Reason: reason})
}

type healthResponse struct {
	Status          string   `json:"status"`
	Ollama          string   `json:"ollama"`
	Chromadb        string   `json:"chromadb"`
	ModelsAvailable []string `json:"models_available"`
}

// handleHealth reports the service-level health document. The ollama and
// chromadb keys are fixed by the inter-service contract; chromadb
// reflects whichever memory backend is configured.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	runtimeStatus, models := s.engine.RuntimeHealth(r.Context())

	storeStatus := "ok"
	if err := s.store.Healthy(r.Context()); err != nil {
		storeStatus = "error"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:          "ok",
		Ollama:          runtimeStatus,
		Chromadb:        storeStatus,
		ModelsAvailable: models,
	})
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
