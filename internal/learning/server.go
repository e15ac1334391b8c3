package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foyerlabs/foyer/internal/family"
	"github.com/foyerlabs/foyer/internal/health"
	"github.com/foyerlabs/foyer/internal/observe"
)

// sidecarProbeTimeout bounds the LLM sidecar reachability check in /health.
const sidecarProbeTimeout = 5 * time.Second

// Server exposes the learning sidecar's HTTP API:
//
//	POST /learning/submit
//	GET  /learning/status/{id}
//	GET  /learning/pending
//	POST /learning/review/{id}
//	GET  /health
//	GET  /healthz, /readyz, /metrics
type Server struct {
	store    *Store
	pipeline *Pipeline
	gates    *Gates
	sidecar  LLMClient
	registry *family.Registry
	metrics  *observe.Metrics
	probes   *health.Handler
}

// NewServer wires the HTTP surface around the correction store, the gate
// pipeline and the LLM sidecar used for health checks and memory commits.
// Passing nil metrics selects [observe.DefaultMetrics].
func NewServer(store *Store, pipeline *Pipeline, gates *Gates, sidecar LLMClient, registry *family.Registry, metrics *observe.Metrics) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		store:    store,
		pipeline: pipeline,
		gates:    gates,
		sidecar:  sidecar,
		registry: registry,
		metrics:  metrics,
		probes: health.New(health.Checker{
			Name:  "storage",
			Check: store.Healthy,
		}),
	}
}

// Handler returns the route table. Wrap it with [observe.Middleware] in
// main so requests carry correlation IDs and HTTP metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /learning/submit", s.handleSubmit)
	mux.HandleFunc("GET /learning/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /learning/pending", s.handlePending)
	mux.HandleFunc("POST /learning/review/{id}", s.handleReview)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.probes.Register(mux)
	return mux
}

type submitRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if _, ok := s.registry.Get(req.UserID); !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown user_id: %q", req.UserID), "")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required", "")
		return
	}

	c := NewCorrection(req.UserID, req.Content, req.Source)
	if err := s.store.Save(c); err != nil {
		observe.Logger(r.Context()).Error("learning: saving correction failed", "err", err)
		writeError(w, http.StatusInternalServerError, "correction could not be persisted", err.Error())
		return
	}
	observe.Logger(r.Context()).Info("learning: correction received", "id", c.ID, "user_id", c.UserID)

	writeJSON(w, http.StatusOK, submitResponse{ID: c.ID, Status: StatusProcessing})
	// Push the response onto the wire before the first gate call blocks.
	_ = http.NewResponseController(w).Flush()

	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.pipeline.Process(ctx, c); err != nil {
			observe.Logger(ctx).Error("learning: pipeline failed", "id", c.ID, "err", err)
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "correction not found", "")
			return
		}
		observe.Logger(r.Context()).Error("learning: loading correction failed", "err", err)
		writeError(w, http.StatusInternalServerError, "correction could not be loaded", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type pendingItem struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Content     string    `json:"content"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type pendingResponse struct {
	Count int           `json:"count"`
	Items []pendingItem `json:"items"`
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	corrections, err := s.store.ListPending()
	if err != nil {
		observe.Logger(r.Context()).Error("learning: listing pending corrections failed", "err", err)
		writeError(w, http.StatusInternalServerError, "pending corrections could not be listed", err.Error())
		return
	}

	items := make([]pendingItem, 0, len(corrections))
	for _, c := range corrections {
		items = append(items, pendingItem{
			ID:          c.ID,
			UserID:      c.UserID,
			Content:     c.Content,
			SubmittedAt: c.SubmittedAt,
		})
	}
	writeJSON(w, http.StatusOK, pendingResponse{Count: len(items), Items: items})
}

type reviewRequest struct {
	Action   string `json:"action"`
	CallerID string `json:"caller_id"`
	Reason   string `json:"reason"`
}

type reviewResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	MemoryID string `json:"memory_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	// Authorisation first, as for privileged memory deletes: probing this
	// endpoint without an admin profile reveals nothing about which
	// correction ids exist.
	if !s.registry.IsAdmin(req.CallerID) {
		writeError(w, http.StatusForbidden,
			fmt.Sprintf("caller_id %q is not authorized to review corrections", req.CallerID), "")
		return
	}

	c, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "correction not found", "")
			return
		}
		observe.Logger(r.Context()).Error("learning: loading correction failed", "err", err)
		writeError(w, http.StatusInternalServerError, "correction could not be loaded", err.Error())
		return
	}
	if c.FinalStatus != StatusPending {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("correction not pending review (status: %s)", c.FinalStatus), "")
		return
	}

	switch req.Action {
	case "approve", "reject":
	default:
		writeError(w, http.StatusBadRequest, `action must be "approve" or "reject"`, "")
		return
	}
	if req.Action == "reject" && req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required when rejecting", "")
		return
	}

	observe.Logger(r.Context()).Info("learning: reviewing correction",
		"id", c.ID, "action", req.Action, "reviewer", req.CallerID)

	// A pending correction normally carries gate3 from the pipeline; a
	// hand-edited file might not.
	if c.Gate3 == nil {
		c.Gate3 = &Gate3Details{Status: ReviewPending, SubmittedAt: c.SubmittedAt}
	}
	c.Gate3.ReviewedAt = time.Now().UTC()
	c.Gate3.Reviewer = req.CallerID

	if req.Action == "reject" {
		c.Gate3.Status = ReviewRejected
		c.Gate3.RejectReason = req.Reason
		c.FinalStatus = StatusRejectedGate3
		if err := s.store.Save(c); err != nil {
			observe.Logger(r.Context()).Error("learning: saving review failed", "id", c.ID, "err", err)
			writeError(w, http.StatusInternalServerError, "review could not be persisted", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, reviewResponse{ID: c.ID, Status: c.FinalStatus, Reason: req.Reason})
		return
	}

	// Approve: record the decision before the memory commit, so a failed
	// commit leaves an approved correction rather than losing the review.
	c.Gate3.Status = ReviewApproved
	c.FinalStatus = StatusApproved
	if err := s.store.Save(c); err != nil {
		observe.Logger(r.Context()).Error("learning: saving review failed", "id", c.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "review could not be persisted", err.Error())
		return
	}

	memoryID, err := s.sidecar.AddMemory(r.Context(), c.UserID, c.Content, "learning_correction", map[string]any{
		"correction_id": c.ID,
		"submitted_at":  c.SubmittedAt.Format(time.RFC3339),
	})
	if err != nil {
		observe.Logger(r.Context()).Error("learning: memory commit failed", "id", c.ID, "err", err)
		writeJSON(w, http.StatusOK, reviewResponse{ID: c.ID, Status: c.FinalStatus})
		return
	}

	c.AppliedAt = time.Now().UTC()
	c.MemoryID = memoryID
	c.FinalStatus = StatusApplied
	if err := s.store.Save(c); err != nil {
		observe.Logger(r.Context()).Error("learning: saving applied correction failed", "id", c.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "review could not be persisted", err.Error())
		return
	}
	observe.Logger(r.Context()).Info("learning: correction applied", "id", c.ID, "memory_id", memoryID)

	writeJSON(w, http.StatusOK, reviewResponse{ID: c.ID, Status: c.FinalStatus, MemoryID: memoryID})
}

type healthResponse struct {
	Status       string `json:"status"`
	LLMSidecar   string `json:"llm_sidecar"`
	ExternalAPI  string `json:"external_api"`
	PendingCount int    `json:"pending_count"`
	Storage      string `json:"storage"`
}

// handleHealth reports the service-level health document. The endpoint
// always answers 200; a broken storage directory degrades the status but
// the document itself is the diagnostic.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	probeCtx, cancel := context.WithTimeout(r.Context(), sidecarProbeTimeout)
	defer cancel()

	sidecarStatus := "reachable"
	if err := s.sidecar.Health(probeCtx); err != nil {
		sidecarStatus = "unreachable"
	}

	externalStatus := "not_configured"
	if s.gates.ExternalConfigured() {
		externalStatus = "configured"
	}

	status := "ok"
	storageStatus := "ok"
	if err := s.store.Healthy(r.Context()); err != nil {
		status = "degraded"
		storageStatus = "error"
	}

	count, err := s.store.PendingCount()
	if err != nil {
		count = 0
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:       status,
		LLMSidecar:   sidecarStatus,
		ExternalAPI:  externalStatus,
		PendingCount: count,
		Storage:      storageStatus,
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
