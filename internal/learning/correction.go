// Package learning implements the supervised correction pipeline: family
// members submit corrections ("non, le chat s'appelle Garfield"), three
// automated gates validate them, and an admin approves or rejects what
// survives before anything is committed to long-term memory.
//
// Gate 1 checks coherence and safety, gate 2a fact-checks on the local
// runtime, gate 2b escalates low-confidence facts to a hosted model, and
// gate 3 is the human. Personal information short-circuits gate 2a and is
// never sent to the external model.
package learning

import (
	"time"

	"github.com/google/uuid"
)

// Final statuses of a correction. The lifecycle is monotonic: processing
// advances through pending and approved to applied, or stops at a
// rejected_* / gate1_error terminal.
const (
	StatusProcessing     = "processing"
	StatusPending        = "pending"
	StatusApproved       = "approved"
	StatusApplied        = "applied"
	StatusRejectedGate1  = "rejected_gate1"
	StatusRejectedGate2A = "rejected_gate2a"
	StatusRejectedGate2B = "rejected_gate2b"
	StatusRejectedGate3  = "rejected_gate3"
	StatusGate1Error     = "gate1_error"
)

// Verdicts of the automated gates.
const (
	GatePass   = "pass"
	GateReject = "reject"
	GateError  = "error"
)

// Review states of gate 3.
const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

// DefaultSource labels corrections submitted without an explicit source.
const DefaultSource = "user_correction"

// GateResult records one automated gate's verdict.
type GateResult struct {
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Confidence  *float64  `json:"confidence,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Gate3Details records the human review step.
type Gate3Details struct {
	Status       string    `json:"status"`
	SubmittedAt  time.Time `json:"submitted_at"`
	ReviewedAt   time.Time `json:"reviewed_at,omitzero"`
	Reviewer     string    `json:"reviewer,omitempty"`
	RejectReason string    `json:"reject_reason,omitempty"`
}

// Correction is one submitted correction and its full validation history.
// It is persisted as a JSON document whose bucket follows FinalStatus.
type Correction struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	Content      string        `json:"content"`
	Source       string        `json:"source"`
	SubmittedAt  time.Time     `json:"submitted_at"`
	PersonalInfo bool          `json:"personal_info"`
	Gate1        *GateResult   `json:"gate1,omitempty"`
	Gate2A       *GateResult   `json:"gate2a,omitempty"`
	Gate2B       *GateResult   `json:"gate2b,omitempty"`
	Gate3        *Gate3Details `json:"gate3,omitempty"`
	AppliedAt    time.Time     `json:"applied_at,omitzero"`
	MemoryID     string        `json:"memory_id,omitempty"`
	FinalStatus  string        `json:"final_status"`
}

// NewCorrection builds a fresh correction in the processing state. An
// empty source defaults to [DefaultSource].
func NewCorrection(userID, content, source string) *Correction {
	if source == "" {
		source = DefaultSource
	}
	return &Correction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Content:     content,
		Source:      source,
		SubmittedAt: time.Now().UTC(),
		FinalStatus: StatusProcessing,
	}
}
