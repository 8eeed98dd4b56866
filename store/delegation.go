package store

import "time"

// DelegationStatus is the delegation state machine state.
// Legal transitions move forward only: pending -> dispatching ->
// {completed, failed}. The single exception is the liveness sweep, which
// may regress a stale dispatching record to failed.
type DelegationStatus string

const (
	DelegationPending     DelegationStatus = "pending"
	DelegationDispatching DelegationStatus = "dispatching"
	DelegationCompleted   DelegationStatus = "completed"
	DelegationFailed      DelegationStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s DelegationStatus) Terminal() bool {
	return s == DelegationCompleted || s == DelegationFailed
}

// Delegation is a structured hand-off package prepared for a remote model.
// Identity is the opaque unique ID. Owned exclusively by the dispatcher from
// creation until a terminal state; deleted by the retention sweep 24h after
// reaching one.
type Delegation struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	Strategy          string           `json:"strategy"`
	ContextSummary    string           `json:"context_summary"`
	TaskDescription   string           `json:"task_description"`
	SuggestedQuestion string           `json:"suggested_question"`
	UserMessage       string           `json:"user_message"`
	CloudInstruction  string           `json:"cloud_instruction"`
	Status            DelegationStatus `json:"status"`
	Result            string           `json:"result,omitempty"`
}

// FindDelegation filters delegation queries. Nil fields match everything.
type FindDelegation struct {
	ID     *string
	UserID *string
	Status *DelegationStatus
}
