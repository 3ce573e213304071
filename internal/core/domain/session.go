package domain

import "time"

type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionFinished SessionStatus = "finished"
	SessionAborted  SessionStatus = "aborted"
)

// SessionState is a read-only view of one question-flow session.
type SessionState struct {
	ID        string        `json:"id"`
	Flow      string        `json:"flow"`
	Status    SessionStatus `json:"status"`
	CurrentID string        `json:"current_node_id,omitempty"`
	Results   []QAResult    `json:"results"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
