package types

import "time"

// Role represents the message role.
type Role string

const (
	// RoleUser represents a user message
	RoleUser Role = "user"

	// RoleAssistant represents an assistant message
	RoleAssistant Role = "assistant"

	// RoleSystem represents a system message
	RoleSystem Role = "system"
)

// Message is one transcript entry. Messages are append-only and ordered
// by timestamp.
type Message struct {
	ID        string    `json:"message_id"`
	RunID     string    `json:"run_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	StepIndex int       `json:"step_index"`
	Timestamp time.Time `json:"ts"`
}

// EventType identifies which pipeline stage produced an audit event.
type EventType string

const (
	EventRunCreated  EventType = "run_created"
	EventRetrieval   EventType = "retrieval"
	EventPlanner     EventType = "planner"
	EventCritic      EventType = "critic"
	EventCompression EventType = "compression"
	EventSnapshot    EventType = "snapshot"
)

// Event is one append-only audit trail entry. Each pipeline stage that
// produced an artifact emits exactly one event.
type Event struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	StepIndex int            `json:"step_index"`
	Timestamp time.Time      `json:"ts"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload"`
}

// Snapshot is a point-in-time capture of a run's distilled state, written
// as one immutable file per compression event.
type Snapshot struct {
	RunID         string         `json:"run_id"`
	StepIndex     int            `json:"step_index"`
	Objective     string         `json:"objective"`
	WorkingMemory *WorkingMemory `json:"cwm"`
	Retrieval     *Selection     `json:"retrieval,omitempty"`
	Timestamp     time.Time      `json:"ts"`
	Forced        bool           `json:"forced,omitempty"`
}
