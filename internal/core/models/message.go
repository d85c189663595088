package models

import "time"

// Author identifies who produced a message.
type Author string

const (
	AuthorUser  Author = "user"
	AuthorAgent Author = "agent"
)

// ToolStatus is the lifecycle state of a tool invocation.
type ToolStatus string

const (
	// ToolPending only occurs as a transient in-memory state while the
	// latest tool call has not yet produced a terminal record.
	ToolPending  ToolStatus = "pending"
	ToolComplete ToolStatus = "complete"
	ToolError    ToolStatus = "error"
)

// ToolInvocation is a discrete action the agent performed within a message.
type ToolInvocation struct {
	Tool   string
	Input  map[string]any
	Output string
	Status ToolStatus
}

// Message is the user-facing conversation unit derived from transcript
// records. Each recompute produces a fresh list; messages are never shared
// or mutated after creation.
type Message struct {
	ID              string
	SessionID       string
	Author          Author
	Content         string
	Timestamp       time.Time
	ToolInvocations []ToolInvocation
}

// HasPendingTool reports whether any invocation on the message is still pending.
func (m *Message) HasPendingTool() bool {
	for _, inv := range m.ToolInvocations {
		if inv.Status == ToolPending {
			return true
		}
	}
	return false
}
