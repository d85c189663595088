package models

import (
	"errors"
	"sort"
	"time"
)

// Status describes what a session's agent is doing right now.
type Status string

const (
	// StatusIdle means the agent process is gone or the session has no activity.
	StatusIdle Status = "idle"
	// StatusWaiting means the agent replied and is waiting for the user.
	StatusWaiting Status = "waiting"
	// StatusWorking means the agent is still producing output.
	StatusWorking Status = "working"
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusWaiting, StatusWorking:
		return true
	}
	return false
}

// Source identifies which cache produced a session record.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// SessionRecord is the derived per-session summary served to consumers.
// It is only ever replaced wholesale by a full recompute, never patched
// field by field.
type SessionRecord struct {
	ID             string
	ProjectPath    string
	StartedAt      time.Time
	LastActivityAt time.Time
	MessageCount   int
	Status         Status
	Source         Source
	Preview        string // first user message, cleaned and truncated
}

// SortByActivity orders records by most recent activity first. Stable, so
// records with equal timestamps keep their input order.
func SortByActivity(records []SessionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LastActivityAt.After(records[j].LastActivityAt)
	})
}

// Validate checks that the record has required fields.
func (s *SessionRecord) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	if !s.Status.Valid() {
		return errors.New("unknown status: " + string(s.Status))
	}
	return nil
}
