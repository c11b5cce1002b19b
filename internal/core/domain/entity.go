// Package domain holds the types shared by every stage of the progress
// pipeline: tracked entities, decoded events and the error taxonomy.
package domain

import (
	"encoding/json"
	"time"
)

// EntityID identifies one tracked work item within a session.
type EntityID string

// Status is the processing status of an entity.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further automatic transition is allowed
// from this status.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// Entity is the tracked state of a single work item.
type Entity struct {
	ID     EntityID `json:"id"`
	Status Status   `json:"status"`

	// Detail is the upstream outcome payload, stored verbatim.
	Detail json.RawMessage `json:"detail,omitempty"`

	// ErrorMessage is set only while Status is StatusFailed.
	ErrorMessage string `json:"error_message,omitempty"`

	// LastUpdatedSeq is assigned by the store on every applied change.
	LastUpdatedSeq uint64    `json:"last_updated_seq"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy of e.
func (e Entity) Clone() Entity {
	if e.Detail != nil {
		e.Detail = append(json.RawMessage(nil), e.Detail...)
	}
	return e
}

// Snapshot is an immutable copy of the entity set at one point in time.
// Entities are ordered by the time they were first tracked.
type Snapshot struct {
	Entities []Entity `json:"entities"`
	Seq      uint64   `json:"seq"`
}

// Get returns the entity with the given id, if present.
func (s Snapshot) Get(id EntityID) (Entity, bool) {
	for _, e := range s.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// Event is the decoded, validated form of one wire frame.
type Event struct {
	EntityID EntityID
	Status   Status

	// Detail is the passthrough payload (ingestionDetails or analysis).
	Detail json.RawMessage

	Error string

	// Progress is the upstream-reported percentage. Informational only.
	Progress *float64

	// FileName is reported by the upstream for display purposes.
	FileName string
}
