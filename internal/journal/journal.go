// Package journal records per-pass stream diagnostics: frames that failed to
// decode, events that were dropped or rejected, applied merges and the
// terminal state of each pass.
package journal

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
)

// Kind identifies the type of a journal entry.
type Kind string

const (
	KindPassStarted        Kind = "pass.started"
	KindApplied            Kind = "merge.applied"
	KindDecodeError        Kind = "frame.decode_error"
	KindUnknownEntity      Kind = "merge.unknown_entity"
	KindRejectedTransition Kind = "merge.rejected_transition"
	KindTransportError     Kind = "pass.transport_error"
	KindTerminal           Kind = "pass.terminal"
)

// KindFor maps a stream error kind to the journal entry kind that records it.
func KindFor(k domain.ErrorKind) Kind {
	switch k {
	case domain.ErrorKindUnknownEntity:
		return KindUnknownEntity
	case domain.ErrorKindRejectedTransition:
		return KindRejectedTransition
	case domain.ErrorKindTransport:
		return KindTransportError
	default:
		return KindDecodeError
	}
}

// Entry is one journal record.
type Entry struct {
	ID       string          `json:"id"`
	PassID   string          `json:"pass_id"`
	Kind     Kind            `json:"kind"`
	EntityID domain.EntityID `json:"entity_id,omitempty"`
	Status   domain.Status   `json:"status,omitempty"`
	Message  string          `json:"message,omitempty"`

	// Frame is the raw frame for decode errors.
	Frame string `json:"frame,omitempty"`

	Seq       uint64    `json:"seq,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal stores entries for the life of a session.
type Journal interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, passID string) ([]*Entry, error)
	Close() error
}

// Log appends an entry to the journal (best-effort). Missing ids and
// timestamps are filled in.
func Log(ctx context.Context, j Journal, entry *Entry) {
	if j == nil || entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_ = j.Append(ctx, entry)
}

// NewID returns a fresh entry id.
func NewID() string {
	return "jrn_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
