// Package progress is the public API for embedding the progress tracker.
// It re-exports the session and the types a caller needs to start passes,
// observe updates and read snapshots. This is the stable API for external
// consumers.
package progress

import (
	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
	internalprogress "github.com/sujalmh/vector-loader-automation/internal/progress"
	"github.com/sujalmh/vector-loader-automation/internal/session"
	"github.com/sujalmh/vector-loader-automation/internal/stream"
	"github.com/sujalmh/vector-loader-automation/internal/upstream"
)

// Session tracks the items of one loading job. See internal/session.Session.
type Session = session.Session

// Option is a functional option for configuring a Session.
type Option = session.Option

// Data model
type (
	EntityID     = domain.EntityID
	Status       = domain.Status
	Entity       = domain.Entity
	Snapshot     = domain.Snapshot
	Summary      = internalprogress.Summary
	Item         = session.Item
	Kind         = upstream.Kind
	State        = stream.State
	Terminal     = stream.Terminal
	Notification = session.Notification
	Uploader     = session.Uploader
	ByteSource   = stream.ByteSource
)

// Entity statuses
const (
	StatusPending   = domain.StatusPending
	StatusSucceeded = domain.StatusSucceeded
	StatusFailed    = domain.StatusFailed
)

// Pass kinds
const (
	KindAnalysis  = upstream.KindAnalysis
	KindIngestion = upstream.KindIngestion
)

// Pass states
const (
	StateIdle      = stream.StateIdle
	StateStreaming = stream.StateStreaming
	StateCompleted = stream.StateCompleted
	StateFailed    = stream.StateFailed
	StateCancelled = stream.StateCancelled
)

// Errors callers can match with errors.Is.
var (
	ErrAlreadyStreaming = domain.ErrAlreadyStreaming
	ErrNotStreaming     = domain.ErrNotStreaming
	ErrUnknownEntity    = domain.ErrUnknownEntity
	ErrInvalid          = session.ErrInvalid
)

// New creates a new Session with the given options.
// Example:
//
//	client := progress.NewClient("http://localhost:8000")
//	s, err := progress.New(
//	    progress.WithUploader(client),
//	    progress.WithSQLiteJournal("./data/journal.db"),
//	)
var New = session.New

// NewClient creates an uploader for the processing backend.
var NewClient = upstream.NewClient

// Summarize computes the counts for a snapshot.
var Summarize = internalprogress.Summarize

// Configuration options
var (
	WithLogger        = session.WithLogger
	WithUploader      = session.WithUploader
	WithJournal       = session.WithJournal
	WithMemoryJournal = session.WithMemoryJournal
	WithSQLiteJournal = session.WithSQLiteJournal
)
