package session

import (
	"fmt"
	"log/slog"

	"github.com/sujalmh/vector-loader-automation/internal/journal"
	"github.com/sujalmh/vector-loader-automation/internal/journal/memory"
	"github.com/sujalmh/vector-loader-automation/internal/journal/sqlite"
)

// Option is a functional option for configuring a Session.
type Option func(*Session) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithUploader sets the uploader that opens upstream streams.
func WithUploader(u Uploader) Option {
	return func(s *Session) error {
		if u == nil {
			return fmt.Errorf("uploader must not be nil")
		}
		s.uploader = u
		return nil
	}
}

// WithJournal uses a custom diagnostics journal.
func WithJournal(j journal.Journal) Option {
	return func(s *Session) error {
		s.journal = j
		return nil
	}
}

// WithMemoryJournal keeps diagnostics in memory (default).
func WithMemoryJournal() Option {
	return func(s *Session) error {
		s.journal = memory.New()
		return nil
	}
}

// WithSQLiteJournal keeps diagnostics in a SQLite database at path.
func WithSQLiteJournal(path string) Option {
	return func(s *Session) error {
		j, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite journal: %w", err)
		}
		s.journal = j
		return nil
	}
}

// WithJournalType selects a journal backend by name, as found in config.
func WithJournalType(kind, sqlitePath string) Option {
	return func(s *Session) error {
		switch kind {
		case "", "memory":
			return WithMemoryJournal()(s)
		case "sqlite":
			return WithSQLiteJournal(sqlitePath)(s)
		default:
			return fmt.Errorf("unknown journal type %q", kind)
		}
	}
}
