package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
	"github.com/sujalmh/vector-loader-automation/internal/journal"
)

// Store is a SQLite implementation of journal.Journal
type Store struct {
	db *sql.DB
}

var _ journal.Journal = (*Store)(nil)

// New creates a new SQLite journal
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS journal_entries (
			id TEXT PRIMARY KEY,
			pass_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			entity_id TEXT,
			status TEXT,
			message TEXT,
			frame TEXT,
			seq INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_pass ON journal_entries(pass_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_kind ON journal_entries(kind)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) Append(ctx context.Context, entry *journal.Entry) error {
	query := `INSERT INTO journal_entries (id, pass_id, kind, entity_id, status, message, frame, seq, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.PassID, string(entry.Kind), string(entry.EntityID), string(entry.Status),
		entry.Message, entry.Frame, int64(entry.Seq), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	return nil
}

func (s *Store) List(ctx context.Context, passID string) ([]*journal.Entry, error) {
	query := `SELECT id, pass_id, kind, entity_id, status, message, frame, seq, created_at
	          FROM journal_entries WHERE pass_id = ?
	          ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, passID)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := []*journal.Entry{}
	for rows.Next() {
		var (
			e                                  journal.Entry
			kind, entityID, status, msg, frame sql.NullString
			seq                                int64
		)
		if err := rows.Scan(&e.ID, &e.PassID, &kind, &entityID, &status, &msg, &frame, &seq, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Kind = journal.Kind(kind.String)
		e.EntityID = domain.EntityID(entityID.String)
		e.Status = domain.Status(status.String)
		e.Message = msg.String
		e.Frame = frame.String
		e.Seq = uint64(seq)
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal: %w", err)
	}

	return entries, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
