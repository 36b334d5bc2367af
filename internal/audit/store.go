// Package audit persists one row per terminal pipeline outcome, giving
// operators a durable trail of what was allowed, denied, and why.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/portcullis-io/portcullis/internal/core/ports"
)

// Store is a SQLite-backed audit log.
type Store struct {
	db *sqlx.DB
}

// Record is one audit row.
type Record struct {
	RequestID   string    `db:"request_id"`
	OperationID string    `db:"operation_id"`
	Caller      string    `db:"caller"`
	Method      string    `db:"method"`
	Path        string    `db:"path"`
	StatusCode  int       `db:"status_code"`
	Outcome     string    `db:"outcome"`
	DurationUS  int64     `db:"duration_us"`
	ReceivedAt  time.Time `db:"received_at"`
}

// New opens (or creates) the audit database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure audit database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize audit schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS request_audit (
request_id TEXT NOT NULL,
operation_id TEXT,
caller TEXT NOT NULL,
method TEXT NOT NULL,
path TEXT NOT NULL,
status_code INTEGER NOT NULL,
outcome TEXT NOT NULL,
duration_us INTEGER NOT NULL,
received_at TIMESTAMP NOT NULL
)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_request_audit_request_id ON request_audit(request_id)`)
	return err
}

// Append writes one audit row for a completed request.
func (s *Store) Append(ctx context.Context, rec ports.RequestRecord) error {
	row := Record{
		RequestID:   rec.RequestID,
		OperationID: rec.OperationID,
		Caller:      rec.Caller.Subject(),
		Method:      rec.Method,
		Path:        rec.Path,
		StatusCode:  rec.StatusCode,
		Outcome:     rec.Outcome,
		DurationUS:  rec.Duration.Microseconds(),
		ReceivedAt:  rec.ReceivedAt.UTC(),
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO request_audit
(request_id, operation_id, caller, method, path, status_code, outcome, duration_us, received_at)
VALUES (:request_id, :operation_id, :caller, :method, :path, :status_code, :outcome, :duration_us, :received_at)`, row)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ByRequestID returns the audit rows for one request id, oldest first.
func (s *Store) ByRequestID(ctx context.Context, requestID string) ([]Record, error) {
	var rows []Record
	err := s.db.SelectContext(ctx, &rows,
		`SELECT request_id, operation_id, caller, method, path, status_code, outcome, duration_us, received_at
		 FROM request_audit WHERE request_id = ? ORDER BY received_at`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	return rows, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
