package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/V4T54L/callwatch/internal/domain"
)

const forwardedTableName = "forwarded_logs"

const createTableQuery = `
CREATE TABLE IF NOT EXISTS forwarded_logs (
	event_id   UUID PRIMARY KEY,
	kind       TEXT NOT NULL,
	logged_at  TIMESTAMPTZ NOT NULL,
	payload    JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS forwarded_logs_kind_logged_at_idx ON forwarded_logs (kind, logged_at DESC);`

// Sink copies forwarded entries into PostgreSQL.
type Sink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSink creates a PostgreSQL sink on an open database handle.
func NewSink(db *sql.DB, logger *slog.Logger) *Sink {
	return &Sink{db: db, logger: logger.With("component", "postgres_sink")}
}

func (s *Sink) Name() string { return "postgres" }

// EnsureSchema creates the destination table if it does not exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create %s: %w", forwardedTableName, err)
	}
	return nil
}

// Send writes a batch using the COPY protocol into a staging table and merges
// it into forwarded_logs. Rows already present by event_id are left untouched.
func (s *Sink) Send(ctx context.Context, envelopes []domain.Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	tempTableName := "forwarded_logs_import"
	_, err = txn.ExecContext(ctx, `CREATE TEMP TABLE `+tempTableName+` (LIKE `+forwardedTableName+` INCLUDING DEFAULTS) ON COMMIT DROP;`)
	if err != nil {
		return err
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(tempTableName, "event_id", "kind", "logged_at", "payload"))
	if err != nil {
		return err
	}

	for _, env := range envelopes {
		payload, err := env.Marshal()
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to marshal envelope: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, env.ID, string(env.Kind), env.Timestamp, string(payload)); err != nil {
			_ = stmt.Close()
			return err
		}
	}

	// An Exec with no arguments flushes the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	_, err = txn.ExecContext(ctx, `
		INSERT INTO `+forwardedTableName+` (event_id, kind, logged_at, payload)
		SELECT event_id, kind, logged_at, payload FROM `+tempTableName+`
		ON CONFLICT (event_id) DO NOTHING;`)
	if err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return err
	}
	s.logger.Debug("copied entries into postgres", "count", len(envelopes))
	return nil
}

func (s *Sink) Close() error {
	return s.db.Close()
}
