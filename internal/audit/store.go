// Package audit persists monitoring session outcomes to Postgres. The trail
// is best-effort: recording failures are warnings for the caller, never part
// of monitoring control flow.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/dreschagin/deploy-sentinel/internal/monitor"
	"github.com/dreschagin/deploy-sentinel/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS monitoring_sessions (
	id              UUID PRIMARY KEY,
	environment     TEXT NOT NULL,
	state           TEXT NOT NULL,
	dry_run         BOOLEAN NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL,
	check_count     INTEGER NOT NULL,
	violation_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS session_violations (
	id              BIGSERIAL PRIMARY KEY,
	session_id      UUID NOT NULL REFERENCES monitoring_sessions (id),
	trigger_name    TEXT NOT NULL,
	description     TEXT NOT NULL,
	current_value   DOUBLE PRECISION NOT NULL,
	threshold_value DOUBLE PRECISION NOT NULL
);
`

type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Open connects to Postgres and makes sure the audit schema exists.
func Open(ctx context.Context, dsn string, log *logger.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// RecordSession writes the final session row plus one row per violation.
func (s *Store) RecordSession(ctx context.Context, session *monitor.Session, finishedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO monitoring_sessions
			(id, environment, state, dry_run, started_at, finished_at, check_count, violation_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID,
		session.Environment,
		string(session.State),
		session.DryRun,
		session.StartTime,
		finishedAt,
		session.CheckCount,
		session.ViolationCount,
	)
	if err != nil {
		return fmt.Errorf("insert session row: %w", err)
	}

	for _, v := range session.Violations {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_violations
				(session_id, trigger_name, description, current_value, threshold_value)
			VALUES ($1, $2, $3, $4, $5)`,
			session.ID,
			v.Trigger,
			v.Description,
			v.CurrentValue,
			v.ThresholdValue,
		)
		if err != nil {
			return fmt.Errorf("insert violation row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}

	s.log.Info("Session recorded in audit trail",
		"session_id", session.ID,
		"state", string(session.State),
	)
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
