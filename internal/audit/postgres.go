package audit

import (
	"database/sql"
	"encoding/json"

	_ "github.com/lib/pq"

	"github.com/Asmith-M/UPI-Recon/internal/domain"
	"github.com/Asmith-M/UPI-Recon/pkg/apperrors"
)

// PostgresSink mirrors audit events into an audit_events table for
// long-term retention and SQL reporting. The file trail remains the source
// of truth; this sink is best-effort.
type PostgresSink struct {
	db *sql.DB
}

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_events (
    audit_id   VARCHAR(32) PRIMARY KEY,
    action     VARCHAR(32) NOT NULL,
    run_id     VARCHAR(64),
    user_id    VARCHAR(64),
    level      VARCHAR(16) NOT NULL,
    ts         TIMESTAMPTZ NOT NULL,
    details    JSONB
)`

// NewPostgresSink connects, verifies the connection, and ensures the
// audit_events table exists.
func NewPostgresSink(dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "opening audit database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "pinging audit database")
	}
	if _, err := db.Exec(createAuditTable); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.KindFatal, "creating audit_events table")
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) Record(e domain.AuditEvent) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindFatal, "encoding audit details")
	}
	_, err = s.db.Exec(
		`INSERT INTO audit_events (audit_id, action, run_id, user_id, level, ts, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (audit_id) DO NOTHING`,
		e.AuditID, string(e.Action), e.RunID, e.UserID, string(e.Level), e.Timestamp, details,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindFatal, "inserting audit event")
	}
	return nil
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}
