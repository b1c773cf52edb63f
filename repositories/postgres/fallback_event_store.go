package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/services/fallback"
)

// FallbackEventStore persists monitor session logs, one row per event.
type FallbackEventStore struct {
	db     *DB
	logger *zap.Logger
}

// NewFallbackEventStore creates a new session store
func NewFallbackEventStore(db *DB, logger *zap.Logger) *FallbackEventStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackEventStore{db: db, logger: logger}
}

var _ fallback.SessionStore = (*FallbackEventStore)(nil)

// Save replaces the stored log of a session in one transaction.
func (s *FallbackEventStore) Save(ctx context.Context, sessionID string, events []fallback.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := saveEvents(ctx, tx, sessionID, events); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("original_error", err),
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("fallback log saved", zap.String("session_id", sessionID), zap.Int("events", len(events)))
	return nil
}

func saveEvents(ctx context.Context, tx *sql.Tx, sessionID string, events []fallback.Event) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM fallback_events WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to clear fallback events: %w", err)
	}

	query := `
		INSERT INTO fallback_events (
			session_id, seq, query_type, reason, severity, occurred_at,
			error_message, error_detail, primary_enabled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for i, e := range events {
		_, err := tx.ExecContext(ctx, query,
			sessionID,
			i,
			string(e.Type),
			string(e.Reason),
			string(e.Severity),
			e.Timestamp,
			nullString(e.Error),
			nullString(e.ErrorDetail),
			e.PrimaryEnabled,
		)
		if err != nil {
			return fmt.Errorf("failed to insert fallback event: %w", err)
		}
	}
	return nil
}

// Load returns the stored log of a session, oldest first.
func (s *FallbackEventStore) Load(ctx context.Context, sessionID string) ([]fallback.Event, error) {
	query := `
		SELECT query_type, reason, severity, occurred_at, error_message, error_detail, primary_enabled
		FROM fallback_events
		WHERE session_id = $1
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fallback events: %w", err)
	}
	defer rows.Close()

	events := []fallback.Event{}
	for rows.Next() {
		var (
			e                   fallback.Event
			queryType, reason   string
			severity            string
			errMsg, errorDetail sql.NullString
		)
		if err := rows.Scan(&queryType, &reason, &severity, &e.Timestamp, &errMsg, &errorDetail, &e.PrimaryEnabled); err != nil {
			return nil, fmt.Errorf("failed to scan fallback event: %w", err)
		}
		e.Type = fallback.QueryType(queryType)
		e.Reason = fallback.Reason(reason)
		e.Severity = fallback.Severity(severity)
		e.Error = errMsg.String
		e.ErrorDetail = errorDetail.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fallback events: %w", err)
	}
	return events, nil
}

// Clear deletes the stored log of a session.
func (s *FallbackEventStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fallback_events WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to clear fallback events: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
