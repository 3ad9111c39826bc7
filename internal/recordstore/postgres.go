// Package recordstore persists per-message processing state in
// PostgreSQL, keyed by the message's stable identifier.
package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrRecordNotFound is returned by partial updates against a missing key.
var ErrRecordNotFound = errors.New("message record not found")

// PostgresStore implements the record store over PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a PostgresStore on an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get retrieves a message record by its stable identifier. Returns
// (nil, nil) when no record exists.
func (s *PostgresStore) Get(ctx context.Context, uid string) (*MessageRecord, error) {
	query := `
		SELECT uid, source_id, message_id, sent_from, sent_to, subject, subject_hash, sent_at, last_parsed_at, attachments, created_at
		FROM parsed_messages
		WHERE uid = $1
	`

	var record MessageRecord
	err := s.db.GetContext(ctx, &record, query, uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message record: %w", err)
	}

	return &record, nil
}

// Set inserts the full message record under its stable identifier.
func (s *PostgresStore) Set(ctx context.Context, uid string, record *MessageRecord) error {
	query := `
		INSERT INTO parsed_messages (uid, source_id, message_id, sent_from, sent_to, subject, subject_hash, sent_at, last_parsed_at, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		uid,
		record.SourceID,
		record.MessageID,
		record.SentFrom,
		record.SentTo,
		record.Subject,
		record.SubjectHash,
		record.SentAt,
		record.LastParsedAt,
		record.Attachments,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message record: %w", err)
	}

	return nil
}

// UpdateLastParsed refreshes only the last-parsed timestamp of an
// existing record, leaving every other field untouched.
func (s *PostgresStore) UpdateLastParsed(ctx context.Context, uid string, lastParsedAt time.Time) error {
	query := `UPDATE parsed_messages SET last_parsed_at = $2 WHERE uid = $1`

	result, err := s.db.ExecContext(ctx, query, uid, lastParsedAt)
	if err != nil {
		return fmt.Errorf("failed to update last_parsed_at: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// Ping verifies the database connection, used by the health endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
