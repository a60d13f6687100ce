package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/advisor/internal/database"
	"github.com/rs/zerolog"
)

// LedgerStore persists audit records in ledger.db
type LedgerStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewLedgerStore creates a store on the ledger database
func NewLedgerStore(db *sql.DB, log zerolog.Logger) *LedgerStore {
	return &LedgerStore{
		db:  db,
		log: log.With().Str("repo", "audit_ledger").Logger(),
	}
}

func (s *LedgerStore) Append(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records (id, kind, client_id, timestamp, summary, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.ClientID, r.Timestamp.UnixNano(), r.Summary, r.Payload)
	if err != nil {
		return fmt.Errorf("failed to insert audit record %s: %w", r.ID, err)
	}
	return nil
}

func (s *LedgerStore) ListByClient(ctx context.Context, clientID string, limit int) ([]Record, error) {
	query := `SELECT id, kind, client_id, timestamp, summary, payload
		FROM audit_records WHERE client_id = ? ORDER BY timestamp DESC, rowid DESC`
	args := []interface{}{clientID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

func (s *LedgerStore) Unarchived(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT id, kind, client_id, timestamp, summary, payload
		FROM audit_records WHERE archived = 0 ORDER BY timestamp ASC, rowid ASC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

func (s *LedgerStore) MarkArchived(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE audit_records SET archived = 1 WHERE id IN ("+placeholders+")", args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to mark %d audit records archived: %w", len(ids), err)
	}

	s.log.Debug().Int("count", len(ids)).Msg("Audit records archived")
	return nil
}

func (s *LedgerStore) query(ctx context.Context, query string, args ...interface{}) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var kind string
		var ts int64
		if err := rows.Scan(&r.ID, &kind, &r.ClientID, &ts, &r.Summary, &r.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		r.Kind = Kind(kind)
		r.Timestamp = time.Unix(0, ts).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}
	return records, nil
}
