// Package sqlite provides the durable audit store. Records survive process
// restarts; the schema enforces one record per (transaction, stage).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/triageflow/triageflow/internal/audit"
	"github.com/triageflow/triageflow/internal/domain"
)

// Store is a SQLite implementation of audit.Store.
type Store struct {
	db *sqlx.DB
}

var _ audit.Store = (*Store)(nil)

// New opens (or creates) the audit database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one pooled connection keeps every
	// statement on the connection that ran the pragmas.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
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
		`CREATE TABLE IF NOT EXISTS audit_records (
			transaction_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ts TIMESTAMP NOT NULL,
			detail TEXT,
			UNIQUE(transaction_id, stage)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			format TEXT NOT NULL DEFAULT '',
			intent TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_records_txn ON audit_records(transaction_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Append writes one stage record and keeps the transaction summary row in
// step. Existing records are never overwritten; a duplicate (transaction,
// stage) append is an error.
func (s *Store) Append(ctx context.Context, rec *audit.Record) error {
	audit.Fill(rec)

	detail, err := json.Marshal(rec.Detail)
	if err != nil {
		return fmt.Errorf("failed to marshal detail: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_records (transaction_id, stage, seq, ts, detail) VALUES (?, ?, ?, ?, ?)`,
		rec.TransactionID, string(rec.Stage), rec.Seq, rec.Timestamp, string(detail))
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	if err := s.updateSummary(ctx, tx, rec); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) updateSummary(ctx context.Context, tx *sqlx.Tx, rec *audit.Record) error {
	var err error
	switch rec.Stage {
	case domain.StageReceived:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO transactions (id, created_at) VALUES (?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			rec.TransactionID, rec.Timestamp)
	case domain.StageClassified:
		_, err = tx.ExecContext(ctx,
			`UPDATE transactions SET format = ?, intent = ? WHERE id = ?`,
			detailString(rec.Detail, "format"), detailString(rec.Detail, "intent"), rec.TransactionID)
	case domain.StageRouted, domain.StageFailed:
		_, err = tx.ExecContext(ctx,
			`UPDATE transactions SET outcome = ?, action = ? WHERE id = ?`,
			string(rec.Stage), detailString(rec.Detail, "action"), rec.TransactionID)
	}
	if err != nil {
		return fmt.Errorf("failed to update transaction summary: %w", err)
	}
	return nil
}

func detailString(detail map[string]any, key string) string {
	if detail == nil {
		return ""
	}
	if v, ok := detail[key].(string); ok {
		return v
	}
	return ""
}

// Trail returns the full ordered trail for one transaction.
func (s *Store) Trail(ctx context.Context, transactionID string) ([]audit.Record, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT transaction_id, stage, seq, ts, detail
		 FROM audit_records WHERE transaction_id = ?
		 ORDER BY seq ASC, ts ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		var (
			rec       audit.Record
			stage     string
			detailStr sql.NullString
		)
		if err := rows.Scan(&rec.TransactionID, &stage, &rec.Seq, &rec.Timestamp, &detailStr); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.Stage = domain.Stage(stage)
		if detailStr.Valid && detailStr.String != "" && detailStr.String != "null" {
			if err := json.Unmarshal([]byte(detailStr.String), &rec.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal detail: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, audit.ErrNotFound
	}
	return records, nil
}

// ListRecent returns the most recently created transactions with their
// terminal outcome where one has been recorded.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.TransactionSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, created_at, format, intent, outcome, action
		 FROM transactions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var summaries []audit.TransactionSummary
	for rows.Next() {
		var (
			sum                             audit.TransactionSummary
			createdAt                       time.Time
			format, intent, outcome, action string
		)
		if err := rows.Scan(&sum.TransactionID, &createdAt, &format, &intent, &outcome, &action); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		sum.CreatedAt = createdAt
		sum.Format = domain.Format(format)
		sum.Intent = intent
		sum.Outcome = domain.Stage(outcome)
		sum.Action = domain.ActionKind(action)
		summaries = append(summaries, sum)
	}

	return summaries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
