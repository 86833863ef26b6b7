// Package audit defines the audit trail contract: one immutable record per
// pipeline stage per transaction, queryable by transaction id and listable
// in aggregate.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/triageflow/triageflow/internal/domain"
)

// ErrNotFound is returned when a transaction has no audit trail.
var ErrNotFound = errors.New("transaction not found")

// Record describes one pipeline stage's outcome for one transaction.
// Records are append-only: the store never overwrites an existing
// (transaction, stage) pair.
type Record struct {
	TransactionID string         `json:"transaction_id"`
	Stage         domain.Stage   `json:"stage"`
	Seq           int            `json:"seq"`
	Timestamp     time.Time      `json:"timestamp"`
	Detail        map[string]any `json:"detail,omitempty"`
}

// TransactionSummary is one row of the recent-transactions listing.
type TransactionSummary struct {
	TransactionID string            `json:"transaction_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Format        domain.Format     `json:"format"`
	Intent        string            `json:"intent"`
	Outcome       domain.Stage      `json:"outcome"`
	Action        domain.ActionKind `json:"action,omitempty"`
}

// Store persists audit records. Implementations must support concurrent
// appends from many in-flight transactions; each write is scoped to a unique
// (transaction_id, stage) pair so writers never contend for the same logical
// record.
type Store interface {
	// Append writes one stage record. Seq and Timestamp are filled in if
	// zero-valued.
	Append(ctx context.Context, rec *Record) error

	// Trail returns all records for a transaction ordered by stage
	// sequence, or ErrNotFound.
	Trail(ctx context.Context, transactionID string) ([]Record, error)

	// ListRecent returns up to limit transactions, most recent first,
	// with their terminal outcome where one has been recorded.
	ListRecent(ctx context.Context, limit int) ([]TransactionSummary, error)

	Close() error
}

type requestIDKey struct{}

// WithRequestID stamps the originating request id into ctx so the pipeline
// can record it on the transaction's received record.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stamped by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Fill normalizes a record before persistence: derives Seq from the stage
// and stamps the time if the caller left it zero.
func Fill(rec *Record) {
	if rec.Seq == 0 {
		rec.Seq = domain.StageSeq(rec.Stage)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
}
