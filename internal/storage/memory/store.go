// Package memory provides an in-memory audit store for tests and local
// development. It does not survive restarts; production deployments use the
// sqlite store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/triageflow/triageflow/internal/audit"
	"github.com/triageflow/triageflow/internal/domain"
)

// Store is an in-memory implementation of audit.Store.
type Store struct {
	mu      sync.RWMutex
	records map[string][]audit.Record
	order   []string // transaction ids in creation order
}

var _ audit.Store = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		records: make(map[string][]audit.Record),
	}
}

func (s *Store) Append(ctx context.Context, rec *audit.Record) error {
	audit.Fill(rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	trail := s.records[rec.TransactionID]
	for _, existing := range trail {
		if existing.Stage == rec.Stage {
			return fmt.Errorf("audit record for %s/%s already exists", rec.TransactionID, rec.Stage)
		}
	}

	if len(trail) == 0 {
		s.order = append(s.order, rec.TransactionID)
	}
	s.records[rec.TransactionID] = append(trail, *rec)
	return nil
}

func (s *Store) Trail(ctx context.Context, transactionID string) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trail, ok := s.records[transactionID]
	if !ok {
		return nil, audit.ErrNotFound
	}

	out := make([]audit.Record, len(trail))
	copy(out, trail)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.TransactionSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var summaries []audit.TransactionSummary
	for i := len(s.order) - 1; i >= 0 && len(summaries) < limit; i-- {
		id := s.order[i]
		summaries = append(summaries, summarize(id, s.records[id]))
	}
	return summaries, nil
}

func summarize(id string, trail []audit.Record) audit.TransactionSummary {
	sum := audit.TransactionSummary{TransactionID: id}
	for _, rec := range trail {
		switch rec.Stage {
		case domain.StageReceived:
			sum.CreatedAt = rec.Timestamp
		case domain.StageClassified:
			if f, ok := rec.Detail["format"].(string); ok {
				sum.Format = domain.Format(f)
			}
			if in, ok := rec.Detail["intent"].(string); ok {
				sum.Intent = in
			}
		case domain.StageRouted, domain.StageFailed:
			sum.Outcome = rec.Stage
			if a, ok := rec.Detail["action"].(string); ok {
				sum.Action = domain.ActionKind(a)
			}
		}
	}
	return sum
}

func (s *Store) Close() error {
	return nil
}
