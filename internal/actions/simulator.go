// Package actions carries out routing decisions. The only implementation is
// a simulator: it logs what would have been dispatched and returns a
// synthetic receipt, so the rest of the pipeline exercises the real
// contract without side effects on external systems.
package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/triageflow/triageflow/internal/domain"
)

// Executor carries out an action decision and returns a receipt for the
// audit trail.
type Executor interface {
	Execute(ctx context.Context, txnID string, decision domain.ActionDecision) map[string]any
}

// Simulator is an Executor that performs no external calls.
type Simulator struct {
	log *slog.Logger
}

func NewSimulator(log *slog.Logger) *Simulator {
	if log == nil {
		log = slog.Default()
	}
	return &Simulator{log: log}
}

// Execute logs the would-be dispatch and fabricates the reference an
// external system would have returned.
func (s *Simulator) Execute(ctx context.Context, txnID string, decision domain.ActionDecision) map[string]any {
	receipt := map[string]any{
		"simulated": true,
		"action":    string(decision.Kind),
	}

	switch decision.Kind {
	case domain.ActionCRMEscalation:
		receipt["reference"] = fmt.Sprintf("CRM-%s", txnID)
		receipt["target"] = "crm"
	case domain.ActionRiskAlert:
		receipt["reference"] = fmt.Sprintf("RISK-%s", txnID)
		receipt["target"] = "risk_desk"
	case domain.ActionLogOnly:
		receipt["target"] = "review_log"
	case domain.ActionNone:
		receipt["target"] = "none"
	}

	s.log.InfoContext(ctx, "action simulated",
		"transaction_id", txnID,
		"action", string(decision.Kind),
		"reason", decision.Reason,
	)
	return receipt
}
