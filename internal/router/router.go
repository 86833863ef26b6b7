// Package router chooses the downstream action for a processed transaction.
// Decisions are pure functions of the classification and extraction results:
// no I/O, no clock, no randomness, so the same inputs always yield the same
// verdict.
package router

import (
	"fmt"

	"github.com/triageflow/triageflow/internal/domain"
)

// Router applies the action rules with a configurable escalation vocabulary.
type Router struct {
	escalation map[string]bool
}

// New builds a Router. escalationIntents lists the intents that warrant CRM
// escalation; an empty list disables rule 2 rather than escalating nothing
// by accident.
func New(escalationIntents []string) *Router {
	r := &Router{escalation: make(map[string]bool, len(escalationIntents))}
	for _, intent := range escalationIntents {
		r.escalation[intent] = true
	}
	return r
}

// Decide applies the routing rules in fixed priority order:
//
//  1. any high-severity anomaly wins a risk alert
//  2. an escalation intent goes to the CRM
//  3. an unknown format or intent is logged for manual review
//  4. everything else needs no action
//
// The first matching rule settles the outcome; later rules are not
// consulted.
func (r *Router) Decide(cls domain.ClassificationResult, extracted domain.ExtractedFields) domain.ActionDecision {
	for _, a := range extracted.Anomalies {
		if a.Severity == domain.SeverityHigh {
			p := payload(cls, extracted)
			p["anomaly_kind"] = a.Kind
			return domain.ActionDecision{
				Kind:    domain.ActionRiskAlert,
				Reason:  fmt.Sprintf("high-severity anomaly %s: %s", a.Kind, a.Message),
				Payload: p,
			}
		}
	}

	if r.escalation[cls.Intent] {
		return domain.ActionDecision{
			Kind:    domain.ActionCRMEscalation,
			Reason:  fmt.Sprintf("intent %s requires human follow-up", cls.Intent),
			Payload: payload(cls, extracted),
		}
	}

	if cls.Format == domain.FormatUnknown || cls.Intent == domain.IntentUnknown {
		return domain.ActionDecision{
			Kind:    domain.ActionLogOnly,
			Reason:  "format or intent could not be determined",
			Payload: payload(cls, extracted),
		}
	}

	return domain.ActionDecision{
		Kind:   domain.ActionNone,
		Reason: fmt.Sprintf("%s/%s requires no downstream action", cls.Format, cls.Intent),
	}
}

// payload is what the simulated downstream receives: a copy of the
// extracted fields plus the classification and any anomaly kinds. Copying
// keeps the decision detached from the extraction result it was computed
// from.
func payload(cls domain.ClassificationResult, extracted domain.ExtractedFields) map[string]any {
	p := make(map[string]any, len(extracted.Fields)+3)
	for k, v := range extracted.Fields {
		p[k] = v
	}
	p["format"] = string(cls.Format)
	p["intent"] = cls.Intent
	if len(extracted.Anomalies) > 0 {
		kinds := make([]string, 0, len(extracted.Anomalies))
		for _, a := range extracted.Anomalies {
			kinds = append(kinds, a.Kind)
		}
		p["anomaly_kinds"] = kinds
	}
	return p
}
