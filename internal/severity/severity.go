// Package severity assigns severities to anomaly kinds. The mapping is
// operator configuration, not code: deployments override individual kinds
// through the severity section of the config file without a rebuild.
package severity

import "github.com/triageflow/triageflow/internal/domain"

// Built-in mapping, used for any kind the configuration does not override.
var defaults = map[string]domain.Severity{
	domain.AnomalyThreateningTone:     domain.SeverityHigh,
	domain.AnomalyHighRiskScore:       domain.SeverityHigh,
	domain.AnomalyHighValueInvoice:    domain.SeverityHigh,
	domain.AnomalyEmptyBody:           domain.SeverityMedium,
	domain.AnomalySchemaViolation:     domain.SeverityMedium,
	domain.AnomalyTotalMismatch:       domain.SeverityMedium,
	domain.AnomalyNonpositiveQuantity: domain.SeverityMedium,
	domain.AnomalyComplianceKeyword:   domain.SeverityMedium,
	domain.AnomalyUnparseableSender:   domain.SeverityLow,
}

// Resolver maps anomaly kinds to severities.
type Resolver struct {
	overrides map[string]domain.Severity
}

// NewResolver builds a Resolver from config overrides keyed by anomaly kind.
// Values outside {low, medium, high} are ignored in favor of the default.
func NewResolver(overrides map[string]string) *Resolver {
	r := &Resolver{overrides: make(map[string]domain.Severity, len(overrides))}
	for kind, raw := range overrides {
		switch s := domain.Severity(raw); s {
		case domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh:
			r.overrides[kind] = s
		}
	}
	return r
}

// Resolve returns the severity for an anomaly kind. Unmapped kinds are low:
// an anomaly nobody classified should surface without paging anyone.
func (r *Resolver) Resolve(kind string) domain.Severity {
	if r != nil {
		if s, ok := r.overrides[kind]; ok {
			return s
		}
	}
	if s, ok := defaults[kind]; ok {
		return s
	}
	return domain.SeverityLow
}

// Annotate stamps each anomaly with its resolved severity.
func (r *Resolver) Annotate(anomalies []domain.Anomaly) []domain.Anomaly {
	for i := range anomalies {
		anomalies[i].Severity = r.Resolve(anomalies[i].Kind)
	}
	return anomalies
}
