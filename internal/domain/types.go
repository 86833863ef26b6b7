// Package domain defines the canonical types shared across the triage
// pipeline: input formats, pipeline stages, classification and extraction
// results, and routing decisions.
package domain

// Format is the structural category of an input.
type Format string

const (
	FormatEmail   Format = "email"
	FormatJSON    Format = "json"
	FormatPDF     Format = "pdf"
	FormatText    Format = "text"
	FormatUnknown Format = "unknown"
)

// ParseFormat coerces a string into the closed format set.
// Anything unrecognized maps to FormatUnknown rather than propagating.
func ParseFormat(s string) Format {
	switch Format(s) {
	case FormatEmail, FormatJSON, FormatPDF, FormatText:
		return Format(s)
	default:
		return FormatUnknown
	}
}

// Stage identifies a pipeline stage. The success path is
// received → classified → extracted → routed; failed absorbs from any
// non-terminal stage.
type Stage string

const (
	StageReceived   Stage = "received"
	StageClassified Stage = "classified"
	StageExtracted  Stage = "extracted"
	StageRouted     Stage = "routed"
	StageFailed     Stage = "failed"
)

// StageSeq returns the ordering position of a stage within a transaction's
// trail. Terminal records (routed, failed) always sort last.
func StageSeq(s Stage) int {
	switch s {
	case StageReceived:
		return 0
	case StageClassified:
		return 1
	case StageExtracted:
		return 2
	case StageRouted, StageFailed:
		return 3
	default:
		return 4
	}
}

// Terminal reports whether the stage ends a transaction's pipeline.
func (s Stage) Terminal() bool {
	return s == StageRouted || s == StageFailed
}

// IntentUnknown is the intent label used when the model's answer could not be
// parsed into a recognized shape. The intent vocabulary is otherwise open.
const IntentUnknown = "unknown"

// Well-known intent labels. Classifier backends normalize model output to
// snake_case, so these are the values the router and agents compare against.
const (
	IntentComplaint     = "complaint"
	IntentRFQ           = "rfq"
	IntentInvoice       = "invoice"
	IntentRegulation    = "regulation"
	IntentFraudRisk     = "fraud_risk"
	IntentRefundRequest = "refund_request"
)

// Transaction is one end-to-end processing attempt for a single input.
// It is created at ingestion and never mutated afterwards.
type Transaction struct {
	ID             string
	RawInput       []byte
	DeclaredFormat Format
}

// ClassificationResult is the output of the classification client.
// Format is always a member of the closed set; Confidence is optional.
type ClassificationResult struct {
	Format     Format   `json:"format"`
	Intent     string   `json:"intent"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Severity grades an anomaly. Which kinds map to which severities is
// configuration, not agent logic; see the severity package.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly kinds emitted by the extraction agents. The set is open: agents
// may emit kinds beyond these, and the severity resolver grades unmapped
// kinds as low.
const (
	AnomalyUnparseableSender   = "unparseable_sender"
	AnomalyEmptyBody           = "empty_body"
	AnomalyThreateningTone     = "threatening_tone"
	AnomalySchemaViolation     = "schema_violation"
	AnomalyNonpositiveQuantity = "nonpositive_quantity"
	AnomalyTotalMismatch       = "total_mismatch"
	AnomalyHighRiskScore       = "high_risk_score"
	AnomalyHighValueInvoice    = "high_value_invoice"
	AnomalyComplianceKeyword   = "compliance_keyword"
)

// Anomaly is a validation issue detected by an extraction agent.
// Agents emit the kind and message; severity is attached afterwards by the
// configured resolver.
type Anomaly struct {
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity,omitempty"`
}

// ExtractedFields is the output of a format extraction agent.
type ExtractedFields struct {
	Format    Format         `json:"format"`
	Fields    map[string]any `json:"fields"`
	Anomalies []Anomaly      `json:"anomalies,omitempty"`
}

// ActionKind is the simulated downstream effect chosen for a transaction.
type ActionKind string

const (
	ActionNone          ActionKind = "none"
	ActionLogOnly       ActionKind = "log_only"
	ActionCRMEscalation ActionKind = "crm_escalation"
	ActionRiskAlert     ActionKind = "risk_alert"
)

// ActionDecision is the action router's verdict for a transaction.
type ActionDecision struct {
	Kind    ActionKind     `json:"kind"`
	Reason  string         `json:"reason"`
	Payload map[string]any `json:"payload,omitempty"`
}
