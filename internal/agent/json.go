package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/triageflow/triageflow/internal/config"
	"github.com/triageflow/triageflow/internal/domain"
)

const rfqSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["customer", "items"],
	"properties": {
		"customer": {"type": "string", "minLength": 1},
		"items": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["sku", "quantity"],
				"properties": {
					"sku": {"type": "string", "minLength": 1},
					"quantity": {"type": "number"}
				}
			}
		},
		"deadline": {"type": "string"}
	}
}`

const invoiceSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["invoice_id", "total", "line_items"],
	"properties": {
		"invoice_id": {"type": "string", "minLength": 1},
		"total": {"type": "number"},
		"currency": {"type": "string"},
		"line_items": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["description", "amount"],
				"properties": {
					"description": {"type": "string"},
					"amount": {"type": "number"}
				}
			}
		}
	}
}`

const fraudRiskSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["risk_score"],
	"properties": {
		"account_id": {"type": "string"},
		"risk_score": {"type": "number", "minimum": 0, "maximum": 100},
		"indicators": {"type": "array", "items": {"type": "string"}}
	}
}`

// JSONAgent validates structured payloads against per-intent schemas and
// applies the numeric business rules schemas cannot express.
type JSONAgent struct {
	schemas    map[string]*jsonschema.Schema
	thresholds config.ThresholdConfig
}

// NewJSONAgent compiles the intent schemas once at startup.
func NewJSONAgent(thresholds config.ThresholdConfig) (*JSONAgent, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	sources := map[string]string{
		domain.IntentRFQ:       rfqSchema,
		domain.IntentInvoice:   invoiceSchema,
		domain.IntentFraudRisk: fraudRiskSchema,
	}
	schemas := make(map[string]*jsonschema.Schema, len(sources))
	for intent, src := range sources {
		url := fmt.Sprintf("https://triageflow.schemas.local/%s.schema.json", intent)
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("adding %s schema: %w", intent, err)
		}
		schema, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compiling %s schema: %w", intent, err)
		}
		schemas[intent] = schema
	}

	return &JSONAgent{schemas: schemas, thresholds: thresholds}, nil
}

func (a *JSONAgent) Format() domain.Format { return domain.FormatJSON }

// Extract decodes the payload and, when the intent has a schema, validates
// against it. Malformed JSON is an extraction error; a schema violation is
// an anomaly with the fields still lifted best-effort, so the trail records
// what arrived.
func (a *JSONAgent) Extract(ctx context.Context, input []byte, intent string) (domain.ExtractedFields, error) {
	var value any
	if err := json.Unmarshal(input, &value); err != nil {
		return domain.ExtractedFields{}, domain.NewExtractionError("malformed JSON payload", err)
	}

	out := domain.ExtractedFields{
		Format: domain.FormatJSON,
		Fields: liftFields(value),
	}

	if schema, ok := a.schemas[intent]; ok {
		if err := schema.Validate(value); err != nil {
			out.Anomalies = append(out.Anomalies, domain.Anomaly{
				Kind:    domain.AnomalySchemaViolation,
				Message: schemaViolationMessage(intent, err),
			})
		}
	}

	obj, _ := value.(map[string]any)
	out.Anomalies = append(out.Anomalies, a.businessRules(intent, obj)...)

	return out, nil
}

// liftFields exposes a top-level object directly; any other JSON value is
// wrapped so Fields stays a map.
func liftFields(value any) map[string]any {
	if obj, ok := value.(map[string]any); ok {
		return obj
	}
	return map[string]any{"value": value}
}

func schemaViolationMessage(intent string, err error) string {
	return fmt.Sprintf("payload does not match the %s schema: %v", intent, err)
}

// businessRules covers the cross-field checks a schema cannot state.
func (a *JSONAgent) businessRules(intent string, obj map[string]any) []domain.Anomaly {
	if obj == nil {
		return nil
	}
	var anomalies []domain.Anomaly

	switch intent {
	case domain.IntentRFQ:
		items, _ := obj["items"].([]any)
		for i, raw := range items {
			item, _ := raw.(map[string]any)
			if qty, ok := numberField(item, "quantity"); ok && qty <= 0 {
				anomalies = append(anomalies, domain.Anomaly{
					Kind:    domain.AnomalyNonpositiveQuantity,
					Message: fmt.Sprintf("item %d has non-positive quantity %v", i, qty),
				})
			}
		}

	case domain.IntentInvoice:
		total, hasTotal := numberField(obj, "total")
		items, _ := obj["line_items"].([]any)
		if hasTotal && len(items) > 0 {
			var sum float64
			complete := true
			for _, raw := range items {
				item, _ := raw.(map[string]any)
				amount, ok := numberField(item, "amount")
				if !ok {
					complete = false
					break
				}
				sum += amount
			}
			if complete && math.Abs(sum-total) > 0.01 {
				anomalies = append(anomalies, domain.Anomaly{
					Kind:    domain.AnomalyTotalMismatch,
					Message: fmt.Sprintf("line items sum to %.2f but total is %.2f", sum, total),
				})
			}
		}

	case domain.IntentFraudRisk:
		if score, ok := numberField(obj, "risk_score"); ok && score >= a.thresholds.HighRiskScore {
			anomalies = append(anomalies, domain.Anomaly{
				Kind:    domain.AnomalyHighRiskScore,
				Message: fmt.Sprintf("risk score %.0f meets the alert threshold %.0f", score, a.thresholds.HighRiskScore),
			})
		}
	}

	return anomalies
}

func numberField(obj map[string]any, key string) (float64, bool) {
	if obj == nil {
		return 0, false
	}
	n, ok := obj[key].(float64)
	return n, ok
}
