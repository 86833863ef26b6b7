package agent

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/triageflow/triageflow/internal/domain"
)

// TextAgent mines free-form text for the handful of signals the router can
// use. It also serves as the fallback for unknown formats, so it never
// fails: whatever arrives, some record of it reaches the trail.
type TextAgent struct{}

func NewTextAgent() *TextAgent { return &TextAgent{} }

func (a *TextAgent) Format() domain.Format { return domain.FormatText }

var (
	emailAddrPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	invoiceIDPattern = regexp.MustCompile(`(?i)invoice\s*(?:#|no\.?|number)?\s*[:\-]?\s*([A-Z0-9][A-Z0-9\-]{1,19})`)
	amountPattern    = regexp.MustCompile(`(?:\$|USD\s?|EUR\s?|€)\s?([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
)

var complianceTerms = []string{"GDPR", "FDA", "HIPAA", "PCI DSS", "ISO 27001", "NIST"}

func (a *TextAgent) Extract(ctx context.Context, input []byte, intent string) (domain.ExtractedFields, error) {
	body := strings.TrimSpace(string(input))

	out := domain.ExtractedFields{
		Format: domain.FormatText,
		Fields: map[string]any{},
	}
	if body == "" {
		out.Anomalies = append(out.Anomalies, domain.Anomaly{
			Kind:    domain.AnomalyEmptyBody,
			Message: "input contains no text",
		})
		return out, nil
	}

	out.Fields["excerpt"] = excerpt(body)

	if addrs := emailAddrPattern.FindAllString(body, 5); len(addrs) > 0 {
		out.Fields["email_addresses"] = addrs
	}
	if id, ok := findInvoiceID(body); ok {
		out.Fields["invoice_id"] = id
	}
	if amounts := findAmounts(body); len(amounts) > 0 {
		out.Fields["amounts"] = amounts
	}
	out.Fields["urgency"] = urgencyOf(strings.ToLower(body))

	if terms := findComplianceTerms(body); len(terms) > 0 {
		out.Fields["compliance_terms"] = terms
		out.Anomalies = append(out.Anomalies, domain.Anomaly{
			Kind:    domain.AnomalyComplianceKeyword,
			Message: "text references " + strings.Join(terms, ", "),
		})
	}

	return out, nil
}

const excerptLen = 200

func excerpt(body string) string {
	if len(body) > excerptLen {
		return body[:excerptLen]
	}
	return body
}

func findInvoiceID(body string) (string, bool) {
	m := invoiceIDPattern.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func findAmounts(body string) []float64 {
	var amounts []float64
	for _, m := range amountPattern.FindAllStringSubmatch(body, -1) {
		raw := strings.ReplaceAll(m[1], ",", "")
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			amounts = append(amounts, v)
		}
	}
	return amounts
}

func findComplianceTerms(body string) []string {
	upper := strings.ToUpper(body)
	var found []string
	for _, term := range complianceTerms {
		if strings.Contains(upper, term) {
			found = append(found, term)
		}
	}
	return found
}
