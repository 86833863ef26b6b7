package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/triageflow/triageflow/internal/config"
	"github.com/triageflow/triageflow/internal/domain"
)

// PDFAgent pulls text out of PDF content streams and applies the document
// heuristics on whatever it finds.
type PDFAgent struct {
	thresholds config.ThresholdConfig
	conf       *model.Configuration
}

func NewPDFAgent(thresholds config.ThresholdConfig) *PDFAgent {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFAgent{thresholds: thresholds, conf: conf}
}

func (a *PDFAgent) Format() domain.Format { return domain.FormatPDF }

// Text-showing operators in a content stream: (string) Tj and [(s1) (s2)] TJ.
var (
	tjPattern       = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
	tjArrayPattern  = regexp.MustCompile(`\[((?:[^\]\\]|\\.)*)\]\s*TJ`)
	tjStringPattern = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)
)

// Extract parses the document, recovers text from each page's content
// stream, and runs the shared text heuristics over it. A document
// with no recoverable text is an extraction error: scanned or image-only
// PDFs need capabilities this service does not have.
func (a *PDFAgent) Extract(ctx context.Context, input []byte, intent string) (domain.ExtractedFields, error) {
	pctx, err := api.ReadContext(bytes.NewReader(input), a.conf)
	if err != nil {
		return domain.ExtractedFields{}, domain.NewExtractionError("unreadable PDF document", err)
	}

	var text strings.Builder
	for page := 1; page <= pctx.PageCount; page++ {
		r, err := pdfcpu.ExtractPageContent(pctx, page)
		if err != nil || r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		decodePageText(content, &text)
	}

	body := strings.TrimSpace(text.String())
	if body == "" {
		return domain.ExtractedFields{}, domain.NewExtractionError(
			fmt.Sprintf("no extractable text in %d-page PDF", pctx.PageCount), nil)
	}

	out := a.mine(body)
	out.Fields["page_count"] = pctx.PageCount
	return out, nil
}

// mine runs the shared text heuristics over the decoded body, the same set
// TextAgent applies to free-form input, plus the document-value checks.
func (a *PDFAgent) mine(body string) domain.ExtractedFields {
	out := domain.ExtractedFields{
		Format: domain.FormatPDF,
		Fields: map[string]any{
			"text_excerpt": excerpt(body),
			"urgency":      urgencyOf(strings.ToLower(body)),
		},
	}

	if addrs := emailAddrPattern.FindAllString(body, 5); len(addrs) > 0 {
		out.Fields["email_addresses"] = addrs
	}
	if id, ok := findInvoiceID(body); ok {
		out.Fields["invoice_id"] = id
	}
	amounts := findAmounts(body)
	if len(amounts) > 0 {
		max := amounts[0]
		for _, v := range amounts[1:] {
			if v > max {
				max = v
			}
		}
		out.Fields["max_amount"] = max
		if max > a.thresholds.HighValueInvoice {
			out.Anomalies = append(out.Anomalies, domain.Anomaly{
				Kind:    domain.AnomalyHighValueInvoice,
				Message: fmt.Sprintf("document mentions %.2f, above the %.2f threshold", max, a.thresholds.HighValueInvoice),
			})
		}
	}

	if terms := findComplianceTerms(body); len(terms) > 0 {
		out.Fields["compliance_terms"] = terms
		out.Anomalies = append(out.Anomalies, domain.Anomaly{
			Kind:    domain.AnomalyComplianceKeyword,
			Message: "document references " + strings.Join(terms, ", "),
		})
	}

	return out
}

// decodePageText appends the literal strings shown by Tj and TJ operators.
// Positioning numbers inside TJ arrays are dropped; they encode kerning, not
// characters.
func decodePageText(content []byte, out *strings.Builder) {
	for _, m := range tjPattern.FindAllSubmatch(content, -1) {
		out.WriteString(unescapePDFString(string(m[1])))
		out.WriteByte(' ')
	}
	for _, m := range tjArrayPattern.FindAllSubmatch(content, -1) {
		for _, s := range tjStringPattern.FindAllSubmatch(m[1], -1) {
			out.WriteString(unescapePDFString(string(s[1])))
		}
		out.WriteByte(' ')
	}
}

var pdfEscapes = strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, "\n", `\t`, "\t")

func unescapePDFString(s string) string {
	return pdfEscapes.Replace(s)
}
