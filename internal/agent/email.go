package agent

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/mail"
	"strings"

	"github.com/triageflow/triageflow/internal/domain"
)

var urgencyKeywords = []string{
	"urgent", "immediately", "asap", "as soon as possible", "right away",
	"time-sensitive", "deadline", "overdue",
}

var threatKeywords = []string{
	"legal action", "lawsuit", "sue you", "my lawyer", "attorney",
	"report you", "regulatory complaint", "or else",
}

var angerKeywords = []string{
	"unacceptable", "outraged", "furious", "terrible", "worst",
	"disgusted", "incompetent",
}

// EmailAgent extracts sender, subject, and body signals from an RFC 5322
// message.
type EmailAgent struct{}

func NewEmailAgent() *EmailAgent { return &EmailAgent{} }

func (a *EmailAgent) Format() domain.Format { return domain.FormatEmail }

const bodyExcerptLen = 200

// Extract parses the message and derives urgency and tone from keyword
// signals. A missing or malformed sender is an anomaly, not a failure; a
// message that cannot be parsed at all is an extraction error.
func (a *EmailAgent) Extract(ctx context.Context, input []byte, intent string) (domain.ExtractedFields, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(input))
	if err != nil {
		return domain.ExtractedFields{}, domain.NewExtractionError("unparseable email message", err)
	}

	out := domain.ExtractedFields{
		Format: domain.FormatEmail,
		Fields: map[string]any{},
	}

	dec := new(mime.WordDecoder)
	if subject := msg.Header.Get("Subject"); subject != "" {
		if decoded, err := dec.DecodeHeader(subject); err == nil {
			subject = decoded
		}
		out.Fields["subject"] = subject
	}

	from := msg.Header.Get("From")
	addr, err := mail.ParseAddress(from)
	switch {
	case from == "":
		out.Anomalies = append(out.Anomalies, domain.Anomaly{
			Kind:    domain.AnomalyUnparseableSender,
			Message: "message has no From header",
		})
	case err != nil:
		out.Fields["sender_raw"] = from
		out.Anomalies = append(out.Anomalies, domain.Anomaly{
			Kind:    domain.AnomalyUnparseableSender,
			Message: "From header is not a valid address: " + from,
		})
	default:
		out.Fields["sender"] = addr.Address
		if addr.Name != "" {
			out.Fields["sender_name"] = addr.Name
		}
	}

	bodyBytes, err := io.ReadAll(msg.Body)
	if err != nil {
		return domain.ExtractedFields{}, domain.NewExtractionError("reading email body", err)
	}
	body := strings.TrimSpace(string(bodyBytes))
	if body == "" {
		out.Anomalies = append(out.Anomalies, domain.Anomaly{
			Kind:    domain.AnomalyEmptyBody,
			Message: "message body is empty",
		})
	} else {
		excerpt := body
		if len(excerpt) > bodyExcerptLen {
			excerpt = excerpt[:bodyExcerptLen]
		}
		out.Fields["body_excerpt"] = excerpt
	}

	subject, _ := out.Fields["subject"].(string)
	signal := strings.ToLower(subject + "\n" + body)

	out.Fields["urgency"] = urgencyOf(signal)
	tone := toneOf(signal)
	out.Fields["tone"] = tone
	if tone == "threatening" {
		out.Anomalies = append(out.Anomalies, domain.Anomaly{
			Kind:    domain.AnomalyThreateningTone,
			Message: "message language suggests a legal or retaliatory threat",
		})
	}

	return out, nil
}

func urgencyOf(signal string) string {
	for _, kw := range urgencyKeywords {
		if strings.Contains(signal, kw) {
			return "high"
		}
	}
	return "normal"
}

// toneOf grades the message tone. Threat outranks anger: a threatening
// message is often also angry, and the threat is what routing cares about.
func toneOf(signal string) string {
	for _, kw := range threatKeywords {
		if strings.Contains(signal, kw) {
			return "threatening"
		}
	}
	for _, kw := range angerKeywords {
		if strings.Contains(signal, kw) {
			return "angry"
		}
	}
	if strings.Contains(signal, "thank") || strings.Contains(signal, "please") {
		return "polite"
	}
	return "neutral"
}
