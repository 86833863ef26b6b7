package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/triageflow/triageflow/internal/domain"
)

func hasAnomaly(anomalies []domain.Anomaly, kind string) bool {
	for _, a := range anomalies {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

func TestEmailExtract(t *testing.T) {
	msg := strings.Join([]string{
		"From: Dana Ortiz <dana@acme.example>",
		"To: support@vendor.example",
		"Subject: Broken pump on order 4417",
		"",
		"The replacement pump you shipped arrived broken. Please advise.",
	}, "\r\n")

	got, err := NewEmailAgent().Extract(context.Background(), []byte(msg), domain.IntentComplaint)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Fields["sender"] != "dana@acme.example" {
		t.Errorf("sender = %v, want dana@acme.example", got.Fields["sender"])
	}
	if got.Fields["sender_name"] != "Dana Ortiz" {
		t.Errorf("sender_name = %v, want Dana Ortiz", got.Fields["sender_name"])
	}
	if got.Fields["subject"] != "Broken pump on order 4417" {
		t.Errorf("subject = %v", got.Fields["subject"])
	}
	if excerpt, _ := got.Fields["body_excerpt"].(string); !strings.Contains(excerpt, "arrived broken") {
		t.Errorf("body_excerpt = %q", excerpt)
	}
	if got.Fields["tone"] != "polite" {
		t.Errorf("tone = %v, want polite", got.Fields["tone"])
	}
	if len(got.Anomalies) != 0 {
		t.Errorf("anomalies = %v, want none", got.Anomalies)
	}
}

func TestEmailExtractThreateningTone(t *testing.T) {
	msg := "From: k@x.example\r\nSubject: URGENT refund\r\n\r\nRefund me immediately or my lawyer will be in touch."

	got, err := NewEmailAgent().Extract(context.Background(), []byte(msg), domain.IntentComplaint)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Fields["tone"] != "threatening" {
		t.Errorf("tone = %v, want threatening", got.Fields["tone"])
	}
	if got.Fields["urgency"] != "high" {
		t.Errorf("urgency = %v, want high", got.Fields["urgency"])
	}
	if !hasAnomaly(got.Anomalies, domain.AnomalyThreateningTone) {
		t.Error("missing threatening_tone anomaly")
	}
}

func TestEmailExtractEmptyBody(t *testing.T) {
	msg := "From: k@x.example\r\nSubject: ping\r\n\r\n"

	got, err := NewEmailAgent().Extract(context.Background(), []byte(msg), domain.IntentUnknown)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !hasAnomaly(got.Anomalies, domain.AnomalyEmptyBody) {
		t.Error("missing empty_body anomaly")
	}
	if _, ok := got.Fields["body_excerpt"]; ok {
		t.Error("body_excerpt present for empty body")
	}
}

func TestEmailExtractUnparseableSender(t *testing.T) {
	msg := "From: not an address\r\nSubject: hi\r\n\r\nhello there"

	got, err := NewEmailAgent().Extract(context.Background(), []byte(msg), domain.IntentUnknown)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !hasAnomaly(got.Anomalies, domain.AnomalyUnparseableSender) {
		t.Error("missing unparseable_sender anomaly")
	}
	if got.Fields["sender_raw"] != "not an address" {
		t.Errorf("sender_raw = %v", got.Fields["sender_raw"])
	}
}

func TestEmailExtractMissingFrom(t *testing.T) {
	msg := "Subject: hi\r\n\r\nhello there"

	got, err := NewEmailAgent().Extract(context.Background(), []byte(msg), domain.IntentUnknown)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !hasAnomaly(got.Anomalies, domain.AnomalyUnparseableSender) {
		t.Error("missing unparseable_sender anomaly for absent From header")
	}
}

func TestEmailExtractUnparseableMessage(t *testing.T) {
	_, err := NewEmailAgent().Extract(context.Background(), []byte("no headers here, just prose"), domain.IntentUnknown)
	if err == nil {
		t.Fatal("Extract() error = nil, want extraction error")
	}
	perr, ok := domain.AsPipelineError(err)
	if !ok || perr.Kind != domain.ErrorKindExtraction {
		t.Errorf("got %v, want extraction error", err)
	}
}

func TestEmailExtractEncodedSubject(t *testing.T) {
	msg := "From: k@x.example\r\nSubject: =?UTF-8?Q?Facture_impay=C3=A9e?=\r\n\r\nbody"

	got, err := NewEmailAgent().Extract(context.Background(), []byte(msg), domain.IntentInvoice)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Fields["subject"] != "Facture impayée" {
		t.Errorf("subject = %v, want decoded value", got.Fields["subject"])
	}
}
