package classifier

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/triageflow/triageflow/internal/config"
	"github.com/triageflow/triageflow/internal/domain"
)

type fakeBackend struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Complete(ctx context.Context, prompt string) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name  string
		input string
		hint  domain.Format
		want  domain.Format
	}{
		{"hint wins", `{"a":1}`, domain.FormatEmail, domain.FormatEmail},
		{"invalid hint falls through to probes", `{"a":1}`, domain.Format("xml"), domain.FormatJSON},
		{"pdf magic", "%PDF-1.7\nbinary", "", domain.FormatPDF},
		{"json object", `  {"order_id": 7} `, "", domain.FormatJSON},
		{"json array", `[1,2,3]`, "", domain.FormatJSON},
		{"invalid json stays unknown", `{"order_id": `, "", domain.FormatUnknown},
		{"email headers", "From: a@example.com\nSubject: hi\n\nbody", "", domain.FormatEmail},
		{"from without subject", "From: a@example.com\n\nbody", "", domain.FormatUnknown},
		{"plain prose", "please send a quote", "", domain.FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectFormat([]byte(tt.input), tt.hint)
			if got != tt.want {
				t.Errorf("DetectFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifySuccess(t *testing.T) {
	backend := &fakeBackend{responses: []string{`{"format": "text", "intent": "rfq", "confidence": 0.9}`}}
	c := NewWithBackend(backend, time.Second, 1, 0)

	got, err := c.Classify(context.Background(), []byte("quote me 500 units"), "")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Intent != domain.IntentRFQ {
		t.Errorf("intent = %q, want %q", got.Intent, domain.IntentRFQ)
	}
	if got.Format != domain.FormatText {
		t.Errorf("format = %q, want %q", got.Format, domain.FormatText)
	}
	if got.Confidence == nil || *got.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", got.Confidence)
	}
}

func TestClassifyStructuralFormatWins(t *testing.T) {
	// The model claims text; the JSON probe already settled the question.
	backend := &fakeBackend{responses: []string{`{"format": "text", "intent": "invoice", "confidence": 0.8}`}}
	c := NewWithBackend(backend, time.Second, 0, 0)

	got, err := c.Classify(context.Background(), []byte(`{"invoice_id": "X-1"}`), "")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Format != domain.FormatJSON {
		t.Errorf("format = %q, want %q", got.Format, domain.FormatJSON)
	}
}

func TestClassifyRetriesThenSucceeds(t *testing.T) {
	backend := &fakeBackend{
		errs:      []error{fmt.Errorf("transient")},
		responses: []string{"", `{"format": "text", "intent": "complaint", "confidence": 0.7}`},
	}
	c := NewWithBackend(backend, time.Second, 2, 0)

	got, err := c.Classify(context.Background(), []byte("broken again"), "")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Intent != domain.IntentComplaint {
		t.Errorf("intent = %q, want %q", got.Intent, domain.IntentComplaint)
	}
	if backend.calls != 2 {
		t.Errorf("backend calls = %d, want 2", backend.calls)
	}
}

func TestClassifyRetryExhaustion(t *testing.T) {
	boom := errors.New("backend down")
	backend := &fakeBackend{errs: []error{boom, boom, boom}}
	c := NewWithBackend(backend, time.Second, 2, 0)

	_, err := c.Classify(context.Background(), []byte("anything"), "")
	if err == nil {
		t.Fatal("Classify() error = nil, want classification error")
	}
	perr, ok := domain.AsPipelineError(err)
	if !ok {
		t.Fatalf("error %v is not a pipeline error", err)
	}
	if perr.Kind != domain.ErrorKindClassification {
		t.Errorf("kind = %q, want %q", perr.Kind, domain.ErrorKindClassification)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error chain does not contain the backend error: %v", err)
	}
	if backend.calls != 3 {
		t.Errorf("backend calls = %d, want 3", backend.calls)
	}
}

func TestClassifyUnparseableResponse(t *testing.T) {
	backend := &fakeBackend{responses: []string{"I am not JSON at all"}}
	c := NewWithBackend(backend, time.Second, 0, 0)

	_, err := c.Classify(context.Background(), []byte("anything"), "")
	if err == nil {
		t.Fatal("Classify() error = nil, want classification error")
	}
	perr, ok := domain.AsPipelineError(err)
	if !ok || perr.Kind != domain.ErrorKindClassification {
		t.Errorf("got %v, want classification error", err)
	}
}

func configWithBackend(name string) config.ClassifierConfig {
	return config.ClassifierConfig{
		Backend:        name,
		Model:          "test-model",
		TimeoutSeconds: 1,
		MaxRetries:     0,
	}
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(configWithBackend("cloud"))
	if err == nil {
		t.Fatal("New() error = nil, want error for unknown backend")
	}
}

func TestNewKnownBackends(t *testing.T) {
	for _, name := range []string{"hosted", "local"} {
		c, err := New(configWithBackend(name))
		if err != nil {
			t.Fatalf("New(%s) error = %v", name, err)
		}
		if c.Name() != name {
			t.Errorf("Name() = %q, want %q", c.Name(), name)
		}
	}
}
