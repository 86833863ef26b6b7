package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/triageflow/triageflow/internal/actions"
	"github.com/triageflow/triageflow/internal/agent"
	"github.com/triageflow/triageflow/internal/audit"
	"github.com/triageflow/triageflow/internal/config"
	"github.com/triageflow/triageflow/internal/domain"
	"github.com/triageflow/triageflow/internal/router"
	"github.com/triageflow/triageflow/internal/severity"
	"github.com/triageflow/triageflow/internal/storage/memory"
)

type fakeClassifier struct {
	result domain.ClassificationResult
	err    error
}

func (f *fakeClassifier) Name() string { return "fake" }

func (f *fakeClassifier) Classify(ctx context.Context, input []byte, hint domain.Format) (domain.ClassificationResult, error) {
	if f.err != nil {
		return domain.ClassificationResult{}, f.err
	}
	return f.result, nil
}

// failingStore wraps a real store and fails appends for one stage.
type failingStore struct {
	audit.Store
	failStage domain.Stage
}

func (s *failingStore) Append(ctx context.Context, rec *audit.Record) error {
	if rec.Stage == s.failStage {
		return fmt.Errorf("disk full")
	}
	return s.Store.Append(ctx, rec)
}

func newTestPipeline(t *testing.T, cls *fakeClassifier, store audit.Store) *Pipeline {
	t.Helper()
	agents, err := agent.NewRegistry(config.ThresholdConfig{HighValueInvoice: 10000, HighRiskScore: 80})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return New(
		cls,
		agents,
		severity.NewResolver(nil),
		router.New([]string{domain.IntentComplaint, domain.IntentRefundRequest, domain.IntentFraudRisk}),
		actions.NewSimulator(nil),
		store,
		nil,
	)
}

func trailStages(t *testing.T, store audit.Store, txnID string) []domain.Stage {
	t.Helper()
	trail, err := store.Trail(context.Background(), txnID)
	if err != nil {
		t.Fatalf("Trail() error = %v", err)
	}
	stages := make([]domain.Stage, len(trail))
	for i, rec := range trail {
		stages[i] = rec.Stage
	}
	return stages
}

func stagesEqual(got, want []domain.Stage) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// lastTransactionID digs the id of the single processed transaction out of
// the store, for failure paths where Process returns no Result.
func lastTransactionID(t *testing.T, store audit.Store) string {
	t.Helper()
	summaries, err := store.ListRecent(context.Background(), 1)
	if err != nil || len(summaries) == 0 {
		t.Fatalf("ListRecent() = %v, %v", summaries, err)
	}
	return summaries[0].TransactionID
}

func TestProcessEmailComplaint(t *testing.T) {
	store := memory.New()
	cls := &fakeClassifier{result: domain.ClassificationResult{Format: domain.FormatEmail, Intent: domain.IntentComplaint}}
	p := newTestPipeline(t, cls, store)

	msg := "From: dana@acme.example\r\nSubject: Damaged order\r\n\r\nMy order arrived damaged, please fix this."
	res, err := p.Process(context.Background(), []byte(msg), "")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Decision.Kind != domain.ActionCRMEscalation {
		t.Errorf("action = %v, want crm_escalation", res.Decision.Kind)
	}

	want := []domain.Stage{domain.StageReceived, domain.StageClassified, domain.StageExtracted, domain.StageRouted}
	if got := trailStages(t, store, res.TransactionID); !stagesEqual(got, want) {
		t.Errorf("trail = %v, want %v", got, want)
	}
}

func TestProcessRecordsRequestID(t *testing.T) {
	store := memory.New()
	cls := &fakeClassifier{result: domain.ClassificationResult{Format: domain.FormatText, Intent: domain.IntentRFQ}}
	p := newTestPipeline(t, cls, store)

	ctx := audit.WithRequestID(context.Background(), "req-123")
	res, err := p.Process(ctx, []byte("please quote 500 units"), "")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	trail, err := store.Trail(context.Background(), res.TransactionID)
	if err != nil {
		t.Fatalf("Trail() error = %v", err)
	}
	if trail[0].Stage != domain.StageReceived {
		t.Fatalf("first stage = %v, want received", trail[0].Stage)
	}
	if got := trail[0].Detail["request_id"]; got != "req-123" {
		t.Errorf("received detail request_id = %v, want req-123", got)
	}
}

func TestProcessThreateningEmailEscalatesToRiskAlert(t *testing.T) {
	store := memory.New()
	cls := &fakeClassifier{result: domain.ClassificationResult{Format: domain.FormatEmail, Intent: domain.IntentComplaint}}
	p := newTestPipeline(t, cls, store)

	msg := "From: k@x.example\r\nSubject: Final notice\r\n\r\nFix this or my lawyer files suit on Monday."
	res, err := p.Process(context.Background(), []byte(msg), "")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	// threatening_tone resolves high, which outranks the complaint intent.
	if res.Decision.Kind != domain.ActionRiskAlert {
		t.Errorf("action = %v, want risk_alert", res.Decision.Kind)
	}
}

func TestProcessEmptyBodyComplaintStillEscalates(t *testing.T) {
	store := memory.New()
	cls := &fakeClassifier{result: domain.ClassificationResult{Format: domain.FormatEmail, Intent: domain.IntentComplaint}}
	p := newTestPipeline(t, cls, store)

	msg := "From: dana@acme.example\r\nSubject: Still broken\r\n\r\n"
	res, err := p.Process(context.Background(), []byte(msg), "")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	// empty_body resolves medium, so the complaint intent still decides.
	if res.Decision.Kind != domain.ActionCRMEscalation {
		t.Errorf("action = %v, want crm_escalation", res.Decision.Kind)
	}
	found := false
	for _, a := range res.Extracted.Anomalies {
		if a.Kind == domain.AnomalyEmptyBody && a.Severity == domain.SeverityMedium {
			found = true
		}
	}
	if !found {
		t.Error("missing medium empty_body anomaly")
	}
}

func TestProcessClassificationFailure(t *testing.T) {
	store := memory.New()
	cls := &fakeClassifier{err: domain.NewClassificationError("backend down", errors.New("connect refused"))}
	p := newTestPipeline(t, cls, store)

	_, err := p.Process(context.Background(), []byte("whatever"), "")
	if err == nil {
		t.Fatal("Process() error = nil, want classification failure")
	}
	perr, ok := domain.AsPipelineError(err)
	if !ok || perr.Kind != domain.ErrorKindClassification {
		t.Fatalf("got %v, want classification error", err)
	}
	if perr.Stage != domain.StageReceived {
		t.Errorf("stage = %v, want received", perr.Stage)
	}

	want := []domain.Stage{domain.StageReceived, domain.StageFailed}
	if got := trailStages(t, store, lastTransactionID(t, store)); !stagesEqual(got, want) {
		t.Errorf("trail = %v, want %v", got, want)
	}
}

func TestProcessExtractionFailure(t *testing.T) {
	store := memory.New()
	cls := &fakeClassifier{result: domain.ClassificationResult{Format: domain.FormatJSON, Intent: domain.IntentRFQ}}
	p := newTestPipeline(t, cls, store)

	_, err := p.Process(context.Background(), []byte(`{"customer": `), "")
	if err == nil {
		t.Fatal("Process() error = nil, want extraction failure")
	}
	perr, ok := domain.AsPipelineError(err)
	if !ok || perr.Kind != domain.ErrorKindExtraction {
		t.Fatalf("got %v, want extraction error", err)
	}
	if perr.Stage != domain.StageClassified {
		t.Errorf("stage = %v, want classified", perr.Stage)
	}

	want := []domain.Stage{domain.StageReceived, domain.StageClassified, domain.StageFailed}
	if got := trailStages(t, store, lastTransactionID(t, store)); !stagesEqual(got, want) {
		t.Errorf("trail = %v, want %v", got, want)
	}
}

func TestProcessUnknownFormatFallsBackToText(t *testing.T) {
	store := memory.New()
	cls := &fakeClassifier{result: domain.ClassificationResult{Format: domain.FormatUnknown, Intent: domain.IntentUnknown}}
	p := newTestPipeline(t, cls, store)

	res, err := p.Process(context.Background(), []byte("some freeform note"), "")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Extracted.Format != domain.FormatText {
		t.Errorf("extracted format = %v, want text fallback", res.Extracted.Format)
	}
	if res.Decision.Kind != domain.ActionLogOnly {
		t.Errorf("action = %v, want log_only", res.Decision.Kind)
	}
}

func TestProcessTerminalAuditFailure(t *testing.T) {
	store := &failingStore{Store: memory.New(), failStage: domain.StageRouted}
	cls := &fakeClassifier{result: domain.ClassificationResult{Format: domain.FormatText, Intent: domain.IntentRFQ}}
	p := newTestPipeline(t, cls, store)

	_, err := p.Process(context.Background(), []byte("quote please"), "")
	if err == nil {
		t.Fatal("Process() error = nil, want audit store failure")
	}
	perr, ok := domain.AsPipelineError(err)
	if !ok || perr.Kind != domain.ErrorKindAuditStore {
		t.Errorf("got %v, want audit_store error", err)
	}
}

func TestProcessNonTerminalAuditFailureContinues(t *testing.T) {
	// Intermediate writes failing must not abort the transaction.
	store := &failingStore{Store: memory.New(), failStage: domain.StageClassified}
	cls := &fakeClassifier{result: domain.ClassificationResult{Format: domain.FormatText, Intent: domain.IntentRFQ}}
	p := newTestPipeline(t, cls, store)

	res, err := p.Process(context.Background(), []byte("quote please"), "")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	want := []domain.Stage{domain.StageReceived, domain.StageExtracted, domain.StageRouted}
	if got := trailStages(t, store, res.TransactionID); !stagesEqual(got, want) {
		t.Errorf("trail = %v, want %v", got, want)
	}
}

func TestProcessRoutedDetailRoundTrip(t *testing.T) {
	store := memory.New()
	cls := &fakeClassifier{result: domain.ClassificationResult{Format: domain.FormatText, Intent: domain.IntentFraudRisk}}
	p := newTestPipeline(t, cls, store)

	res, err := p.Process(context.Background(), []byte("suspicious transfer pattern observed"), "")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	trail, err := store.Trail(context.Background(), res.TransactionID)
	if err != nil {
		t.Fatalf("Trail() error = %v", err)
	}
	last := trail[len(trail)-1]
	if last.Stage != domain.StageRouted {
		t.Fatalf("last stage = %v, want routed", last.Stage)
	}
	if last.Detail["action"] != string(domain.ActionCRMEscalation) {
		t.Errorf("routed action detail = %v, want crm_escalation", last.Detail["action"])
	}
	if last.Detail["intent"] != domain.IntentFraudRisk {
		t.Errorf("routed intent detail = %v, want fraud_risk", last.Detail["intent"])
	}
}
