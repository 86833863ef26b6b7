// Package pipeline orchestrates one transaction end to end: classify the
// input, extract fields with the matching agent, route the result, and
// record every stage in the audit trail.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/triageflow/triageflow/internal/actions"
	"github.com/triageflow/triageflow/internal/agent"
	"github.com/triageflow/triageflow/internal/audit"
	"github.com/triageflow/triageflow/internal/classifier"
	"github.com/triageflow/triageflow/internal/domain"
	"github.com/triageflow/triageflow/internal/router"
	"github.com/triageflow/triageflow/internal/severity"
)

// Result is the successful outcome of one transaction.
type Result struct {
	TransactionID  string                      `json:"transaction_id"`
	Classification domain.ClassificationResult `json:"classification"`
	Extracted      domain.ExtractedFields      `json:"extracted"`
	Decision       domain.ActionDecision       `json:"decision"`
	Receipt        map[string]any              `json:"receipt,omitempty"`
}

// Pipeline wires the stages together. All dependencies are injected; the
// pipeline itself holds no mutable state and is safe for concurrent use.
type Pipeline struct {
	classifier classifier.Classifier
	agents     *agent.Registry
	severity   *severity.Resolver
	router     *router.Router
	executor   actions.Executor
	store      audit.Store
	log        *slog.Logger
	tracer     trace.Tracer
}

func New(
	cls classifier.Classifier,
	agents *agent.Registry,
	sev *severity.Resolver,
	rt *router.Router,
	executor actions.Executor,
	store audit.Store,
	log *slog.Logger,
) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		classifier: cls,
		agents:     agents,
		severity:   sev,
		router:     rt,
		executor:   executor,
		store:      store,
		log:        log,
		tracer:     otel.Tracer("triageflow/pipeline"),
	}
}

// Process runs one input through the full pipeline. On failure the returned
// error is a *domain.PipelineError whose Stage names the last stage that
// completed; the audit trail holds the matching failed record. A transaction
// id is always assigned, and is also carried inside the error path via the
// trail.
func (p *Pipeline) Process(ctx context.Context, input []byte, declared domain.Format) (*Result, error) {
	txnID := uuid.NewString()

	ctx, span := p.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(attribute.String("transaction.id", txnID)))
	defer span.End()

	log := p.log.With("transaction_id", txnID)

	receivedDetail := map[string]any{
		"declared_format": string(declared),
		"size_bytes":      len(input),
	}
	if reqID := audit.RequestIDFrom(ctx); reqID != "" {
		receivedDetail["request_id"] = reqID
	}
	p.appendNonTerminal(ctx, log, txnID, domain.StageReceived, receivedDetail)

	cls, err := p.classifier.Classify(ctx, input, declared)
	if err != nil {
		return nil, p.fail(ctx, span, log, txnID, domain.StageReceived, err)
	}
	span.SetAttributes(
		attribute.String("triage.format", string(cls.Format)),
		attribute.String("triage.intent", cls.Intent),
	)

	classifiedDetail := map[string]any{
		"format":  string(cls.Format),
		"intent":  cls.Intent,
		"backend": p.classifier.Name(),
	}
	if cls.Confidence != nil {
		classifiedDetail["confidence"] = *cls.Confidence
	}
	p.appendNonTerminal(ctx, log, txnID, domain.StageClassified, classifiedDetail)

	extracted, err := p.agents.ForFormat(cls.Format).Extract(ctx, input, cls.Intent)
	if err != nil {
		return nil, p.fail(ctx, span, log, txnID, domain.StageClassified, err)
	}
	extracted.Anomalies = p.severity.Annotate(extracted.Anomalies)

	p.appendNonTerminal(ctx, log, txnID, domain.StageExtracted, map[string]any{
		"fields":    extracted.Fields,
		"anomalies": extracted.Anomalies,
	})

	decision := p.router.Decide(cls, extracted)
	receipt := p.executor.Execute(ctx, txnID, decision)
	span.SetAttributes(attribute.String("triage.action", string(decision.Kind)))

	// The terminal record is the durability promise: if it cannot be
	// written, the transaction did not happen as far as callers are
	// concerned.
	routedDetail := map[string]any{
		"format":  string(cls.Format),
		"intent":  cls.Intent,
		"action":  string(decision.Kind),
		"reason":  decision.Reason,
		"receipt": receipt,
	}
	if err := p.append(ctx, txnID, domain.StageRouted, routedDetail); err != nil {
		perr := domain.NewAuditStoreError("recording routed outcome", err).WithStage(domain.StageRouted).WithTransaction(txnID)
		span.SetStatus(codes.Error, perr.Message)
		log.ErrorContext(ctx, "terminal audit write failed", "error", err)
		return nil, perr
	}

	log.InfoContext(ctx, "transaction routed",
		"format", string(cls.Format),
		"intent", cls.Intent,
		"action", string(decision.Kind),
	)

	return &Result{
		TransactionID:  txnID,
		Classification: cls,
		Extracted:      extracted,
		Decision:       decision,
		Receipt:        receipt,
	}, nil
}

func (p *Pipeline) append(ctx context.Context, txnID string, stage domain.Stage, detail map[string]any) error {
	rec := &audit.Record{TransactionID: txnID, Stage: stage, Detail: detail}
	audit.Fill(rec)
	return p.store.Append(ctx, rec)
}

// appendNonTerminal records an intermediate stage. A write failure here is
// logged but does not stop the transaction; the terminal record settles
// durability.
func (p *Pipeline) appendNonTerminal(ctx context.Context, log *slog.Logger, txnID string, stage domain.Stage, detail map[string]any) {
	if err := p.append(ctx, txnID, stage, detail); err != nil {
		log.WarnContext(ctx, "audit write failed", "stage", string(stage), "error", err)
	}
}

// fail records the failed terminal stage and returns the pipeline error with
// the last completed stage attached.
func (p *Pipeline) fail(ctx context.Context, span trace.Span, log *slog.Logger, txnID string, completed domain.Stage, err error) error {
	perr, ok := domain.AsPipelineError(err)
	if !ok {
		// Stages only surface structured errors; anything else gets wrapped
		// by the stage it interrupted.
		if completed == domain.StageReceived {
			perr = domain.NewClassificationError(err.Error(), err)
		} else {
			perr = domain.NewExtractionError(err.Error(), err)
		}
	}
	perr = perr.WithStage(completed).WithTransaction(txnID)

	span.SetStatus(codes.Error, perr.Message)
	log.ErrorContext(ctx, "transaction failed",
		"stage", string(completed),
		"kind", string(perr.Kind),
		"error", err,
	)

	p.appendNonTerminal(ctx, log, txnID, domain.StageFailed, map[string]any{
		"error_kind": string(perr.Kind),
		"message":    perr.Message,
		"after":      string(completed),
	})
	return perr
}
