package domain

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes a pipeline failure.
type ErrorKind string

const (
	// ErrorKindClassification covers backend unreachable, timeout, and
	// unparseable model responses after the retry budget is spent.
	ErrorKindClassification ErrorKind = "classification"

	// ErrorKindExtraction covers format-specific parse failures, e.g.
	// malformed JSON syntax or a PDF with no extractable text.
	ErrorKindExtraction ErrorKind = "extraction"

	// ErrorKindRouting is reserved. The action router is total and should
	// not normally fail.
	ErrorKindRouting ErrorKind = "routing"

	// ErrorKindAuditStore indicates the persistence layer was unavailable.
	ErrorKindAuditStore ErrorKind = "audit_store"
)

// PipelineError is the structured failure returned to callers when a
// transaction cannot complete. Stage records the last stage that finished
// before the failure, which together with the audit trail reconstructs how
// far processing got.
type PipelineError struct {
	Kind          ErrorKind
	Stage         Stage
	TransactionID string
	Message       string
	cause         error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s error after %s: %s: %v", e.Kind, e.Stage, e.Message, e.cause)
	}
	return fmt.Sprintf("%s error after %s: %s", e.Kind, e.Stage, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *PipelineError) Unwrap() error {
	return e.cause
}

// NewClassificationError wraps a failed classification call.
func NewClassificationError(msg string, cause error) *PipelineError {
	return &PipelineError{Kind: ErrorKindClassification, Stage: StageReceived, Message: msg, cause: cause}
}

// NewExtractionError wraps a format-specific extraction failure.
func NewExtractionError(msg string, cause error) *PipelineError {
	return &PipelineError{Kind: ErrorKindExtraction, Stage: StageClassified, Message: msg, cause: cause}
}

// NewAuditStoreError wraps an audit persistence failure.
func NewAuditStoreError(msg string, cause error) *PipelineError {
	return &PipelineError{Kind: ErrorKindAuditStore, Stage: StageRouted, Message: msg, cause: cause}
}

// WithStage returns a copy of the error with the last completed stage set.
func (e *PipelineError) WithStage(s Stage) *PipelineError {
	cp := *e
	cp.Stage = s
	return &cp
}

// WithTransaction returns a copy of the error tagged with the transaction id,
// so callers can query the audit trail for the failed run.
func (e *PipelineError) WithTransaction(id string) *PipelineError {
	cp := *e
	cp.TransactionID = id
	return &cp
}

// AsPipelineError unwraps err into a *PipelineError.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
