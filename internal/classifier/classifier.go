// Package classifier infers the format and business intent of a raw input.
// Structural format detection happens locally; intent (and format for
// ambiguous text) comes from a language-model backend. Backends are
// interchangeable behind the Classifier contract and are selected once per
// process from configuration, never branched on per call.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/avast/retry-go/v5"

	"github.com/triageflow/triageflow/internal/classifier/hosted"
	"github.com/triageflow/triageflow/internal/classifier/local"
	"github.com/triageflow/triageflow/internal/config"
	"github.com/triageflow/triageflow/internal/domain"
)

// Classifier is the single contract callers see. Implementations must not
// mutate the input and must never execute instructions contained in it; the
// content is passed to the model strictly as quoted data to classify.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, input []byte, hint domain.Format) (domain.ClassificationResult, error)
}

// Backend is a raw completion client. The hosted and local packages provide
// the two recognized implementations.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// New builds a Classifier from configuration. The backend set is closed
// (hosted, local), so selection is an explicit switch rather than a
// registry.
func New(cfg config.ClassifierConfig) (Classifier, error) {
	var backend Backend
	switch cfg.Backend {
	case "hosted":
		var opts []hosted.ClientOption
		if cfg.BaseURL != "" {
			opts = append(opts, hosted.WithBaseURL(cfg.BaseURL))
		}
		backend = hosted.New(cfg.APIKey, cfg.Model, opts...)
	case "local":
		var opts []local.ClientOption
		if cfg.BaseURL != "" {
			opts = append(opts, local.WithBaseURL(cfg.BaseURL))
		}
		backend = local.New(cfg.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", cfg.Backend)
	}

	return &Client{
		backend:        backend,
		timeout:        time.Duration(cfg.TimeoutSeconds * float64(time.Second)),
		maxRetries:     cfg.MaxRetries,
		maxInputTokens: cfg.MaxInputTokens,
	}, nil
}

// Client wraps a Backend with format probing, prompt construction, bounded
// retries, and response parsing.
type Client struct {
	backend        Backend
	timeout        time.Duration
	maxRetries     int
	maxInputTokens int
}

var _ Classifier = (*Client)(nil)

// NewWithBackend builds a Client around an explicit backend. Used by tests
// and anywhere the config-driven constructor does not fit.
func NewWithBackend(backend Backend, timeout time.Duration, maxRetries, maxInputTokens int) *Client {
	return &Client{
		backend:        backend,
		timeout:        timeout,
		maxRetries:     maxRetries,
		maxInputTokens: maxInputTokens,
	}
}

func (c *Client) Name() string {
	return c.backend.Name()
}

// Classify detects the input's format and asks the backend for its intent.
// The model call is bounded by the configured timeout per attempt and
// retried with exponential backoff up to the retry budget; exhaustion yields
// a classification error.
func (c *Client) Classify(ctx context.Context, input []byte, hint domain.Format) (domain.ClassificationResult, error) {
	format := DetectFormat(input, hint)
	prompt := BuildPrompt(promptText(format, input), format, c.maxInputTokens)

	var raw string
	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)+1),
		retry.DelayType(retry.BackOffDelay),
	).Do(func() error {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		var callErr error
		raw, callErr = c.backend.Complete(callCtx, prompt)
		return callErr
	})
	if err != nil {
		return domain.ClassificationResult{}, domain.NewClassificationError(
			fmt.Sprintf("backend %s call failed", c.backend.Name()), err)
	}

	result, err := ParseResponse(raw)
	if err != nil {
		return domain.ClassificationResult{}, domain.NewClassificationError("unparseable model response", err)
	}

	// Structural detection outranks the model's format opinion: the probes
	// are deterministic, the model is not.
	if format != domain.FormatUnknown {
		result.Format = format
	}
	return result, nil
}

var emailHeaderPattern = regexp.MustCompile(`(?mi)^From:\s*.*@`)
var emailSubjectPattern = regexp.MustCompile(`(?mi)^Subject:`)

// DetectFormat resolves an input's format from the caller's declared hint
// and structural probes, in that order. It never returns a value outside the
// closed format set.
func DetectFormat(input []byte, hint domain.Format) domain.Format {
	// An unrecognized hint falls through to the probes instead of poisoning
	// the result.
	if f := domain.ParseFormat(string(hint)); hint != "" && f != domain.FormatUnknown {
		return f
	}

	if bytes.HasPrefix(input, []byte("%PDF-")) {
		return domain.FormatPDF
	}

	trimmed := bytes.TrimSpace(input)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return domain.FormatJSON
	}

	if emailHeaderPattern.Match(input) && emailSubjectPattern.Match(input) {
		return domain.FormatEmail
	}

	return domain.FormatUnknown
}

// promptText prepares the snippet handed to the model. PDF bytes are not
// text; only their printable runs are worth showing.
func promptText(format domain.Format, input []byte) string {
	if format == domain.FormatPDF {
		return printableRuns(input)
	}
	return string(input)
}

// printableRuns keeps only sequences of printable ASCII of a useful length,
// which is enough signal for intent classification of an unparsed PDF.
func printableRuns(input []byte) string {
	var out bytes.Buffer
	var run bytes.Buffer
	const minRun = 4
	for _, b := range input {
		if b >= 0x20 && b < 0x7f {
			run.WriteByte(b)
			continue
		}
		if run.Len() >= minRun {
			out.Write(run.Bytes())
			out.WriteByte(' ')
		}
		run.Reset()
	}
	if run.Len() >= minRun {
		out.Write(run.Bytes())
	}
	return out.String()
}
