// Package agent holds the format-specific extraction agents. Each agent
// turns one input format into structured fields plus any anomalies it can
// detect on the way. Agents are pure with respect to the outside world: no
// network, no storage, no model calls.
package agent

import (
	"context"

	"github.com/triageflow/triageflow/internal/config"
	"github.com/triageflow/triageflow/internal/domain"
)

// Agent extracts structured fields from one input format. The intent label
// from classification is passed through so schema-aware agents can pick the
// right validation; agents that have no use for it ignore it.
type Agent interface {
	Format() domain.Format
	Extract(ctx context.Context, input []byte, intent string) (domain.ExtractedFields, error)
}

// Registry holds one agent per supported format and resolves dispatch.
type Registry struct {
	agents   map[domain.Format]Agent
	fallback Agent
}

// NewRegistry builds the full agent set. The text agent doubles as the
// fallback for unknown formats, so every classification outcome has an
// extraction path.
func NewRegistry(thresholds config.ThresholdConfig) (*Registry, error) {
	jsonAgent, err := NewJSONAgent(thresholds)
	if err != nil {
		return nil, err
	}
	text := NewTextAgent()
	r := &Registry{
		agents: map[domain.Format]Agent{
			domain.FormatEmail: NewEmailAgent(),
			domain.FormatJSON:  jsonAgent,
			domain.FormatPDF:   NewPDFAgent(thresholds),
			domain.FormatText:  text,
		},
		fallback: text,
	}
	return r, nil
}

// ForFormat returns the agent responsible for a format. Unknown and
// unregistered formats fall back to the text agent.
func (r *Registry) ForFormat(f domain.Format) Agent {
	if a, ok := r.agents[f]; ok {
		return a
	}
	return r.fallback
}
