package search

import (
	"context"
	"log/slog"

	"github.com/samsaffron/pulse/internal/tags"
)

// Phase is the search state of a turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSearching
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseSearching:
		return "searching"
	case PhaseReady:
		return "ready"
	default:
		return "idle"
	}
}

// Notify is told about phase changes. An error aborts the run.
type Notify func(phase Phase, reqs []tags.Request) error

// Orchestrator runs the searches a turn asked for, one at a time.
type Orchestrator struct {
	provider Provider
	logger   *slog.Logger
}

// NewOrchestrator wraps p. A nil provider disables searching.
func NewOrchestrator(p Provider, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{provider: p, logger: logger}
}

// Enabled reports whether a provider is configured.
func (o *Orchestrator) Enabled() bool {
	return o != nil && o.provider != nil
}

// Run queries the provider for each request in order. notify sees
// PhaseSearching before the first call and PhaseReady after the last; it
// is not called when there is nothing to do. A failed query contributes
// empty results.
func (o *Orchestrator) Run(ctx context.Context, reqs []tags.Request, notify Notify) ([]Results, error) {
	if !o.Enabled() || len(reqs) == 0 {
		return nil, nil
	}
	if notify == nil {
		notify = func(Phase, []tags.Request) error { return nil }
	}

	if err := notify(PhaseSearching, reqs); err != nil {
		return nil, err
	}

	results := make([]Results, 0, len(reqs))
	for _, r := range reqs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := o.provider.Query(ctx, r.Kind, r.Query)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			o.logger.Warn("search failed", "kind", r.Kind, "query", r.Query, "error", err)
			res = Results{Kind: r.Kind, Query: r.Query}
		}
		results = append(results, res)
	}

	if err := notify(PhaseReady, reqs); err != nil {
		return results, err
	}
	return results, nil
}
