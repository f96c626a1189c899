package core

// status.go answers the read-only operational questions: how many entities
// a source holds, whether an operation is mid-flight, and how its last run
// ended. The CLI status command and the web API both read from here.

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SourceStatus is the operational snapshot of one configured source.
type SourceStatus struct {
	Name        string                          `json:"name"`
	Kind        string                          `json:"kind"`
	Format      string                          `json:"format"`
	FetchType   string                          `json:"fetchType"`
	EntityCount int                             `json:"entityCount"`
	Schedule    time.Duration                   `json:"schedule,omitempty"`
	ExpireAfter time.Duration                   `json:"expireAfter,omitempty"`
	Watch       bool                            `json:"watch,omitempty"`
	// Active holds the persisted checkpoint of each operation currently
	// mid-flight, keyed by operation kind.
	Active  map[OperationKind]*ProgressState `json:"active,omitempty"`
	LastRun *RunRecord                       `json:"lastRun,omitempty"`
}

// allOperations lists every chunked operation a source supports.
var allOperations = []OperationKind{OpImport, OpClear, OpExpire}

// SourceStatus returns the snapshot for one source.
func (s *Service) SourceStatus(ctx context.Context, sourceName string) (*SourceStatus, error) {
	spec, ok := s.sources[sourceName]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", sourceName)
	}
	return s.sourceStatus(ctx, spec)
}

// AllSourceStatuses returns snapshots for every source in declaration
// order.
func (s *Service) AllSourceStatuses(ctx context.Context) ([]*SourceStatus, error) {
	statuses := make([]*SourceStatus, 0, len(s.order))
	for _, name := range s.order {
		st, err := s.sourceStatus(ctx, s.sources[name])
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (s *Service) sourceStatus(ctx context.Context, spec *SourceSpec) (*SourceStatus, error) {
	count, err := s.store.CountBySource(ctx, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", spec.Name, err)
	}

	st := &SourceStatus{
		Name:        spec.Name,
		Kind:        spec.Kind,
		Format:      spec.Format,
		FetchType:   spec.Fetch.Type,
		EntityCount: count,
		Schedule:    spec.Schedule,
		ExpireAfter: spec.ExpireAfter,
		Watch:       spec.Watch,
	}

	for _, op := range allOperations {
		prog, err := s.store.Progress(ctx, spec.Name, op)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("progress %s/%s: %w", spec.Name, op, err)
		}
		if prog == nil || prog.Phase != PhaseRunning {
			continue
		}
		if st.Active == nil {
			st.Active = make(map[OperationKind]*ProgressState, 1)
		}
		st.Active[op] = prog
	}

	runs, err := s.store.Runs(ctx, spec.Name, 1)
	if err != nil {
		return nil, fmt.Errorf("runs %s: %w", spec.Name, err)
	}
	if len(runs) > 0 {
		st.LastRun = &runs[0]
	}
	return st, nil
}
