package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seaward/sluice/internal/entity"
	"github.com/seaward/sluice/internal/record"
)

// ProcessAction classifies what reconciliation did with one record.
type ProcessAction string

const (
	ActionCreated ProcessAction = "created"
	ActionUpdated ProcessAction = "updated"
	ActionSkipped ProcessAction = "skipped"
	ActionFailed  ProcessAction = "failed"
)

// ProcessResult is the explicit outcome of reconciling one record. A
// failed record carries its error here; failures never abort the chunk.
type ProcessResult struct {
	Action   ProcessAction
	EntityID string
	Err      error
}

// reconciler carries the per-run state needed to process records for one
// source. It is built once per invocation and used sequentially.
type reconciler struct {
	store  Store
	spec   *SourceSpec
	kind   *KindSpec
	digest string // mapping digest, fixed for the run
	policy UpdatePolicy
	dryRun bool
	now    func() time.Time
	log    *slog.Logger
}

func newReconciler(store Store, spec *SourceSpec, kind *KindSpec, dryRun bool, log *slog.Logger) *reconciler {
	return &reconciler{
		store:  store,
		spec:   spec,
		kind:   kind,
		digest: spec.MappingDigest(),
		policy: spec.EffectivePolicy(),
		dryRun: dryRun,
		now:    time.Now,
		log:    log,
	}
}

// processRecord runs one record through the full reconciliation sequence:
// resolve, skip or fingerprint-check, build or load, map, validate,
// authorize, persist. Every outcome, including failure, comes back as a
// ProcessResult.
func (r *reconciler) processRecord(ctx context.Context, rec *record.Record) ProcessResult {
	id, err := resolveExisting(ctx, r.store, r.spec, r.kind, rec, r.log)
	if err != nil {
		return ProcessResult{Action: ActionFailed, Err: err}
	}

	// Fast path: a matched record under create-only never loads the
	// entity and never writes.
	if id != "" && r.policy == PolicyCreateOnly {
		return ProcessResult{Action: ActionSkipped, EntityID: id}
	}

	fp := record.Fingerprint(rec, r.digest)

	if id != "" && r.policy != PolicyForceUpdate {
		meta, err := r.store.Metadata(ctx, r.spec.Name, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return ProcessResult{Action: ActionFailed, EntityID: id, Err: fmt.Errorf("load metadata: %w", err)}
		}
		if meta != nil && meta.Fingerprint == fp {
			return ProcessResult{Action: ActionSkipped, EntityID: id}
		}
	}

	var ent *entity.Entity
	creating := id == ""
	if creating {
		ent = entity.New(r.kind.Name)
		if err := applyDefaults(r.spec, r.kind, ent); err != nil {
			return ProcessResult{Action: ActionFailed, Err: err}
		}
	} else {
		ent, err = r.store.Load(ctx, r.kind.Name, id)
		if err != nil {
			return ProcessResult{Action: ActionFailed, EntityID: id, Err: fmt.Errorf("load entity: %w", err)}
		}
	}

	if err := applyMappings(rec, r.spec, r.kind, ent); err != nil {
		return ProcessResult{Action: ActionFailed, EntityID: id, Err: err}
	}

	violations, err := r.store.Validate(ctx, ent)
	if err != nil {
		return ProcessResult{Action: ActionFailed, EntityID: id, Err: fmt.Errorf("validate: %w", err)}
	}
	if len(violations) > 0 {
		return ProcessResult{Action: ActionFailed, EntityID: id, Err: violations}
	}

	if !creating {
		if err := r.store.Authorize(ctx, ent, "update"); err != nil {
			return ProcessResult{Action: ActionFailed, EntityID: id, Err: fmt.Errorf("authorize: %w", err)}
		}
	}

	action := ActionUpdated
	if creating {
		action = ActionCreated
	}
	if r.dryRun {
		return ProcessResult{Action: action, EntityID: id}
	}

	meta := &entity.ItemMetadata{
		SourceName:  r.spec.Name,
		Fingerprint: fp,
		ImportedAt:  r.now(),
	}
	if creating {
		if err := r.store.Create(ctx, ent, meta); err != nil {
			return ProcessResult{Action: ActionFailed, Err: fmt.Errorf("create: %w", err)}
		}
	} else {
		meta.EntityID = ent.ID
		if err := r.store.Save(ctx, ent, meta); err != nil {
			return ProcessResult{Action: ActionFailed, EntityID: id, Err: fmt.Errorf("save: %w", err)}
		}
	}
	return ProcessResult{Action: action, EntityID: ent.ID}
}
