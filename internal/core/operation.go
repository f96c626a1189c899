package core

// operation.go drives the chunked source operations. One RunChunk call
// advances an operation by at most the source's chunk limit and persists a
// checkpoint, so any scheduler (CLI loop, background driver, cron) can
// re-invoke until completion. A logical operation holds the source's
// persisted lock from its first chunk to its last; the lock holder is the
// run ID, so a continuation in a new process picks the run up where the
// previous one stopped.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// RunChunk advances one source operation by a single chunk. It returns
// StatusRunning while more chunks remain and StatusComplete with the final
// summary once the operation finishes. Errors other than per-record
// failures finish the run as failed: the run row is recorded, the lock
// released, and the progress state reset.
func (s *Service) RunChunk(ctx context.Context, sourceName string, op OperationKind) (OperationResult, error) {
	spec, ok := s.sources[sourceName]
	if !ok {
		return OperationResult{}, fmt.Errorf("unknown source: %s", sourceName)
	}
	kind := s.kinds[spec.Kind]

	gate := s.gate(sourceName)
	gate.Lock()
	defer gate.Unlock()

	log := s.log.With("source", sourceName, "op", string(op))

	st, err := s.store.Progress(ctx, sourceName, op)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return OperationResult{}, fmt.Errorf("load progress: %w", err)
	}

	if st == nil || st.Phase != PhaseRunning {
		st, err = s.beginRun(ctx, spec, kind, op, log)
		if err != nil {
			return OperationResult{}, err
		}
	} else {
		// Continuation: re-assert the lock under this run's identity. A
		// force unlock followed by another operation shows up here as
		// ErrSourceLocked.
		if err := s.store.AcquireLock(ctx, sourceName, st.RunID); err != nil {
			return OperationResult{}, err
		}
		log.Debug("continuing operation", "run_id", st.RunID, "processed", st.Processed)
	}

	var done bool
	switch op {
	case OpImport:
		done, err = s.importChunk(ctx, spec, kind, st, log)
	case OpClear:
		done, err = s.clearChunk(ctx, spec, st, time.Time{}, log)
	case OpExpire:
		done, err = s.expireChunk(ctx, spec, st, log)
	default:
		err = fmt.Errorf("unknown operation: %s", op)
	}
	if err != nil {
		st.AddMessage(err.Error())
		s.finishRun(spec, op, st, err, log)
		s.publish(sourceName, op, *st)
		return OperationResult{}, err
	}

	if !done {
		if err := s.store.SaveProgress(ctx, sourceName, op, st); err != nil {
			saveErr := fmt.Errorf("save progress: %w", err)
			s.finishRun(spec, op, st, saveErr, log)
			return OperationResult{}, saveErr
		}
		s.publish(sourceName, op, *st)
		return OperationResult{Status: StatusRunning, Summary: st.Summary()}, nil
	}

	st.Phase = PhaseComplete
	s.finishRun(spec, op, st, nil, log)
	s.publish(sourceName, op, *st)
	return OperationResult{Status: StatusComplete, Summary: st.Summary()}, nil
}

// beginRun starts a new logical operation: configuration check, lock
// acquisition, payload spooling for imports, and the initial checkpoint.
func (s *Service) beginRun(ctx context.Context, spec *SourceSpec, kind *KindSpec, op OperationKind, log *slog.Logger) (*ProgressState, error) {
	if err := ValidateSpec(spec, kind); err != nil {
		// The lock was never taken, so the usual finalization does not
		// apply; still leave a failed row in the run history.
		s.recordSetupFailure(spec, op, err, log)
		return nil, err
	}

	runID := uuid.New().String()
	if err := s.store.AcquireLock(ctx, spec.Name, runID); err != nil {
		return nil, err
	}

	st := &ProgressState{
		Phase:     PhaseRunning,
		RunID:     runID,
		Total:     -1,
		StartedAt: time.Now(),
	}

	switch op {
	case OpImport:
		path, err := s.spoolPayload(ctx, spec, runID)
		if err != nil {
			s.finishRun(spec, op, st, err, log)
			return nil, err
		}
		st.SpoolPath = path
	case OpClear:
		if total, err := s.store.CountBySource(ctx, spec.Name); err == nil {
			st.Total = total
		}
	}

	if err := s.store.SaveProgress(ctx, spec.Name, op, st); err != nil {
		saveErr := fmt.Errorf("save progress: %w", err)
		s.finishRun(spec, op, st, saveErr, log)
		return nil, saveErr
	}

	log.Info("operation started", "run_id", runID, "total", st.Total)
	return st, nil
}

// spoolPayload fetches the source's payload once per logical run and
// writes it to the spool directory. Chunked invocations re-read the spool,
// so record ordering stays stable even when the upstream content moves.
func (s *Service) spoolPayload(ctx context.Context, spec *SourceSpec, runID string) (string, error) {
	fetcher, err := s.fetchers(spec.Fetch)
	if err != nil {
		return "", err
	}
	body, err := fetcher.Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer body.Close()

	if err := os.MkdirAll(s.spoolDir, 0o755); err != nil {
		return "", fmt.Errorf("create spool directory: %w", err)
	}
	path := filepath.Join(s.spoolDir, runID+".payload")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("spool payload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close spool file: %w", err)
	}
	return path, nil
}

// importChunk parses the spooled payload and reconciles the next slice of
// records. Per-record failures are counted and kept as diagnostics; they
// never stop the chunk.
func (s *Service) importChunk(ctx context.Context, spec *SourceSpec, kind *KindSpec, st *ProgressState, log *slog.Logger) (bool, error) {
	f, err := os.Open(st.SpoolPath)
	if err != nil {
		return false, fmt.Errorf("open spooled payload: %w", err)
	}
	defer f.Close()

	parser, err := s.parsers(spec.Format, spec.ParserOptions)
	if err != nil {
		return false, err
	}
	records, err := parser.Parse(ctx, f)
	if err != nil {
		// An empty payload is an upstream fault, not a successful import
		// of nothing; it fails the run like any other parse error.
		return false, fmt.Errorf("parse: %w", err)
	}

	st.Total = len(records)
	if st.Processed >= st.Total {
		return true, nil
	}

	end := st.Processed + spec.EffectiveChunkLimit()
	if end > st.Total {
		end = st.Total
	}

	rec := newReconciler(s.store, spec, kind, false, log)
	for i := st.Processed; i < end; i++ {
		res := rec.processRecord(ctx, records[i])
		st.Processed++
		switch res.Action {
		case ActionCreated:
			st.Created++
		case ActionUpdated:
			st.Updated++
		case ActionSkipped:
			st.Skipped++
		case ActionFailed:
			st.Failed++
			st.AddMessage(fmt.Sprintf("record %d: %v", i+1, res.Err))
			log.Warn("record failed", "position", i+1, "error", res.Err)
		}
		if st.Processed%10 == 0 {
			s.publish(spec.Name, OpImport, *st)
		}
	}
	return st.Processed >= st.Total, nil
}

// clearChunk deletes the next slice of entities the source owns. Entities
// whose deletion failed stay in the store and would reappear in every
// oldest-first listing, so their IDs are remembered in the checkpoint and
// skipped; each entity is attempted and counted at most once per run.
func (s *Service) clearChunk(ctx context.Context, spec *SourceSpec, st *ProgressState, olderThan time.Time, log *slog.Logger) (bool, error) {
	limit := spec.EffectiveChunkLimit()

	failed := make(map[string]bool, len(st.FailedIDs))
	for _, id := range st.FailedIDs {
		failed[id] = true
	}
	fetch := limit + len(failed)

	metas, err := s.store.MetadataBySource(ctx, spec.Name, olderThan, fetch)
	if err != nil {
		return false, fmt.Errorf("list items: %w", err)
	}

	attempted, pending := 0, 0
	for _, meta := range metas {
		if failed[meta.EntityID] {
			continue
		}
		if attempted >= limit {
			pending++
			continue
		}
		attempted++
		if err := s.store.Delete(ctx, spec.Kind, meta.EntityID); err != nil {
			st.Failed++
			st.FailedIDs = append(st.FailedIDs, meta.EntityID)
			st.AddMessage(fmt.Sprintf("delete %s: %v", meta.EntityID, err))
			log.Warn("delete failed", "entity_id", meta.EntityID, "error", err)
		} else {
			st.Deleted++
		}
		st.Processed++
	}

	// A listing shorter than requested has the tail in view; the run is
	// done once nothing unattempted remains in it.
	return pending == 0 && len(metas) < fetch, nil
}

// expireChunk deletes the next slice of entities imported before the
// source's expiry horizon.
func (s *Service) expireChunk(ctx context.Context, spec *SourceSpec, st *ProgressState, log *slog.Logger) (bool, error) {
	if spec.ExpireAfter <= 0 {
		st.AddMessage("source never expires")
		return true, nil
	}
	cutoff := time.Now().Add(-spec.ExpireAfter)
	return s.clearChunk(ctx, spec, st, cutoff, log)
}

// finishRun finalizes a logical operation, success or not: persist the run
// row, drop the spool file, reset progress, release the lock. Finalization
// uses its own context so a cancelled run still unwinds.
func (s *Service) finishRun(spec *SourceSpec, op OperationKind, st *ProgressState, runErr error, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status := "complete"
	errMsg := ""
	if runErr != nil {
		status = "failed"
		errMsg = runErr.Error()
	}

	run := &RunRecord{
		RunID:      st.RunID,
		Source:     spec.Name,
		Op:         op,
		StartedAt:  st.StartedAt,
		FinishedAt: time.Now(),
		Status:     status,
		Created:    st.Created,
		Updated:    st.Updated,
		Skipped:    st.Skipped,
		Failed:     st.Failed,
		Deleted:    st.Deleted,
		Error:      errMsg,
	}
	if err := s.store.RecordRun(ctx, run); err != nil {
		log.Warn("record run failed", "error", err)
	}

	if st.SpoolPath != "" {
		if err := os.Remove(st.SpoolPath); err != nil && !os.IsNotExist(err) {
			log.Warn("remove spooled payload failed", "path", st.SpoolPath, "error", err)
		}
	}

	if err := s.store.ClearProgress(ctx, spec.Name, op); err != nil && !errors.Is(err, ErrNotFound) {
		log.Warn("clear progress failed", "error", err)
	}
	if err := s.store.ReleaseLock(ctx, spec.Name); err != nil {
		log.Warn("release lock failed", "error", err)
	}

	log.Info("operation finished",
		"run_id", st.RunID,
		"status", status,
		"created", st.Created,
		"updated", st.Updated,
		"skipped", st.Skipped,
		"failed", st.Failed,
		"deleted", st.Deleted,
		"duration_ms", time.Since(st.StartedAt).Milliseconds(),
	)
}

// recordSetupFailure persists a failed run row for an operation rejected
// in its configuration check, before any lock or state existed.
func (s *Service) recordSetupFailure(spec *SourceSpec, op OperationKind, setupErr error, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()
	run := &RunRecord{
		RunID:      uuid.New().String(),
		Source:     spec.Name,
		Op:         op,
		StartedAt:  now,
		FinishedAt: now,
		Status:     "failed",
		Error:      setupErr.Error(),
	}
	if err := s.store.RecordRun(ctx, run); err != nil {
		log.Warn("record run failed", "error", err)
	}
}

// ForceUnlock releases a source's lock regardless of holder. For operators
// recovering from a crashed run; the interrupted operation's checkpoint
// stays intact and continues on the next invocation.
func (s *Service) ForceUnlock(ctx context.Context, sourceName string) error {
	if _, ok := s.sources[sourceName]; !ok {
		return fmt.Errorf("unknown source: %s", sourceName)
	}
	if err := s.store.ReleaseLock(ctx, sourceName); err != nil {
		return err
	}
	s.log.Warn("lock force released", "source", sourceName)
	return nil
}
