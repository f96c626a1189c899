// Package memory implements the store interface in process memory. It
// backs tests and short-lived one-shot imports; nothing survives the
// process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seaward/sluice/internal/core"
	"github.com/seaward/sluice/internal/entity"
	"github.com/seaward/sluice/internal/store"
)

func init() {
	store.RegisterBackend("memory", func(ctx context.Context, connString string, kinds []*core.KindSpec) (core.Store, error) {
		return New(kinds), nil
	})
}

type lockRow struct {
	holder     string
	acquiredAt time.Time
}

type progressKey struct {
	source string
	op     core.OperationKind
}

// Store holds everything in maps guarded by one mutex. Entities are
// deep-copied on the way in and out, so callers never share state with
// the store.
type Store struct {
	mu       sync.RWMutex
	kinds    map[string]*core.KindSpec
	entities map[string]*entity.Entity
	seq      map[string]int // id -> creation sequence, for oldest-first queries
	nextSeq  int
	metadata map[string]map[string]*entity.ItemMetadata // source -> entity id -> meta
	locks    map[string]lockRow
	progress map[progressKey]*core.ProgressState
	runs     []core.RunRecord

	// AuthorizeFunc, when set, decides update and delete authorization.
	// The default allows everything.
	AuthorizeFunc func(ctx context.Context, ent *entity.Entity, op string) error

	// DeleteFunc, when set, replaces the delete behavior. Tests use it to
	// simulate storage failures.
	DeleteFunc func(kind, id string) error
}

var _ core.Store = (*Store)(nil)

// New creates an empty in-memory store validating against kinds.
func New(kinds []*core.KindSpec) *Store {
	km := make(map[string]*core.KindSpec, len(kinds))
	for _, k := range kinds {
		km[k.Name] = k
	}
	return &Store{
		kinds:    km,
		entities: make(map[string]*entity.Entity),
		seq:      make(map[string]int),
		metadata: make(map[string]map[string]*entity.ItemMetadata),
		locks:    make(map[string]lockRow),
		progress: make(map[progressKey]*core.ProgressState),
	}
}

func (s *Store) Create(ctx context.Context, ent *entity.Entity, meta *entity.ItemMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent.ID = uuid.New().String()
	stored := ent.Clone()
	s.entities[ent.ID] = stored
	s.seq[ent.ID] = s.nextSeq
	s.nextSeq++

	if meta != nil {
		meta.EntityID = ent.ID
		s.putMetadata(meta)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, kind, id string) (*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entities[id]
	if !ok || ent.Kind != kind {
		return nil, core.ErrNotFound
	}
	return ent.Clone(), nil
}

func (s *Store) Query(ctx context.Context, kind, field, column, value string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, ent := range s.entities {
		if ent.Kind != kind {
			continue
		}
		for _, tu := range ent.Tuples(field) {
			if tu[column] == value {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return s.seq[ids[i]] < s.seq[ids[j]] })
	return ids, nil
}

func (s *Store) Save(ctx context.Context, ent *entity.Entity, meta *entity.ItemMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[ent.ID]; !ok {
		return core.ErrNotFound
	}
	s.entities[ent.ID] = ent.Clone()
	if meta != nil {
		s.putMetadata(meta)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, kind, id string) error {
	if s.DeleteFunc != nil {
		return s.DeleteFunc(kind, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entities[id]
	if !ok || ent.Kind != kind {
		return core.ErrNotFound
	}
	delete(s.entities, id)
	delete(s.seq, id)
	for _, bySource := range s.metadata {
		delete(bySource, id)
	}
	return nil
}

func (s *Store) Validate(ctx context.Context, ent *entity.Entity) (entity.Violations, error) {
	s.mu.RLock()
	kind := s.kinds[ent.Kind]
	s.mu.RUnlock()
	return core.ValidateEntity(ent, kind), nil
}

func (s *Store) Authorize(ctx context.Context, ent *entity.Entity, op string) error {
	if s.AuthorizeFunc != nil {
		return s.AuthorizeFunc(ctx, ent, op)
	}
	return nil
}

// putMetadata upserts under s.mu.
func (s *Store) putMetadata(meta *entity.ItemMetadata) {
	bySource, ok := s.metadata[meta.SourceName]
	if !ok {
		bySource = make(map[string]*entity.ItemMetadata)
		s.metadata[meta.SourceName] = bySource
	}
	cp := *meta
	bySource[meta.EntityID] = &cp
}

func (s *Store) Metadata(ctx context.Context, source, entityID string) (*entity.ItemMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.metadata[source][entityID]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *meta
	return &cp, nil
}

func (s *Store) MetadataBySource(ctx context.Context, source string, olderThan time.Time, limit int) ([]entity.ItemMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var metas []entity.ItemMetadata
	for _, meta := range s.metadata[source] {
		if !olderThan.IsZero() && !meta.ImportedAt.Before(olderThan) {
			continue
		}
		metas = append(metas, *meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].ImportedAt.Equal(metas[j].ImportedAt) {
			return metas[i].EntityID < metas[j].EntityID
		}
		return metas[i].ImportedAt.Before(metas[j].ImportedAt)
	})
	if limit > 0 && len(metas) > limit {
		metas = metas[:limit]
	}
	return metas, nil
}

func (s *Store) CountBySource(ctx context.Context, source string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metadata[source]), nil
}

func (s *Store) AcquireLock(ctx context.Context, source, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row, held := s.locks[source]; held && row.holder != holder {
		return core.ErrSourceLocked
	}
	s.locks[source] = lockRow{holder: holder, acquiredAt: time.Now()}
	return nil
}

func (s *Store) ReleaseLock(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, source)
	return nil
}

func (s *Store) Progress(ctx context.Context, source string, op core.OperationKind) (*core.ProgressState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.progress[progressKey{source, op}]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *st
	cp.Messages = append([]string(nil), st.Messages...)
	return &cp, nil
}

func (s *Store) SaveProgress(ctx context.Context, source string, op core.OperationKind, st *core.ProgressState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *st
	cp.Messages = append([]string(nil), st.Messages...)
	s.progress[progressKey{source, op}] = &cp
	return nil
}

func (s *Store) ClearProgress(ctx context.Context, source string, op core.OperationKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := progressKey{source, op}
	if _, ok := s.progress[key]; !ok {
		return core.ErrNotFound
	}
	delete(s.progress, key)
	return nil
}

func (s *Store) RecordRun(ctx context.Context, run *core.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

// Runs returns history rows newest first. An empty source matches all
// sources.
func (s *Store) Runs(ctx context.Context, source string, limit int) ([]core.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.RunRecord
	for i := len(s.runs) - 1; i >= 0; i-- {
		if source != "" && s.runs[i].Source != source {
			continue
		}
		out = append(out, s.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
