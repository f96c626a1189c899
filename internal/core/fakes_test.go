package core

// Shared fixtures for the engine tests: an in-memory Store, a handful of
// target handlers, and a line-oriented fetch/parse pair that drives whole
// operations without touching a real backend.

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seaward/sluice/internal/entity"
	"github.com/seaward/sluice/internal/record"
)

// ----------------------------------------------------------------------------
// Target handlers
// ----------------------------------------------------------------------------

// plainHandler is a single-column pass-through target.
type plainHandler struct{}

func (plainHandler) Columns() []string { return []string{entity.ValueColumn} }

func (plainHandler) SetValues(ent *entity.Entity, field string, tuples []entity.Tuple) error {
	ent.SetTuples(field, tuples)
	return nil
}

func (plainHandler) FindByValue(ctx context.Context, store Store, kind, field, column, value string) ([]string, error) {
	return store.Query(ctx, kind, field, column, value)
}

// pairHandler is a two-column target searchable on its first column only.
type pairHandler struct{}

func (pairHandler) Columns() []string { return []string{"a", "b"} }

func (pairHandler) SetValues(ent *entity.Entity, field string, tuples []entity.Tuple) error {
	ent.SetTuples(field, tuples)
	return nil
}

func (pairHandler) FindByValue(ctx context.Context, store Store, kind, field, column, value string) ([]string, error) {
	if column != "a" {
		return nil, ErrNotSearchable
	}
	return store.Query(ctx, kind, field, column, value)
}

// flakyHandler fails lookups on demand so resolution tolerance is testable.
type flakyHandler struct {
	mu      sync.Mutex
	findErr error
}

func (h *flakyHandler) setFindErr(err error) {
	h.mu.Lock()
	h.findErr = err
	h.mu.Unlock()
}

func (h *flakyHandler) Columns() []string { return []string{entity.ValueColumn} }

func (h *flakyHandler) SetValues(ent *entity.Entity, field string, tuples []entity.Tuple) error {
	ent.SetTuples(field, tuples)
	return nil
}

func (h *flakyHandler) FindByValue(ctx context.Context, store Store, kind, field, column, value string) ([]string, error) {
	h.mu.Lock()
	err := h.findErr
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return store.Query(ctx, kind, field, column, value)
}

var flaky = &flakyHandler{}

func init() {
	RegisterTarget("plain", plainHandler{})
	RegisterTarget("pair", pairHandler{})
	RegisterTarget("flaky", flaky)
}

// ----------------------------------------------------------------------------
// In-memory store
// ----------------------------------------------------------------------------

// fakeStore implements Store with the same contracts the real backends
// honor: oldest-first queries, holder-aware locks, copied progress state,
// newest-first run history.
type fakeStore struct {
	mu       sync.Mutex
	kinds    map[string]*KindSpec
	seq      int
	ids      []string // creation order
	entities map[string]*entity.Entity
	metadata map[string]map[string]*entity.ItemMetadata // source -> entity ID
	locks    map[string]string                          // source -> holder
	progress map[string]*ProgressState                  // source/op
	runs     []RunRecord

	authorizeErr error
	deleteErr    error
	undeletable  map[string]bool // per-entity delete failures
	createDelay  time.Duration

	loadCalls     int
	metadataCalls int
}

var _ Store = (*fakeStore)(nil)

func newFakeStore(kinds ...*KindSpec) *fakeStore {
	km := make(map[string]*KindSpec, len(kinds))
	for _, k := range kinds {
		km[k.Name] = k
	}
	return &fakeStore{
		kinds:    km,
		entities: make(map[string]*entity.Entity),
		metadata: make(map[string]map[string]*entity.ItemMetadata),
		locks:    make(map[string]string),
		progress: make(map[string]*ProgressState),
	}
}

func (f *fakeStore) Create(ctx context.Context, ent *entity.Entity, meta *entity.ItemMetadata) error {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	ent.ID = fmt.Sprintf("ent-%d", f.seq)
	f.ids = append(f.ids, ent.ID)
	f.entities[ent.ID] = ent.Clone()
	if meta != nil {
		meta.EntityID = ent.ID
		f.putMetadata(meta)
	}
	return nil
}

func (f *fakeStore) putMetadata(meta *entity.ItemMetadata) {
	m, ok := f.metadata[meta.SourceName]
	if !ok {
		m = make(map[string]*entity.ItemMetadata)
		f.metadata[meta.SourceName] = m
	}
	cp := *meta
	m[meta.EntityID] = &cp
}

func (f *fakeStore) Load(ctx context.Context, kind, id string) (*entity.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loadCalls++
	ent, ok := f.entities[id]
	if !ok || ent.Kind != kind {
		return nil, ErrNotFound
	}
	return ent.Clone(), nil
}

func (f *fakeStore) Query(ctx context.Context, kind, field, column, value string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []string
	for _, id := range f.ids {
		ent := f.entities[id]
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
	return ids, nil
}

func (f *fakeStore) Save(ctx context.Context, ent *entity.Entity, meta *entity.ItemMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.entities[ent.ID]; !ok {
		return ErrNotFound
	}
	f.entities[ent.ID] = ent.Clone()
	if meta != nil {
		f.putMetadata(meta)
	}
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return f.deleteErr
	}
	if f.undeletable[id] {
		return fmt.Errorf("entity %s is referenced", id)
	}
	ent, ok := f.entities[id]
	if !ok || ent.Kind != kind {
		return ErrNotFound
	}
	delete(f.entities, id)
	for i, known := range f.ids {
		if known == id {
			f.ids = append(f.ids[:i], f.ids[i+1:]...)
			break
		}
	}
	for _, m := range f.metadata {
		delete(m, id)
	}
	return nil
}

func (f *fakeStore) Validate(ctx context.Context, ent *entity.Entity) (entity.Violations, error) {
	return ValidateEntity(ent, f.kinds[ent.Kind]), nil
}

func (f *fakeStore) Authorize(ctx context.Context, ent *entity.Entity, op string) error {
	return f.authorizeErr
}

func (f *fakeStore) Metadata(ctx context.Context, source, entityID string) (*entity.ItemMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.metadataCalls++
	if meta, ok := f.metadata[source][entityID]; ok {
		cp := *meta
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) MetadataBySource(ctx context.Context, source string, olderThan time.Time, limit int) ([]entity.ItemMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var metas []entity.ItemMetadata
	for _, meta := range f.metadata[source] {
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

func (f *fakeStore) CountBySource(ctx context.Context, source string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.metadata[source]), nil
}

func (f *fakeStore) AcquireLock(ctx context.Context, source, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cur, ok := f.locks[source]; ok && cur != holder {
		return ErrSourceLocked
	}
	f.locks[source] = holder
	return nil
}

func (f *fakeStore) ReleaseLock(ctx context.Context, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, source)
	return nil
}

func progressKey(source string, op OperationKind) string {
	return source + "/" + string(op)
}

func (f *fakeStore) Progress(ctx context.Context, source string, op OperationKind) (*ProgressState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.progress[progressKey(source, op)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	cp.Messages = append([]string(nil), st.Messages...)
	return &cp, nil
}

func (f *fakeStore) SaveProgress(ctx context.Context, source string, op OperationKind, st *ProgressState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *st
	cp.Messages = append([]string(nil), st.Messages...)
	f.progress[progressKey(source, op)] = &cp
	return nil
}

func (f *fakeStore) ClearProgress(ctx context.Context, source string, op OperationKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := progressKey(source, op)
	if _, ok := f.progress[key]; !ok {
		return ErrNotFound
	}
	delete(f.progress, key)
	return nil
}

func (f *fakeStore) RecordRun(ctx context.Context, run *RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeStore) Runs(ctx context.Context, source string, limit int) ([]RunRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []RunRecord
	for i := len(f.runs) - 1; i >= 0; i-- {
		if source != "" && f.runs[i].Source != source {
			continue
		}
		out = append(out, f.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

// findByValue returns the first entity (creation order) whose field column
// holds the value, or nil.
func (f *fakeStore) findByValue(field, column, value string) *entity.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range f.ids {
		for _, tu := range f.entities[id].Tuples(field) {
			if tu[column] == value {
				return f.entities[id].Clone()
			}
		}
	}
	return nil
}

func (f *fakeStore) entityCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entities)
}

func (f *fakeStore) lockHolder(source string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.locks[source]
	return h, ok
}

func (f *fakeStore) lastRun() (RunRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return RunRecord{}, false
	}
	return f.runs[len(f.runs)-1], true
}

// seedEntity inserts an entity plus metadata directly, bypassing the
// reconciliation pipeline.
func (f *fakeStore) seedEntity(kind, source, fingerprint string, importedAt time.Time, fields map[string][]entity.Tuple) string {
	ent := entity.New(kind)
	for name, tuples := range fields {
		ent.SetTuples(name, tuples)
	}
	meta := &entity.ItemMetadata{
		SourceName:  source,
		Fingerprint: fingerprint,
		ImportedAt:  importedAt,
	}
	_ = f.Create(context.Background(), ent, meta)
	return ent.ID
}

// ----------------------------------------------------------------------------
// Fetch and parse fixtures
// ----------------------------------------------------------------------------

// staticFetcher serves a fixed payload and counts fetches.
type staticFetcher struct {
	mu      sync.Mutex
	payload string
	err     error
	calls   int
}

func (f *staticFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.payload)), nil
}

func (f *staticFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *staticFetcher) setPayload(p string) {
	f.mu.Lock()
	f.payload = p
	f.mu.Unlock()
}

// lineParser parses "guid|title" lines, one record per line.
type lineParser struct{}

func (lineParser) Parse(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var recs []*record.Record
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rec := record.New()
		parts := strings.SplitN(line, "|", 2)
		rec.Set("guid", parts[0])
		if len(parts) > 1 {
			rec.Set("title", parts[1])
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return nil, ErrEmptyFeed
	}
	return recs, nil
}

// ----------------------------------------------------------------------------
// Construction helpers
// ----------------------------------------------------------------------------

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testKind() *KindSpec {
	return &KindSpec{
		Name: "article",
		Fields: []FieldSpec{
			{Name: "guid", Handler: "plain"},
			{Name: "title", Handler: "plain"},
			{Name: "meta", Handler: "pair"},
			{Name: "ref", Handler: "flaky"},
		},
	}
}

func testSpec() *SourceSpec {
	return &SourceSpec{
		Name:   "news",
		Kind:   "article",
		Fetch:  FetchSpec{Type: "static"},
		Format: "lines",
		Mappings: []Mapping{
			{Source: "guid", Target: "guid", Unique: true},
			{Source: "title", Target: "title"},
		},
	}
}

// newTestService wires a service around the fake store and fetcher with a
// throwaway spool directory.
func newTestService(t *testing.T, fs *fakeStore, fetcher Fetcher, spec *SourceSpec, kind *KindSpec) *Service {
	t.Helper()
	return newTestServiceSpool(t, fs, fetcher, spec, kind, t.TempDir())
}

func newTestServiceSpool(t *testing.T, fs *fakeStore, fetcher Fetcher, spec *SourceSpec, kind *KindSpec, spoolDir string) *Service {
	t.Helper()
	svc, err := NewService(ServiceOptions{
		Store:    fs,
		Fetchers: func(FetchSpec) (Fetcher, error) { return fetcher, nil },
		Parsers:  func(string, map[string]string) (Parser, error) { return lineParser{}, nil },
		Sources:  []*SourceSpec{spec},
		Kinds:    []*KindSpec{kind},
		SpoolDir: spoolDir,
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}
