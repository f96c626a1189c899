package core

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/seaward/sluice/internal/entity"
	"github.com/seaward/sluice/internal/record"
)

// Contract errors shared across collaborators. Implementations return
// these (or wrap them) so the engine can tell the cases apart.
var (
	// ErrEmptyFeed is returned by parsers when the payload contains no
	// entries at all. The operation finishes cleanly with a notice
	// instead of failing.
	ErrEmptyFeed = errors.New("feed contains no entries")

	// ErrNotFound is returned by stores when an entity, metadata row, or
	// progress state does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSourceLocked is returned when another operation holds the
	// source's lock.
	ErrSourceLocked = errors.New("source is locked by another operation")

	// ErrOperationActive is returned when a background driver for the same
	// source and operation is already running in this process.
	ErrOperationActive = errors.New("operation already running")

	// ErrNotSearchable is returned by target handlers whose values cannot
	// back a unique-key lookup. The resolver treats it as a non-match.
	ErrNotSearchable = errors.New("target is not searchable")
)

// Fetcher retrieves a source's raw payload. A fetcher is constructed for
// one source's FetchSpec; implementations handle transport concerns
// (retry, filesystem traversal) and never parse.
type Fetcher interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// FetcherFactory builds a fetcher for a source's fetch configuration. The
// concrete transports live in internal/source; cmd wiring supplies this so
// core stays transport-agnostic.
type FetcherFactory func(spec FetchSpec) (Fetcher, error)

// Parser turns a raw payload into records. Implementations return
// ErrEmptyFeed for payloads with no entries and a descriptive error for
// malformed input; they never touch the store.
type Parser interface {
	Parse(ctx context.Context, r io.Reader) ([]*record.Record, error)
}

// ParserFactory builds a parser for a source's format and options. The
// concrete formats live in internal/parser; cmd wiring supplies this so
// core stays format-agnostic.
type ParserFactory func(format string, options map[string]string) (Parser, error)

// Store is the persistence collaborator: entities, their import metadata,
// per-source operation state, and run history. Implementations are
// expected to keep Save/Create/Delete and their metadata writes atomic.
type Store interface {
	// Entities. Create persists a new entity, assigns ent.ID, and writes
	// meta with the assigned ID in the same transaction.
	Create(ctx context.Context, ent *entity.Entity, meta *entity.ItemMetadata) error
	Load(ctx context.Context, kind, id string) (*entity.Entity, error)
	// Query returns the IDs of entities whose field column equals value,
	// oldest first. Used by unique-key resolution.
	Query(ctx context.Context, kind, field, column, value string) ([]string, error)
	Save(ctx context.Context, ent *entity.Entity, meta *entity.ItemMetadata) error
	// Delete removes the entity and any item metadata pointing at it.
	Delete(ctx context.Context, kind, id string) error
	Validate(ctx context.Context, ent *entity.Entity) (entity.Violations, error)
	// Authorize is consulted before updating or deleting an existing
	// entity. Op is "update" or "delete".
	Authorize(ctx context.Context, ent *entity.Entity, op string) error

	// Item metadata.
	Metadata(ctx context.Context, source, entityID string) (*entity.ItemMetadata, error)
	// MetadataBySource lists metadata for a source, oldest import first.
	// A non-zero olderThan filters to items imported before it.
	MetadataBySource(ctx context.Context, source string, olderThan time.Time, limit int) ([]entity.ItemMetadata, error)
	CountBySource(ctx context.Context, source string) (int, error)

	// Per-source operation state.
	AcquireLock(ctx context.Context, source, holder string) error
	ReleaseLock(ctx context.Context, source string) error
	Progress(ctx context.Context, source string, op OperationKind) (*ProgressState, error)
	SaveProgress(ctx context.Context, source string, op OperationKind, st *ProgressState) error
	ClearProgress(ctx context.Context, source string, op OperationKind) error

	// Run history. Runs returns rows newest first; an empty source matches
	// all sources.
	RecordRun(ctx context.Context, run *RunRecord) error
	Runs(ctx context.Context, source string, limit int) ([]RunRecord, error)

	Close() error
}
