// Package sqlite implements the store interface using SQLite via a
// WASM-compiled driver, so builds stay CGO-free.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	// Import SQLite driver
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/seaward/sluice/internal/core"
	"github.com/seaward/sluice/internal/entity"
	"github.com/seaward/sluice/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", func(ctx context.Context, connString string, kinds []*core.KindSpec) (core.Store, error) {
		return New(ctx, connString, kinds)
	})
}

// Store implements core.Store on a single SQLite database file.
type Store struct {
	db     *sql.DB
	kinds  map[string]*core.KindSpec
	closed atomic.Bool
}

var _ core.Store = (*Store)(nil)

// New opens (and if needed creates) the database at path and initializes
// the schema. Pass ":memory:" for a throwaway database.
func New(ctx context.Context, path string, kinds []*core.KindSpec) (*Store, error) {
	// For :memory: databases, use shared cache so multiple connections see
	// the same data. WAL mode doesn't work with shared in-memory databases.
	var connStr string
	isInMemory := path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	switch {
	case path == ":memory:":
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
		}
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite's in-memory databases are isolated per connection by default;
	// force a single connection so every query sees the same data.
	if isInMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	km := make(map[string]*core.KindSpec, len(kinds))
	for _, k := range kinds {
		km[k.Name] = k
	}
	return &Store{db: db, kinds: km}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// valueRows flattens an entity's fields into insertable rows with
// deterministic ordering.
func valueRows(ent *entity.Entity) [][4]any {
	fields := make([]string, 0, len(ent.Fields))
	for f := range ent.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var rows [][4]any
	for _, field := range fields {
		for pos, tu := range ent.Fields[field] {
			cols := make([]string, 0, len(tu))
			for c := range tu {
				cols = append(cols, c)
			}
			sort.Strings(cols)
			for _, col := range cols {
				rows = append(rows, [4]any{field, pos, col, tu[col]})
			}
		}
	}
	return rows
}

func insertValues(ctx context.Context, tx *sql.Tx, ent *entity.Entity) error {
	for _, row := range valueRows(ent) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO entity_values (entity_id, field, position, col, value) VALUES (?, ?, ?, ?, ?)`,
			ent.ID, row[0], row[1], row[2], row[3])
		if err != nil {
			return fmt.Errorf("insert value: %w", err)
		}
	}
	return nil
}

func upsertMetadata(ctx context.Context, tx *sql.Tx, meta *entity.ItemMetadata) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO item_metadata (source, entity_id, fingerprint, imported_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (source, entity_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			imported_at = excluded.imported_at
	`, meta.SourceName, meta.EntityID, meta.Fingerprint, meta.ImportedAt)
	if err != nil {
		return fmt.Errorf("upsert metadata: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, ent *entity.Entity, meta *entity.ItemMetadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ent.ID = uuid.New().String()
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entities (id, kind, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		ent.ID, ent.Kind, now, now); err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	if err := insertValues(ctx, tx, ent); err != nil {
		return err
	}
	if meta != nil {
		meta.EntityID = ent.ID
		if err := upsertMetadata(ctx, tx, meta); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Load(ctx context.Context, kind, id string) (*entity.Entity, error) {
	var gotKind string
	err := s.db.QueryRowContext(ctx, `SELECT kind FROM entities WHERE id = ?`, id).Scan(&gotKind)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && gotKind != kind) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load entity: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT field, position, col, value FROM entity_values
		WHERE entity_id = ? ORDER BY field, position, col
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load values: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ent := entity.New(kind)
	ent.ID = id
	var (
		curField string
		curPos   = -1
		tuples   []entity.Tuple
	)
	flush := func() {
		if curField != "" {
			ent.SetTuples(curField, tuples)
		}
	}
	for rows.Next() {
		var field, col, value string
		var pos int
		if err := rows.Scan(&field, &pos, &col, &value); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		if field != curField {
			flush()
			curField, curPos, tuples = field, -1, nil
		}
		if pos != curPos {
			tuples = append(tuples, entity.Tuple{})
			curPos = pos
		}
		tuples[len(tuples)-1][col] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate values: %w", err)
	}
	flush()
	return ent, nil
}

func (s *Store) Query(ctx context.Context, kind, field, column, value string) ([]string, error) {
	query, args, err := sq.Select("e.id").
		From("entities e").
		Join("entity_values v ON v.entity_id = e.id").
		Where(sq.Eq{"e.kind": kind, "v.field": field, "v.col": column, "v.value": value}).
		GroupBy("e.id", "e.created_at").
		OrderBy("e.created_at", "e.id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Save(ctx context.Context, ent *entity.Entity, meta *entity.ItemMetadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE entities SET updated_at = ? WHERE id = ? AND kind = ?`,
		time.Now().UTC(), ent.ID, ent.Kind)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_values WHERE entity_id = ?`, ent.ID); err != nil {
		return fmt.Errorf("clear values: %w", err)
	}
	if err := insertValues(ctx, tx, ent); err != nil {
		return err
	}
	if meta != nil {
		if err := upsertMetadata(ctx, tx, meta); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, kind, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ? AND kind = ?`, id, kind)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	// Values cascade; metadata references from any source go explicitly
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_metadata WHERE entity_id = ?`, id); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Validate(ctx context.Context, ent *entity.Entity) (entity.Violations, error) {
	return core.ValidateEntity(ent, s.kinds[ent.Kind]), nil
}

func (s *Store) Authorize(ctx context.Context, ent *entity.Entity, op string) error {
	return nil
}

func (s *Store) Metadata(ctx context.Context, source, entityID string) (*entity.ItemMetadata, error) {
	var meta entity.ItemMetadata
	err := s.db.QueryRowContext(ctx, `
		SELECT source, entity_id, fingerprint, imported_at FROM item_metadata
		WHERE source = ? AND entity_id = ?
	`, source, entityID).Scan(&meta.SourceName, &meta.EntityID, &meta.Fingerprint, &meta.ImportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	return &meta, nil
}

func (s *Store) MetadataBySource(ctx context.Context, source string, olderThan time.Time, limit int) ([]entity.ItemMetadata, error) {
	builder := sq.Select("source", "entity_id", "fingerprint", "imported_at").
		From("item_metadata").
		Where(sq.Eq{"source": source}).
		OrderBy("imported_at", "entity_id")
	if !olderThan.IsZero() {
		builder = builder.Where(sq.Lt{"imported_at": olderThan})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var metas []entity.ItemMetadata
	for rows.Next() {
		var meta entity.ItemMetadata
		if err := rows.Scan(&meta.SourceName, &meta.EntityID, &meta.Fingerprint, &meta.ImportedAt); err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

func (s *Store) CountBySource(ctx context.Context, source string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM item_metadata WHERE source = ?`, source).Scan(&n)
	return n, err
}

func (s *Store) AcquireLock(ctx context.Context, source, holder string) error {
	// The conditional upsert succeeds for a free lock or the same holder
	// and affects no rows when another holder has it.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO source_locks (source, holder, acquired_at) VALUES (?, ?, ?)
		ON CONFLICT (source) DO UPDATE SET acquired_at = excluded.acquired_at
		WHERE source_locks.holder = excluded.holder
	`, source, holder, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrSourceLocked
	}
	return nil
}

func (s *Store) ReleaseLock(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM source_locks WHERE source = ?`, source)
	return err
}

func (s *Store) Progress(ctx context.Context, source string, op core.OperationKind) (*core.ProgressState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM operation_progress WHERE source = ? AND op = ?`,
		source, string(op)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	var st core.ProgressState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &st, nil
}

func (s *Store) SaveProgress(ctx context.Context, source string, op core.OperationKind, st *core.ProgressState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO operation_progress (source, op, state, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (source, op) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, source, string(op), string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (s *Store) ClearProgress(ctx context.Context, source string, op core.OperationKind) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM operation_progress WHERE source = ? AND op = ?`, source, string(op))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) RecordRun(ctx context.Context, run *core.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_history (run_id, source, op, started_at, finished_at, status, created, updated, skipped, failed, deleted, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Source, string(run.Op), run.StartedAt, run.FinishedAt, run.Status,
		run.Created, run.Updated, run.Skipped, run.Failed, run.Deleted, run.Error)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *Store) Runs(ctx context.Context, source string, limit int) ([]core.RunRecord, error) {
	builder := sq.Select("run_id", "source", "op", "started_at", "finished_at", "status",
		"created", "updated", "skipped", "failed", "deleted", "error").
		From("run_history").
		OrderBy("started_at DESC", "id DESC")
	if source != "" {
		builder = builder.Where(sq.Eq{"source": source})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []core.RunRecord
	for rows.Next() {
		var run core.RunRecord
		var op string
		if err := rows.Scan(&run.RunID, &run.Source, &op, &run.StartedAt, &run.FinishedAt,
			&run.Status, &run.Created, &run.Updated, &run.Skipped, &run.Failed, &run.Deleted, &run.Error); err != nil {
			return nil, err
		}
		run.Op = core.OperationKind(op)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
