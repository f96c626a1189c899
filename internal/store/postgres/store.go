// Package postgres implements the store interface on PostgreSQL via pgx.
// Pool tuning (pool_max_conns and friends) rides the connection string.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seaward/sluice/internal/core"
	"github.com/seaward/sluice/internal/entity"
	"github.com/seaward/sluice/internal/store"
)

func init() {
	store.RegisterBackend("postgres", func(ctx context.Context, connString string, kinds []*core.KindSpec) (core.Store, error) {
		return New(ctx, connString, kinds)
	})
}

// psql builds queries with PostgreSQL placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store implements core.Store on a pgx connection pool.
type Store struct {
	pool  *pgxpool.Pool
	kinds map[string]*core.KindSpec
}

var _ core.Store = (*Store)(nil)

// New connects to the database and initializes the schema.
func New(ctx context.Context, connString string, kinds []*core.KindSpec) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	km := make(map[string]*core.KindSpec, len(kinds))
	for _, k := range kinds {
		km[k.Name] = k
	}
	return &Store{pool: pool, kinds: km}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// queueValues batches the inserts for an entity's field values with
// deterministic ordering.
func queueValues(batch *pgx.Batch, ent *entity.Entity) {
	fields := make([]string, 0, len(ent.Fields))
	for f := range ent.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		for pos, tu := range ent.Fields[field] {
			cols := make([]string, 0, len(tu))
			for c := range tu {
				cols = append(cols, c)
			}
			sort.Strings(cols)
			for _, col := range cols {
				batch.Queue(
					`INSERT INTO entity_values (entity_id, field, position, col, value) VALUES ($1, $2, $3, $4, $5)`,
					ent.ID, field, pos, col, tu[col])
			}
		}
	}
}

func upsertMetadata(batch *pgx.Batch, meta *entity.ItemMetadata) {
	batch.Queue(`
		INSERT INTO item_metadata (source, entity_id, fingerprint, imported_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (source, entity_id) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			imported_at = EXCLUDED.imported_at
	`, meta.SourceName, meta.EntityID, meta.Fingerprint, meta.ImportedAt)
}

func (s *Store) Create(ctx context.Context, ent *entity.Entity, meta *entity.ItemMetadata) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ent.ID = uuid.New().String()
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`INSERT INTO entities (id, kind, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		ent.ID, ent.Kind, now, now); err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}

	batch := &pgx.Batch{}
	queueValues(batch, ent)
	if meta != nil {
		meta.EntityID = ent.ID
		upsertMetadata(batch, meta)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert values: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) Load(ctx context.Context, kind, id string) (*entity.Entity, error) {
	var gotKind string
	err := s.pool.QueryRow(ctx, `SELECT kind FROM entities WHERE id = $1`, id).Scan(&gotKind)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load entity: %w", err)
	}
	if gotKind != kind {
		return nil, core.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT field, position, col, value FROM entity_values
		WHERE entity_id = $1 ORDER BY field, position, col
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load values: %w", err)
	}
	defer rows.Close()

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
	query, args, err := psql.Select("e.id").
		From("entities e").
		Join("entity_values v ON v.entity_id = e.id").
		Where(sq.Eq{"e.kind": kind, "v.field": field, "v.col": column, "v.value": value}).
		GroupBy("e.id", "e.created_at").
		OrderBy("e.created_at", "e.id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE entities SET updated_at = $1 WHERE id = $2 AND kind = $3`,
		time.Now().UTC(), ent.ID, ent.Kind)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM entity_values WHERE entity_id = $1`, ent.ID); err != nil {
		return fmt.Errorf("clear values: %w", err)
	}

	batch := &pgx.Batch{}
	queueValues(batch, ent)
	if meta != nil {
		upsertMetadata(batch, meta)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert values: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) Delete(ctx context.Context, kind, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM entities WHERE id = $1 AND kind = $2`, id, kind)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	// Values cascade; metadata references from any source go explicitly
	if _, err := tx.Exec(ctx, `DELETE FROM item_metadata WHERE entity_id = $1`, id); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) Validate(ctx context.Context, ent *entity.Entity) (entity.Violations, error) {
	return core.ValidateEntity(ent, s.kinds[ent.Kind]), nil
}

func (s *Store) Authorize(ctx context.Context, ent *entity.Entity, op string) error {
	return nil
}

func (s *Store) Metadata(ctx context.Context, source, entityID string) (*entity.ItemMetadata, error) {
	var meta entity.ItemMetadata
	err := s.pool.QueryRow(ctx, `
		SELECT source, entity_id, fingerprint, imported_at FROM item_metadata
		WHERE source = $1 AND entity_id = $2
	`, source, entityID).Scan(&meta.SourceName, &meta.EntityID, &meta.Fingerprint, &meta.ImportedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	return &meta, nil
}

func (s *Store) MetadataBySource(ctx context.Context, source string, olderThan time.Time, limit int) ([]entity.ItemMetadata, error) {
	builder := psql.Select("source", "entity_id", "fingerprint", "imported_at").
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

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer rows.Close()

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
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM item_metadata WHERE source = $1`, source).Scan(&n)
	return n, err
}

func (s *Store) AcquireLock(ctx context.Context, source, holder string) error {
	// The conditional upsert succeeds for a free lock or the same holder
	// and affects no rows when another holder has it.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO source_locks (source, holder, acquired_at) VALUES ($1, $2, $3)
		ON CONFLICT (source) DO UPDATE SET acquired_at = EXCLUDED.acquired_at
		WHERE source_locks.holder = EXCLUDED.holder
	`, source, holder, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrSourceLocked
	}
	return nil
}

func (s *Store) ReleaseLock(ctx context.Context, source string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM source_locks WHERE source = $1`, source)
	return err
}

func (s *Store) Progress(ctx context.Context, source string, op core.OperationKind) (*core.ProgressState, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM operation_progress WHERE source = $1 AND op = $2`,
		source, string(op)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	var st core.ProgressState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &st, nil
}

func (s *Store) SaveProgress(ctx context.Context, source string, op core.OperationKind, st *core.ProgressState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO operation_progress (source, op, state, updated_at) VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (source, op) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`, source, string(op), string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (s *Store) ClearProgress(ctx context.Context, source string, op core.OperationKind) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM operation_progress WHERE source = $1 AND op = $2`, source, string(op))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) RecordRun(ctx context.Context, run *core.RunRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_history (run_id, source, op, started_at, finished_at, status, created, updated, skipped, failed, deleted, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, run.RunID, run.Source, string(run.Op), run.StartedAt, run.FinishedAt, run.Status,
		run.Created, run.Updated, run.Skipped, run.Failed, run.Deleted, run.Error)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *Store) Runs(ctx context.Context, source string, limit int) ([]core.RunRecord, error) {
	builder := psql.Select("run_id", "source", "op", "started_at", "finished_at", "status",
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

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

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
