package sqlite

const schema = `
-- Entities table: one row per imported entity
CREATE TABLE IF NOT EXISTS entities (
    id         TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);

-- Field values: one row per (tuple position, column) of a field
CREATE TABLE IF NOT EXISTS entity_values (
    entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    field     TEXT NOT NULL,
    position  INTEGER NOT NULL,
    col       TEXT NOT NULL,
    value     TEXT NOT NULL,
    PRIMARY KEY (entity_id, field, position, col)
);

CREATE INDEX IF NOT EXISTS idx_entity_values_lookup ON entity_values(field, col, value);

-- Which source imported which entity, with the content fingerprint
CREATE TABLE IF NOT EXISTS item_metadata (
    source      TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    imported_at DATETIME NOT NULL,
    PRIMARY KEY (source, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_item_metadata_age ON item_metadata(source, imported_at);

-- Per-source operation locks, held across the chunks of one logical run
CREATE TABLE IF NOT EXISTS source_locks (
    source      TEXT PRIMARY KEY,
    holder      TEXT NOT NULL,
    acquired_at DATETIME NOT NULL
);

-- Resumable operation checkpoints, serialized progress state
CREATE TABLE IF NOT EXISTS operation_progress (
    source     TEXT NOT NULL,
    op         TEXT NOT NULL,
    state      TEXT NOT NULL,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (source, op)
);

-- History of finished operations
CREATE TABLE IF NOT EXISTS run_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL,
    source      TEXT NOT NULL,
    op          TEXT NOT NULL,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    status      TEXT NOT NULL,
    created     INTEGER NOT NULL DEFAULT 0,
    updated     INTEGER NOT NULL DEFAULT 0,
    skipped     INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0,
    deleted     INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_run_history_source ON run_history(source, started_at);
`
