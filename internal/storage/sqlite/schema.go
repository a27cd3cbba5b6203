package sqlite

const schema = `
-- One row per deduplication run
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL CHECK(kind IN ('lines', 'near')),
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    output_dir TEXT NOT NULL DEFAULT '',
    config TEXT NOT NULL DEFAULT '',
    inputs INTEGER NOT NULL DEFAULT 0,
    kept INTEGER NOT NULL DEFAULT 0,
    removed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

-- Near-duplicate decisions, one row per input document
CREATE TABLE IF NOT EXISTS document_decisions (
    run_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    document TEXT NOT NULL,
    kept INTEGER NOT NULL,
    duplicate_of TEXT NOT NULL DEFAULT '',
    similarity REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, document),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_decisions_duplicate_of ON document_decisions(duplicate_of);

-- Exact-line stats, one row per input file
CREATE TABLE IF NOT EXISTS line_stats (
    run_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    file TEXT NOT NULL,
    lines INTEGER NOT NULL,
    non_empty INTEGER NOT NULL,
    kept INTEGER NOT NULL,
    PRIMARY KEY (run_id, position),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`
