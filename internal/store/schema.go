package store

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    operation TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    duration_seconds REAL NOT NULL DEFAULT 0,
    success BOOLEAN NOT NULL,
    dry_run BOOLEAN NOT NULL DEFAULT 0,
    succeeded INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    blocked INTEGER NOT NULL DEFAULT 0,
    rollback_script TEXT,
    rollback_attempted BOOLEAN NOT NULL DEFAULT 0,
    rollback_succeeded BOOLEAN NOT NULL DEFAULT 0,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS run_results (
    run_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    tool TEXT NOT NULL,
    manager TEXT,
    status TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    previous_version TEXT,
    new_version TEXT,
    duration_seconds REAL NOT NULL DEFAULT 0,
    error_message TEXT,
    PRIMARY KEY (run_id, position),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS reconciliations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tool TEXT NOT NULL,
    mode TEXT NOT NULL,
    action TEXT NOT NULL,
    installations INTEGER NOT NULL DEFAULT 0,
    preferred_path TEXT,
    active_path TEXT,
    success BOOLEAN NOT NULL,
    error_message TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_results_tool ON run_results(tool);
CREATE INDEX IF NOT EXISTS idx_reconciliations_tool ON reconciliations(tool);
`
