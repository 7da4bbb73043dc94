package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id           TEXT PRIMARY KEY,
    project              TEXT NOT NULL,
    file_path            TEXT NOT NULL,
    started_at           TEXT,
    ended_at             TEXT,
    active               INTEGER NOT NULL DEFAULT 0,
    task_count           INTEGER,
    completed_count      INTEGER,
    pending_count        INTEGER,
    total_cost           REAL,
    total_tokens         INTEGER,
    success_rate         REAL,
    cost_per_second      REAL,
    tokens_per_second    REAL,
    avg_task_duration_ms REAL,
    base_artifacts       INTEGER,
    composite_artifacts  INTEGER,
    base_ratio           REAL,
    reusability_index    REAL,
    substituted_models   TEXT,
    file_mtime_ns        INTEGER NOT NULL,
    file_size            INTEGER NOT NULL,
    parsed_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session_rollups (
    session_id           TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    dimension            TEXT NOT NULL,
    bucket_key           TEXT NOT NULL,
    task_count           INTEGER,
    success_count        INTEGER,
    failure_count        INTEGER,
    total_cost           REAL,
    total_tokens         INTEGER,
    total_duration_ms    INTEGER,
    PRIMARY KEY (session_id, dimension, bucket_key)
);

CREATE TABLE IF NOT EXISTS session_levels (
    session_id           TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    level                TEXT NOT NULL,
    tasks                INTEGER,
    artifacts            INTEGER,
    avg_reusability      REAL,
    reuse_artifacts      INTEGER,
    avg_complexity       REAL,
    complexity_artifacts INTEGER,
    total_cost           REAL,
    cost_per_artifact    REAL,
    PRIMARY KEY (session_id, level)
);

CREATE TABLE IF NOT EXISTS session_tasks (
    session_id           TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    task_id              TEXT NOT NULL,
    model                TEXT NOT NULL,
    category             TEXT,
    level                TEXT,
    started_at           TEXT,
    completed_at         TEXT,
    duration_ms          INTEGER,
    input_tokens         INTEGER,
    output_tokens        INTEGER,
    input_cost           REAL,
    output_cost          REAL,
    total_cost           REAL,
    succeeded            INTEGER,
    error                TEXT,
    substituted          INTEGER,
    reusability          REAL,
    complexity           REAL,
    depends_on           TEXT,
    artifacts            TEXT,
    PRIMARY KEY (session_id, task_id)
);

CREATE TABLE IF NOT EXISTS file_tracker (
    file_path            TEXT PRIMARY KEY,
    mtime_ns             INTEGER NOT NULL,
    size_bytes           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project);
CREATE INDEX IF NOT EXISTS idx_tasks_completed ON session_tasks(session_id, completed_at);
`
