package store

// SQL schema constants for all fingerprintd tables.

const schemaVisitors = `
CREATE TABLE IF NOT EXISTS visitors (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    trust_level TEXT NOT NULL DEFAULT 'NEW',
    crowd_score REAL NOT NULL DEFAULT 0.0,
    unique_ips INTEGER NOT NULL DEFAULT 0,
    visit_count INTEGER NOT NULL DEFAULT 0,
    last_score_update TEXT
);
`

const schemaFingerprints = `
CREATE TABLE IF NOT EXISTS fingerprints (
    id TEXT PRIMARY KEY,
    visitor_id TEXT NOT NULL REFERENCES visitors(id),
    fingerprint_hash TEXT NOT NULL,
    fuzzy_hash TEXT NOT NULL,
    stable_hash TEXT,
    gpu_timing_hash TEXT,
    components TEXT NOT NULL DEFAULT '{}',
    entropy REAL NOT NULL DEFAULT 0.0,
    confidence REAL NOT NULL DEFAULT 0.0,
    is_farbled INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fp_fingerprint_hash ON fingerprints(fingerprint_hash, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_fp_stable_hash ON fingerprints(stable_hash, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_fp_gpu_timing_hash ON fingerprints(gpu_timing_hash, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_fp_visitor ON fingerprints(visitor_id);
CREATE INDEX IF NOT EXISTS idx_fp_created_at ON fingerprints(created_at DESC);
`

const schemaSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    visitor_id TEXT NOT NULL REFERENCES visitors(id),
    fingerprint_id TEXT NOT NULL REFERENCES fingerprints(id),
    ip_address TEXT,
    user_agent TEXT,
    referer TEXT,
    tls_ja4 TEXT,
    tls_ja3 TEXT,
    first_seen TEXT NOT NULL,
    last_seen TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_visitor ON sessions(visitor_id, first_seen DESC);
`

const schemaDailyStats = `
CREATE TABLE IF NOT EXISTS daily_stats (
    date TEXT NOT NULL UNIQUE,
    total INTEGER NOT NULL DEFAULT 0,
    unique_count INTEGER NOT NULL DEFAULT 0,
    exact_count INTEGER NOT NULL DEFAULT 0,
    stable_count INTEGER NOT NULL DEFAULT 0,
    gpu_count INTEGER NOT NULL DEFAULT 0,
    fuzzy_stable_count INTEGER NOT NULL DEFAULT 0,
    fuzzy_count INTEGER NOT NULL DEFAULT 0,
    new_count INTEGER NOT NULL DEFAULT 0,
    avg_entropy REAL NOT NULL DEFAULT 0.0,
    entropy_sample_count INTEGER NOT NULL DEFAULT 0
);
`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// allSchemas is the ordered list of schema DDL statements that form
// the initial (version-1) database layout.
var allSchemas = []string{
	schemaVisitors,
	schemaFingerprints,
	schemaSessions,
	schemaDailyStats,
	schemaMigrations,
}
