package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.0.0"
)

// ErrIncompatibleSchema is returned when a database was written by a newer
// major schema version than this build understands.
var ErrIncompatibleSchema = errors.New("incompatible database schema")

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
    slug TEXT PRIMARY KEY,
    hash TEXT NOT NULL,
    title TEXT NOT NULL,
    file_name TEXT NOT NULL,
    original_path TEXT NOT NULL UNIQUE,
    content_html TEXT NOT NULL,
    content_markdown TEXT NOT NULL,
    plain_text TEXT NOT NULL,
    excerpt TEXT,
    word_count INTEGER NOT NULL DEFAULT 0,
    toc TEXT NOT NULL DEFAULT '[]',
    frontmatter TEXT NOT NULL DEFAULT '{}',
    cover_path TEXT,
    created_at TEXT NOT NULL,
    modified_at TEXT NOT NULL,
    processed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(hash);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);

CREATE TABLE IF NOT EXISTS document_links (
    source_hash TEXT NOT NULL,
    target_hash TEXT NOT NULL,
    PRIMARY KEY (source_hash, target_hash)
);

CREATE INDEX IF NOT EXISTS idx_links_target ON document_links(target_hash);

CREATE TABLE IF NOT EXISTS media (
    original_path TEXT PRIMARY KEY,
    hash TEXT NOT NULL,
    output_path TEXT NOT NULL,
    file_name TEXT NOT NULL,
    type TEXT NOT NULL,
    width INTEGER,
    height INTEGER,
    format TEXT,
    size INTEGER NOT NULL DEFAULT 0,
    original_size INTEGER NOT NULL DEFAULT 0,
    sizes TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_media_hash ON media(hash);

-- Embeddings table
CREATE TABLE IF NOT EXISTS embeddings (
    hash TEXT PRIMARY KEY,
    dimensions INTEGER NOT NULL,
    vector BLOB NOT NULL,
    model TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS media_embeddings (
    hash TEXT PRIMARY KEY,
    dimensions INTEGER NOT NULL,
    vector BLOB NOT NULL,
    model TEXT NOT NULL
);

-- Precomputed nearest neighbors, rank 1 is the closest
CREATE TABLE IF NOT EXISTS similarities (
    source_hash TEXT NOT NULL,
    target_hash TEXT NOT NULL,
    score REAL NOT NULL,
    rank INTEGER NOT NULL,
    PRIMARY KEY (source_hash, target_hash)
);

CREATE INDEX IF NOT EXISTS idx_similarities_rank ON similarities(source_hash, rank);
`

// ftsSchema is applied only when full-text search is enabled. The index
// uses documents as external content and is filled with a rebuild once all
// rows are inserted.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    title, plain_text,
    content='documents',
    content_rowid='rowid',
    tokenize='unicode61 remove_diacritics 2'
);
`

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	currentVersion, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		if !currentVersion.LessThan(migrationVersion) {
			continue
		}

		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		currentVersion = migrationVersion
	}

	return nil
}

// SchemaVersion returns the newest applied schema version, 0.0.0 for an
// empty database.
func SchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	newest := semver.MustParse("0.0.0")
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", raw, err)
		}
		if v.GreaterThan(newest) {
			newest = v
		}
	}
	return newest, rows.Err()
}

// CheckCompatible accepts databases whose major version matches this
// build. Minor and patch bumps are additive and readable.
func CheckCompatible(v *semver.Version) error {
	current := semver.MustParse(CurrentSchemaVersion)
	if v.Major() != current.Major() {
		return fmt.Errorf("%w: database schema %s, supported %d.x", ErrIncompatibleSchema, v, current.Major())
	}
	return nil
}
