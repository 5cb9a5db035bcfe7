package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/repomd/vaultproc/internal/vector"
	"github.com/repomd/vaultproc/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrNoDatabase is returned when opening a path with no database file
	ErrNoDatabase = errors.New("database file does not exist")
	// ErrFullTextDisabled is returned by text search on a database built
	// without the FTS index
	ErrFullTextDisabled = errors.New("full-text index not built")
)

// timeLayout is how timestamps are stored; text keeps both drivers agreeing
const timeLayout = time.RFC3339Nano

// Store is an open vault database
type Store struct {
	db       *sql.DB
	path     string
	fullText bool
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// A single connection keeps per-connection pragmas and :memory: stable
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Create makes a fresh database at path, replacing any existing file
func Create(ctx context.Context, path string, fullText bool) (*Store, error) {
	if path != ":memory:" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove old database: %w", err)
		}
	}

	db, err := openDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The file is written once and renamed into place, so no journal is kept
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if fullText {
		if _, err := db.ExecContext(ctx, ftsSchema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create full-text index: %w", err)
		}
	}

	return &Store{db: db, path: path, fullText: fullText}, nil
}

// Open opens an existing database for reading
func Open(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoDatabase, path)
		}
		return nil, err
	}

	db, err := openDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA query_only=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set query_only: %w", err)
	}

	version, err := SchemaVersion(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := CheckCompatible(version); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, path: path}
	var name string
	err = db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='documents_fts'").Scan(&name)
	switch {
	case err == nil:
		s.fullText = true
	case !errors.Is(err, sql.ErrNoRows):
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string { return s.path }

// FullText reports whether the FTS index exists
func (s *Store) FullText() bool { return s.fullText }

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Write stores snap in a single transaction
func (s *Store) Write(ctx context.Context, snap Snapshot) (Counts, error) {
	var counts Counts
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, err
	}
	defer func() { _ = tx.Rollback() }()

	if counts.Documents, err = insertDocuments(ctx, tx, snap.Documents); err != nil {
		return counts, err
	}
	if counts.Links, err = insertLinks(ctx, tx, snap.Documents); err != nil {
		return counts, err
	}
	if counts.Media, err = insertMedia(ctx, tx, snap.Media); err != nil {
		return counts, err
	}
	if counts.Embeddings, err = insertEmbeddings(ctx, tx, "embeddings", snap.TextEmbeddings); err != nil {
		return counts, err
	}
	if counts.MediaEmbeddings, err = insertEmbeddings(ctx, tx, "media_embeddings", snap.ImageEmbeddings); err != nil {
		return counts, err
	}
	if counts.Similarities, err = insertSimilarities(ctx, tx, snap.Similarities); err != nil {
		return counts, err
	}

	meta := map[string]string{
		MetaSchemaVersion: CurrentSchemaVersion,
		MetaDocumentCount: strconv.Itoa(counts.Documents),
		MetaMediaCount:    strconv.Itoa(counts.Media),
		MetaFullText:      strconv.FormatBool(s.fullText),
	}
	for k, v := range snap.Meta {
		if _, fixed := meta[k]; !fixed {
			meta[k] = v
		}
	}
	if err := setMeta(ctx, tx, meta); err != nil {
		return counts, err
	}

	if s.fullText {
		if _, err := tx.ExecContext(ctx, "INSERT INTO documents_fts(documents_fts) VALUES('rebuild')"); err != nil {
			return counts, fmt.Errorf("failed to build full-text index: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return counts, err
	}
	return counts, nil
}

func insertDocuments(ctx context.Context, q querier, docs []types.ProcessedDocument) (int, error) {
	stmt, err := q.PrepareContext(ctx, `
		INSERT INTO documents (slug, hash, title, file_name, original_path, content_html,
		    content_markdown, plain_text, excerpt, word_count, toc, frontmatter, cover_path,
		    created_at, modified_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare document insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range docs {
		toc, err := json.Marshal(nonNil(d.Toc))
		if err != nil {
			return 0, fmt.Errorf("failed to encode toc of %s: %w", d.OriginalPath, err)
		}
		fm, err := json.Marshal(nonNilMap(d.Frontmatter))
		if err != nil {
			return 0, fmt.Errorf("failed to encode frontmatter of %s: %w", d.OriginalPath, err)
		}
		var cover sql.NullString
		if d.Cover != nil && d.Cover.Path != "" {
			cover = sql.NullString{String: d.Cover.Path, Valid: true}
		}
		_, err = stmt.ExecContext(ctx,
			d.Slug, d.Hash, d.Title, d.FileName, d.OriginalPath, d.Content,
			d.Markdown, d.PlainText, d.Excerpt, d.WordCount, string(toc), string(fm), cover,
			formatTime(d.CreatedAt), formatTime(d.ModifiedAt), formatTime(d.ProcessedAt))
		if err != nil {
			return 0, fmt.Errorf("failed to insert document %s: %w", d.OriginalPath, err)
		}
	}
	return len(docs), nil
}

func insertLinks(ctx context.Context, q querier, docs []types.ProcessedDocument) (int, error) {
	stmt, err := q.PrepareContext(ctx, "INSERT OR IGNORE INTO document_links (source_hash, target_hash) VALUES (?, ?)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare link insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	n := 0
	for _, d := range docs {
		for _, target := range d.Links {
			res, err := stmt.ExecContext(ctx, d.Hash, target)
			if err != nil {
				return 0, fmt.Errorf("failed to insert link %s -> %s: %w", d.Hash, target, err)
			}
			if affected, _ := res.RowsAffected(); affected > 0 {
				n++
			}
		}
	}
	return n, nil
}

func insertMedia(ctx context.Context, q querier, media []types.ProcessedMedia) (int, error) {
	stmt, err := q.PrepareContext(ctx, `
		INSERT INTO media (original_path, hash, output_path, file_name, type, width, height,
		    format, size, original_size, sizes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare media insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range media {
		sizes, err := json.Marshal(nonNil(m.Sizes))
		if err != nil {
			return 0, fmt.Errorf("failed to encode sizes of %s: %w", m.OriginalPath, err)
		}
		_, err = stmt.ExecContext(ctx,
			m.OriginalPath, m.Metadata.Hash, m.OutputPath, m.FileName, string(m.Type),
			m.Metadata.Width, m.Metadata.Height, m.Metadata.Format, m.Metadata.Size,
			m.Metadata.OriginalSize, string(sizes))
		if err != nil {
			return 0, fmt.Errorf("failed to insert media %s: %w", m.OriginalPath, err)
		}
	}
	return len(media), nil
}

// insertEmbeddings stores one vector per hash. Documents with identical
// content share a hash and a vector, so repeats are ignored.
func insertEmbeddings(ctx context.Context, q querier, table string, rows []EmbeddingRow) (int, error) {
	stmt, err := q.PrepareContext(ctx,
		"INSERT OR IGNORE INTO "+table+" (hash, dimensions, vector, model) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare %s insert: %w", table, err)
	}
	defer func() { _ = stmt.Close() }()

	n := 0
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx, r.Hash, len(r.Vector), vector.Serialize(r.Vector), r.Model)
		if err != nil {
			return 0, fmt.Errorf("failed to insert %s for %s: %w", table, r.Hash, err)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			n++
		}
	}
	return n, nil
}

func insertSimilarities(ctx context.Context, q querier, rows []SimilarityRow) (int, error) {
	stmt, err := q.PrepareContext(ctx,
		"INSERT INTO similarities (source_hash, target_hash, score, rank) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare similarity insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Source, r.Target, r.Score, r.Rank); err != nil {
			return 0, fmt.Errorf("failed to insert similarity %s -> %s: %w", r.Source, r.Target, err)
		}
	}
	return len(rows), nil
}

func setMeta(ctx context.Context, q querier, meta map[string]string) error {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, err := q.ExecContext(ctx,
			"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			k, meta[k])
		if err != nil {
			return fmt.Errorf("failed to set meta %s: %w", k, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
