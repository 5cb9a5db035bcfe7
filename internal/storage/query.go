package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/repomd/vaultproc/internal/vector"
)

const summaryColumns = "d.slug, d.hash, d.title, d.original_path, COALESCE(d.excerpt, ''), d.word_count"

func scanSummary(row interface{ Scan(...any) error }, extra ...any) (DocumentSummary, error) {
	var s DocumentSummary
	dest := append([]any{&s.Slug, &s.Hash, &s.Title, &s.OriginalPath, &s.Excerpt, &s.WordCount}, extra...)
	err := row.Scan(dest...)
	return s, err
}

// Document returns a stored document by slug
func (s *Store) Document(ctx context.Context, slug string) (*Document, error) {
	return s.document(ctx, "d.slug = ?", slug)
}

// DocumentByHash returns the first document, by slug, with the given hash
func (s *Store) DocumentByHash(ctx context.Context, hash string) (*Document, error) {
	return s.document(ctx, "d.hash = ? ORDER BY d.slug LIMIT 1", hash)
}

func (s *Store) document(ctx context.Context, where string, arg any) (*Document, error) {
	query := `
		SELECT ` + summaryColumns + `, d.file_name, d.content_html, d.content_markdown,
		       d.plain_text, d.toc, d.frontmatter, COALESCE(d.cover_path, ''),
		       d.created_at, d.modified_at, d.processed_at
		FROM documents d
		WHERE ` + where

	var doc Document
	var toc, fm, created, modified, processed string
	summary, err := scanSummary(s.db.QueryRowContext(ctx, query, arg),
		&doc.FileName, &doc.HTML, &doc.Markdown, &doc.PlainText, &toc, &fm, &doc.CoverPath,
		&created, &modified, &processed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.DocumentSummary = summary
	if err := json.Unmarshal([]byte(toc), &doc.Toc); err != nil {
		return nil, fmt.Errorf("failed to decode toc: %w", err)
	}
	if err := json.Unmarshal([]byte(fm), &doc.Frontmatter); err != nil {
		return nil, fmt.Errorf("failed to decode frontmatter: %w", err)
	}
	doc.CreatedAt = parseTime(created)
	doc.ModifiedAt = parseTime(modified)
	doc.ProcessedAt = parseTime(processed)
	return &doc, nil
}

// SearchText performs BM25 full-text search. Title matches weigh ten
// times more than body matches.
func (s *Store) SearchText(ctx context.Context, query string, limit int) ([]TextResult, error) {
	if !s.fullText {
		return nil, ErrFullTextDisabled
	}
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		return []TextResult{}, nil
	}

	// bm25 is lower-is-better; negate so callers sort descending
	sqlQuery := `
		SELECT ` + summaryColumns + `,
		       -bm25(documents_fts, 10.0, 1.0) AS score,
		       snippet(documents_fts, 1, '[', ']', '…', 12)
		FROM documents_fts
		JOIN documents d ON d.rowid = documents_fts.rowid
		WHERE documents_fts MATCH ?
		ORDER BY score DESC, d.slug
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, sqlQuery, sanitized, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0, limit)
	for rows.Next() {
		var r TextResult
		summary, err := scanSummary(rows, &r.Score, &r.Snippet)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.DocumentSummary = summary
		results = append(results, r)
	}
	return results, rows.Err()
}

// Embeddings loads every text embedding ordered by hash
func (s *Store) Embeddings(ctx context.Context) ([]EmbeddingRow, error) {
	return s.embeddings(ctx, "embeddings")
}

// MediaEmbeddings loads every image embedding ordered by hash
func (s *Store) MediaEmbeddings(ctx context.Context) ([]EmbeddingRow, error) {
	return s.embeddings(ctx, "media_embeddings")
}

func (s *Store) embeddings(ctx context.Context, table string) ([]EmbeddingRow, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT hash, dimensions, vector, model FROM "+table+" ORDER BY hash")
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []EmbeddingRow
	for rows.Next() {
		var r EmbeddingRow
		var dim int
		var blob []byte
		if err := rows.Scan(&r.Hash, &dim, &blob, &r.Model); err != nil {
			return nil, err
		}
		if len(blob) != dim*4 {
			return nil, fmt.Errorf("%s %s: %w", table, r.Hash, vector.ErrBlobLength)
		}
		if r.Vector, err = vector.Deserialize(blob); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Neighbors returns the precomputed most similar documents for hash
func (s *Store) Neighbors(ctx context.Context, hash string, limit int) ([]Neighbor, error) {
	if limit <= 0 {
		return []Neighbor{}, nil
	}
	// documents sharing a hash collapse to their first slug
	query := `
		SELECT ` + summaryColumns + `, sim.score, sim.rank
		FROM similarities sim
		JOIN documents d ON d.slug = (
		    SELECT slug FROM documents WHERE hash = sim.target_hash ORDER BY slug LIMIT 1
		)
		WHERE sim.source_hash = ?
		ORDER BY sim.rank
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, hash, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Neighbor, 0, limit)
	for rows.Next() {
		var n Neighbor
		summary, err := scanSummary(rows, &n.Score, &n.Rank)
		if err != nil {
			return nil, err
		}
		n.DocumentSummary = summary
		out = append(out, n)
	}
	return out, rows.Err()
}

// Summaries returns summaries keyed by hash for the given hashes
func (s *Store) Summaries(ctx context.Context, hashes []string) (map[string]DocumentSummary, error) {
	out := make(map[string]DocumentSummary, len(hashes))
	for _, h := range hashes {
		if _, done := out[h]; done {
			continue
		}
		row := s.db.QueryRowContext(ctx,
			"SELECT "+summaryColumns+" FROM documents d WHERE d.hash = ? ORDER BY d.slug LIMIT 1", h)
		summary, err := scanSummary(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[h] = summary
	}
	return out, nil
}

// Backlinks returns the documents linking to hash, ordered by slug
func (s *Store) Backlinks(ctx context.Context, hash string) ([]DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+`
		FROM document_links l
		JOIN documents d ON d.hash = l.source_hash
		WHERE l.target_hash = ?
		ORDER BY d.slug
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to query backlinks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DocumentSummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Meta returns all meta entries
func (s *Store) Meta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("failed to query meta: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Stats summarizes the database contents
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	meta, err := s.Meta(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		SchemaVersion: meta[MetaSchemaVersion],
		RunID:         meta[MetaRunID],
		FullText:      s.fullText,
		Model:         meta[MetaEmbeddingModel],
	}
	st.Dimensions, _ = strconv.Atoi(meta[MetaEmbeddingDimensions])

	counts := []struct {
		table string
		dst   *int
	}{
		{"documents", &st.Documents},
		{"media", &st.Media},
		{"document_links", &st.Links},
		{"embeddings", &st.Embeddings},
		{"media_embeddings", &st.MediaEmbeddings},
		{"similarities", &st.Similarities},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}
	return st, nil
}
