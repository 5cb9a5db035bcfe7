// Package storage builds and reads the embedded SQLite database produced by
// a vault run.
//
// The database holds documents, media, links between documents, text and
// image embeddings as little-endian float32 blobs, a precomputed nearest
// neighbor table and, when enabled, an FTS5 index over title and plain
// text. The schema version is recorded in schema_version and in meta, and
// readers refuse databases from a different major version.
//
// The driver is chosen at build time: modernc.org/sqlite by default,
// mattn/go-sqlite3 with the sqlite_cgo tag.
package storage

import (
	"time"

	"github.com/repomd/vaultproc/pkg/types"
)

// Meta keys
const (
	MetaSchemaVersion       = "schema_version"
	MetaRunID               = "run_id"
	MetaEmbeddingModel      = "embedding_model"
	MetaEmbeddingDimensions = "embedding_dimensions"
	MetaImageModel          = "image_embedding_model"
	MetaImageDimensions     = "image_embedding_dimensions"
	MetaDocumentCount       = "document_count"
	MetaMediaCount          = "media_count"
	MetaFullText            = "full_text"
)

// EmbeddingRow is one stored vector
type EmbeddingRow struct {
	Hash   string
	Vector []float32
	Model  string
}

// SimilarityRow is one precomputed neighbor
type SimilarityRow struct {
	Source string
	Target string
	Score  float64
	Rank   int
}

// Snapshot is everything written in one build
type Snapshot struct {
	Documents       []types.ProcessedDocument
	Media           []types.ProcessedMedia
	TextEmbeddings  []EmbeddingRow
	ImageEmbeddings []EmbeddingRow
	Similarities    []SimilarityRow
	Meta            map[string]string
}

// Counts reports rows written by a build
type Counts struct {
	Documents       int
	Links           int
	Media           int
	Embeddings      int
	MediaEmbeddings int
	Similarities    int
}

// DocumentSummary is the lightweight view returned by searches
type DocumentSummary struct {
	Slug         string
	Hash         string
	Title        string
	OriginalPath string
	Excerpt      string
	WordCount    int
}

// Document is a full stored document
type Document struct {
	DocumentSummary
	FileName    string
	HTML        string
	Markdown    string
	PlainText   string
	Toc         []types.TocEntry
	Frontmatter map[string]any
	CoverPath   string
	CreatedAt   time.Time
	ModifiedAt  time.Time
	ProcessedAt time.Time
}

// TextResult is a full-text match. Higher scores are better.
type TextResult struct {
	DocumentSummary
	Score   float64
	Snippet string
}

// Neighbor is a precomputed similar document
type Neighbor struct {
	DocumentSummary
	Score float64
	Rank  int
}

// Stats describes a built database
type Stats struct {
	SchemaVersion   string
	RunID           string
	FullText        bool
	Model           string
	Dimensions      int
	Documents       int
	Media           int
	Links           int
	Embeddings      int
	MediaEmbeddings int
	Similarities    int
}
