package types

import "time"

// Heading is a single heading extracted from a document body
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id"`
}

// TocEntry is a node of the nested table of contents
type TocEntry struct {
	Level    int        `json:"level"`
	Text     string     `json:"text"`
	ID       string     `json:"id"`
	Children []TocEntry `json:"children,omitempty"`
}

// CoverStatus describes the outcome of cover resolution
type CoverStatus string

const (
	CoverResolved CoverStatus = "resolved"
	CoverExternal CoverStatus = "external"
	CoverNotFound CoverStatus = "cover-not-found"
)

// CoverResult is the resolved cover image of a document, or the reason it
// could not be resolved.
type CoverResult struct {
	Status   CoverStatus   `json:"status"`
	Original string        `json:"original"`
	Field    string        `json:"field,omitempty"`
	Hash     string        `json:"hash,omitempty"`
	Path     string        `json:"path,omitempty"`
	URL      string        `json:"url,omitempty"`
	Width    int           `json:"width,omitempty"`
	Height   int           `json:"height,omitempty"`
	Sizes    []SizeVariant `json:"sizes,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// Resolved reports whether the cover points at a usable image
func (c *CoverResult) Resolved() bool {
	return c != nil && (c.Status == CoverResolved || c.Status == CoverExternal)
}

// ProcessedDocument is the finalized record for one included text document.
// Hash depends only on the file bytes; Slug is unique within a run.
type ProcessedDocument struct {
	Hash         string         `json:"hash"`
	Slug         string         `json:"slug"`
	Title        string         `json:"title"`
	FileName     string         `json:"fileName"`
	OriginalPath string         `json:"originalPath"`
	Content      string         `json:"content"`
	Markdown     string         `json:"markdown"`
	PlainText    string         `json:"plainText"`
	Excerpt      string         `json:"excerpt"`
	WordCount    int            `json:"wordCount"`
	Toc          []TocEntry     `json:"toc"`
	Frontmatter  map[string]any `json:"frontmatter"`
	CreatedAt    time.Time      `json:"createdAt"`
	ModifiedAt   time.Time      `json:"modifiedAt"`
	ProcessedAt  time.Time      `json:"processedAt"`
	Cover        *CoverResult   `json:"cover,omitempty"`
	Links        []string       `json:"links,omitempty"`
	Embedding    []float32      `json:"embedding,omitempty"`
}
