// Package document turns raw vault documents into structured records:
// frontmatter, content tree, headings, table of contents, excerpt, word
// count, cover and rendered HTML.
//
// Parsing happens in two phases. Parse runs per file and needs nothing but
// the file itself. Rewrite and Render need the Index of every document and
// media file in the run, so they happen after slugs are assigned.
package document

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/repomd/vaultproc/pkg/types"
)

// DefaultExcerptLength is the excerpt limit in runes
const DefaultExcerptLength = 200

var markdownExts = map[string]bool{".md": true, ".markdown": true, ".mdx": true}
var htmlExts = map[string]bool{".html": true, ".htm": true}

// IsDocument reports whether a file name is a supported text document
func IsDocument(name string) bool {
	return knownDocumentExt(path.Ext(name))
}

func knownDocumentExt(ext string) bool {
	ext = strings.ToLower(ext)
	return markdownExts[ext] || htmlExts[ext]
}

// Options tunes Parse
type Options struct {
	ExcerptLength int
}

// Source is one document file read from the vault
type Source struct {
	// Path is vault-relative with forward slashes
	Path    string
	Raw     []byte
	Hash    string
	ModTime time.Time
}

// Parsed is the result of the first, per-file phase. FrontmatterErr is set
// when the header could not be parsed; the body is still processed with
// empty frontmatter. NonFinite lists frontmatter keys whose NaN or infinite
// numbers were replaced by strings.
type Parsed struct {
	Path              string
	FileName          string
	Hash              string
	Frontmatter       map[string]any
	FrontmatterFormat FrontmatterFormat
	FrontmatterErr    error
	NonFinite         []string
	Body              string
	Tree              *Tree
	Headings          []types.Heading
	Toc               []types.TocEntry
	Title             string
	Excerpt           string
	PlainText         string
	WordCount         int
	CreatedAt         time.Time
	ModifiedAt        time.Time
	Published         bool
}

// Parse runs the per-file phase for one document
func Parse(src Source, opts Options) (*Parsed, error) {
	if opts.ExcerptLength <= 0 {
		opts.ExcerptLength = DefaultExcerptLength
	}

	p := &Parsed{
		Path:     src.Path,
		FileName: path.Base(src.Path),
		Hash:     src.Hash,
	}

	var body []byte
	if htmlExts[strings.ToLower(path.Ext(src.Path))] {
		fm, md, err := ConvertHTML(src.Raw)
		if err != nil {
			return nil, err
		}
		p.Frontmatter, body = fm, md
	} else {
		fm, rest, format, err := SplitFrontmatter(src.Raw)
		p.Frontmatter, body, p.FrontmatterFormat = fm, rest, format
		if err != nil {
			p.FrontmatterErr = err
		}
	}

	p.NonFinite = ReplaceNonFinite(p.Frontmatter)

	p.Body = string(body)
	p.Tree = ParseMarkdown([]byte(NormalizeWikiLinks(p.Body)))
	p.Headings = ExtractHeadings(p.Tree)
	p.Toc = BuildToc(p.Headings)
	p.PlainText = ToPlainText(p.Tree)
	p.WordCount = CountWords(p.PlainText)
	p.Published = IsPublished(p.Frontmatter)

	p.Title = StringField(p.Frontmatter, "title")
	if p.Title == "" {
		p.Title = FirstHeading(p.Headings, 1)
	}
	if p.Title == "" {
		p.Title = HumanizeFileName(p.FileName)
	}

	for _, f := range excerptFields {
		if p.Excerpt = StringField(p.Frontmatter, f); p.Excerpt != "" {
			break
		}
	}
	if p.Excerpt == "" {
		p.Excerpt = Truncate(ExtractFirstParagraph(p.Tree), opts.ExcerptLength)
	}

	mtime := src.ModTime.UTC()
	p.CreatedAt, p.ModifiedAt = mtime, mtime
	if t, ok := TimeField(p.Frontmatter, createdFields...); ok {
		p.CreatedAt = t
	}
	if t, ok := TimeField(p.Frontmatter, modifiedFields...); ok {
		p.ModifiedAt = t
	}

	return p, nil
}

// FrontmatterSlug returns the slug declared in frontmatter, if any
func (p *Parsed) FrontmatterSlug() string {
	return StringField(p.Frontmatter, "slug")
}

// Builder accumulates the fields of a document across pipeline stages and
// freezes them into a types.ProcessedDocument once every stage has run.
type Builder struct {
	parsed    *Parsed
	slug      string
	html      string
	cover     *types.CoverResult
	links     []string
	embedding []float32
	frozen    bool
}

// NewBuilder starts a builder from a parsed document
func NewBuilder(p *Parsed) *Builder {
	return &Builder{parsed: p}
}

// Parsed returns the underlying parse result
func (b *Builder) Parsed() *Parsed { return b.parsed }

// Hash returns the document content hash
func (b *Builder) Hash() string { return b.parsed.Hash }

// Slug returns the slug set so far
func (b *Builder) Slug() string { return b.slug }

func (b *Builder) SetSlug(slug string) { b.mustOpen(); b.slug = slug }
func (b *Builder) SetHTML(html string) { b.mustOpen(); b.html = html }
func (b *Builder) SetCover(cover *types.CoverResult) { b.mustOpen(); b.cover = cover }
func (b *Builder) SetLinks(links []string) { b.mustOpen(); b.links = links }
func (b *Builder) SetEmbedding(v []float32) { b.mustOpen(); b.embedding = v }
func (b *Builder) Embedding() []float32 { return b.embedding }
func (b *Builder) Cover() *types.CoverResult { return b.cover }

// EmbeddingText is the text sent to a text embedder: plain text, else the
// title, else the file name.
func (b *Builder) EmbeddingText() string {
	switch {
	case strings.TrimSpace(b.parsed.PlainText) != "":
		return b.parsed.PlainText
	case b.parsed.Title != "":
		return b.parsed.Title
	default:
		return b.parsed.FileName
	}
}

// Freeze produces the immutable record. The builder rejects changes after.
func (b *Builder) Freeze(processedAt time.Time) types.ProcessedDocument {
	b.frozen = true
	p := b.parsed
	fm := p.Frontmatter
	if fm == nil {
		fm = map[string]any{}
	}
	return types.ProcessedDocument{
		Hash:         p.Hash,
		Slug:         b.slug,
		Title:        p.Title,
		FileName:     p.FileName,
		OriginalPath: p.Path,
		Content:      b.html,
		Markdown:     p.Body,
		PlainText:    p.PlainText,
		Excerpt:      p.Excerpt,
		WordCount:    p.WordCount,
		Toc:          p.Toc,
		Frontmatter:  fm,
		CreatedAt:    p.CreatedAt,
		ModifiedAt:   p.ModifiedAt,
		ProcessedAt:  processedAt,
		Cover:        b.cover,
		Links:        b.links,
		Embedding:    b.embedding,
	}
}

func (b *Builder) mustOpen() {
	if b.frozen {
		panic(fmt.Sprintf("document %s modified after freeze", b.parsed.Path))
	}
}
