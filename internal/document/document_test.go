package document

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repomd/vaultproc/internal/identity"
	"github.com/repomd/vaultproc/pkg/types"
)

func TestParse_Markdown(t *testing.T) {
	raw := []byte("---\ntitle: Custom Title\nslug: custom\ndate: 2024-02-03\ntags: [go]\n---\n# Heading One\n\nFirst paragraph text here.\n\n## Section\n\nMore [[Other Note]] text.\n")
	mtime := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	p, err := Parse(Source{Path: "notes/post.md", Raw: raw, Hash: identity.HashBytes(raw), ModTime: mtime}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "post.md", p.FileName)
	assert.Equal(t, "Custom Title", p.Title)
	assert.Equal(t, "custom", p.FrontmatterSlug())
	assert.Equal(t, FormatYAML, p.FrontmatterFormat)
	assert.NoError(t, p.FrontmatterErr)
	assert.Equal(t, "First paragraph text here.", p.Excerpt)
	assert.True(t, p.Published)
	assert.Equal(t, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), p.CreatedAt)
	assert.Equal(t, mtime, p.ModifiedAt)
	require.Len(t, p.Toc, 1)
	require.Len(t, p.Toc[0].Children, 1)
	assert.Equal(t, "Section", p.Toc[0].Children[0].Text)
	assert.Contains(t, p.PlainText, "More Other Note text.")
	assert.Equal(t, CountWords(p.PlainText), p.WordCount)
	assert.NotContains(t, p.Body, "title:")
	assert.Contains(t, p.Body, "[[Other Note]]")
}

func TestParse_TitleFallbacks(t *testing.T) {
	p, err := Parse(Source{Path: "a/first-post.md", Raw: []byte("# From Heading\n\nbody")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "From Heading", p.Title)

	p, err = Parse(Source{Path: "a/first-post.md", Raw: []byte("just text")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "First Post", p.Title)
}

func TestParse_ExcerptFromFrontmatterAndTruncation(t *testing.T) {
	p, err := Parse(Source{Path: "a.md", Raw: []byte("---\ndescription: Given\n---\nBody")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Given", p.Excerpt)

	p, err = Parse(Source{Path: "a.md", Raw: []byte("one two three four five six")}, Options{ExcerptLength: 10})
	require.NoError(t, err)
	assert.Equal(t, "one two…", p.Excerpt)
}

func TestParse_MalformedFrontmatter(t *testing.T) {
	p, err := Parse(Source{Path: "bad.md", Raw: []byte("---\ntitle: [oops\n---\n# Still Here\n")}, Options{})
	require.NoError(t, err)
	assert.Error(t, p.FrontmatterErr)
	assert.Empty(t, p.Frontmatter)
	assert.Equal(t, "Still Here", p.Title)
}

func TestParse_NonFiniteFrontmatter(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		keys []string
		want map[string]any
	}{
		{
			name: "yaml",
			raw:  "---\nrating: .nan\nlimits:\n  max: .inf\n  min: -.inf\nscore: 4.5\n---\nbody\n",
			keys: []string{"limits.max", "limits.min", "rating"},
			want: map[string]any{"rating": "NaN", "limits": map[string]any{"max": "+Inf", "min": "-Inf"}, "score": 4.5},
		},
		{
			name: "toml",
			raw:  "+++\nrating = nan\nvalues = [1.0, inf]\n+++\nbody\n",
			keys: []string{"rating", "values[1]"},
			want: map[string]any{"rating": "NaN", "values": []any{1.0, "+Inf"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(Source{Path: "n.md", Raw: []byte(tt.raw)}, Options{})
			require.NoError(t, err)
			assert.NoError(t, p.FrontmatterErr)
			assert.Equal(t, tt.keys, p.NonFinite)
			assert.Equal(t, tt.want, p.Frontmatter)

			_, err = json.Marshal(p.Frontmatter)
			assert.NoError(t, err)
		})
	}
}

func TestParse_Draft(t *testing.T) {
	p, err := Parse(Source{Path: "d.md", Raw: []byte("---\ndraft: true\n---\nx")}, Options{})
	require.NoError(t, err)
	assert.False(t, p.Published)
}

func TestParse_HTML(t *testing.T) {
	raw := []byte(`<!doctype html><html><head><title>Page Title</title>
<meta name="description" content="A page">
<meta name="keywords" content="go, vault">
</head><body><h1>Welcome</h1><p>Some <strong>bold</strong> text.</p><script>alert(1)</script></body></html>`)

	p, err := Parse(Source{Path: "site/page.html", Raw: raw}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Page Title", p.Title)
	assert.Equal(t, "A page", p.Excerpt)
	assert.Equal(t, []any{"go", "vault"}, p.Frontmatter["tags"])
	assert.Contains(t, p.Body, "# Welcome")
	assert.Contains(t, p.Body, "**bold**")
	assert.NotContains(t, p.Body, "alert")
	assert.Equal(t, "Welcome", FirstHeading(p.Headings, 1))
}

func TestIsDocument(t *testing.T) {
	assert.True(t, IsDocument("a.md"))
	assert.True(t, IsDocument("a.MD"))
	assert.True(t, IsDocument("a.mdx"))
	assert.True(t, IsDocument("a.html"))
	assert.False(t, IsDocument("a.png"))
	assert.False(t, IsDocument("md"))
}

func TestBuilder(t *testing.T) {
	p, err := Parse(Source{Path: "a.md", Raw: []byte("# A\n\ntext"), Hash: "h1"}, Options{})
	require.NoError(t, err)

	b := NewBuilder(p)
	b.SetSlug("a")
	b.SetHTML("<h1>A</h1>")
	b.SetLinks([]string{"h2"})
	b.SetEmbedding([]float32{1, 0})
	b.SetCover(&types.CoverResult{Status: types.CoverNotFound, Original: "x.png"})

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := b.Freeze(now)
	assert.Equal(t, "h1", doc.Hash)
	assert.Equal(t, "a", doc.Slug)
	assert.Equal(t, "a.md", doc.OriginalPath)
	assert.Equal(t, "<h1>A</h1>", doc.Content)
	assert.Equal(t, []string{"h2"}, doc.Links)
	assert.Equal(t, []float32{1, 0}, doc.Embedding)
	assert.Equal(t, now, doc.ProcessedAt)
	assert.NotNil(t, doc.Frontmatter)

	assert.Panics(t, func() { b.SetSlug("other") })
}

func TestBuilder_EmbeddingText(t *testing.T) {
	p, err := Parse(Source{Path: "empty.md", Raw: []byte("")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Empty", NewBuilder(p).EmbeddingText())

	p, err = Parse(Source{Path: "t.md", Raw: []byte("hello there")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello there", NewBuilder(p).EmbeddingText())
}

func TestConvertHTML(t *testing.T) {
	raw := []byte(`<html><head><title> Field Notes </title>
<meta name="keywords" content="birds, spring ,">
<meta property="og:description" content="Notes from the marsh">
</head><body><!-- draft: remove me --><h1>Marsh</h1><script>track()</script>
<p>Herons <strong>everywhere</strong>.</p></body></html>`)

	fm, md, err := ConvertHTML(raw)
	require.NoError(t, err)
	assert.Equal(t, "Field Notes", fm["title"])
	assert.Equal(t, []any{"birds", "spring"}, fm["tags"])
	assert.Equal(t, "Notes from the marsh", fm["description"])

	out := string(md)
	assert.Contains(t, out, "# Marsh")
	assert.Contains(t, out, "**everywhere**")
	assert.NotContains(t, out, "remove me")
	assert.NotContains(t, out, "track()")
}
