package document

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Footnote),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// Tree is a parsed Markdown body. Node segments point into Source.
type Tree struct {
	Source []byte
	Root   ast.Node
}

// ParseMarkdown builds the content tree for a Markdown body
func ParseMarkdown(source []byte) *Tree {
	return &Tree{
		Source: source,
		Root:   markdown.Parser().Parse(text.NewReader(source)),
	}
}

// Render converts the tree to HTML, including any attribute or destination
// changes made to its nodes.
func (t *Tree) Render() (string, error) {
	var buf bytes.Buffer
	if err := markdown.Renderer().Render(&buf, t.Source, t.Root); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
