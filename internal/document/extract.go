package document

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark/ast"

	"github.com/repomd/vaultproc/pkg/types"
)

// ExtractHeadings lists headings in document order
func ExtractHeadings(t *Tree) []types.Heading {
	var headings []types.Heading
	_ = ast.Walk(t.Root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		heading := types.Heading{Level: h.Level, Text: nodeText(h, t.Source)}
		if id, ok := h.AttributeString("id"); ok {
			switch v := id.(type) {
			case []byte:
				heading.ID = string(v)
			case string:
				heading.ID = v
			}
		}
		headings = append(headings, heading)
		return ast.WalkSkipChildren, nil
	})
	return headings
}

// BuildToc nests headings under the closest preceding shallower heading
func BuildToc(headings []types.Heading) []types.TocEntry {
	entries, _ := buildTocLevel(headings, 0, 0)
	return entries
}

func buildTocLevel(headings []types.Heading, start, parentLevel int) ([]types.TocEntry, int) {
	var entries []types.TocEntry
	i := start
	for i < len(headings) {
		h := headings[i]
		if parentLevel > 0 && h.Level <= parentLevel {
			break
		}
		entry := types.TocEntry{Level: h.Level, Text: h.Text, ID: h.ID}
		entry.Children, i = buildTocLevel(headings, i+1, h.Level)
		entries = append(entries, entry)
	}
	return entries, i
}

// FirstHeading returns the text of the first heading at level, or ""
func FirstHeading(headings []types.Heading, level int) string {
	for _, h := range headings {
		if h.Level == level {
			return h.Text
		}
	}
	return ""
}

// ExtractFirstParagraph returns the text of the first paragraph that has
// any text of its own
func ExtractFirstParagraph(t *Tree) string {
	var first string
	_ = ast.Walk(t.Root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		p, ok := n.(*ast.Paragraph)
		if !ok {
			return ast.WalkContinue, nil
		}
		if s := nodeText(p, t.Source); s != "" && !onlyImages(p, t.Source) {
			first = s
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})
	return first
}

// ToPlainText flattens the tree to text, one block per paragraph
func ToPlainText(t *Tree) string {
	var parts []string
	collectBlocks(t.Root, t.Source, &parts)
	return strings.Join(parts, "\n\n")
}

// CountWords counts whitespace-separated words
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// Truncate shortens s to at most limit runes, breaking on a word boundary
// when one is close enough, and appends an ellipsis when cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit])
	if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \n\t.,;:") + "…"
}

func collectBlocks(n ast.Node, source []byte, parts *[]string) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Type() != ast.TypeBlock {
			continue
		}
		switch c.(type) {
		case *ast.HTMLBlock, *ast.ThematicBreak:
			continue
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if s := strings.TrimSpace(linesText(c, source)); s != "" {
				*parts = append(*parts, s)
			}
			continue
		}
		if c.HasChildren() && c.FirstChild().Type() == ast.TypeInline {
			if s := nodeText(c, source); s != "" {
				*parts = append(*parts, s)
			}
			continue
		}
		collectBlocks(c, source, parts)
	}
}

func linesText(n ast.Node, source []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return b.String()
}

// nodeText concatenates the inline text under n with whitespace collapsed
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	writeText(&b, n, source)
	return strings.Join(strings.Fields(b.String()), " ")
}

func writeText(b *strings.Builder, n ast.Node, source []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.Label(source))
		case *ast.RawHTML:
		default:
			writeText(b, c, source)
		}
	}
}

func onlyImages(p ast.Node, source []byte) bool {
	for c := p.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Image:
		case *ast.Text:
			if len(strings.TrimSpace(string(t.Segment.Value(source)))) > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
