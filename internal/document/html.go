package document

import (
	"bytes"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ConvertHTML reads an HTML source document. The title and meta tags become
// frontmatter and the body is converted to Markdown.
func ConvertHTML(raw []byte) (map[string]any, []byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}

	fm := map[string]any{}
	if title := strings.TrimSpace(doc.Find("head > title").First().Text()); title != "" {
		fm["title"] = title
	}

	doc.Find("meta[name], meta[property]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if name == "" {
			name, _ = s.Attr("property")
		}
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if content == "" {
			return
		}
		switch strings.ToLower(name) {
		case "description", "og:description":
			if _, ok := fm["description"]; !ok {
				fm["description"] = content
			}
		case "keywords":
			var tags []any
			for _, k := range strings.Split(content, ",") {
				if k = strings.TrimSpace(k); k != "" {
					tags = append(tags, k)
				}
			}
			fm["tags"] = tags
		case "author":
			fm["author"] = content
		case "date", "article:published_time":
			fm["date"] = content
		case "og:image":
			fm["image"] = content
		}
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		return fm, nil, nil
	}
	body.Find("script, style, noscript").Remove()
	stripComments(body.Nodes[0])

	md, err := htmltomarkdown.ConvertNode(body.Nodes[0])
	if err != nil {
		return fm, nil, fmt.Errorf("convert html to markdown: %w", err)
	}
	return fm, md, nil
}

func stripComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			stripComments(c)
		}
		c = next
	}
}
