package document

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark/ast"

	"github.com/repomd/vaultproc/internal/identity"
	"github.com/repomd/vaultproc/pkg/types"
)

// RewriteOptions controls how resolved references are written back
type RewriteOptions struct {
	// NotePrefix is prepended to document slugs, e.g. "/" or "/notes/"
	NotePrefix string
	// MediaPrefix is prepended to media output paths
	MediaPrefix string
}

// References is what Rewrite found while walking a document
type References struct {
	// Links holds target document hashes, deduplicated, first-seen order
	Links []string
	// Broken holds internal link destinations that resolved to nothing
	Broken []string
	// Missing holds image destinations that resolved to nothing
	Missing []string
}

// Rewrite resolves every link and image in t against idx and points them
// at their final URLs. from is the vault-relative path of the document and
// self its hash.
func Rewrite(t *Tree, from, self string, idx *Index, opts RewriteOptions) References {
	var refs References
	seen := map[string]bool{}

	_ = ast.Walk(t.Root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			dest := string(node.Destination)
			if skipDestination(dest) {
				return ast.WalkContinue, nil
			}
			if target, ok := idx.ResolveDocument(from, dest); ok {
				_, fragment := splitFragment(dest)
				node.Destination = []byte(DocumentURL(opts.NotePrefix, target.Slug, fragment))
				if target.Hash != self && !seen[target.Hash] {
					seen[target.Hash] = true
					refs.Links = append(refs.Links, target.Hash)
				}
				return ast.WalkContinue, nil
			}
			if m, ok := idx.ResolveMedia(from, dest); ok {
				node.Destination = []byte(MediaURL(opts.MediaPrefix, m.OutputPath))
				return ast.WalkContinue, nil
			}
			refs.Broken = append(refs.Broken, dest)
		case *ast.Image:
			dest := string(node.Destination)
			if skipDestination(dest) {
				return ast.WalkContinue, nil
			}
			m, ok := idx.ResolveMedia(from, dest)
			if !ok {
				refs.Missing = append(refs.Missing, dest)
				return ast.WalkContinue, nil
			}
			node.Destination = []byte(MediaURL(opts.MediaPrefix, m.OutputPath))
			if srcset := Srcset(opts.MediaPrefix, m); srcset != "" {
				node.SetAttributeString("srcset", []byte(srcset))
			}
			if m.Metadata.Width > 0 && m.Metadata.Height > 0 {
				node.SetAttributeString("width", []byte(fmt.Sprint(m.Metadata.Width)))
				node.SetAttributeString("height", []byte(fmt.Sprint(m.Metadata.Height)))
			}
			node.SetAttributeString("loading", []byte("lazy"))
		}
		return ast.WalkContinue, nil
	})
	return refs
}

// DocumentURL builds the public URL of a document
func DocumentURL(prefix, slug, fragment string) string {
	if prefix == "" {
		prefix = "/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	u := prefix + slug
	if fragment != "" {
		u += "#" + identity.Slugify(fragment)
	}
	return u
}

// MediaURL builds the public URL of a media output path
func MediaURL(prefix, outputPath string) string {
	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(outputPath, "/")
}

// Srcset lists the size variants plus the primary output by width
func Srcset(prefix string, m *types.ProcessedMedia) string {
	if len(m.Sizes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.Sizes)+1)
	for _, s := range m.Sizes {
		parts = append(parts, fmt.Sprintf("%s %dw", MediaURL(prefix, s.OutputPath), s.Width))
	}
	if m.Metadata.Width > 0 {
		parts = append(parts, fmt.Sprintf("%s %dw", MediaURL(prefix, m.OutputPath), m.Metadata.Width))
	}
	return strings.Join(parts, ", ")
}

func skipDestination(dest string) bool {
	return dest == "" || strings.HasPrefix(dest, "#") || IsExternal(dest)
}
