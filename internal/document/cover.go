package document

import (
	"fmt"
	"path"
	"strings"

	"github.com/repomd/vaultproc/pkg/types"
)

// CoverFields are the frontmatter keys checked for a cover, in order
var CoverFields = []string{"cover", "image", "thumbnail", "coverImage"}

// CoverValue returns the first non-empty cover field and its name
func CoverValue(fm map[string]any) (field, value string) {
	for _, f := range CoverFields {
		if s, ok := fm[f].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return f, s
			}
		}
	}
	return "", ""
}

// ResolveCover resolves the cover declared in a document's frontmatter.
// Returns nil when no cover field is set. A miss is reported as a
// cover-not-found result, never as an error.
func ResolveCover(fm map[string]any, docPath string, media *Index) *types.CoverResult {
	field, value := CoverValue(fm)
	if value == "" {
		return nil
	}
	value = unwrapEmbed(value)

	if IsExternal(value) {
		return &types.CoverResult{
			Status:   types.CoverExternal,
			Original: value,
			Field:    field,
			URL:      value,
		}
	}

	attempts := coverAttempts(docPath, cleanDestination(value))
	for _, p := range attempts {
		if m, ok := media.MediaAt(p); ok {
			return &types.CoverResult{
				Status:   types.CoverResolved,
				Original: value,
				Field:    field,
				Hash:     m.Metadata.Hash,
				Path:     m.OutputPath,
				Width:    m.Metadata.Width,
				Height:   m.Metadata.Height,
				Sizes:    m.Sizes,
			}
		}
	}

	return &types.CoverResult{
		Status:   types.CoverNotFound,
		Original: value,
		Field:    field,
		Message:  fmt.Sprintf("cover image %q not found (tried %s)", value, strings.Join(attempts, ", ")),
	}
}

// coverAttempts: vault-root relative, document relative, leading slash stripped
func coverAttempts(docPath, value string) []string {
	return []string{
		path.Clean(value),
		path.Join(path.Dir(docPath), value),
		path.Clean(strings.TrimLeft(value, "/")),
	}
}

// unwrapEmbed turns "![[x.png]]" or "[[x.png]]" into "x.png"
func unwrapEmbed(v string) string {
	v = strings.TrimPrefix(v, "!")
	if strings.HasPrefix(v, "[[") && strings.HasSuffix(v, "]]") {
		v = strings.TrimSuffix(strings.TrimPrefix(v, "[["), "]]")
		v, _, _ = strings.Cut(v, "|")
	}
	return strings.TrimSpace(v)
}
