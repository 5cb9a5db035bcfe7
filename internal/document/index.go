package document

import (
	"net/url"
	"path"
	"strings"

	"github.com/repomd/vaultproc/pkg/types"
)

// Target is a document a reference can resolve to
type Target struct {
	Path string
	Hash string
	Slug string
}

// Index answers "what does this reference point at" for documents and
// media of one run. Build it fully before resolving; it is read-only after.
type Index struct {
	docs       map[string]Target
	docsByStem map[string]Target
	docsByBase map[string]Target
	docsBySlug map[string]Target
	media      map[string]*types.ProcessedMedia
	mediaBase  map[string]*types.ProcessedMedia
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{
		docs:       make(map[string]Target),
		docsByStem: make(map[string]Target),
		docsByBase: make(map[string]Target),
		docsBySlug: make(map[string]Target),
		media:      make(map[string]*types.ProcessedMedia),
		mediaBase:  make(map[string]*types.ProcessedMedia),
	}
}

// AddDocument registers a document. On base-name clashes the first one
// added wins, so add in traversal order.
func (x *Index) AddDocument(t Target) {
	x.docs[t.Path] = t
	stem := strings.TrimSuffix(t.Path, path.Ext(t.Path))
	if _, ok := x.docsByStem[stem]; !ok {
		x.docsByStem[stem] = t
	}
	base := strings.ToLower(path.Base(stem))
	if _, ok := x.docsByBase[base]; !ok {
		x.docsByBase[base] = t
	}
	if t.Slug != "" {
		x.docsBySlug[t.Slug] = t
	}
}

// AddMedia registers a processed media file by its original path
func (x *Index) AddMedia(m *types.ProcessedMedia) {
	x.media[m.OriginalPath] = m
	base := strings.ToLower(path.Base(m.OriginalPath))
	if _, ok := x.mediaBase[base]; !ok {
		x.mediaBase[base] = m
	}
}

// MediaAt returns the media file at an exact vault-relative path
func (x *Index) MediaAt(p string) (*types.ProcessedMedia, bool) {
	m, ok := x.media[p]
	return m, ok
}

// ResolveDocument resolves a link destination written in the document at
// from. Attempts: vault-root path, document-relative path, leading slash
// stripped; each with and without extension; then base name; then slug.
func (x *Index) ResolveDocument(from, dest string) (Target, bool) {
	p := cleanDestination(dest)
	if p == "" {
		return Target{}, false
	}
	for _, candidate := range candidatePaths(from, p) {
		if t, ok := x.docs[candidate]; ok {
			return t, true
		}
		if t, ok := x.docsByStem[candidate]; ok {
			return t, true
		}
	}
	stem := strings.TrimSuffix(path.Base(p), path.Ext(p))
	if knownDocumentExt(path.Ext(p)) || path.Ext(p) == "" {
		if t, ok := x.docsByBase[strings.ToLower(stem)]; ok {
			return t, true
		}
	}
	if t, ok := x.docsBySlug[strings.Trim(p, "/")]; ok {
		return t, true
	}
	return Target{}, false
}

// ResolveMedia resolves an image or file reference written in the document
// at from, falling back to a unique base-name match.
func (x *Index) ResolveMedia(from, dest string) (*types.ProcessedMedia, bool) {
	p := cleanDestination(dest)
	if p == "" {
		return nil, false
	}
	for _, candidate := range candidatePaths(from, p) {
		if m, ok := x.media[candidate]; ok {
			return m, true
		}
	}
	m, ok := x.mediaBase[strings.ToLower(path.Base(p))]
	return m, ok
}

// candidatePaths lists the lookups tried for p in order
func candidatePaths(from, p string) []string {
	out := make([]string, 0, 3)
	add := func(s string) {
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}
	add(path.Clean(p))
	if !strings.HasPrefix(p, "/") {
		add(path.Join(path.Dir(from), p))
	}
	add(path.Clean(strings.TrimLeft(p, "/")))
	return out
}

// cleanDestination strips fragment and query and decodes percent escapes
func cleanDestination(dest string) string {
	p, _ := splitFragment(dest)
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	return strings.TrimSpace(p)
}

func splitFragment(dest string) (string, string) {
	if i := strings.IndexByte(dest, '#'); i >= 0 {
		return dest[:i], dest[i+1:]
	}
	return dest, ""
}

// IsExternal reports whether dest has a URL scheme or is protocol-relative
func IsExternal(dest string) bool {
	if strings.HasPrefix(dest, "//") {
		return true
	}
	u, err := url.Parse(dest)
	if err != nil {
		return false
	}
	return u.Scheme != "" && len(u.Scheme) > 1
}
