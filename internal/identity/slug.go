package identity

import (
	"path"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ConflictStrategy selects how colliding slugs are disambiguated
type ConflictStrategy string

const (
	// ConflictNumber appends -2, -3, ... to the candidate
	ConflictNumber ConflictStrategy = "number"
	// ConflictHash appends a short content hash to the candidate
	ConflictHash ConflictStrategy = "hash"
)

// DefaultSlug is used when a name has no slug-able characters
const DefaultSlug = "untitled"

// SlugConfig configures a SlugManager
type SlugConfig struct {
	Strategy          ConflictStrategy
	NamespaceByFolder bool
}

// SlugOptions are the inputs for one reservation
type SlugOptions struct {
	FileName        string
	ParentFolder    string
	FrontmatterSlug string
	ContentHash     string
}

// SlugResult is the outcome of Reserve
type SlugResult struct {
	Slug        string
	Candidate   string
	WasModified bool
	// ConflictingFiles lists the paths that reserved the same candidate earlier
	ConflictingFiles []string
}

// SlugManager hands out unique slugs for one run.
// Reservation order decides which document keeps the unmodified candidate,
// so callers must reserve in a stable traversal order.
type SlugManager struct {
	mu         sync.Mutex
	cfg        SlugConfig
	used       map[string]string
	candidates map[string][]string
}

// NewSlugManager creates an empty manager
func NewSlugManager(cfg SlugConfig) *SlugManager {
	if cfg.Strategy == "" {
		cfg.Strategy = ConflictNumber
	}
	return &SlugManager{
		cfg:        cfg,
		used:       make(map[string]string),
		candidates: make(map[string][]string),
	}
}

// Reserve computes the slug for the document at filePath and records it
func (m *SlugManager) Reserve(filePath string, opts SlugOptions) SlugResult {
	candidate := m.candidate(opts)

	m.mu.Lock()
	defer m.mu.Unlock()

	earlier := append([]string(nil), m.candidates[candidate]...)
	m.candidates[candidate] = append(m.candidates[candidate], filePath)

	if _, taken := m.used[candidate]; !taken {
		m.used[candidate] = filePath
		return SlugResult{Slug: candidate, Candidate: candidate}
	}

	slug := m.disambiguate(candidate, opts.ContentHash)
	m.used[slug] = filePath
	return SlugResult{
		Slug:             slug,
		Candidate:        candidate,
		WasModified:      true,
		ConflictingFiles: earlier,
	}
}

func (m *SlugManager) candidate(opts SlugOptions) string {
	if s := Slugify(opts.FrontmatterSlug); opts.FrontmatterSlug != "" && s != DefaultSlug {
		return s
	}
	base := strings.TrimSuffix(opts.FileName, path.Ext(opts.FileName))
	slug := Slugify(base)
	if m.cfg.NamespaceByFolder && opts.ParentFolder != "" && opts.ParentFolder != "." {
		folder := Slugify(path.Base(opts.ParentFolder))
		if folder != DefaultSlug {
			slug = folder + "-" + slug
		}
	}
	return slug
}

// disambiguate must be called with m.mu held
func (m *SlugManager) disambiguate(candidate, contentHash string) string {
	if m.cfg.Strategy == ConflictHash && contentHash != "" {
		for _, n := range []int{6, 8, 12} {
			slug := candidate + "-" + ShortHash(contentHash, n)
			if _, taken := m.used[slug]; !taken {
				return slug
			}
		}
	}
	for i := 2; ; i++ {
		slug := candidate + "-" + strconv.Itoa(i)
		if _, taken := m.used[slug]; !taken {
			return slug
		}
	}
}

// Slugify lowercases s, folds diacritics, and joins alphanumeric runs with
// single hyphens.
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || (r > unicode.MaxASCII && unicode.IsLetter(r)) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	if b.Len() == 0 {
		return DefaultSlug
	}
	return b.String()
}
