package processor

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/document"
	"github.com/repomd/vaultproc/internal/identity"
	"github.com/repomd/vaultproc/internal/media"
	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/pkg/types"
)

// Defaults
const (
	DefaultFormat  = "jpeg"
	DefaultQuality = 85
)

// DefaultIgnore lists file names skipped in every vault
var DefaultIgnore = []string{".DS_Store", "Thumbs.db", "desktop.ini", "node_modules"}

// Config contains configuration for the processor
type Config struct {
	InputDir  string
	OutputDir string

	// MediaDir is the media subdirectory of OutputDir
	MediaDir string
	// Sizes are the image variants; nil selects media.DefaultSizes and an
	// empty non-nil slice disables variants
	Sizes   []media.SizeSpec
	Format  string
	Quality int
	// HashNaming names media outputs after their content hash
	HashNaming bool
	// Sharding splits hash-named outputs into two-character prefix folders
	Sharding bool

	SlugStrategy      identity.ConflictStrategy
	NamespaceByFolder bool

	// Ignore holds file and directory names skipped during the walk
	Ignore []string
	// IncludeUnpublished keeps drafts, for preview builds
	IncludeUnpublished bool
	ExcerptLength      int

	// NotePrefix and MediaPrefix are prepended to rewritten links
	NotePrefix  string
	MediaPrefix string

	// Required plugins abort Initialize when they cannot start
	Required []plugin.Capability
	// Cache is consulted read-only; nil means no previous run
	Cache *types.CacheContext

	Workers    int
	DebugLevel int
	Logger     *zap.Logger
}

// withDefaults returns a copy of c with zero values filled in
func (c Config) withDefaults() Config {
	if c.MediaDir == "" {
		c.MediaDir = media.DefaultDir
	}
	if c.Sizes == nil {
		c.Sizes = media.DefaultSizes
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if c.Quality <= 0 {
		c.Quality = DefaultQuality
	}
	if c.SlugStrategy == "" {
		c.SlugStrategy = identity.ConflictNumber
	}
	if c.Ignore == nil {
		c.Ignore = DefaultIgnore
	}
	if c.ExcerptLength <= 0 {
		c.ExcerptLength = document.DefaultExcerptLength
	}
	if c.NotePrefix == "" {
		c.NotePrefix = "/"
	}
	if c.MediaPrefix == "" {
		c.MediaPrefix = "/"
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	return c
}

// Validate reports configuration errors. Paths are not checked for
// existence here; an unreadable input surfaces from Process.
func (c Config) Validate() error {
	if strings.TrimSpace(c.InputDir) == "" {
		return fmt.Errorf("%w: input directory is required", types.ErrInvalidConfig)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("%w: output directory is required", types.ErrInvalidConfig)
	}
	in, err := filepath.Abs(c.InputDir)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}
	out, err := filepath.Abs(c.OutputDir)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}
	if in == out {
		return fmt.Errorf("%w: output directory must differ from input directory", types.ErrInvalidConfig)
	}
	if c.Format != "" && !media.EncodableFormat(c.Format) {
		return fmt.Errorf("%w: cannot encode images as %q", types.ErrInvalidConfig, c.Format)
	}
	if c.Quality < 0 || c.Quality > 100 {
		return fmt.Errorf("%w: quality %d outside 1-100", types.ErrInvalidConfig, c.Quality)
	}
	switch c.SlugStrategy {
	case "", identity.ConflictNumber, identity.ConflictHash:
	default:
		return fmt.Errorf("%w: unknown slug strategy %q", types.ErrInvalidConfig, c.SlugStrategy)
	}
	for _, s := range c.Sizes {
		if s.Width <= 0 || s.Suffix == "" {
			return fmt.Errorf("%w: size variant needs a suffix and a positive width", types.ErrInvalidConfig)
		}
	}
	if strings.ContainsAny(c.MediaDir, `\`) || filepath.IsAbs(c.MediaDir) || strings.HasPrefix(c.MediaDir, "..") {
		return fmt.Errorf("%w: media dir %q must be relative to the output directory", types.ErrInvalidConfig, c.MediaDir)
	}
	for _, r := range c.Required {
		if !r.Valid() {
			return fmt.Errorf("%w: unknown capability %q", types.ErrInvalidConfig, r)
		}
	}
	return nil
}
