// Package config loads the vaultproc.toml file used by the command line
// tools and turns it into a processor configuration and plugin set.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/repomd/vaultproc/internal/embedder"
	"github.com/repomd/vaultproc/internal/identity"
	"github.com/repomd/vaultproc/internal/imaging"
	"github.com/repomd/vaultproc/internal/media"
	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/internal/processor"
	"github.com/repomd/vaultproc/internal/similarity"
	"github.com/repomd/vaultproc/internal/storage"
	"github.com/repomd/vaultproc/pkg/types"
)

// DefaultFileName is looked up in the working directory when no path is given
const DefaultFileName = "vaultproc.toml"

// ProviderNone disables text embeddings
const ProviderNone = "none"

// Environment overrides, applied after the file
const (
	EnvInput      = "VAULTPROC_INPUT"
	EnvOutput     = "VAULTPROC_OUTPUT"
	EnvWorkers    = "VAULTPROC_WORKERS"
	EnvDebug      = "VAULTPROC_DEBUG"
	EnvDrafts     = "VAULTPROC_INCLUDE_DRAFTS"
	EnvCacheDir   = "VAULTPROC_CACHE_DIR"
	EnvHashNaming = "VAULTPROC_HASH_NAMING"
)

// Config is the file layout
type Config struct {
	Input  string `toml:"input"`
	Output string `toml:"output"`
	// CacheDir holds a previous run's output; empty reuses Output
	CacheDir string `toml:"cache_dir"`
	NoCache  bool   `toml:"no_cache"`
	Workers  int    `toml:"workers"`
	Debug    int    `toml:"debug"`

	Documents  DocumentsConfig  `toml:"documents"`
	Media      MediaConfig      `toml:"media"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Plugins    PluginsConfig    `toml:"plugins"`
	Similarity SimilarityConfig `toml:"similarity"`
	Database   DatabaseConfig   `toml:"database"`
}

type DocumentsConfig struct {
	SlugStrategy      string   `toml:"slug_strategy"`
	NamespaceByFolder bool     `toml:"namespace_by_folder"`
	IncludeDrafts     bool     `toml:"include_drafts"`
	ExcerptLength     int      `toml:"excerpt_length"`
	NotePrefix        string   `toml:"note_prefix"`
	MediaPrefix       string   `toml:"media_prefix"`
	Ignore            []string `toml:"ignore"`
}

type MediaConfig struct {
	Dir        string           `toml:"dir"`
	Format     string           `toml:"format"`
	Quality    int              `toml:"quality"`
	HashNaming bool             `toml:"hash_naming"`
	Sharding   bool             `toml:"sharding"`
	Sizes      []media.SizeSpec `toml:"sizes"`
}

// EmbeddingConfig selects the text embedder. An empty provider follows the
// environment: VAULTPROC_EMBEDDING_PROVIDER, then API keys, then local.
type EmbeddingConfig struct {
	Provider          string  `toml:"provider"`
	Model             string  `toml:"model"`
	BaseURL           string  `toml:"base_url"`
	Dimensions        int     `toml:"dimensions"`
	BatchSize         int     `toml:"batch_size"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	CacheSize         int     `toml:"cache_size"`
}

// PluginsConfig switches plugins on and off. Pointers distinguish unset
// from false so that unset keys keep the defaults.
type PluginsConfig struct {
	Images          *bool    `toml:"images"`
	ImageEmbeddings *bool    `toml:"image_embeddings"`
	Similarity      *bool    `toml:"similarity"`
	Database        *bool    `toml:"database"`
	Required        []string `toml:"required"`
}

// SimilarityConfig tunes the similarity plugin. FillMissing lets it embed
// documents the embedding stage left without a vector.
type SimilarityConfig struct {
	TopN        int     `toml:"top_n"`
	MinScore    float64 `toml:"min_score"`
	FillMissing bool    `toml:"fill_missing"`
}

type DatabaseConfig struct {
	File     string `toml:"file"`
	FullText *bool  `toml:"full_text"`
	Vector   *bool  `toml:"vector"`
	TopN     int    `toml:"top_n"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{Output: "dist"}
}

// Load reads path, falling back to DefaultFileName when path is empty.
// A missing default file yields Default; a missing explicit file is an
// error. .env is loaded first and environment overrides are applied last.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidConfig, path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvInput); v != "" {
		c.Input = v
	}
	if v := os.Getenv(EnvOutput); v != "" {
		c.Output = v
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		c.CacheDir = v
	}
	ints := []struct {
		env string
		dst *int
	}{
		{EnvWorkers, &c.Workers},
		{EnvDebug, &c.Debug},
	}
	for _, i := range ints {
		raw := os.Getenv(i.env)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", types.ErrInvalidConfig, i.env, raw)
		}
		*i.dst = n
	}
	bools := []struct {
		env string
		dst *bool
	}{
		{EnvDrafts, &c.Documents.IncludeDrafts},
		{EnvHashNaming, &c.Media.HashNaming},
	}
	for _, b := range bools {
		raw := os.Getenv(b.env)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", types.ErrInvalidConfig, b.env, raw)
		}
		*b.dst = v
	}
	return nil
}

// CachePath is the directory a previous run's results are read from, or
// empty when caching is off
func (c *Config) CachePath() string {
	if c.NoCache {
		return ""
	}
	if c.CacheDir != "" {
		return c.CacheDir
	}
	return c.Output
}

// Processor maps the file onto a processor configuration. Logger and Cache
// are left for the caller.
func (c *Config) Processor() (processor.Config, error) {
	required := make([]plugin.Capability, 0, len(c.Plugins.Required))
	for _, r := range c.Plugins.Required {
		required = append(required, plugin.Capability(strings.TrimSpace(r)))
	}
	pc := processor.Config{
		InputDir:           c.Input,
		OutputDir:          c.Output,
		MediaDir:           c.Media.Dir,
		Sizes:              c.Media.Sizes,
		Format:             c.Media.Format,
		Quality:            c.Media.Quality,
		HashNaming:         c.Media.HashNaming,
		Sharding:           c.Media.Sharding,
		SlugStrategy:       identity.ConflictStrategy(c.Documents.SlugStrategy),
		NamespaceByFolder:  c.Documents.NamespaceByFolder,
		Ignore:             c.Documents.Ignore,
		IncludeUnpublished: c.Documents.IncludeDrafts,
		ExcerptLength:      c.Documents.ExcerptLength,
		NotePrefix:         c.Documents.NotePrefix,
		MediaPrefix:        c.Documents.MediaPrefix,
		Required:           required,
		Workers:            c.Workers,
		DebugLevel:         c.Debug,
	}
	if err := pc.Validate(); err != nil {
		return processor.Config{}, err
	}
	return pc, nil
}

// PluginSet builds the plugin set. Every plugin is on unless switched off;
// the text embedder follows the embedding section.
func (c *Config) PluginSet() (plugin.Set, error) {
	var set plugin.Set
	if enabled(c.Plugins.Images) {
		set.ImageProcessor = imaging.New()
	}
	if enabled(c.Plugins.ImageEmbeddings) {
		set.ImageEmbedder = embedder.NewLocalImage()
	}

	emb, err := c.TextEmbedder()
	if err != nil {
		return plugin.Set{}, err
	}
	set.TextEmbedder = emb

	if enabled(c.Plugins.Similarity) {
		set.Similarity = similarity.New(similarity.Config{
			TopN:        c.Similarity.TopN,
			MinScore:    c.Similarity.MinScore,
			FillMissing: c.Similarity.FillMissing,
			Workers:     c.Workers,
		})
	}
	if enabled(c.Plugins.Database) {
		db := storage.DefaultConfig()
		if c.Database.File != "" {
			db.FileName = c.Database.File
		}
		db.FullText = enabled(c.Database.FullText)
		db.Vector = enabled(c.Database.Vector)
		if c.Database.TopN > 0 {
			db.TopN = c.Database.TopN
		}
		set.Database = storage.NewPlugin(db)
	}
	return set, nil
}

// TextEmbedder builds the configured text embedder, or nil when the
// provider is "none". The same settings serve builds and queries, so
// query vectors match the stored ones.
func (c *Config) TextEmbedder() (plugin.TextEmbedder, error) {
	if strings.EqualFold(c.Embedding.Provider, ProviderNone) {
		return nil, nil
	}
	provider := c.Embedding.Provider
	if provider == "" {
		provider = embedder.DetectProvider()
	}
	emb, err := embedder.New(embedder.Config{
		Provider:          provider,
		Model:             c.Embedding.Model,
		BaseURL:           c.Embedding.BaseURL,
		Dimensions:        c.Embedding.Dimensions,
		BatchSize:         c.Embedding.BatchSize,
		RequestsPerSecond: c.Embedding.RequestsPerSecond,
		CacheSize:         c.Embedding.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}
	return emb, nil
}

// DatabasePath is where the database plugin writes
func (c *Config) DatabasePath() string {
	name := c.Database.File
	if name == "" {
		name = storage.DefaultFileName
	}
	return filepath.Join(c.Output, name)
}

func enabled(b *bool) bool { return b == nil || *b }
