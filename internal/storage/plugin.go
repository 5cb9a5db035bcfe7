package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/issues"
	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/pkg/types"
)

// Defaults
const (
	DefaultFileName = "repo.db"
	DefaultTopN     = 10
)

const moduleName = "database"

var ErrNotReady = errors.New("database plugin not initialized")

// Config controls what the database plugin writes
type Config struct {
	// FileName inside the output directory; empty selects DefaultFileName
	FileName string
	FullText bool
	// Vector stores embeddings and precomputes nearest neighbors
	Vector bool
	// TopN bounds the neighbors kept per document
	TopN int
}

// DefaultConfig enables every feature
func DefaultConfig() Config {
	return Config{FileName: DefaultFileName, FullText: true, Vector: true, TopN: DefaultTopN}
}

// Plugin is the SQLite database plugin
type Plugin struct {
	cfg      Config
	dir      string
	logger   *zap.Logger
	issues   issues.Recorder
	embedder plugin.TextEmbedder
	ready    atomic.Bool
}

var (
	_ plugin.Database  = (*Plugin)(nil)
	_ plugin.Dependent = (*Plugin)(nil)
)

// NewPlugin creates the database plugin
func NewPlugin(cfg Config) *Plugin {
	if cfg.FileName == "" {
		cfg.FileName = DefaultFileName
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	return &Plugin{cfg: cfg, logger: zap.NewNop()}
}

func (p *Plugin) Name() string { return "sqlite" }

// Dependencies declares the text embedder as optional. It supplies the
// model name and width when the build input does not carry them.
func (p *Plugin) Dependencies() []plugin.Dependency {
	return []plugin.Dependency{{Capability: plugin.CapabilityTextEmbedder, Optional: true}}
}

func (p *Plugin) Initialize(ctx context.Context, pc *plugin.Context) error {
	if pc == nil || pc.OutputDir == "" {
		return fmt.Errorf("%w: database plugin needs an output directory", types.ErrInvalidConfig)
	}
	if err := os.MkdirAll(pc.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	p.dir = pc.OutputDir
	p.logger = pc.LoggerFor(p)
	p.issues = pc.Issues
	if emb, ok := pc.TextEmbedder(); ok {
		p.embedder = emb
	}
	p.ready.Store(true)
	p.logger.Debug("database plugin ready",
		zap.String("driver", DriverName),
		zap.String("build_mode", BuildMode),
		zap.Bool("full_text", p.cfg.FullText),
		zap.Bool("vector", p.cfg.Vector))
	return nil
}

func (p *Plugin) Ready() bool { return p.ready.Load() }

func (p *Plugin) Dispose() error {
	p.ready.Store(false)
	return nil
}

// Path is where Build writes the database
func (p *Plugin) Path() string {
	return filepath.Join(p.dir, p.cfg.FileName)
}

// Build writes the database to a temporary file and renames it into place,
// so an existing database is only replaced by a complete one.
func (p *Plugin) Build(ctx context.Context, in plugin.BuildInput) (*plugin.BuildResult, error) {
	if !p.Ready() {
		return nil, ErrNotReady
	}

	final := p.Path()
	tmp := final + ".tmp"

	snap := Snapshot{
		Documents: in.Documents,
		Media:     in.Media,
		Meta:      map[string]string{MetaRunID: in.RunID},
	}

	if p.cfg.Vector {
		model, dim := in.TextModel, in.TextDimensions
		if model == "" && p.embedder != nil {
			model, dim = p.embedder.Model(), p.embedder.Dimensions()
		}
		snap.TextEmbeddings = p.documentRows(in.Documents, model, dim)
		if len(snap.TextEmbeddings) > 0 {
			snap.Meta[MetaEmbeddingModel] = model
			snap.Meta[MetaEmbeddingDimensions] = strconv.Itoa(dim)
		}
		snap.ImageEmbeddings = p.mediaRows(in.Media, in.ImageModel, in.ImageDimensions)
		if len(snap.ImageEmbeddings) > 0 {
			snap.Meta[MetaImageModel] = in.ImageModel
			snap.Meta[MetaImageDimensions] = strconv.Itoa(in.ImageDimensions)
		}

		neighbors, err := NearestNeighbors(ctx, snap.TextEmbeddings, p.cfg.TopN)
		if err != nil {
			return nil, err
		}
		snap.Similarities = neighbors
	}

	store, err := Create(ctx, tmp, p.cfg.FullText)
	if err != nil {
		return nil, err
	}
	counts, err := store.Write(ctx, snap)
	closeErr := store.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, final)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("failed to build database: %w", err)
	}

	p.logger.Info("database built",
		zap.String("path", final),
		zap.Int("documents", counts.Documents),
		zap.Int("media", counts.Media),
		zap.Int("embeddings", counts.Embeddings),
		zap.Int("similarities", counts.Similarities))

	return &plugin.BuildResult{
		Path:         final,
		Documents:    counts.Documents,
		Media:        counts.Media,
		Embeddings:   counts.Embeddings + counts.MediaEmbeddings,
		Similarities: counts.Similarities,
	}, nil
}

// documentRows keeps one vector per hash, in document order, and drops
// vectors whose width disagrees with dim.
func (p *Plugin) documentRows(docs []types.ProcessedDocument, model string, dim int) []EmbeddingRow {
	seen := make(map[string]bool)
	var rows []EmbeddingRow
	for _, d := range docs {
		if len(d.Embedding) == 0 || seen[d.Hash] {
			continue
		}
		if dim > 0 && len(d.Embedding) != dim {
			p.mismatch(d.OriginalPath, len(d.Embedding), dim)
			continue
		}
		seen[d.Hash] = true
		rows = append(rows, EmbeddingRow{Hash: d.Hash, Vector: d.Embedding, Model: model})
	}
	return rows
}

func (p *Plugin) mediaRows(media []types.ProcessedMedia, model string, dim int) []EmbeddingRow {
	seen := make(map[string]bool)
	var rows []EmbeddingRow
	for _, m := range media {
		h := m.Metadata.Hash
		if len(m.Embedding) == 0 || seen[h] {
			continue
		}
		if dim > 0 && len(m.Embedding) != dim {
			p.mismatch(m.OriginalPath, len(m.Embedding), dim)
			continue
		}
		seen[h] = true
		rows = append(rows, EmbeddingRow{Hash: h, Vector: m.Embedding, Model: model})
	}
	return rows
}

func (p *Plugin) mismatch(path string, got, want int) {
	p.logger.Warn("skipping embedding with wrong dimensions",
		zap.String("path", path), zap.Int("got", got), zap.Int("want", want))
	if p.issues != nil {
		p.issues.Warning(types.CategoryDatabaseError, moduleName, path,
			fmt.Sprintf("embedding has %d dimensions, expected %d", got, want),
			map[string]any{"got": got, "want": want})
	}
}
