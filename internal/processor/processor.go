// Package processor turns a vault directory into build artifacts. A run is
// a linear pipeline: media, documents, slugs and references, embeddings,
// similarity, database, output files. Per-file work inside a stage runs on
// a bounded worker pool; anything that decides slugs or issue order runs in
// lexicographic path order so repeated runs agree.
package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/issues"
	"github.com/repomd/vaultproc/internal/logging"
	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/pkg/types"
)

const moduleName = "processor"

var (
	ErrNotInitialized = errors.New("processor not initialized")
	ErrBusy           = errors.New("processor is already running")
	ErrOutputWrite    = errors.New("failed to write output")
)

// Stats counts what a run did
type Stats struct {
	DocumentsScanned  int `json:"documentsScanned"`
	DocumentsIncluded int `json:"documentsIncluded"`
	DocumentsExcluded int `json:"documentsExcluded"`
	DocumentsFailed   int `json:"documentsFailed"`

	MediaScanned   int `json:"mediaScanned"`
	MediaProcessed int `json:"mediaProcessed"`
	MediaCached    int `json:"mediaCached"`
	MediaCopied    int `json:"mediaCopied"`
	MediaFailed    int `json:"mediaFailed"`

	TextEmbeddingsGenerated  int `json:"textEmbeddingsGenerated"`
	TextEmbeddingsCached     int `json:"textEmbeddingsCached"`
	ImageEmbeddingsGenerated int `json:"imageEmbeddingsGenerated"`
	ImageEmbeddingsCached    int `json:"imageEmbeddingsCached"`

	Duration time.Duration `json:"duration"`
}

// Result is everything a run produced. It is returned even when the run
// fails or is cancelled, carrying whatever was finished.
type Result struct {
	RunID        string                    `json:"runId"`
	Documents    []types.ProcessedDocument `json:"-"`
	Media        []types.ProcessedMedia    `json:"-"`
	SlugMap      map[string]string         `json:"-"`
	PathMap      map[string]string         `json:"-"`
	MediaPathMap map[string]string         `json:"-"`
	Similarity   *types.SimilarityMap      `json:"-"`
	Database     *plugin.BuildResult       `json:"database,omitempty"`
	Issues       *types.IssueReport        `json:"-"`
	Stats        Stats                     `json:"stats"`
	// Files lists the output files written, relative to the output directory
	Files     []string `json:"files"`
	Cancelled bool     `json:"cancelled"`
}

// Processor orchestrates runs over one vault with one set of plugins
type Processor struct {
	cfg     Config
	logger  *zap.Logger
	plugins plugin.Set
	pc      *plugin.Context
	manager *plugin.Manager
	issues  *recorder
	lock    runLock

	mu          sync.Mutex
	initialized bool
	initIssues  []types.ProcessingIssue
}

// New creates a processor. Plugins are not touched until Initialize.
func New(cfg Config, plugins plugin.Set) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	logger := cfg.Logger
	if logger == nil {
		l, err := logging.New(cfg.DebugLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
	}

	rec := &recorder{}
	rec.set(issues.NewCollector("", logger))
	pc := plugin.NewContext(cfg.OutputDir, logger, rec)

	return &Processor{
		cfg:     cfg,
		logger:  logger.Named(moduleName),
		plugins: plugins,
		pc:      pc,
		manager: plugin.NewManager(plugins, cfg.Required, pc),
		issues:  rec,
	}, nil
}

// Initialize creates the output directory and initializes every plugin in
// dependency order. Issues raised here are carried into every run's report.
func (p *Processor) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	collector := issues.NewCollector("", p.logger)
	p.issues.set(collector)
	if err := p.manager.Initialize(ctx); err != nil {
		return err
	}
	p.initIssues = collector.Issues()
	p.initialized = true

	active := p.manager.Active()
	p.logger.Info("processor initialized",
		zap.Int("plugins_configured", p.plugins.Len()),
		zap.Int("plugins_active", active.Len()),
		zap.Int("workers", p.cfg.Workers))
	return nil
}

// Active returns the plugins that initialized successfully
func (p *Processor) Active() plugin.Set {
	return p.manager.Active()
}

// Close disposes plugins in reverse initialization order
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = false
	return p.manager.Dispose()
}

// Process runs the pipeline once. Per-file and optional-stage failures are
// issues in the result, not errors. An error is returned only for an
// unreadable input directory or failed output writes, and the result is
// non-nil even then. Cancellation stops work between files and returns the
// partial result with Cancelled set.
func (p *Processor) Process(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	ready := p.initialized
	p.mu.Unlock()
	if !ready {
		return nil, ErrNotInitialized
	}
	if !p.lock.TryAcquire() {
		return nil, ErrBusy
	}
	defer p.lock.Release()

	r := p.newRun()
	p.issues.set(r.collector)
	p.logger.Info("run started", zap.String("run_id", r.result.RunID), zap.String("input", p.cfg.InputDir))

	err := r.execute(ctx)
	r.result.Stats.Duration = time.Since(r.start)

	switch {
	case r.result.Cancelled:
		p.logger.Warn("run cancelled", zap.String("run_id", r.result.RunID), zap.Error(ctx.Err()))
	case err != nil:
		p.logger.Error("run failed", zap.String("run_id", r.result.RunID), zap.Error(err))
	default:
		p.logger.Info("run finished",
			zap.String("run_id", r.result.RunID),
			zap.Int("documents", len(r.result.Documents)),
			zap.Int("media", len(r.result.Media)),
			zap.Int("issues", r.result.Issues.Summary.Total),
			zap.Duration("duration", r.result.Stats.Duration))
	}
	return r.result, err
}

func (p *Processor) newRun() *run {
	runID := uuid.NewString()
	collector := issues.NewCollector(runID, p.logger)
	for _, issue := range p.initIssues {
		collector.Add(issue)
	}
	return &run{
		p:         p,
		cfg:       p.cfg,
		logger:    p.logger.With(zap.String("run_id", runID)),
		active:    p.manager.Active(),
		collector: collector,
		start:     time.Now(),
		result: &Result{
			RunID:        runID,
			Documents:    []types.ProcessedDocument{},
			Media:        []types.ProcessedMedia{},
			SlugMap:      map[string]string{},
			PathMap:      map[string]string{},
			MediaPathMap: map[string]string{},
			Files:        []string{},
		},
	}
}
