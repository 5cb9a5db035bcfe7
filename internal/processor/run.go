package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/document"
	"github.com/repomd/vaultproc/internal/issues"
	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/pkg/types"
)

// run holds the state of one Process call
type run struct {
	p         *Processor
	cfg       Config
	logger    *zap.Logger
	active    plugin.Set
	collector *issues.Collector
	start     time.Time
	result    *Result

	media    []types.ProcessedMedia
	mediaAbs []string
	builders []*document.Builder
	index    *document.Index

	textModel  string
	textDim    int
	imageModel string
	imageDim   int
}

// execute runs the stages in order, checking for cancellation between them
func (r *run) execute(ctx context.Context) error {
	inv, err := r.p.discover(r.collector)
	if err != nil {
		r.collector.Error(types.CategoryFileAccess, moduleName, r.cfg.InputDir, err.Error(), nil)
		_ = r.finish()
		return err
	}
	r.logger.Debug("vault discovered",
		zap.Int("documents", len(inv.documents)),
		zap.Int("media", len(inv.media)))

	stages := []struct {
		name string
		fn   func(context.Context)
	}{
		{"media", func(ctx context.Context) { r.processMedia(ctx, inv.media) }},
		{"documents", func(ctx context.Context) { r.parseDocuments(ctx, inv.documents) }},
		{"slugs", func(context.Context) { r.assignSlugs() }},
		{"references", r.resolveReferences},
		{"text-embeddings", r.embedText},
		{"image-embeddings", r.embedImages},
		{"freeze", func(context.Context) { r.freeze() }},
		{"similarity", r.similarity},
		{"database", r.buildDatabase},
	}
	for _, s := range stages {
		if ctx.Err() != nil {
			return r.cancel(s.name)
		}
		began := time.Now()
		s.fn(ctx)
		r.logger.Debug("stage finished", zap.String("stage", s.name), zap.Duration("took", time.Since(began)))
	}
	if ctx.Err() != nil {
		return r.cancel("output")
	}

	return r.writeOutputs()
}

// cancel records where the run stopped and writes only the issue report
func (r *run) cancel(stage string) error {
	r.result.Cancelled = true
	r.collector.Warning(types.CategoryOther, moduleName, "",
		fmt.Sprintf("run cancelled before stage %s", stage),
		map[string]any{"stage": stage})
	return r.finish()
}

// finish computes the report and writes issues.json
func (r *run) finish() error {
	r.result.Issues = r.collector.Report()
	if err := writeJSON(r.cfg.OutputDir, FileIssues, r.result.Issues); err != nil {
		r.logger.Error("failed to write issue report", zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrOutputWrite, FileIssues, err)
	}
	r.result.Files = append(r.result.Files, FileIssues)
	return nil
}
