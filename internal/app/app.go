// Package app composes configuration, cache, plugins and the processor into
// the operations the command line and the MCP server expose.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/cache"
	"github.com/repomd/vaultproc/internal/config"
	"github.com/repomd/vaultproc/internal/processor"
	"github.com/repomd/vaultproc/internal/searcher"
	"github.com/repomd/vaultproc/internal/storage"
)

// Build runs one processing pass described by cfg. The previous output,
// when present, seeds the cache. The result is non-nil whenever the
// processor ran, even if err is set.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*processor.Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pc, err := cfg.Processor()
	if err != nil {
		return nil, err
	}
	pc.Logger = logger

	if dir := cfg.CachePath(); dir != "" {
		cc, _, err := cache.Load(ctx, dir, cache.Options{DatabaseFile: cfg.Database.File, Logger: logger.Named("cache")})
		if err != nil {
			logger.Warn("previous output unusable, building without cache", zap.Error(err))
		} else {
			pc.Cache = cc
		}
	}

	set, err := cfg.PluginSet()
	if err != nil {
		return nil, err
	}

	p, err := processor.New(pc, set)
	if err != nil {
		return nil, err
	}
	if err := p.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize plugins: %w", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("failed to dispose plugins", zap.Error(err))
		}
	}()

	return p.Process(ctx)
}

// Index is a built database opened for queries
type Index struct {
	Store    *storage.Store
	Searcher *searcher.Searcher
}

// Close releases the database
func (i *Index) Close() error {
	return i.Store.Close()
}

// Open opens the database at path with a query embedder configured like the
// build. A missing or failing embedder leaves keyword search available.
func Open(ctx context.Context, cfg *config.Config, path string, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = cfg.DatabasePath()
	}

	store, err := storage.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	var emb searcher.Embedder
	te, err := cfg.TextEmbedder()
	switch {
	case err != nil:
		logger.Warn("query embedder unavailable, vector search disabled", zap.Error(err))
	case te != nil:
		if err := te.Initialize(ctx, nil); err != nil {
			logger.Warn("query embedder failed to start, vector search disabled", zap.Error(err))
		} else {
			emb = te
		}
	}
	return &Index{Store: store, Searcher: searcher.New(store, emb)}, nil
}

// IsMissingDatabase reports whether err means no database has been built yet
func IsMissingDatabase(err error) bool {
	return errors.Is(err, storage.ErrNoDatabase)
}
