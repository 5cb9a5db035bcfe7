// Package cache rebuilds a CacheContext from the output of a previous run.
//
// Media entries come from media.json and are kept only while their primary
// output and every size variant still exist on disk. Text embeddings come
// from posts.json and image embeddings from media.json; when repo.db is
// present its embedding tables fill in hashes the JSON files lack.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/identity"
	"github.com/repomd/vaultproc/internal/storage"
	"github.com/repomd/vaultproc/pkg/types"
)

// Files read from the previous output directory
const (
	MediaFile = "media.json"
	PostsFile = "posts.json"
)

// ErrCorrupt wraps a previous output file that exists but cannot be decoded
var ErrCorrupt = errors.New("corrupt cache source")

// Options tunes Load
type Options struct {
	// DatabaseFile inside the directory; empty selects storage.DefaultFileName
	DatabaseFile string
	// SkipDatabase ignores repo.db even when present
	SkipDatabase bool
	Logger       *zap.Logger
}

// Stats counts what Load recovered. Rejected counts JSON entries whose
// hash is not a content hash.
type Stats struct {
	Media           int
	StaleMedia      int
	Rejected        int
	TextEmbeddings  int
	ImageEmbeddings int
}

// Load builds a CacheContext from dir. A missing directory or missing files
// yield an empty context, not an error.
func Load(ctx context.Context, dir string, opts Options) (*types.CacheContext, Stats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cc := &types.CacheContext{
		Media:           make(map[string]types.CachedMediaMetadata),
		TextEmbeddings:  make(map[string][]float32),
		ImageEmbeddings: make(map[string][]float32),
	}
	var st Stats

	var media []types.ProcessedMedia
	if err := readJSON(filepath.Join(dir, MediaFile), &media); err != nil {
		return nil, st, err
	}
	for _, m := range media {
		h := m.Metadata.Hash
		if !identity.ValidHash(h) {
			st.Rejected++
			continue
		}
		if len(m.Embedding) > 0 {
			cc.ImageEmbeddings[h] = m.Embedding
		}
		if !m.Transcoded() {
			continue
		}
		if !outputsExist(dir, m) {
			st.StaleMedia++
			logger.Debug("cached media output missing", zap.String("path", m.OriginalPath))
			continue
		}
		cc.Media[h] = types.CachedMediaMetadata{
			Width:      m.Metadata.Width,
			Height:     m.Metadata.Height,
			Format:     m.Metadata.Format,
			Size:       m.Metadata.Size,
			OutputPath: m.OutputPath,
			Sizes:      m.Sizes,
		}
	}

	var posts []types.ProcessedDocument
	if err := readJSON(filepath.Join(dir, PostsFile), &posts); err != nil {
		return nil, st, err
	}
	for _, d := range posts {
		if !identity.ValidHash(d.Hash) {
			st.Rejected++
			continue
		}
		if len(d.Embedding) > 0 {
			cc.TextEmbeddings[d.Hash] = d.Embedding
		}
	}

	if !opts.SkipDatabase {
		name := opts.DatabaseFile
		if name == "" {
			name = storage.DefaultFileName
		}
		if err := fillFromDatabase(ctx, filepath.Join(dir, name), cc); err != nil {
			// the JSON files alone are a usable cache
			logger.Warn("ignoring previous database", zap.Error(err))
		}
	}

	st.Media = len(cc.Media)
	st.TextEmbeddings = len(cc.TextEmbeddings)
	st.ImageEmbeddings = len(cc.ImageEmbeddings)
	logger.Info("cache loaded",
		zap.String("dir", dir),
		zap.Int("media", st.Media),
		zap.Int("stale_media", st.StaleMedia),
		zap.Int("rejected", st.Rejected),
		zap.Int("text_embeddings", st.TextEmbeddings),
		zap.Int("image_embeddings", st.ImageEmbeddings))
	return cc, st, nil
}

func fillFromDatabase(ctx context.Context, path string, cc *types.CacheContext) error {
	store, err := storage.Open(ctx, path)
	if errors.Is(err, storage.ErrNoDatabase) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	text, err := store.Embeddings(ctx)
	if err != nil {
		return err
	}
	for _, r := range text {
		if !identity.ValidHash(r.Hash) {
			continue
		}
		if _, ok := cc.TextEmbeddings[r.Hash]; !ok {
			cc.TextEmbeddings[r.Hash] = r.Vector
		}
	}

	images, err := store.MediaEmbeddings(ctx)
	if err != nil {
		return err
	}
	for _, r := range images {
		if !identity.ValidHash(r.Hash) {
			continue
		}
		if _, ok := cc.ImageEmbeddings[r.Hash]; !ok {
			cc.ImageEmbeddings[r.Hash] = r.Vector
		}
	}
	return nil
}

func outputsExist(dir string, m types.ProcessedMedia) bool {
	paths := []string{m.OutputPath}
	for _, s := range m.Sizes {
		paths = append(paths, s.OutputPath)
	}
	for _, p := range paths {
		if p == "" {
			return false
		}
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p)))
		if err != nil || !info.Mode().IsRegular() {
			return false
		}
	}
	return true
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	return nil
}
