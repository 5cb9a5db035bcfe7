package processor

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/repomd/vaultproc/internal/document"
	"github.com/repomd/vaultproc/internal/identity"
	"github.com/repomd/vaultproc/internal/issues"
	"github.com/repomd/vaultproc/internal/media"
	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/pkg/types"
)

// Module names stamped on issues
const (
	moduleMedia      = "media"
	moduleDocument   = "document"
	moduleSlug       = "slug"
	moduleEmbedding  = "embedding"
	moduleSimilarity = "similarity"
	moduleDatabase   = "database"
	moduleOutput     = "output"
)

// forEach runs fn for every index on the worker pool. Work not yet started
// is skipped once ctx is done. Each call gets its own issue buffer; buffers
// are merged in index order afterwards so issue order does not depend on
// scheduling.
func (r *run) forEach(ctx context.Context, n int, fn func(i int, buf *issues.Buffer)) {
	buffers := make([]*issues.Buffer, n)
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			buf := issues.NewBuffer()
			fn(i, buf)
			buffers[i] = buf
			return nil
		})
	}
	_ = g.Wait()
	r.collector.Merge(buffers...)
}

// processMedia hashes and transcodes or copies every media file
func (r *run) processMedia(ctx context.Context, files []file) {
	pipe := media.NewPipeline(media.Config{
		OutputDir: r.cfg.OutputDir,
		Naming:    media.Naming{Dir: r.cfg.MediaDir, HashNaming: r.cfg.HashNaming, Sharding: r.cfg.Sharding},
		Format:    r.cfg.Format,
		Quality:   r.cfg.Quality,
		Sizes:     r.cfg.Sizes,
	}, r.active.ImageProcessor, r.cfg.Cache, r.logger)

	inputs := make([]media.Input, len(files))
	for i, f := range files {
		inputs[i] = media.Input{Path: f.rel, AbsPath: f.abs}
	}
	for _, c := range pipe.Reserve(inputs) {
		r.collector.Warning(types.CategoryMediaProcessingError, moduleMedia, c.Path,
			fmt.Sprintf("output name is taken by %s, writing %s", c.Owner, c.OutputPath),
			map[string]any{"conflictingFile": c.Owner, "outputPath": c.OutputPath})
	}

	outcomes := make([]*media.Outcome, len(files))
	r.forEach(ctx, len(files), func(i int, buf *issues.Buffer) {
		f := files[i]
		out, err := pipe.ProcessFile(ctx, inputs[i])
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			buf.Error(types.CategoryMediaProcessingError, moduleMedia, f.rel, err.Error(), nil)
			return
		}
		outcomes[i] = &out
	})

	st := &r.result.Stats
	st.MediaScanned = len(files)
	for i, o := range outcomes {
		if o == nil {
			if ctx.Err() == nil {
				st.MediaFailed++
			}
			continue
		}
		switch {
		case o.CacheHit:
			st.MediaCached++
		case o.Copied:
			st.MediaCopied++
		default:
			st.MediaProcessed++
		}
		r.media = append(r.media, o.Media)
		r.mediaAbs = append(r.mediaAbs, files[i].abs)
	}
	r.logger.Info("media processed",
		zap.Int("files", len(files)),
		zap.Int("transcoded", st.MediaProcessed),
		zap.Int("cached", st.MediaCached),
		zap.Int("copied", st.MediaCopied),
		zap.Int("failed", st.MediaFailed))
}

// parseDocuments reads and parses every document, then applies the
// publication gate in traversal order
func (r *run) parseDocuments(ctx context.Context, files []file) {
	parsed := make([]*document.Parsed, len(files))
	opts := document.Options{ExcerptLength: r.cfg.ExcerptLength}

	r.forEach(ctx, len(files), func(i int, buf *issues.Buffer) {
		f := files[i]
		info, err := os.Stat(f.abs)
		if err != nil {
			buf.Error(types.CategoryFileAccess, moduleDocument, f.rel, fmt.Sprintf("cannot stat: %v", err), nil)
			return
		}
		raw, err := os.ReadFile(f.abs)
		if err != nil {
			buf.Error(types.CategoryFileAccess, moduleDocument, f.rel, fmt.Sprintf("cannot read: %v", err), nil)
			return
		}
		doc, err := document.Parse(document.Source{
			Path:    f.rel,
			Raw:     raw,
			Hash:    identity.HashBytes(raw),
			ModTime: info.ModTime(),
		}, opts)
		if err != nil {
			buf.Error(types.CategoryParseError, moduleDocument, f.rel, err.Error(), nil)
			return
		}
		if doc.FrontmatterErr != nil {
			buf.Warning(types.CategoryParseError, moduleDocument, f.rel,
				fmt.Sprintf("frontmatter ignored: %v", doc.FrontmatterErr),
				map[string]any{"format": string(doc.FrontmatterFormat)})
		}
		if len(doc.NonFinite) > 0 {
			buf.Warning(types.CategoryParseError, moduleDocument, f.rel,
				"frontmatter numbers that are not finite were stored as strings",
				map[string]any{"keys": doc.NonFinite})
		}
		parsed[i] = doc
	})

	st := &r.result.Stats
	st.DocumentsScanned = len(files)
	for _, doc := range parsed {
		switch {
		case doc == nil:
			if ctx.Err() == nil {
				st.DocumentsFailed++
			}
		case !doc.Published && !r.cfg.IncludeUnpublished:
			st.DocumentsExcluded++
			r.logger.Debug("unpublished document excluded", zap.String("path", doc.Path))
		default:
			r.builders = append(r.builders, document.NewBuilder(doc))
		}
	}
	st.DocumentsIncluded = len(r.builders)
	r.logger.Info("documents parsed",
		zap.Int("scanned", st.DocumentsScanned),
		zap.Int("included", st.DocumentsIncluded),
		zap.Int("excluded", st.DocumentsExcluded),
		zap.Int("failed", st.DocumentsFailed))
}

// assignSlugs reserves slugs in traversal order and indexes every document
// and media file for reference resolution
func (r *run) assignSlugs() {
	slugs := identity.NewSlugManager(identity.SlugConfig{
		Strategy:          r.cfg.SlugStrategy,
		NamespaceByFolder: r.cfg.NamespaceByFolder,
	})

	r.index = document.NewIndex()
	for i := range r.media {
		r.index.AddMedia(&r.media[i])
	}

	for _, b := range r.builders {
		doc := b.Parsed()
		res := slugs.Reserve(doc.Path, identity.SlugOptions{
			FileName:        doc.FileName,
			ParentFolder:    path.Dir(doc.Path),
			FrontmatterSlug: doc.FrontmatterSlug(),
			ContentHash:     doc.Hash,
		})
		b.SetSlug(res.Slug)
		if res.WasModified {
			r.collector.Warning(types.CategorySlugConflict, moduleSlug, doc.Path,
				fmt.Sprintf("slug %q is taken, using %q", res.Candidate, res.Slug),
				map[string]any{
					"candidate":        res.Candidate,
					"slug":             res.Slug,
					"conflictingFiles": res.ConflictingFiles,
				})
		}
		r.index.AddDocument(document.Target{Path: doc.Path, Hash: doc.Hash, Slug: res.Slug})
	}
}

// resolveReferences resolves covers, links and images, then renders HTML
func (r *run) resolveReferences(ctx context.Context) {
	opts := document.RewriteOptions{NotePrefix: r.cfg.NotePrefix, MediaPrefix: r.cfg.MediaPrefix}

	r.forEach(ctx, len(r.builders), func(i int, buf *issues.Buffer) {
		b := r.builders[i]
		doc := b.Parsed()

		cover := document.ResolveCover(doc.Frontmatter, doc.Path, r.index)
		if cover != nil && cover.Status == types.CoverNotFound {
			buf.Warning(types.CategoryMissingMedia, moduleDocument, doc.Path, cover.Message,
				map[string]any{"field": cover.Field, "value": cover.Original})
		}
		b.SetCover(cover)

		refs := document.Rewrite(doc.Tree, doc.Path, doc.Hash, r.index, opts)
		for _, dest := range refs.Broken {
			buf.Warning(types.CategoryBrokenLink, moduleDocument, doc.Path,
				fmt.Sprintf("link target %q not found", dest), map[string]any{"target": dest})
		}
		for _, dest := range refs.Missing {
			buf.Warning(types.CategoryMissingMedia, moduleDocument, doc.Path,
				fmt.Sprintf("image %q not found", dest), map[string]any{"target": dest})
		}
		b.SetLinks(refs.Links)

		html, err := doc.Tree.Render()
		if err != nil {
			buf.Error(types.CategoryParseError, moduleDocument, doc.Path, fmt.Sprintf("render failed: %v", err), nil)
		}
		b.SetHTML(html)
	})
}

// embedText embeds every included document in one batch call. Cached
// vectors are reused; identical content is embedded once. A failed batch
// leaves the whole run without text embeddings.
func (r *run) embedText(ctx context.Context) {
	emb := r.active.TextEmbedder
	if emb == nil || !emb.Ready() || emb.Dimensions() <= 0 || len(r.builders) == 0 {
		return
	}
	dim := emb.Dimensions()

	vecs := make(map[string][]float32, len(r.builders))
	pending := make(map[string]bool)
	var hashes, texts []string
	cached := 0
	for _, b := range r.builders {
		h := b.Hash()
		if _, ok := vecs[h]; ok || pending[h] {
			continue
		}
		if v, ok := r.cfg.Cache.LookupTextEmbedding(h); ok && len(v) == dim {
			vecs[h] = v
			cached++
			continue
		}
		pending[h] = true
		hashes = append(hashes, h)
		texts = append(texts, b.EmbeddingText())
	}

	if len(texts) > 0 {
		out, err := emb.BatchEmbed(ctx, texts)
		if err == nil {
			err = checkVectors(out, len(texts), dim)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.collector.Error(types.CategoryEmbeddingError, moduleEmbedding, "",
				fmt.Sprintf("text embedding failed for %d documents: %v", len(texts), err),
				map[string]any{"plugin": emb.Name(), "documents": len(texts)})
			return
		}
		for k, h := range hashes {
			vecs[h] = out[k]
		}
	}

	for _, b := range r.builders {
		b.SetEmbedding(vecs[b.Hash()])
	}
	r.textModel, r.textDim = emb.Model(), dim
	r.result.Stats.TextEmbeddingsGenerated = len(texts)
	r.result.Stats.TextEmbeddingsCached = cached
	r.logger.Info("text embeddings ready",
		zap.String("model", r.textModel),
		zap.Int("generated", len(texts)),
		zap.Int("cached", cached))
}

func checkVectors(out [][]float32, want, dim int) error {
	if len(out) != want {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(out), want)
	}
	for _, v := range out {
		if len(v) != dim {
			return fmt.Errorf("%w: got %d, want %d", types.ErrDimensionMismatch, len(v), dim)
		}
	}
	return nil
}

// embedImages embeds each transcoded or copied image from its original file.
// A failure leaves that one file without a vector.
func (r *run) embedImages(ctx context.Context) {
	emb := r.active.ImageEmbedder
	if emb == nil || !emb.Ready() || emb.Dimensions() <= 0 {
		return
	}
	dim := emb.Dimensions()

	var generated, cached atomic.Int32
	r.forEach(ctx, len(r.media), func(i int, buf *issues.Buffer) {
		m := &r.media[i]
		if m.Type != types.MediaTypeImage {
			return
		}
		if v, ok := r.cfg.Cache.LookupImageEmbedding(m.Metadata.Hash); ok && len(v) == dim {
			m.Embedding = v
			cached.Add(1)
			return
		}
		v, err := emb.Embed(ctx, r.mediaAbs[i])
		if err == nil && len(v) != dim {
			err = fmt.Errorf("%w: got %d, want %d", types.ErrDimensionMismatch, len(v), dim)
		}
		if err != nil {
			if ctx.Err() == nil {
				buf.Warning(types.CategoryEmbeddingError, moduleEmbedding, m.OriginalPath,
					fmt.Sprintf("image embedding failed: %v", err),
					map[string]any{"plugin": emb.Name()})
			}
			return
		}
		m.Embedding = v
		generated.Add(1)
	})

	r.imageModel, r.imageDim = emb.Model(), dim
	r.result.Stats.ImageEmbeddingsGenerated = int(generated.Load())
	r.result.Stats.ImageEmbeddingsCached = int(cached.Load())
}

// freeze turns builders into final records and fills the lookup maps
func (r *run) freeze() {
	processedAt := time.Now().UTC()
	res := r.result
	for _, b := range r.builders {
		doc := b.Freeze(processedAt)
		res.Documents = append(res.Documents, doc)
		res.SlugMap[doc.Slug] = doc.Hash
		res.PathMap[doc.OriginalPath] = doc.Hash
	}
	res.Media = append(res.Media, r.media...)
	for _, m := range r.media {
		res.MediaPathMap[m.OriginalPath] = m.Metadata.Hash
	}
}

func (r *run) similarity(ctx context.Context) {
	sim := r.active.Similarity
	if sim == nil || !sim.Ready() {
		return
	}
	m, err := sim.GenerateSimilarityMap(ctx, r.result.Documents)
	if err != nil {
		if ctx.Err() == nil {
			r.collector.Error(types.CategoryPluginError, moduleSimilarity, "",
				fmt.Sprintf("similarity failed: %v", err), map[string]any{"plugin": sim.Name()})
		}
		return
	}
	r.result.Similarity = m
}

func (r *run) buildDatabase(ctx context.Context) {
	db := r.active.Database
	if db == nil || !db.Ready() {
		return
	}
	res, err := db.Build(ctx, plugin.BuildInput{
		RunID:           r.result.RunID,
		Documents:       r.result.Documents,
		Media:           r.result.Media,
		TextModel:       r.textModel,
		TextDimensions:  r.textDim,
		ImageModel:      r.imageModel,
		ImageDimensions: r.imageDim,
	})
	if err != nil {
		if ctx.Err() == nil {
			r.collector.Error(types.CategoryDatabaseError, moduleDatabase, "",
				fmt.Sprintf("database build failed: %v", err), map[string]any{"plugin": db.Name()})
		}
		return
	}
	r.result.Database = res
	if rel, err := filepath.Rel(r.cfg.OutputDir, res.Path); err == nil && res.Path != "" {
		r.result.Files = append(r.result.Files, filepath.ToSlash(rel))
	}
}
