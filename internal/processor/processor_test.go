package processor

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/embedder"
	"github.com/repomd/vaultproc/internal/imaging"
	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/internal/plugin/plugintest"
	"github.com/repomd/vaultproc/internal/similarity"
	"github.com/repomd/vaultproc/internal/storage"
	"github.com/repomd/vaultproc/pkg/types"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writePNG(t *testing.T, root, rel string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 80, A: 255})
		}
	}
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// newVault lays out a small vault:
//
//	a/index.md, b/index.md   same candidate slug, same content
//	draft.md                 unpublished
//	posts/hello.md           cover and image next to it, a wiki link, a broken link
//	posts/world.md
//	posts/banner.png         400px wide
//	img/photo.png            100px wide
//	broken.png               not an image
//	notes.txt                copied verbatim
//	.hidden/secret.md        ignored
func newVault(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "a/index.md", "# Index\n\nSection landing page.\n")
	writeFile(t, root, "b/index.md", "# Index\n\nSection landing page.\n")
	writeFile(t, root, "draft.md", "---\ntitle: Draft\ndraft: true\n---\nNot yet.\n")
	writeFile(t, root, "posts/hello.md", "---\ntitle: Hello\ncover: banner.png\n---\n"+
		"Hello there, see [[world]] and [gone](missing.md).\n\n![Banner](banner.png)\n")
	writeFile(t, root, "posts/world.md", "# World\n\nThe whole world of sourdough bread.\n")
	writePNG(t, root, "posts/banner.png", 400, 300)
	writePNG(t, root, "img/photo.png", 100, 100)
	writeFile(t, root, "broken.png", "this is not a png")
	writeFile(t, root, "notes.txt", "plain notes")
	writeFile(t, root, ".hidden/secret.md", "# Secret\n")
	return root
}

func testConfig(vault, out string) Config {
	return Config{
		InputDir:  vault,
		OutputDir: out,
		Logger:    zap.NewNop(),
		Workers:   4,
	}
}

func runProcessor(t *testing.T, cfg Config, set plugin.Set) (*Result, error) {
	t.Helper()
	p, err := New(cfg, set)
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background()))
	t.Cleanup(func() { _ = p.Close() })
	return p.Process(context.Background())
}

func docBySlug(t *testing.T, res *Result, slug string) types.ProcessedDocument {
	t.Helper()
	for _, d := range res.Documents {
		if d.Slug == slug {
			return d
		}
	}
	t.Fatalf("no document with slug %q", slug)
	return types.ProcessedDocument{}
}

func mediaByPath(t *testing.T, res *Result, path string) types.ProcessedMedia {
	t.Helper()
	for _, m := range res.Media {
		if m.OriginalPath == path {
			return m
		}
	}
	t.Fatalf("no media at %q", path)
	return types.ProcessedMedia{}
}

func issuesOf(res *Result, category types.Category) []types.ProcessingIssue {
	var out []types.ProcessingIssue
	for _, i := range res.Issues.Issues {
		if i.Category == category {
			out = append(out, i)
		}
	}
	return out
}

func TestProcess(t *testing.T) {
	vault, out := newVault(t), t.TempDir()
	res, err := runProcessor(t, testConfig(vault, out), plugin.Set{ImageProcessor: imaging.New()})
	require.NoError(t, err)
	require.False(t, res.Cancelled)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, res.RunID, res.Issues.RunID)

	t.Run("documents in traversal order", func(t *testing.T) {
		var paths []string
		for _, d := range res.Documents {
			paths = append(paths, d.OriginalPath)
		}
		assert.Equal(t, []string{"a/index.md", "b/index.md", "posts/hello.md", "posts/world.md"}, paths)
		assert.Equal(t, 5, res.Stats.DocumentsScanned)
		assert.Equal(t, 4, res.Stats.DocumentsIncluded)
		assert.Equal(t, 1, res.Stats.DocumentsExcluded)
	})

	t.Run("unpublished document excluded without an issue", func(t *testing.T) {
		_, ok := res.PathMap["draft.md"]
		assert.False(t, ok)
		for _, i := range res.Issues.Issues {
			assert.NotEqual(t, "draft.md", i.FilePath)
		}
	})

	t.Run("slug collision", func(t *testing.T) {
		assert.Equal(t, "index", docBySlug(t, res, "index").Slug)
		assert.Equal(t, "b/index.md", docBySlug(t, res, "index-2").OriginalPath)
		conflicts := issuesOf(res, types.CategorySlugConflict)
		require.Len(t, conflicts, 1)
		assert.Equal(t, "b/index.md", conflicts[0].FilePath)
		assert.Equal(t, []string{"a/index.md"}, conflicts[0].Context["conflictingFiles"])
		// identical bytes, identical hash
		assert.Equal(t, res.SlugMap["index"], res.SlugMap["index-2"])
	})

	t.Run("cover resolves relative to the document", func(t *testing.T) {
		hello := docBySlug(t, res, "hello")
		banner := mediaByPath(t, res, "posts/banner.png")
		require.NotNil(t, hello.Cover)
		assert.Equal(t, types.CoverResolved, hello.Cover.Status)
		assert.Equal(t, banner.OutputPath, hello.Cover.Path)
		assert.Equal(t, banner.Metadata.Hash, hello.Cover.Hash)
	})

	t.Run("references rewritten", func(t *testing.T) {
		hello := docBySlug(t, res, "hello")
		world := docBySlug(t, res, "world")
		assert.Equal(t, []string{world.Hash}, hello.Links)
		assert.Contains(t, hello.Content, `href="/world"`)
		assert.Contains(t, hello.Content, "/_media/posts/banner.jpg")
		assert.Contains(t, hello.Content, `loading="lazy"`)

		broken := issuesOf(res, types.CategoryBrokenLink)
		require.Len(t, broken, 1)
		assert.Equal(t, "posts/hello.md", broken[0].FilePath)
	})

	t.Run("media", func(t *testing.T) {
		banner := mediaByPath(t, res, "posts/banner.png")
		assert.Equal(t, "_media/posts/banner.jpg", banner.OutputPath)
		assert.Equal(t, 400, banner.Metadata.Width)
		require.Len(t, banner.Sizes, 1, "only the 320px variant is narrower than the source")
		for _, s := range banner.Sizes {
			assert.Less(t, s.Width, banner.Metadata.Width)
		}
		assert.FileExists(t, filepath.Join(out, "_media", "posts", "banner.jpg"))

		notes := mediaByPath(t, res, "notes.txt")
		assert.Equal(t, types.MediaTypeOther, notes.Type)
		assert.FileExists(t, filepath.Join(out, filepath.FromSlash(notes.OutputPath)))

		assert.Equal(t, 4, res.Stats.MediaScanned)
		assert.Equal(t, 2, res.Stats.MediaProcessed)
		assert.Equal(t, 1, res.Stats.MediaCopied)
		assert.Equal(t, 1, res.Stats.MediaFailed)
	})

	t.Run("one corrupt image yields exactly one media error", func(t *testing.T) {
		errs := issuesOf(res, types.CategoryMediaProcessingError)
		require.Len(t, errs, 1)
		assert.Equal(t, "broken.png", errs[0].FilePath)
		assert.Equal(t, types.SeverityError, errs[0].Severity)
		_, ok := res.MediaPathMap["broken.png"]
		assert.False(t, ok)
	})

	t.Run("hidden files ignored", func(t *testing.T) {
		_, ok := res.PathMap[".hidden/secret.md"]
		assert.False(t, ok)
	})

	t.Run("outputs", func(t *testing.T) {
		for _, name := range []string{FilePosts, FileMedia, FileSlugMap, FilePathMap, FileMediaPathMap, FileIssues} {
			assert.FileExists(t, filepath.Join(out, name))
			assert.Contains(t, res.Files, name)
		}
		assert.NoFileExists(t, filepath.Join(out, FileSimilarity))
		assert.NoFileExists(t, filepath.Join(out, storage.DefaultFileName))

		var slugMap map[string]string
		data, err := os.ReadFile(filepath.Join(out, FileSlugMap))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &slugMap))
		assert.Equal(t, res.SlugMap, slugMap)

		var report types.IssueReport
		data, err = os.ReadFile(filepath.Join(out, FileIssues))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &report))
		assert.Equal(t, res.Issues.Summary.Total, report.Summary.Total)
	})
}

func TestProcess_MissingDatabasePlugin(t *testing.T) {
	vault, out := newVault(t), t.TempDir()
	res, err := runProcessor(t, testConfig(vault, out), plugin.Set{})
	require.NoError(t, err)
	assert.Nil(t, res.Database)
	assert.NoFileExists(t, filepath.Join(out, storage.DefaultFileName))
	assert.Empty(t, issuesOf(res, types.CategoryDatabaseError))
	assert.Empty(t, issuesOf(res, types.CategoryPluginError))

	// without an image processor every media file is copied, broken.png included
	assert.Equal(t, 4, res.Stats.MediaCopied)
	assert.Empty(t, issuesOf(res, types.CategoryMediaProcessingError))
}

func TestProcess_FullStack(t *testing.T) {
	vault, out := newVault(t), t.TempDir()
	set := plugin.Set{
		ImageProcessor: imaging.New(),
		ImageEmbedder:  embedder.NewLocalImage(),
		TextEmbedder:   embedder.NewLocal(0),
		Similarity:     similarity.New(similarity.Config{}),
		Database:       storage.NewPlugin(storage.DefaultConfig()),
	}
	res, err := runProcessor(t, testConfig(vault, out), set)
	require.NoError(t, err)

	// the two index pages share content and are embedded once
	assert.Equal(t, 3, res.Stats.TextEmbeddingsGenerated)
	for _, d := range res.Documents {
		assert.Len(t, d.Embedding, embedder.LocalDimension, d.OriginalPath)
	}
	assert.Equal(t, 2, res.Stats.ImageEmbeddingsGenerated)
	assert.Len(t, mediaByPath(t, res, "img/photo.png").Embedding, embedder.ImageDimension)
	assert.Empty(t, mediaByPath(t, res, "notes.txt").Embedding)

	require.NotNil(t, res.Similarity)
	assert.Equal(t, similarity.MethodEmbedding, res.Similarity.Method)
	assert.FileExists(t, filepath.Join(out, FileSimilarity))
	// a/index.md and b/index.md share a hash but each has its own ranking
	assert.Len(t, res.Similarity.Top, len(res.Documents))
	assert.InDelta(t, 1.0, res.Similarity.Score("index", "index-2"), 1e-6)
	require.NotEmpty(t, res.Similarity.Top["index-2"])
	assert.Equal(t, "index", res.Similarity.Top["index-2"][0].Slug)

	require.NotNil(t, res.Database)
	assert.Equal(t, 4, res.Database.Documents)
	assert.Contains(t, res.Files, storage.DefaultFileName)

	store, err := storage.Open(context.Background(), filepath.Join(out, storage.DefaultFileName))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.RunID, st.RunID)
	assert.Equal(t, embedder.NewLocal(0).Model(), st.Model)
	assert.Equal(t, 3, st.Embeddings)
	assert.Equal(t, 2, st.MediaEmbeddings)

	assert.False(t, res.Issues.Summary.ByCategory[types.CategoryPluginError] > 0)
}

func TestProcess_TextEmbeddingFailure(t *testing.T) {
	vault, out := newVault(t), t.TempDir()
	emb := plugintest.NewTextEmbedder(8)
	emb.BatchErr = plugintest.ErrInjected
	db := plugintest.NewDatabase()

	res, err := runProcessor(t, testConfig(vault, out), plugin.Set{
		TextEmbedder: emb,
		Similarity:   similarity.New(similarity.Config{}),
		Database:     db,
	})
	require.NoError(t, err)

	assert.Len(t, issuesOf(res, types.CategoryEmbeddingError), 1)
	assert.Equal(t, int32(1), emb.Calls.Load(), "one batch call for the whole run")
	require.NotNil(t, res.Similarity)
	assert.Equal(t, similarity.MethodTFIDF, res.Similarity.Method)
	for _, d := range res.Documents {
		assert.Empty(t, d.Embedding)
	}
	require.NotNil(t, db.Built())
	assert.Empty(t, db.Built().TextModel)
	assert.Len(t, db.Built().Documents, 4)
}

func TestProcess_ImageEmbeddingFailureIsPerFile(t *testing.T) {
	vault, out := newVault(t), t.TempDir()
	emb := plugintest.NewImageEmbedder(4)
	emb.FailPaths = map[string]bool{filepath.Join(vault, "posts", "banner.png"): true}

	res, err := runProcessor(t, testConfig(vault, out), plugin.Set{ImageProcessor: imaging.New(), ImageEmbedder: emb})
	require.NoError(t, err)

	errs := issuesOf(res, types.CategoryEmbeddingError)
	require.Len(t, errs, 1)
	assert.Equal(t, "posts/banner.png", errs[0].FilePath)
	assert.Empty(t, mediaByPath(t, res, "posts/banner.png").Embedding)
	assert.Len(t, mediaByPath(t, res, "img/photo.png").Embedding, 4)
	assert.Equal(t, 1, res.Stats.ImageEmbeddingsGenerated)
}

func TestProcess_CacheReuse(t *testing.T) {
	vault, out := newVault(t), t.TempDir()

	first, err := runProcessor(t, testConfig(vault, out), plugin.Set{
		ImageProcessor: imaging.New(),
		TextEmbedder:   plugintest.NewTextEmbedder(8),
	})
	require.NoError(t, err)

	cache := &types.CacheContext{
		Media:          map[string]types.CachedMediaMetadata{},
		TextEmbeddings: map[string][]float32{},
	}
	for _, m := range first.Media {
		cache.Media[m.Metadata.Hash] = types.CachedMediaMetadata{
			Width: m.Metadata.Width, Height: m.Metadata.Height, Format: m.Metadata.Format,
			Size: m.Metadata.Size, OutputPath: m.OutputPath, Sizes: m.Sizes,
		}
	}
	for _, d := range first.Documents {
		cache.TextEmbeddings[d.Hash] = d.Embedding
	}

	emb := plugintest.NewTextEmbedder(8)
	cfg := testConfig(vault, out)
	cfg.Cache = cache
	second, err := runProcessor(t, cfg, plugin.Set{ImageProcessor: imaging.New(), TextEmbedder: emb})
	require.NoError(t, err)

	assert.Zero(t, emb.Calls.Load())
	assert.Equal(t, 3, second.Stats.TextEmbeddingsCached)
	assert.Zero(t, second.Stats.TextEmbeddingsGenerated)
	assert.Equal(t, 2, second.Stats.MediaCached)
	assert.Zero(t, second.Stats.MediaProcessed)
	for _, path := range []string{"posts/banner.png", "img/photo.png"} {
		assert.Equal(t, mediaByPath(t, first, path).Metadata, mediaByPath(t, second, path).Metadata)
		assert.Equal(t, mediaByPath(t, first, path).Sizes, mediaByPath(t, second, path).Sizes)
	}
}

func TestProcess_Deterministic(t *testing.T) {
	vault := newVault(t)
	set := func() plugin.Set {
		return plugin.Set{
			ImageProcessor: imaging.New(),
			TextEmbedder:   embedder.NewLocal(64),
			Similarity:     similarity.New(similarity.Config{}),
		}
	}
	first, err := runProcessor(t, testConfig(vault, t.TempDir()), set())
	require.NoError(t, err)
	second, err := runProcessor(t, testConfig(vault, t.TempDir()), set())
	require.NoError(t, err)

	strip := func(docs []types.ProcessedDocument) []types.ProcessedDocument {
		out := make([]types.ProcessedDocument, len(docs))
		for i, d := range docs {
			d.ProcessedAt = time.Time{}
			out[i] = d
		}
		return out
	}
	assert.Equal(t, strip(first.Documents), strip(second.Documents))
	assert.Equal(t, first.Media, second.Media)
	assert.Equal(t, first.SlugMap, second.SlugMap)
	assert.Equal(t, first.Similarity, second.Similarity)

	messages := func(res *Result) []string {
		var out []string
		for _, i := range res.Issues.Issues {
			out = append(out, string(i.Category)+" "+i.FilePath+" "+i.Message)
		}
		return out
	}
	assert.Equal(t, messages(first), messages(second))
}

func TestProcess_IncludeUnpublished(t *testing.T) {
	vault, out := newVault(t), t.TempDir()
	cfg := testConfig(vault, out)
	cfg.IncludeUnpublished = true
	res, err := runProcessor(t, cfg, plugin.Set{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Stats.DocumentsIncluded)
	assert.Zero(t, res.Stats.DocumentsExcluded)
	assert.Equal(t, "Draft", docBySlug(t, res, "draft").Title)
}

func TestProcess_HashNaming(t *testing.T) {
	vault, out := newVault(t), t.TempDir()
	cfg := testConfig(vault, out)
	cfg.HashNaming = true
	cfg.Sharding = true
	res, err := runProcessor(t, cfg, plugin.Set{ImageProcessor: imaging.New()})
	require.NoError(t, err)

	banner := mediaByPath(t, res, "posts/banner.png")
	h := banner.Metadata.Hash
	assert.Equal(t, "_media/"+h[:2]+"/"+h+".jpg", banner.OutputPath)
	assert.Equal(t, "_media/"+h[:2]+"/"+h+"-xs.jpg", banner.Sizes[0].OutputPath)
}

func TestProcess_Cancelled(t *testing.T) {
	vault, out := newVault(t), t.TempDir()
	p, err := New(testConfig(vault, out), plugin.Set{ImageProcessor: imaging.New()})
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background()))
	defer func() { _ = p.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.Process(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Cancelled)
	assert.Empty(t, res.Documents)
	assert.Equal(t, []string{FileIssues}, res.Files)
	assert.FileExists(t, filepath.Join(out, FileIssues))
	assert.NoFileExists(t, filepath.Join(out, FilePosts))
	require.Len(t, issuesOf(res, types.CategoryOther), 1)
}

func TestProcess_UnreadableInput(t *testing.T) {
	out := t.TempDir()
	p, err := New(testConfig(filepath.Join(t.TempDir(), "missing"), out), plugin.Set{})
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background()))
	defer func() { _ = p.Close() }()

	res, err := p.Process(context.Background())
	assert.ErrorIs(t, err, types.ErrInputUnreadable)
	require.NotNil(t, res)
	assert.Len(t, issuesOf(res, types.CategoryFileAccess), 1)
	assert.FileExists(t, filepath.Join(out, FileIssues))
}

func TestProcess_Lifecycle(t *testing.T) {
	vault, out := newVault(t), t.TempDir()

	t.Run("not initialized", func(t *testing.T) {
		p, err := New(testConfig(vault, out), plugin.Set{})
		require.NoError(t, err)
		_, err = p.Process(context.Background())
		assert.ErrorIs(t, err, ErrNotInitialized)
	})

	t.Run("required plugin missing", func(t *testing.T) {
		cfg := testConfig(vault, out)
		cfg.Required = []plugin.Capability{plugin.CapabilityDatabase}
		p, err := New(cfg, plugin.Set{})
		require.NoError(t, err)
		assert.ErrorIs(t, p.Initialize(context.Background()), types.ErrPluginRequired)
	})

	t.Run("optional plugin failure becomes an issue", func(t *testing.T) {
		db := plugintest.NewDatabase()
		db.InitErr = plugintest.ErrInjected
		res, err := runProcessor(t, testConfig(vault, out), plugin.Set{Database: db})
		require.NoError(t, err)
		assert.Len(t, issuesOf(res, types.CategoryPluginError), 1)
		assert.Nil(t, db.Built())
	})

	t.Run("plugins disposed on close", func(t *testing.T) {
		db := plugintest.NewDatabase()
		p, err := New(testConfig(vault, out), plugin.Set{Database: db})
		require.NoError(t, err)
		require.NoError(t, p.Initialize(context.Background()))
		require.NoError(t, p.Close())
		assert.True(t, db.Disposed.Load())
		_, err = p.Process(context.Background())
		assert.ErrorIs(t, err, ErrNotInitialized)
	})

	t.Run("repeated runs get fresh reports", func(t *testing.T) {
		p, err := New(testConfig(vault, out), plugin.Set{})
		require.NoError(t, err)
		require.NoError(t, p.Initialize(context.Background()))
		defer func() { _ = p.Close() }()

		first, err := p.Process(context.Background())
		require.NoError(t, err)
		second, err := p.Process(context.Background())
		require.NoError(t, err)
		assert.NotEqual(t, first.RunID, second.RunID)
		assert.Equal(t, first.Issues.Summary.Total, second.Issues.Summary.Total)
	})
}

func TestProcess_DatabaseFailure(t *testing.T) {
	vault, out := newVault(t), t.TempDir()
	db := plugintest.NewDatabase()
	db.BuildErr = plugintest.ErrInjected
	res, err := runProcessor(t, testConfig(vault, out), plugin.Set{Database: db})
	require.NoError(t, err)
	assert.Nil(t, res.Database)
	assert.Len(t, issuesOf(res, types.CategoryDatabaseError), 1)
	assert.FileExists(t, filepath.Join(out, FilePosts))
}

func TestProcess_NonFiniteFrontmatter(t *testing.T) {
	vault, out := t.TempDir(), t.TempDir()
	writeFile(t, vault, "good.md", "# Good\n\nA fine note.\n")
	writeFile(t, vault, "bad.md", "---\ntitle: Bad\nrating: .nan\n---\nStill a note.\n")

	res, err := runProcessor(t, testConfig(vault, out), plugin.Set{Database: storage.NewPlugin(storage.DefaultConfig())})
	require.NoError(t, err)
	assert.Len(t, res.Documents, 2)

	warnings := issuesOf(res, types.CategoryParseError)
	require.Len(t, warnings, 1)
	assert.Equal(t, "bad.md", warnings[0].FilePath)
	assert.Equal(t, types.SeverityWarning, warnings[0].Severity)
	assert.Empty(t, issuesOf(res, types.CategoryDatabaseError))

	assert.Equal(t, "NaN", docBySlug(t, res, "bad").Frontmatter["rating"])
	assert.FileExists(t, filepath.Join(out, FilePosts))
	require.NotNil(t, res.Database)
	assert.FileExists(t, filepath.Join(out, storage.DefaultFileName))
}

func TestProcess_MediaNameCollision(t *testing.T) {
	vault, out := t.TempDir(), t.TempDir()
	writePNG(t, vault, "pics/photo.png", 50, 50)
	path := filepath.Join(vault, "pics", "photo.gif")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, gif.Encode(f, image.NewPaletted(image.Rect(0, 0, 80, 80), color.Palette{color.Black, color.White}), nil))
	require.NoError(t, f.Close())

	res, err := runProcessor(t, testConfig(vault, out), plugin.Set{ImageProcessor: imaging.New()})
	require.NoError(t, err)

	// photo.gif sorts first, so it keeps the natural name
	assert.Equal(t, "_media/pics/photo.jpg", mediaByPath(t, res, "pics/photo.gif").OutputPath)
	assert.Equal(t, "_media/pics/photo.png.jpg", mediaByPath(t, res, "pics/photo.png").OutputPath)
	assert.Equal(t, 2, res.Stats.MediaProcessed)

	warnings := issuesOf(res, types.CategoryMediaProcessingError)
	require.Len(t, warnings, 1)
	assert.Equal(t, "pics/photo.png", warnings[0].FilePath)
	assert.Equal(t, types.SeverityWarning, warnings[0].Severity)
	assert.Equal(t, "pics/photo.gif", warnings[0].Context["conflictingFile"])

	for _, m := range res.Media {
		img, err := os.Open(filepath.Join(out, filepath.FromSlash(m.OutputPath)))
		require.NoError(t, err)
		dc, _, err := image.DecodeConfig(img)
		require.NoError(t, img.Close())
		require.NoError(t, err)
		assert.Equal(t, m.Metadata.Width, dc.Width, m.OriginalPath)
	}
}
