package searcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repomd/vaultproc/internal/embedder"
	"github.com/repomd/vaultproc/internal/issues"
	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/internal/storage"
	"github.com/repomd/vaultproc/pkg/types"
)

const testDim = 256

func testDocs(emb *embedder.Local) []types.ProcessedDocument {
	docs := []types.ProcessedDocument{
		{Slug: "sourdough", Hash: "h1", Title: "Sourdough", PlainText: "feeding the starter before baking sourdough bread"},
		{Slug: "rye", Hash: "h2", Title: "Rye", PlainText: "rye flour makes a dense loaf of bread"},
		{Slug: "kubernetes", Hash: "h3", Title: "Kubernetes", PlainText: "ingress controllers and helm charts in the cluster"},
	}
	for i := range docs {
		d := &docs[i]
		d.FileName = d.Slug + ".md"
		d.OriginalPath = "notes/" + d.FileName
		d.Markdown = d.PlainText
		d.Content = "<p>" + d.PlainText + "</p>"
		d.Excerpt = d.PlainText
		d.Frontmatter = map[string]any{}
		d.Embedding, _ = emb.Embed(context.Background(), d.PlainText)
	}
	return docs
}

// setupSearcher builds a database into a temp dir and opens a searcher on it
func setupSearcher(t *testing.T, cfg storage.Config, queryEmb Embedder) *Searcher {
	t.Helper()
	ctx := context.Background()
	emb := embedder.NewLocal(testDim)

	p := storage.NewPlugin(cfg)
	require.NoError(t, p.Initialize(ctx, plugin.NewContext(t.TempDir(), nil, issues.NewCollector("run", nil))))
	_, err := p.Build(ctx, plugin.BuildInput{
		RunID:          "run",
		Documents:      testDocs(emb),
		TextModel:      emb.Model(),
		TextDimensions: emb.Dimensions(),
	})
	require.NoError(t, err)

	store, err := storage.Open(ctx, p.Path())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, queryEmb)
}

func slugs(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Slug
	}
	return out
}

func TestSearchKeyword(t *testing.T) {
	s := setupSearcher(t, storage.DefaultConfig(), nil)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "helm", Mode: SearchModeKeyword})
	require.NoError(t, err)
	assert.Equal(t, []string{"kubernetes"}, slugs(resp.Results))
	assert.Equal(t, SearchModeKeyword, resp.SearchMode)
	assert.Equal(t, 1, resp.TextResults)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Contains(t, resp.Results[0].Snippet, "[helm]")
}

func TestSearchKeywordWithoutFullText(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.FullText = false
	s := setupSearcher(t, cfg, nil)

	_, err := s.Search(context.Background(), SearchRequest{Query: "helm", Mode: SearchModeKeyword})
	assert.ErrorIs(t, err, storage.ErrFullTextDisabled)
}

func TestSearchVector(t *testing.T) {
	s := setupSearcher(t, storage.DefaultConfig(), embedder.NewLocal(testDim))

	resp, err := s.Search(context.Background(), SearchRequest{Query: "sourdough bread starter", Mode: SearchModeVector})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "sourdough", resp.Results[0].Slug)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}
}

func TestSearchVectorErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no embedder", func(t *testing.T) {
		s := setupSearcher(t, storage.DefaultConfig(), nil)
		_, err := s.Search(ctx, SearchRequest{Query: "bread", Mode: SearchModeVector})
		assert.ErrorIs(t, err, ErrNoEmbedder)
	})

	t.Run("model mismatch", func(t *testing.T) {
		s := setupSearcher(t, storage.DefaultConfig(), embedder.NewLocal(128))
		_, err := s.Search(ctx, SearchRequest{Query: "bread", Mode: SearchModeVector})
		assert.ErrorIs(t, err, ErrModelMismatch)
	})

	t.Run("no vectors stored", func(t *testing.T) {
		cfg := storage.DefaultConfig()
		cfg.Vector = false
		s := setupSearcher(t, cfg, embedder.NewLocal(testDim))
		_, err := s.Search(ctx, SearchRequest{Query: "bread", Mode: SearchModeVector})
		assert.ErrorIs(t, err, ErrNoVectors)
	})
}

func TestSearchHybrid(t *testing.T) {
	s := setupSearcher(t, storage.DefaultConfig(), embedder.NewLocal(testDim))

	resp, err := s.Search(context.Background(), SearchRequest{Query: "bread"})
	require.NoError(t, err)
	assert.Equal(t, SearchModeHybrid, resp.SearchMode)
	require.GreaterOrEqual(t, len(resp.Results), 2)
	assert.ElementsMatch(t, []string{"sourdough", "rye"}, slugs(resp.Results)[:2])
	assert.Equal(t, 2, resp.TextResults)
	assert.Positive(t, resp.VectorResults)
}

func TestSearchHybridToleratesOneSide(t *testing.T) {
	// vector side fails on the mismatched embedder, text side still answers
	s := setupSearcher(t, storage.DefaultConfig(), embedder.NewLocal(128))

	resp, err := s.Search(context.Background(), SearchRequest{Query: "helm"})
	require.NoError(t, err)
	assert.Equal(t, []string{"kubernetes"}, slugs(resp.Results))
	assert.Zero(t, resp.VectorResults)
}

func TestSearchCache(t *testing.T) {
	s := setupSearcher(t, storage.DefaultConfig(), nil)
	ctx := context.Background()
	req := SearchRequest{Query: "bread", Mode: SearchModeKeyword, UseCache: true}

	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, slugs(first.Results), slugs(second.Results))

	// mutating a returned response must not touch the cache
	second.Results[0].Slug = "changed"
	third, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, slugs(first.Results), slugs(third.Results))

	s.InvalidateCache()
	fourth, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, fourth.CacheHit)
}

func TestSearchCacheExpiry(t *testing.T) {
	s := setupSearcher(t, storage.DefaultConfig(), nil)
	ctx := context.Background()
	req := SearchRequest{Query: "bread", Mode: SearchModeKeyword, UseCache: true, CacheTTL: time.Nanosecond}

	_, err := s.Search(ctx, req)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	resp, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestSimilar(t *testing.T) {
	s := setupSearcher(t, storage.DefaultConfig(), nil)
	ctx := context.Background()

	bySlug, err := s.Similar(ctx, "sourdough", 5)
	require.NoError(t, err)
	require.Len(t, bySlug, 2)
	assert.Equal(t, 1, bySlug[0].Rank)
	assert.NotEqual(t, "sourdough", bySlug[0].Slug)

	byHash, err := s.Similar(ctx, "h1", 5)
	require.NoError(t, err)
	assert.Equal(t, bySlug, byHash)

	limited, err := s.Similar(ctx, "sourdough", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = s.Similar(ctx, "missing", 5)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     SearchRequest
		want    SearchRequest
		wantErr error
	}{
		{
			name: "defaults",
			req:  SearchRequest{Query: "  bread "},
			want: SearchRequest{Query: "bread", Limit: DefaultLimit, Mode: SearchModeHybrid, RRFConstant: DefaultRRFConstant, CacheTTL: DefaultCacheTTL},
		},
		{
			name: "limit capped",
			req:  SearchRequest{Query: "bread", Limit: 500, Mode: SearchModeKeyword, RRFConstant: 10, CacheTTL: time.Minute},
			want: SearchRequest{Query: "bread", Limit: MaxLimit, Mode: SearchModeKeyword, RRFConstant: 10, CacheTTL: time.Minute},
		},
		{
			name:    "empty query",
			req:     SearchRequest{Query: "   "},
			wantErr: ErrEmptyQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := validateRequest(&req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req)
		})
	}
}

func TestApplyRRF(t *testing.T) {
	vectorHits := []scored{{hash: "a"}, {hash: "b"}, {hash: "c"}}
	textHits := []scored{{hash: "b", snippet: "b-snip"}, {hash: "d"}}

	fused := applyRRF(vectorHits, textHits, 60)
	require.Len(t, fused, 4)
	assert.Equal(t, "b", fused[0].hash, "found by both")
	assert.Equal(t, "b-snip", fused[0].snippet)
	assert.InDelta(t, 1.0/62+1.0/61, fused[0].score, 1e-12)
	assert.Equal(t, "a", fused[1].hash)

	// d is second in its list, c third in its list
	assert.Equal(t, "d", fused[2].hash)
	assert.Equal(t, "c", fused[3].hash)
}

func TestApplyRRFTiesByHash(t *testing.T) {
	fused := applyRRF([]scored{{hash: "z"}}, []scored{{hash: "a"}}, 0)
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].hash)
	assert.Equal(t, "z", fused[1].hash)
	assert.InDelta(t, 1.0/61, fused[0].score, 1e-12)
}

func TestComputeQueryHash(t *testing.T) {
	base := SearchRequest{Query: "bread", Mode: SearchModeHybrid, Limit: 10, RRFConstant: 60}
	assert.Equal(t, computeQueryHash(base), computeQueryHash(base))

	other := base
	other.Mode = SearchModeKeyword
	assert.NotEqual(t, computeQueryHash(base), computeQueryHash(other))

	other = base
	other.Limit = 20
	assert.NotEqual(t, computeQueryHash(base), computeQueryHash(other))
}
