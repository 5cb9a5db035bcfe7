// Package similarity implements the similarity plugin. Documents are
// compared by cosine similarity of their text embeddings; when any document
// lacks a vector the whole set is compared by TF-IDF over title and plain
// text instead, so every score in one map comes from a single method.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/internal/vector"
	"github.com/repomd/vaultproc/pkg/types"
)

// Methods recorded in SimilarityMap.Method
const (
	MethodEmbedding = "embedding-cosine"
	MethodTFIDF     = "tfidf-cosine"
)

// DefaultTopN is the neighbor list length when none is configured
const DefaultTopN = 10

var ErrNotReady = errors.New("similarity plugin not initialized")

// Config tunes the plugin
type Config struct {
	// TopN bounds each ranked neighbor list; <= 0 selects DefaultTopN
	TopN int
	// MinScore drops pairs and neighbors scoring below it
	MinScore float64
	// ForceTFIDF ignores embeddings
	ForceTFIDF bool
	// FillMissing embeds documents that arrive without a vector using the
	// text embedder
	FillMissing bool
	Workers     int
}

// Plugin computes pairwise document similarity
type Plugin struct {
	cfg      Config
	logger   *zap.Logger
	embedder plugin.TextEmbedder
	ready    atomic.Bool
}

var (
	_ plugin.Similarity = (*Plugin)(nil)
	_ plugin.Dependent  = (*Plugin)(nil)
)

// New creates a similarity plugin
func New(cfg Config) *Plugin {
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Plugin{cfg: cfg, logger: zap.NewNop()}
}

func (p *Plugin) Name() string { return "similarity" }

// Dependencies declares the text embedder as optional. With FillMissing it
// fills in vectors for documents that arrive without one.
func (p *Plugin) Dependencies() []plugin.Dependency {
	return []plugin.Dependency{{Capability: plugin.CapabilityTextEmbedder, Optional: true}}
}

func (p *Plugin) Initialize(ctx context.Context, pc *plugin.Context) error {
	if pc != nil {
		p.logger = pc.LoggerFor(p)
		if emb, ok := pc.TextEmbedder(); ok && emb.Ready() && p.cfg.FillMissing {
			p.embedder = emb
		}
	}
	p.ready.Store(true)
	return nil
}

func (p *Plugin) Ready() bool { return p.ready.Load() }

// GenerateSimilarityMap scores every unordered pair of docs and ranks the
// top neighbors of each. Results are keyed by slug. Ties keep the order of
// docs.
func (p *Plugin) GenerateSimilarityMap(ctx context.Context, docs []types.ProcessedDocument) (*types.SimilarityMap, error) {
	if !p.Ready() {
		return nil, ErrNotReady
	}

	var score func(i, j int) float64
	method := MethodTFIDF
	vecs := p.embeddings(ctx, docs)
	if vecs != nil {
		method = MethodEmbedding
		score = func(i, j int) float64 { return vector.Cosine(vecs[i], vecs[j]) }
	} else {
		corpus := make([]string, len(docs))
		for i, d := range docs {
			corpus[i] = d.Title + "\n\n" + d.PlainText
		}
		tf := tfidfVectors(corpus)
		score = func(i, j int) float64 { return tf[i].dot(tf[j]) }
	}

	matrix, err := p.scoreMatrix(ctx, len(docs), score)
	if err != nil {
		return nil, err
	}

	result := &types.SimilarityMap{
		Method: method,
		Pairs:  make(map[string]float64),
		Top:    make(map[string][]types.Neighbor, len(docs)),
	}
	for i := range docs {
		for j := i + 1; j < len(docs); j++ {
			if s := matrix[i][j-i-1]; s >= p.cfg.MinScore {
				result.Pairs[types.PairKey(docs[i].Slug, docs[j].Slug)] = s
			}
		}
	}

	for i, d := range docs {
		candidates := make([]vector.Scored, 0, len(docs)-1)
		for j := range docs {
			if j == i {
				continue
			}
			s := pairScore(matrix, i, j)
			if s < p.cfg.MinScore {
				continue
			}
			candidates = append(candidates, vector.Scored{Index: j, Score: s})
		}
		ranked := vector.TopN(candidates, p.cfg.TopN)
		neighbors := make([]types.Neighbor, len(ranked))
		for k, r := range ranked {
			neighbors[k] = types.Neighbor{Hash: docs[r.Index].Hash, Slug: docs[r.Index].Slug, Score: r.Score}
		}
		result.Top[d.Slug] = neighbors
	}

	p.logger.Info("similarity map generated",
		zap.String("method", method),
		zap.Int("documents", len(docs)),
		zap.Int("pairs", len(result.Pairs)))
	return result, nil
}

// scoreMatrix computes the upper triangle. Row i holds scores for
// j = i+1 .. n-1. Rows are independent and computed in parallel.
func (p *Plugin) scoreMatrix(ctx context.Context, n int, score func(i, j int) float64) ([][]float64, error) {
	matrix := make([][]float64, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := make([]float64, n-i-1)
			for j := i + 1; j < n; j++ {
				row[j-i-1] = score(i, j)
			}
			matrix[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("similarity cancelled: %w", err)
	}
	return matrix, nil
}

func pairScore(matrix [][]float64, i, j int) float64 {
	if j < i {
		i, j = j, i
	}
	return matrix[i][j-i-1]
}

// embeddings returns one vector per document, or nil when TF-IDF must be
// used. With FillMissing, missing vectors are computed with the text
// embedder if one is available.
func (p *Plugin) embeddings(ctx context.Context, docs []types.ProcessedDocument) [][]float32 {
	if p.cfg.ForceTFIDF || len(docs) == 0 {
		return nil
	}

	vecs := make([][]float32, len(docs))
	var missing []int
	for i, d := range docs {
		if len(d.Embedding) > 0 {
			vecs[i] = d.Embedding
		} else {
			missing = append(missing, i)
		}
	}

	if len(missing) > 0 {
		if p.embedder == nil {
			return nil
		}
		texts := make([]string, len(missing))
		for k, i := range missing {
			texts[k] = embeddingText(docs[i])
		}
		filled, err := p.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			p.logger.Warn("embedding missing documents failed, using tf-idf", zap.Error(err))
			return nil
		}
		if len(filled) != len(missing) {
			p.logger.Warn("embedder returned the wrong number of vectors, using tf-idf",
				zap.Int("got", len(filled)), zap.Int("want", len(missing)))
			return nil
		}
		for k, i := range missing {
			vecs[i] = filled[k]
		}
	}

	dim := len(vecs[0])
	for _, v := range vecs {
		if dim == 0 || len(v) != dim {
			p.logger.Warn("mixed embedding dimensions, using tf-idf")
			return nil
		}
	}
	return vecs
}

func embeddingText(d types.ProcessedDocument) string {
	switch {
	case d.PlainText != "":
		return d.PlainText
	case d.Title != "":
		return d.Title
	default:
		return d.FileName
	}
}
