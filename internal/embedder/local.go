package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"unicode"

	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/internal/vector"
)

// LocalDimension is the default width of local text vectors
const LocalDimension = 384

// Local embeds text offline by hashing word unigrams and bigrams into a
// fixed number of buckets. Texts sharing vocabulary land close together.
type Local struct {
	dim    int
	ready  atomic.Bool
	logger *zap.Logger
}

var _ plugin.TextEmbedder = (*Local)(nil)

// NewLocal creates a local embedder; dim <= 0 selects LocalDimension
func NewLocal(dim int) *Local {
	if dim <= 0 {
		dim = LocalDimension
	}
	return &Local{dim: dim, logger: zap.NewNop()}
}

func (l *Local) Name() string { return ProviderLocal }

func (l *Local) Initialize(ctx context.Context, pc *plugin.Context) error {
	if pc != nil {
		l.logger = pc.LoggerFor(l)
	}
	l.ready.Store(true)
	l.logger.Debug("local embedder ready", zap.Int("dimensions", l.dim))
	return nil
}

func (l *Local) Ready() bool { return l.ready.Load() }

func (l *Local) Dimensions() int { return l.dim }

func (l *Local) Model() string { return fmt.Sprintf("local-hash-%d", l.dim) }

func (l *Local) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	return hashEmbed(text, l.dim), nil
}

func (l *Local) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = hashEmbed(text, l.dim)
	}
	return out, nil
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func hashEmbed(text string, dim int) []float32 {
	counts := make(map[string]int)
	tokens := tokenize(text)
	for i, tok := range tokens {
		counts[tok]++
		if i > 0 {
			counts[tokens[i-1]+" "+tok]++
		}
	}

	// Summing in key order keeps float rounding identical across runs.
	features := make([]string, 0, len(counts))
	for f := range counts {
		features = append(features, f)
	}
	sort.Strings(features)

	v := make([]float32, dim)
	for _, feature := range features {
		tf := counts[feature]
		h := fnv.New64a()
		h.Write([]byte(feature))
		sum := h.Sum64()
		bucket := int(sum % uint64(dim))
		weight := float32(1 + math.Log(float64(tf)))
		// top bit selects the sign
		if sum>>63 == 1 {
			weight = -weight
		}
		v[bucket] += weight
	}
	return vector.Normalize(v)
}
