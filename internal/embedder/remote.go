package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/pkg/types"
)

// Remote provider defaults
const (
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	JinaDimension   = 1024
	OpenAIDimension = 1536

	DefaultJinaURL   = "https://api.jina.ai/v1/embeddings"
	DefaultOpenAIURL = "https://api.openai.com/v1/embeddings"

	DefaultBatchSize = 50
	MaxBatchSize     = 100

	DefaultTimeout = 30 * time.Second
)

// RemoteConfig configures an HTTP embedding provider. Zero values select
// the provider defaults.
type RemoteConfig struct {
	Provider string
	APIKey   string
	Model    string
	// BaseURL is the full embeddings endpoint
	BaseURL string
	// Dimensions requests shortened vectors from models that support it
	Dimensions        int
	BatchSize         int
	RequestsPerSecond float64
	Timeout           time.Duration
	CacheSize         int
	Retry             RetryConfig
}

// Remote embeds text through an OpenAI-compatible embeddings endpoint.
// It is safe for concurrent use.
type Remote struct {
	cfg          RemoteConfig
	dim          int
	sendDim      bool
	httpClient   *http.Client
	limiter      *rate.Limiter
	cache        *Cache
	logger       *zap.Logger
	ready        atomic.Bool
	requestCount atomic.Int64
}

var _ plugin.TextEmbedder = (*Remote)(nil)

// NewOpenAI creates an OpenAI embedder
func NewOpenAI(cfg RemoteConfig) (*Remote, error) {
	cfg.Provider = ProviderOpenAI
	return NewRemote(cfg)
}

// NewJina creates a Jina AI embedder
func NewJina(cfg RemoteConfig) (*Remote, error) {
	cfg.Provider = ProviderJina
	return NewRemote(cfg)
}

// NewRemote creates a remote embedder for cfg.Provider
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	cfg.Provider = strings.ToLower(cfg.Provider)

	var defaultModel, defaultURL string
	var defaultDim int
	switch cfg.Provider {
	case ProviderOpenAI:
		defaultModel, defaultURL, defaultDim = DefaultOpenAIModel, DefaultOpenAIURL, OpenAIDimension
	case ProviderJina:
		defaultModel, defaultURL, defaultDim = DefaultJinaModel, DefaultJinaURL, JinaDimension
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrUnsupportedModel, cfg.Provider)
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s API key not set", ErrNoProviderEnabled, cfg.Provider)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultURL
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size %d exceeds %d", ErrInvalidInput, cfg.BatchSize, MaxBatchSize)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	r := &Remote{
		cfg:        cfg,
		dim:        defaultDim,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		cache:      NewCache(cfg.CacheSize),
		logger:     zap.NewNop(),
	}
	if cfg.Dimensions > 0 {
		r.dim = cfg.Dimensions
		r.sendDim = true
	}
	return r, nil
}

func (r *Remote) Name() string { return r.cfg.Provider }

func (r *Remote) Initialize(ctx context.Context, pc *plugin.Context) error {
	if pc != nil {
		r.logger = pc.LoggerFor(r)
	}
	r.ready.Store(true)
	r.logger.Info("remote embedder ready",
		zap.String("model", r.cfg.Model),
		zap.Int("dimensions", r.dim),
		zap.Int("batch_size", r.cfg.BatchSize))
	return nil
}

func (r *Remote) Ready() bool { return r.ready.Load() }

func (r *Remote) Dimensions() int { return r.dim }

func (r *Remote) Model() string { return r.cfg.Model }

// Requests returns the number of HTTP calls made so far
func (r *Remote) Requests() int64 { return r.requestCount.Load() }

// Dispose drops idle connections and the memo cache
func (r *Remote) Dispose() error {
	r.ready.Store(false)
	r.httpClient.CloseIdleConnections()
	r.cache.Clear()
	return nil
}

func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	vecs, err := r.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// BatchEmbed returns one vector per text in input order. Cached texts and
// duplicates within the batch are sent only once.
func (r *Remote) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if !r.Ready() {
		return nil, ErrNotReady
	}
	if err := validateBatch(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	pending := make(map[string][]int)
	var misses []string
	for i, text := range texts {
		if v, ok := r.cache.Get(cacheKey(r.cfg.Model, text)); ok {
			out[i] = v
			continue
		}
		if _, seen := pending[text]; !seen {
			misses = append(misses, text)
		}
		pending[text] = append(pending[text], i)
	}

	for start := 0; start < len(misses); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(misses))
		chunk := misses[start:end]

		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		vecs, err := retryWithBackoff(ctx, r.cfg.Retry, func() ([][]float32, error) {
			return r.post(ctx, chunk)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
		}

		for j, text := range chunk {
			r.cache.Set(cacheKey(r.cfg.Model, text), vecs[j])
			for _, idx := range pending[text] {
				v := make([]float32, len(vecs[j]))
				copy(v, vecs[j])
				out[idx] = v
			}
		}
	}

	r.logger.Debug("batch embedded",
		zap.Int("texts", len(texts)),
		zap.Int("requested", len(misses)))
	return out, nil
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (r *Remote) post(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{Input: texts, Model: r.cfg.Model, EncodingFormat: "float"}
	if r.sendDim {
		reqBody.Dimensions = r.dim
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

	r.requestCount.Add(1)
	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{Provider: r.cfg.Provider, Status: resp.StatusCode, Body: string(body)}
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrInvalidInput, len(texts), len(parsed.Data))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) || vecs[d.Index] != nil {
			return nil, fmt.Errorf("%w: bad embedding index %d", ErrInvalidInput, d.Index)
		}
		if len(d.Embedding) != r.dim {
			return nil, fmt.Errorf("%w: got %d, want %d", types.ErrDimensionMismatch, len(d.Embedding), r.dim)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}
