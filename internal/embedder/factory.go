package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/repomd/vaultproc/internal/plugin"
)

// Environment variables read by NewFromEnv
const (
	EnvProvider     = "VAULTPROC_EMBEDDING_PROVIDER"
	EnvModel        = "VAULTPROC_EMBEDDING_MODEL"
	EnvDimensions   = "VAULTPROC_EMBEDDING_DIMENSIONS"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	// Dimensions is the local vector width, or the shortened width to
	// request from a remote model
	Dimensions        int
	BatchSize         int
	RequestsPerSecond float64
	CacheSize         int
}

// NewFromEnv creates a text embedder based on environment variables.
// Priority:
// 1. VAULTPROC_EMBEDDING_PROVIDER (jina, openai, local)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (plugin.TextEmbedder, error) {
	cfg := Config{
		Provider: DetectProvider(),
		Model:    os.Getenv(EnvModel),
	}
	if raw := os.Getenv(EnvDimensions); raw != "" {
		dim, err := strconv.Atoi(raw)
		if err != nil || dim < 0 {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidInput, EnvDimensions, raw)
		}
		cfg.Dimensions = dim
	}
	return New(cfg)
}

// New creates a text embedder with explicit configuration. An empty API key
// falls back to the provider's environment variable.
func New(cfg Config) (plugin.TextEmbedder, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = ProviderLocal
	}

	switch provider {
	case ProviderLocal:
		return NewLocal(cfg.Dimensions), nil
	case ProviderJina, ProviderOpenAI:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv(apiKeyEnv(provider))
		}
		r, err := NewRemote(RemoteConfig{
			Provider:          provider,
			APIKey:            key,
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			Dimensions:        cfg.Dimensions,
			BatchSize:         cfg.BatchSize,
			RequestsPerSecond: cfg.RequestsPerSecond,
			CacheSize:         cfg.CacheSize,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}

func apiKeyEnv(provider string) string {
	if provider == ProviderJina {
		return EnvJinaAPIKey
	}
	return EnvOpenAIAPIKey
}
