// Package plugin defines the optional capabilities the processor can use and
// manages their lifecycle.
package plugin

import (
	"context"

	"github.com/repomd/vaultproc/pkg/types"
)

// Capability names a plugin slot
type Capability string

const (
	CapabilityImageProcessor Capability = "image-processor"
	CapabilityImageEmbedder  Capability = "image-embedder"
	CapabilityTextEmbedder   Capability = "text-embedder"
	CapabilitySimilarity     Capability = "similarity"
	CapabilityDatabase       Capability = "database"
)

// Capabilities lists every slot in canonical order
var Capabilities = []Capability{
	CapabilityImageProcessor,
	CapabilityImageEmbedder,
	CapabilityTextEmbedder,
	CapabilitySimilarity,
	CapabilityDatabase,
}

// Valid reports whether c names a known slot
func (c Capability) Valid() bool {
	for _, known := range Capabilities {
		if c == known {
			return true
		}
	}
	return false
}

// Plugin is the lifecycle every capability shares
type Plugin interface {
	// Name identifies the implementation, e.g. "imaging" or "openai"
	Name() string

	// Initialize prepares the plugin. Dependencies declared through
	// Dependent are already initialized and reachable through pc.
	Initialize(ctx context.Context, pc *Context) error

	// Ready reports whether the plugin can serve calls
	Ready() bool
}

// Disposer is implemented by plugins holding resources
type Disposer interface {
	Dispose() error
}

// Dependency is a capability another plugin needs
type Dependency struct {
	Capability Capability
	// Optional dependencies order initialization but never disable the dependent
	Optional bool
}

// Dependent is implemented by plugins that use other plugins
type Dependent interface {
	Dependencies() []Dependency
}

// ProcessOptions controls one image transcode
type ProcessOptions struct {
	Format  string
	Quality int
	// MaxWidth and MaxHeight bound the output; 0 keeps the source size
	MaxWidth  int
	MaxHeight int
}

// ImageInfo is what an image processor reports about a file
type ImageInfo struct {
	Width  int
	Height int
	Format string
	Size   int64
}

// ImageProcessor transcodes images. Implementations must be safe for
// concurrent use.
type ImageProcessor interface {
	Plugin
	CanProcess(path string) bool
	Metadata(ctx context.Context, path string) (ImageInfo, error)
	Process(ctx context.Context, input, output string, opts ProcessOptions) (ImageInfo, error)
	Copy(ctx context.Context, input, output string) error
}

// TextEmbedder turns text into fixed-dimension vectors
type TextEmbedder interface {
	Plugin
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}

// ImageEmbedder turns an image file into a fixed-dimension vector
type ImageEmbedder interface {
	Plugin
	Embed(ctx context.Context, path string) ([]float32, error)
	Dimensions() int
	Model() string
}

// Similarity scores document pairs
type Similarity interface {
	Plugin
	GenerateSimilarityMap(ctx context.Context, docs []types.ProcessedDocument) (*types.SimilarityMap, error)
}

// BuildInput is everything a database plugin receives
type BuildInput struct {
	RunID           string
	Documents       []types.ProcessedDocument
	Media           []types.ProcessedMedia
	TextModel       string
	TextDimensions  int
	ImageModel      string
	ImageDimensions int
}

// BuildResult summarizes a database build
type BuildResult struct {
	Path         string
	Documents    int
	Media        int
	Embeddings   int
	Similarities int
}

// Database builds the embedded database file
type Database interface {
	Plugin
	Build(ctx context.Context, in BuildInput) (*BuildResult, error)
}
