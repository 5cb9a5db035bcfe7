// Package plugintest provides deterministic in-memory plugins for tests.
package plugintest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/internal/vector"
	"github.com/repomd/vaultproc/pkg/types"
)

// ErrInjected is returned by fakes configured to fail
var ErrInjected = errors.New("injected failure")

// Base implements the Plugin lifecycle with switchable failures
type Base struct {
	PluginName string
	InitErr    error
	NotReady   bool
	Deps       []plugin.Dependency
	DisposeErr error

	ready     atomic.Bool
	InitCount atomic.Int32
	Disposed  atomic.Bool
	// Seen holds the capabilities visible through the context at init time
	Seen []plugin.Capability
}

func (b *Base) Name() string { return b.PluginName }

func (b *Base) Initialize(ctx context.Context, pc *plugin.Context) error {
	b.InitCount.Add(1)
	b.Seen = nil
	for _, c := range plugin.Capabilities {
		if _, ok := pc.Lookup(c); ok {
			b.Seen = append(b.Seen, c)
		}
	}
	if b.InitErr != nil {
		return b.InitErr
	}
	b.ready.Store(!b.NotReady)
	return nil
}

func (b *Base) Ready() bool { return b.ready.Load() }

func (b *Base) Dependencies() []plugin.Dependency { return b.Deps }

func (b *Base) Dispose() error {
	b.Disposed.Store(true)
	b.ready.Store(false)
	return b.DisposeErr
}

// TextEmbedder produces vectors derived from a hash of the text
type TextEmbedder struct {
	Base
	Dim      int
	ModelID  string
	BatchErr error
	Calls    atomic.Int32
	Texts    atomic.Int32
}

// NewTextEmbedder creates a fake text embedder with dim dimensions
func NewTextEmbedder(dim int) *TextEmbedder {
	return &TextEmbedder{Base: Base{PluginName: "fake-text"}, Dim: dim, ModelID: "fake-text-v1"}
}

func (e *TextEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.BatchErr != nil {
		return nil, e.BatchErr
	}
	e.Texts.Add(1)
	return HashVector(text, e.Dim), nil
}

func (e *TextEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	e.Calls.Add(1)
	if e.BatchErr != nil {
		return nil, e.BatchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		e.Texts.Add(1)
		out[i] = HashVector(t, e.Dim)
	}
	return out, nil
}

func (e *TextEmbedder) Dimensions() int { return e.Dim }
func (e *TextEmbedder) Model() string   { return e.ModelID }

// ImageEmbedder hashes the path into a vector; paths in FailPaths error
type ImageEmbedder struct {
	Base
	Dim       int
	FailPaths map[string]bool
	Calls     atomic.Int32
}

// NewImageEmbedder creates a fake image embedder with dim dimensions
func NewImageEmbedder(dim int) *ImageEmbedder {
	return &ImageEmbedder{Base: Base{PluginName: "fake-image"}, Dim: dim}
}

func (e *ImageEmbedder) Embed(ctx context.Context, path string) ([]float32, error) {
	e.Calls.Add(1)
	if e.FailPaths[path] {
		return nil, ErrInjected
	}
	return HashVector(path, e.Dim), nil
}

func (e *ImageEmbedder) Dimensions() int { return e.Dim }
func (e *ImageEmbedder) Model() string   { return "fake-image-v1" }

// Database records what it was asked to build
type Database struct {
	Base
	BuildErr error

	mu    sync.Mutex
	Input *plugin.BuildInput
}

// NewDatabase creates a recording database plugin
func NewDatabase() *Database {
	return &Database{Base: Base{PluginName: "fake-db"}}
}

func (d *Database) Build(ctx context.Context, in plugin.BuildInput) (*plugin.BuildResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Input = &in
	if d.BuildErr != nil {
		return nil, d.BuildErr
	}
	return &plugin.BuildResult{Documents: len(in.Documents), Media: len(in.Media)}, nil
}

// Built returns the last build input
func (d *Database) Built() *plugin.BuildInput {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Input
}

// Similarity returns an empty map or an error
type Similarity struct {
	Base
	Err error
}

func (s *Similarity) GenerateSimilarityMap(ctx context.Context, docs []types.ProcessedDocument) (*types.SimilarityMap, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return &types.SimilarityMap{Method: "fake", Pairs: map[string]float64{}, Top: map[string][]types.Neighbor{}}, nil
}

// HashVector builds a deterministic unit vector from s
func HashVector(s string, dim int) []float32 {
	sum := sha256.Sum256([]byte(s))
	v := make([]float32, dim)
	for i := range v {
		idx := (i * 4) % 32
		val := binary.BigEndian.Uint32(sum[idx : idx+4])
		v[i] = (float32(val)/float32(1<<32))*2 - 1
	}
	return vector.Normalize(v)
}

var (
	_ plugin.TextEmbedder  = (*TextEmbedder)(nil)
	_ plugin.ImageEmbedder = (*ImageEmbedder)(nil)
	_ plugin.Database      = (*Database)(nil)
	_ plugin.Similarity    = (*Similarity)(nil)
	_ plugin.Disposer      = (*Base)(nil)
	_ plugin.Dependent     = (*Base)(nil)
)
