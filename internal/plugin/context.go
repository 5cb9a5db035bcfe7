package plugin

import (
	"sync"

	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/issues"
)

// Context is the environment shared with every plugin. Plugins keep a
// reference but never own it.
type Context struct {
	OutputDir string
	Logger    *zap.Logger
	Issues    issues.Recorder

	mu     sync.RWMutex
	active Set
}

// NewContext creates a plugin context
func NewContext(outputDir string, logger *zap.Logger, rec issues.Recorder) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{OutputDir: outputDir, Logger: logger, Issues: rec}
}

// LoggerFor returns a logger named after a plugin
func (c *Context) LoggerFor(p Plugin) *zap.Logger {
	return c.Logger.Named(p.Name())
}

// Lookup returns an initialized plugin by capability
func (c *Context) Lookup(capability Capability) (Plugin, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active.Get(capability)
}

func (c *Context) TextEmbedder() (TextEmbedder, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active.TextEmbedder, c.active.TextEmbedder != nil
}

func (c *Context) ImageEmbedder() (ImageEmbedder, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active.ImageEmbedder, c.active.ImageEmbedder != nil
}

func (c *Context) ImageProcessor() (ImageProcessor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active.ImageProcessor, c.active.ImageProcessor != nil
}

func (c *Context) Similarity() (Similarity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active.Similarity, c.active.Similarity != nil
}

func (c *Context) register(capability Capability, source *Set) {
	c.mu.Lock()
	defer c.mu.Unlock()
	setSlot(&c.active, capability, source)
}

func (c *Context) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = Set{}
}
