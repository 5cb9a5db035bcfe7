package types

// CachedMediaMetadata is media metadata computed by a previous run
type CachedMediaMetadata struct {
	Width      int           `json:"width,omitempty"`
	Height     int           `json:"height,omitempty"`
	Format     string        `json:"format"`
	Size       int64         `json:"size"`
	OutputPath string        `json:"outputPath"`
	Sizes      []SizeVariant `json:"sizes,omitempty"`
}

// CacheContext is a caller-supplied, read-only index of previously computed
// results keyed by content hash. A nil *CacheContext behaves as empty.
type CacheContext struct {
	Media           map[string]CachedMediaMetadata `json:"media,omitempty"`
	TextEmbeddings  map[string][]float32           `json:"textEmbeddings,omitempty"`
	ImageEmbeddings map[string][]float32           `json:"imageEmbeddings,omitempty"`
}

// LookupMedia returns cached media metadata for a content hash
func (c *CacheContext) LookupMedia(hash string) (CachedMediaMetadata, bool) {
	if c == nil || c.Media == nil {
		return CachedMediaMetadata{}, false
	}
	m, ok := c.Media[hash]
	return m, ok
}

// LookupTextEmbedding returns a cached text embedding for a document hash
func (c *CacheContext) LookupTextEmbedding(hash string) ([]float32, bool) {
	if c == nil || c.TextEmbeddings == nil {
		return nil, false
	}
	v, ok := c.TextEmbeddings[hash]
	return v, ok && len(v) > 0
}

// LookupImageEmbedding returns a cached image embedding for a media hash
func (c *CacheContext) LookupImageEmbedding(hash string) ([]float32, bool) {
	if c == nil || c.ImageEmbeddings == nil {
		return nil, false
	}
	v, ok := c.ImageEmbeddings[hash]
	return v, ok && len(v) > 0
}
