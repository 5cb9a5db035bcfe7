package types

// MediaType classifies a media file by extension
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
	MediaTypeOther MediaType = "other"
)

// SizeVariant is one width-bounded rendition of an image
type SizeVariant struct {
	Suffix     string `json:"suffix"`
	OutputPath string `json:"outputPath"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Size       int64  `json:"size"`
}

// MediaMetadata describes a media file and its primary output.
// Hash is computed over the original bytes.
type MediaMetadata struct {
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Format       string `json:"format"`
	Size         int64  `json:"size"`
	OriginalSize int64  `json:"originalSize"`
	Hash         string `json:"hash"`
}

// ProcessedMedia is the finalized record for one media file
type ProcessedMedia struct {
	OriginalPath string        `json:"originalPath"`
	OutputPath   string        `json:"outputPath"`
	FileName     string        `json:"fileName"`
	Type         MediaType     `json:"type"`
	Metadata     MediaMetadata `json:"metadata"`
	Sizes        []SizeVariant `json:"sizes,omitempty"`
	Embedding    []float32     `json:"embedding,omitempty"`
}

// Transcoded reports whether this media went through the image processor
// rather than being copied verbatim.
func (m *ProcessedMedia) Transcoded() bool {
	return m.Type == MediaTypeImage && m.Metadata.Width > 0 && m.Metadata.Height > 0
}
