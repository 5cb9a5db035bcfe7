// Package media processes vault media files: classification, content
// hashing, output naming, transcoding with size variants, and verbatim
// copies for files the image processor cannot handle.
package media

import (
	"path"
	"strings"

	"github.com/repomd/vaultproc/pkg/types"
)

// DefaultDir is the output subdirectory for media
const DefaultDir = "_media"

// SizeSpec is a configured size variant. Height 0 means unbounded.
type SizeSpec struct {
	Suffix string `toml:"suffix" json:"suffix"`
	Width  int    `toml:"width" json:"width"`
	Height int    `toml:"height" json:"height"`
}

// DefaultSizes are used when no variants are configured
var DefaultSizes = []SizeSpec{
	{Suffix: "xs", Width: 320},
	{Suffix: "sm", Width: 640},
	{Suffix: "md", Width: 1024},
	{Suffix: "lg", Width: 1920},
	{Suffix: "xl", Width: 3840},
}

var typeByExt = map[string]types.MediaType{
	".jpg": types.MediaTypeImage, ".jpeg": types.MediaTypeImage, ".png": types.MediaTypeImage,
	".gif": types.MediaTypeImage, ".webp": types.MediaTypeImage, ".bmp": types.MediaTypeImage,
	".tif": types.MediaTypeImage, ".tiff": types.MediaTypeImage, ".svg": types.MediaTypeImage,
	".avif": types.MediaTypeImage, ".heic": types.MediaTypeImage, ".ico": types.MediaTypeImage,

	".mp4": types.MediaTypeVideo, ".mov": types.MediaTypeVideo, ".webm": types.MediaTypeVideo,
	".mkv": types.MediaTypeVideo, ".avi": types.MediaTypeVideo, ".m4v": types.MediaTypeVideo,

	".mp3": types.MediaTypeAudio, ".wav": types.MediaTypeAudio, ".ogg": types.MediaTypeAudio,
	".flac": types.MediaTypeAudio, ".m4a": types.MediaTypeAudio, ".aac": types.MediaTypeAudio,
}

// Classify returns the media type for a file name
func Classify(name string) types.MediaType {
	if t, ok := typeByExt[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return types.MediaTypeOther
}

// PlanVariants returns the specs that would shrink an image of sourceWidth.
// A spec whose width is not strictly smaller than the source is skipped.
func PlanVariants(sourceWidth int, sizes []SizeSpec) []SizeSpec {
	var out []SizeSpec
	for _, s := range sizes {
		if s.Width > 0 && s.Width < sourceWidth {
			out = append(out, s)
		}
	}
	return out
}

// FormatExtension maps an output format to a file extension without the dot
func FormatExtension(format string) string {
	switch f := strings.ToLower(strings.TrimPrefix(format, ".")); f {
	case "jpeg", "jpg":
		return "jpg"
	case "tiff", "tif":
		return "tiff"
	default:
		return f
	}
}

// encodable lists the output formats the image processor can write
var encodable = map[string]bool{"jpg": true, "png": true, "gif": true, "bmp": true, "tiff": true}

// EncodableFormat reports whether images can be transcoded to format
func EncodableFormat(format string) bool {
	return encodable[FormatExtension(format)]
}
