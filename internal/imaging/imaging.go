// Package imaging is the image-processor plugin. It decodes JPEG, PNG, GIF,
// BMP, TIFF and WebP sources and encodes JPEG, PNG, GIF, BMP or TIFF output.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/repomd/vaultproc/internal/plugin"
)

// ErrUnsupportedFormat is returned for output formats this plugin cannot encode
var ErrUnsupportedFormat = errors.New("unsupported output format")

// ErrNotReady is returned when the plugin is used before Initialize
var ErrNotReady = errors.New("image processor not initialized")

var sourceExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// Processor implements plugin.ImageProcessor. Safe for concurrent use.
type Processor struct {
	ready  atomic.Bool
	logger *zap.Logger
}

// New creates an uninitialized processor
func New() *Processor {
	return &Processor{logger: zap.NewNop()}
}

func (p *Processor) Name() string { return "imaging" }

func (p *Processor) Initialize(ctx context.Context, pc *plugin.Context) error {
	p.logger = pc.LoggerFor(p)
	p.ready.Store(true)
	return nil
}

func (p *Processor) Ready() bool { return p.ready.Load() }

func (p *Processor) Dispose() error {
	p.ready.Store(false)
	return nil
}

// CanProcess reports whether the file extension is a decodable image
func (p *Processor) CanProcess(path string) bool {
	return sourceExts[strings.ToLower(filepath.Ext(path))]
}

// Metadata reads dimensions and format without decoding pixel data
func (p *Processor) Metadata(ctx context.Context, path string) (plugin.ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return plugin.ImageInfo{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return plugin.ImageInfo{}, err
	}

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return plugin.ImageInfo{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return plugin.ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format, Size: info.Size()}, nil
}

// Process decodes input, fits it inside MaxWidth x MaxHeight without ever
// enlarging it, and writes it to output in opts.Format.
func (p *Processor) Process(ctx context.Context, input, output string, opts plugin.ProcessOptions) (plugin.ImageInfo, error) {
	if !p.Ready() {
		return plugin.ImageInfo{}, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return plugin.ImageInfo{}, err
	}

	format, err := imaging.FormatFromExtension(opts.Format)
	if err != nil {
		return plugin.ImageInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.Format)
	}

	img, err := imaging.Open(input, imaging.AutoOrientation(true))
	if err != nil {
		return plugin.ImageInfo{}, fmt.Errorf("decode %s: %w", filepath.Base(input), err)
	}

	img = fit(img, opts.MaxWidth, opts.MaxHeight)

	var encodeOpts []imaging.EncodeOption
	if opts.Quality > 0 {
		encodeOpts = append(encodeOpts, imaging.JPEGQuality(opts.Quality))
	}

	size, err := writeAtomic(output, func(w io.Writer) error {
		return imaging.Encode(w, img, format, encodeOpts...)
	})
	if err != nil {
		return plugin.ImageInfo{}, fmt.Errorf("encode %s: %w", filepath.Base(output), err)
	}

	b := img.Bounds()
	p.logger.Debug("image processed",
		zap.String("input", input),
		zap.String("output", output),
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()))

	return plugin.ImageInfo{
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: NormalizeFormat(opts.Format),
		Size:   size,
	}, nil
}

// Copy streams input to output unchanged
func (p *Processor) Copy(ctx context.Context, input, output string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(input)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	_, err = writeAtomic(output, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	})
	return err
}

// fit scales img down to the bounds, keeping aspect ratio
func fit(img image.Image, maxWidth, maxHeight int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if (maxWidth <= 0 || w <= maxWidth) && (maxHeight <= 0 || h <= maxHeight) {
		return img
	}
	if maxWidth <= 0 {
		maxWidth = w
	}
	if maxHeight <= 0 {
		maxHeight = h
	}
	return imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
}

// writeAtomic writes through a temp file in the target directory and
// renames it into place, so readers never see a partial file.
func writeAtomic(path string, write func(io.Writer) error) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return 0, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return 0, err
	}
	info, err := tmp.Stat()
	if err != nil {
		_ = tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// NormalizeFormat maps format aliases to a canonical name
func NormalizeFormat(format string) string {
	switch f := strings.ToLower(strings.TrimPrefix(format, ".")); f {
	case "jpg", "jpeg":
		return "jpeg"
	case "tif", "tiff":
		return "tiff"
	default:
		return f
	}
}

var _ plugin.ImageProcessor = (*Processor)(nil)
