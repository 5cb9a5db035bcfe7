package embedder

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/internal/vector"
	"github.com/repomd/vaultproc/pkg/types"
)

const (
	thumbSide      = 8
	histLevels     = 4
	histSide       = 64
	ImageDimension = thumbSide*thumbSide + histLevels*histLevels*histLevels
)

// LocalImage embeds an image as a mean-centred 8x8 grayscale thumbnail
// followed by a 4x4x4 RGB histogram. Visually similar pictures produce
// vectors with high cosine similarity.
type LocalImage struct {
	ready  atomic.Bool
	logger *zap.Logger
}

var _ plugin.ImageEmbedder = (*LocalImage)(nil)

// NewLocalImage creates the local image embedder
func NewLocalImage() *LocalImage {
	return &LocalImage{logger: zap.NewNop()}
}

func (e *LocalImage) Name() string { return "local-image" }

func (e *LocalImage) Initialize(ctx context.Context, pc *plugin.Context) error {
	if pc != nil {
		e.logger = pc.LoggerFor(e)
	}
	e.ready.Store(true)
	return nil
}

func (e *LocalImage) Ready() bool { return e.ready.Load() }

func (e *LocalImage) Dimensions() int { return ImageDimension }

func (e *LocalImage) Model() string { return fmt.Sprintf("local-image-%d", ImageDimension) }

func (e *LocalImage) Embed(ctx context.Context, path string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrUnsupportedMedia, path, err)
	}
	v := embedImage(img)
	e.logger.Debug("image embedded", zap.String("path", path))
	return v, nil
}

func embedImage(img image.Image) []float32 {
	out := make([]float32, 0, ImageDimension)

	thumb := imaging.Grayscale(imaging.Resize(img, thumbSide, thumbSide, imaging.Box))
	shape := make([]float32, 0, thumbSide*thumbSide)
	var mean float32
	for i := 0; i < len(thumb.Pix); i += 4 {
		g := float32(thumb.Pix[i]) / 255
		shape = append(shape, g)
		mean += g
	}
	mean /= float32(len(shape))
	for i := range shape {
		shape[i] -= mean
	}
	out = append(out, vector.Normalize(shape)...)

	small := imaging.Resize(img, histSide, histSide, imaging.Box)
	hist := make([]float32, histLevels*histLevels*histLevels)
	for i := 0; i < len(small.Pix); i += 4 {
		r := int(small.Pix[i]) * histLevels / 256
		g := int(small.Pix[i+1]) * histLevels / 256
		b := int(small.Pix[i+2]) * histLevels / 256
		hist[(r*histLevels+g)*histLevels+b]++
	}
	out = append(out, vector.Normalize(hist)...)

	return vector.Normalize(out)
}
