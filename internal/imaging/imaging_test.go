package imaging

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repomd/vaultproc/internal/media"
	"github.com/repomd/vaultproc/internal/plugin"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func newProcessor(t *testing.T) *Processor {
	t.Helper()
	p := New()
	require.NoError(t, p.Initialize(context.Background(), plugin.NewContext(t.TempDir(), nil, nil)))
	require.True(t, p.Ready())
	return p
}

func TestCanProcess(t *testing.T) {
	p := New()
	for _, name := range []string{"a.jpg", "a.JPEG", "a.png", "a.gif", "a.webp", "a.bmp", "a.tiff"} {
		assert.True(t, p.CanProcess(name), name)
	}
	for _, name := range []string{"a.svg", "a.mp4", "a.pdf", "png"} {
		assert.False(t, p.CanProcess(name), name)
	}
}

func TestMetadata(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	writePNG(t, src, 40, 20)

	info, err := newProcessor(t).Metadata(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 40, info.Width)
	assert.Equal(t, 20, info.Height)
	assert.Equal(t, "png", info.Format)
	assert.Greater(t, info.Size, int64(0))
}

func TestProcess(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	writePNG(t, src, 200, 100)
	p := newProcessor(t)

	t.Run("primary keeps size", func(t *testing.T) {
		out := filepath.Join(dir, "out", "a.jpg")
		info, err := p.Process(context.Background(), src, out, plugin.ProcessOptions{Format: "jpeg", Quality: 80})
		require.NoError(t, err)
		assert.Equal(t, 200, info.Width)
		assert.Equal(t, 100, info.Height)
		assert.Equal(t, "jpeg", info.Format)

		st, err := os.Stat(out)
		require.NoError(t, err)
		assert.Equal(t, st.Size(), info.Size)
	})

	t.Run("downscale keeps aspect", func(t *testing.T) {
		out := filepath.Join(dir, "out", "a-sm.png")
		info, err := p.Process(context.Background(), src, out, plugin.ProcessOptions{Format: "png", MaxWidth: 50})
		require.NoError(t, err)
		assert.Equal(t, 50, info.Width)
		assert.Equal(t, 25, info.Height)
	})

	t.Run("never upscales", func(t *testing.T) {
		out := filepath.Join(dir, "out", "a-xl.png")
		info, err := p.Process(context.Background(), src, out, plugin.ProcessOptions{Format: "png", MaxWidth: 4000})
		require.NoError(t, err)
		assert.Equal(t, 200, info.Width)
	})

	t.Run("unsupported output", func(t *testing.T) {
		_, err := p.Process(context.Background(), src, filepath.Join(dir, "x.webp"), plugin.ProcessOptions{Format: "webp"})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("corrupt input", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.png")
		require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))
		_, err := p.Process(context.Background(), bad, filepath.Join(dir, "out", "bad.jpg"), plugin.ProcessOptions{Format: "jpeg"})
		assert.Error(t, err)
		_, statErr := os.Stat(filepath.Join(dir, "out", "bad.jpg"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("deterministic output", func(t *testing.T) {
		a := filepath.Join(dir, "det", "1.jpg")
		b := filepath.Join(dir, "det", "2.jpg")
		_, err := p.Process(context.Background(), src, a, plugin.ProcessOptions{Format: "jpeg", Quality: 75})
		require.NoError(t, err)
		_, err = p.Process(context.Background(), src, b, plugin.ProcessOptions{Format: "jpeg", Quality: 75})
		require.NoError(t, err)
		da, _ := os.ReadFile(a)
		db, _ := os.ReadFile(b)
		assert.Equal(t, da, db)
	})
}

func TestProcess_NotReady(t *testing.T) {
	_, err := New().Process(context.Background(), "a.png", "b.jpg", plugin.ProcessOptions{Format: "jpeg"})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video bytes"), 0o644))

	out := filepath.Join(dir, "nested", "dir", "clip.mp4")
	require.NoError(t, newProcessor(t).Copy(context.Background(), src, out))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(got))
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, "jpeg", NormalizeFormat("JPG"))
	assert.Equal(t, "jpeg", NormalizeFormat(".jpeg"))
	assert.Equal(t, "tiff", NormalizeFormat("tif"))
	assert.Equal(t, "png", NormalizeFormat("png"))
}

func TestProcess_EncodableFormats(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	writePNG(t, src, 20, 10)
	p := New()
	require.NoError(t, p.Initialize(context.Background(), plugin.NewContext("", nil, nil)))

	for _, format := range []string{"jpeg", "jpg", "png", "gif", "bmp", "tiff", "tif"} {
		t.Run(format, func(t *testing.T) {
			require.True(t, media.EncodableFormat(format))
			out := filepath.Join(dir, "out", "a."+media.FormatExtension(format))
			_, err := p.Process(context.Background(), src, out, plugin.ProcessOptions{Format: format})
			assert.NoError(t, err)
		})
	}
	assert.False(t, media.EncodableFormat("webp"))
}
