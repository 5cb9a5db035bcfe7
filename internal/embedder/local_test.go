package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repomd/vaultproc/internal/vector"
)

func TestLocal(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(0)
	require.NoError(t, l.Initialize(ctx, nil))

	assert.True(t, l.Ready())
	assert.Equal(t, LocalDimension, l.Dimensions())
	assert.Equal(t, "local-hash-384", l.Model())
	assert.Equal(t, ProviderLocal, l.Name())

	t.Run("deterministic and normalized", func(t *testing.T) {
		a, err := l.Embed(ctx, "Go channels and goroutines")
		require.NoError(t, err)
		b, err := l.Embed(ctx, "Go channels and goroutines")
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.Len(t, a, LocalDimension)
		assert.InDelta(t, 1.0, vector.Cosine(a, a), 1e-6)
	})

	t.Run("shared vocabulary scores higher", func(t *testing.T) {
		vecs, err := l.BatchEmbed(ctx, []string{
			"baking sourdough bread at home with a starter",
			"a sourdough starter makes better bread at home",
			"configuring kubernetes ingress controllers",
		})
		require.NoError(t, err)
		require.Len(t, vecs, 3)

		assert.Greater(t, vector.Cosine(vecs[0], vecs[1]), vector.Cosine(vecs[0], vecs[2]))
	})

	t.Run("case and punctuation insensitive", func(t *testing.T) {
		a, _ := l.Embed(ctx, "Hello, World!")
		b, _ := l.Embed(ctx, "hello world")
		assert.Equal(t, a, b)
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := l.Embed(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyText)

		_, err = l.BatchEmbed(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("custom dimensions", func(t *testing.T) {
		small := NewLocal(16)
		v, err := small.Embed(ctx, "tiny")
		require.NoError(t, err)
		assert.Len(t, v, 16)
	})
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"café", "au", "lait", "2024"}, tokenize("Café-au-lait (2024)"))
}
