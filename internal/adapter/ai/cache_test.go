package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/resume-rag/internal/domain"
)

type countingAI struct {
	embedCalls int
	embedTexts [][]string
}

func (c *countingAI) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	c.embedCalls++
	c.embedTexts = append(c.embedTexts, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func (c *countingAI) ChatJSON(_ domain.Context, _, _ string, _ int) (string, error) {
	return "{}", nil
}

func TestEmbedCache_HitsSkipBase(t *testing.T) {
	t.Parallel()

	base := &countingAI{}
	cached := NewEmbedCache(base, 10)
	ctx := context.Background()

	first, err := cached.Embed(ctx, []string{"go developer", "python developer"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, base.embedCalls)

	second, err := cached.Embed(ctx, []string{"go developer", "python developer"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, base.embedCalls)
}

func TestEmbedCache_PartialMiss(t *testing.T) {
	t.Parallel()

	base := &countingAI{}
	cached := NewEmbedCache(base, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, []string{"alpha"})
	require.NoError(t, err)

	res, err := cached.Embed(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 2, base.embedCalls)
	// only the miss goes to the base client
	assert.Equal(t, []string{"beta"}, base.embedTexts[1])
}

func TestEmbedCache_EvictsFIFO(t *testing.T) {
	t.Parallel()

	base := &countingAI{}
	cached := NewEmbedCache(base, 1)
	ctx := context.Background()

	_, err := cached.Embed(ctx, []string{"one"})
	require.NoError(t, err)
	_, err = cached.Embed(ctx, []string{"two"})
	require.NoError(t, err)
	// "one" was evicted, so this misses again
	_, err = cached.Embed(ctx, []string{"one"})
	require.NoError(t, err)
	assert.Equal(t, 3, base.embedCalls)
}

func TestNewEmbedCache_ZeroCapacityPassthrough(t *testing.T) {
	t.Parallel()

	base := &countingAI{}
	assert.Equal(t, domain.AIClient(base), NewEmbedCache(base, 0))
}
