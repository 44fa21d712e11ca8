package ai

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestLocalEmbed_DeterministicAndNormalised(t *testing.T) {
	p := newLocalEmbedProvider(64)
	v1, err := p.Embed(context.Background(), "hash-64", "WiFi not connecting", "")
	require.NoError(t, err)
	v2, err := p.Embed(context.Background(), "hash-64", "wifi not connecting", "")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.InDelta(t, 1.0, math.Sqrt(dot(v1, v1)), 1e-6)
}

func TestLocalEmbed_SharedWordsScoreHigher(t *testing.T) {
	p := newLocalEmbedProvider(256)
	vecs, err := p.EmbedBatch(context.Background(), "hash-256", []string{
		"my wifi is down",
		"wifi not connecting",
		"printer not printing",
	}, "")
	require.NoError(t, err)
	require.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestLocalEmbed_OnlyStopwordsGivesZeroVector(t *testing.T) {
	p := newLocalEmbedProvider(16)
	v, err := p.Embed(context.Background(), "", "the and of", "")
	require.NoError(t, err)
	require.Len(t, v, 16)
	require.Zero(t, dot(v, v))
}
