package noisegeneration_test

import (
	"math"
	"testing"

	"github.com/annelo/tileworld/internal/noisegeneration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoiseMapDeterministic(t *testing.T) {
	a := noisegeneration.NewNoiseMap(42, 0.01, 3)
	b := noisegeneration.NewNoiseMap(42, 0.01, 3)

	for i := 0; i < 50; i++ {
		x, y := float64(i*7), float64(i*13-100)
		assert.Equal(t, a.Get2D(x, y), b.Get2D(x, y), "одинаковый сид должен давать одинаковый шум")
	}
}

func TestNoiseMapCacheHits(t *testing.T) {
	nm := noisegeneration.NewNoiseMap(1, 0.05, 2)
	first := nm.Get2D(10, 20)
	second := nm.Get2D(10, 20)
	assert.Equal(t, first, second)

	stats := nm.Stats()
	assert.Equal(t, 1, stats["hits"], "второй запрос должен попасть в кеш")
	assert.Equal(t, 1, stats["misses"])

	nm.ClearCache()
	assert.Equal(t, 0, nm.Stats()["size"])
}

func TestTerrainSamplesRoundedToFiveDecimals(t *testing.T) {
	tn := noisegeneration.NewTerrainNoise(7, noisegeneration.DefaultTerrainConfig())
	for x := int32(-50); x < 50; x += 3 {
		for y := int32(-50); y < 50; y += 5 {
			s := tn.At(x, y)
			require.InDelta(t, math.Round(s.Terrain*1e5), s.Terrain*1e5, 1e-6, "рельеф в точке %d,%d", x, y)
			require.InDelta(t, math.Round(s.Biome*1e5), s.Biome*1e5, 1e-6, "биом в точке %d,%d", x, y)
		}
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := noisegeneration.NewLRUCache[int, string](2)
	c.Put(1, "a")
	c.Put(2, "b")
	_, _ = c.Get(1) // 1 становится самым свежим
	c.Put(3, "c")

	_, ok := c.Get(2)
	assert.False(t, ok, "самый старый ключ должен быть вытеснен")
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 2, c.Len())
}

func TestClassifyBiomeThresholds(t *testing.T) {
	cases := []struct {
		t, b float64
		want noisegeneration.Biome
	}{
		{0.0, 0.25, noisegeneration.BiomeTemperateForest},
		{0.1, 0.0, noisegeneration.BiomeTemperatePlains},
		{-0.05, -0.1, noisegeneration.BiomeSnowPlains},
		{0.19, -0.2, noisegeneration.BiomeSnowForest},
		{0.2, 0.1, noisegeneration.BiomeHills},
		{0.27, -0.1, noisegeneration.BiomeSnowHills},
		{0.3, 0.0, noisegeneration.BiomeMountains},
		{0.3, -0.01, noisegeneration.BiomeSnowMountains},
		{-0.1, -0.1, noisegeneration.BiomeFrozenLake},
		{-0.1, 0.1, noisegeneration.BiomeOcean},
		{-0.3, -0.5, noisegeneration.BiomeOcean},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, noisegeneration.ClassifyBiome(c.t, c.b), "t=%v b=%v", c.t, c.b)
	}
	assert.True(t, noisegeneration.BiomeSnowHills.Snowy())
	assert.False(t, noisegeneration.BiomeHills.Snowy())
}

func TestTerrainNoiseSamples(t *testing.T) {
	tn := noisegeneration.NewTerrainNoise(42, noisegeneration.DefaultTerrainConfig())
	s1 := tn.At(5, -9)
	s2 := tn.At(5, -9)
	assert.Equal(t, s1, s2)
	assert.Equal(t, noisegeneration.ClassifyBiome(s1.Terrain, s1.Biome), tn.BiomeAt(5, -9))

	stats := tn.GetCacheStats()
	require.Contains(t, stats, "samples")
	require.Contains(t, stats, "terrain")
}
