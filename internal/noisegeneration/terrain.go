package noisegeneration

import (
	"math"
)

// TerrainConfig задает параметры шумов рельефа и биомов
type TerrainConfig struct {
	TerrainScale   float64
	TerrainOctaves int
	BiomeScale     float64
	BiomeOctaves   int
}

// DefaultTerrainConfig возвращает параметры по умолчанию
func DefaultTerrainConfig() TerrainConfig {
	return TerrainConfig{
		TerrainScale:   100,
		TerrainOctaves: 4,
		BiomeScale:     300,
		BiomeOctaves:   2,
	}
}

// Sample - значения шумов в одном тайле
type Sample struct {
	Terrain float64
	Biome   float64
}

// TerrainNoise выдает значения рельефа (сид) и биома (сид+1) по мировым координатам тайла
type TerrainNoise struct {
	terrain *NoiseMap
	biome   *NoiseMap
	samples *LRUCache[int64, Sample]
}

// NewTerrainNoise создает генератор выборок рельефа
func NewTerrainNoise(seed int64, cfg TerrainConfig) *TerrainNoise {
	if cfg.TerrainScale <= 0 || cfg.BiomeScale <= 0 {
		cfg = DefaultTerrainConfig()
	}
	return &TerrainNoise{
		terrain: NewNoiseMap(seed, 1/cfg.TerrainScale, cfg.TerrainOctaves),
		biome:   NewNoiseMap(seed+1, 1/cfg.BiomeScale, cfg.BiomeOctaves),
		samples: NewLRUCache[int64, Sample](defaultCacheSize * 4),
	}
}

func sampleKey(x, y int32) int64 {
	return (int64(x) << 32) | (int64(y) & 0xFFFFFFFF)
}

// round5 округляет до пяти знаков, пороги классификации заданы с этой точностью
func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

// At возвращает выборку шумов для тайла
func (tn *TerrainNoise) At(x, y int32) Sample {
	key := sampleKey(x, y)
	if s, ok := tn.samples.Get(key); ok {
		return s
	}
	s := Sample{
		Terrain: round5(tn.terrain.Get2D(float64(x), float64(y))),
		Biome:   round5(tn.biome.Get2D(float64(x), float64(y))),
	}
	tn.samples.Put(key, s)
	return s
}

// BiomeAt возвращает биом тайла
func (tn *TerrainNoise) BiomeAt(x, y int32) Biome {
	s := tn.At(x, y)
	return ClassifyBiome(s.Terrain, s.Biome)
}

// GetCacheStats возвращает статистику всех кешей
func (tn *TerrainNoise) GetCacheStats() map[string]interface{} {
	return map[string]interface{}{
		"terrain": tn.terrain.Stats(),
		"biome":   tn.biome.Stats(),
		"samples": tn.samples.stats(),
	}
}

// ClearAllCaches очищает все кеши
func (tn *TerrainNoise) ClearAllCaches() {
	tn.terrain.ClearCache()
	tn.biome.ClearCache()
	tn.samples.Clear()
}
