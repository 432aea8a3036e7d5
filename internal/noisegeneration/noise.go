// Package noisegeneration содержит шум Перлина и выборки рельефа и биомов для генерации мира.
package noisegeneration

import (
	"github.com/aquilax/go-perlin"
)

const defaultCacheSize = 10000

type noiseKey struct {
	x, y float64
}

// NoiseMap - карта шума Перлина с кешем значений
type NoiseMap struct {
	perlin  *perlin.Perlin
	scale   float64 // Масштаб (чем меньше, тем более плавный ландшафт)
	octaves int     // Количество октав внутри генератора perlin
	cache   *LRUCache[noiseKey, float64]
}

// NewNoiseMap создает карту шума с заданным сидом, масштабом и числом октав
func NewNoiseMap(seed int64, scale float64, octaves int) *NoiseMap {
	if octaves < 1 {
		octaves = 1
	}
	// alpha=2 и beta=2 - как у генератора мира; n - число октав
	return &NoiseMap{
		perlin:  perlin.NewPerlin(2, 2, int32(octaves), seed),
		scale:   scale,
		octaves: octaves,
		cache:   NewLRUCache[noiseKey, float64](defaultCacheSize),
	}
}

// Get2D возвращает значение шума в точке. Октавы складывает сам perlin.
func (nm *NoiseMap) Get2D(x, y float64) float64 {
	key := noiseKey{x: x, y: y}
	if value, ok := nm.cache.Get(key); ok {
		return value
	}

	value := nm.perlin.Noise2D(x*nm.scale, y*nm.scale)
	nm.cache.Put(key, value)
	return value
}

// Scale возвращает масштаб карты
func (nm *NoiseMap) Scale() float64 { return nm.scale }

// Octaves возвращает число октав генератора
func (nm *NoiseMap) Octaves() int { return nm.octaves }

// Stats возвращает статистику кеша карты
func (nm *NoiseMap) Stats() map[string]interface{} {
	return nm.cache.stats()
}

// ClearCache очищает кеш значений шума
func (nm *NoiseMap) ClearCache() {
	nm.cache.Clear()
}
