// Package worldgen генерирует чанки мира по сиду: рельеф, биомы и объекты.
package worldgen

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/annelo/tileworld/internal/noisegeneration"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// ErrNoSpawn возвращается, если в зоне поиска нет подходящей клетки
var ErrNoSpawn = errors.New("не найдено место для появления игрока")

// Generator детерминированно создает чанки по сиду
type Generator struct {
	seed    int64
	noise   *noisegeneration.TerrainNoise
	workers int
}

// Option настраивает генератор
type Option func(*Generator)

// WithTerrain задает параметры шумов
func WithTerrain(cfg noisegeneration.TerrainConfig) Option {
	return func(g *Generator) {
		g.noise = noisegeneration.NewTerrainNoise(g.seed, cfg)
	}
}

// WithWorkers ограничивает число параллельных генераций
func WithWorkers(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.workers = n
		}
	}
}

// NewGenerator создает генератор мира
func NewGenerator(seed int64, opts ...Option) *Generator {
	g := &Generator{
		seed:    seed,
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.noise == nil {
		g.noise = noisegeneration.NewTerrainNoise(seed, noisegeneration.DefaultTerrainConfig())
	}
	return g
}

// Seed возвращает сид мира
func (g *Generator) Seed() int64 { return g.seed }

// Noise возвращает генератор выборок рельефа
func (g *Generator) Noise() *noisegeneration.TerrainNoise { return g.noise }

// chunkSeed смешивает сид мира с координатами чанка (splitmix64)
func (g *Generator) chunkSeed(pos wt.ChunkPosition) int64 {
	z := uint64(g.seed) ^ (uint64(uint32(pos.X)) << 32) ^ uint64(uint32(pos.Y))
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return int64(z)
}

// GenerateChunk создает чанк. Результат зависит только от сида и позиции.
func (g *Generator) GenerateChunk(pos wt.ChunkPosition) *wt.Chunk {
	rnd := rand.New(rand.NewSource(g.chunkSeed(pos)))
	chunk := wt.NewChunk(pos)

	for ly := 0; ly < wt.ChunkSize; ly++ {
		for lx := 0; lx < wt.ChunkSize; lx++ {
			tile := wt.WorldTile(pos, lx, ly)
			s := g.noise.At(tile.X, tile.Y)
			chunk.Set(lx, ly, generateCell(rnd, s))
		}
	}
	return chunk
}

// generateCell выбирает землю и объект клетки
func generateCell(rnd *rand.Rand, s noisegeneration.Sample) wt.Cell {
	biome := noisegeneration.ClassifyBiome(s.Terrain, s.Biome)

	switch biome {
	case noisegeneration.BiomeTemperateForest:
		return withChance(rnd, 11, wt.TileGrass, wt.TileBush)
	case noisegeneration.BiomeTemperatePlains:
		return withChance(rnd, 151, wt.TileGrass, wt.TileBush)
	case noisegeneration.BiomeSnowPlains:
		return withChance(rnd, 151, wt.TileIcyGrass, wt.TileIcyBush)
	case noisegeneration.BiomeSnowForest:
		return withChance(rnd, 11, wt.TileIcyGrass, wt.TileIcyBush)

	case noisegeneration.BiomeHills, noisegeneration.BiomeSnowHills:
		grass, dirt, rock := wt.TileGrass, wt.TileDirt, wt.TileRock
		if biome.Snowy() {
			grass, dirt, rock = wt.TileIcyGrass, wt.TileIcyDirt, wt.TileIcyRock
		}
		if rnd.Intn(6) == 0 {
			return wt.Cell{Ground: grass}
		}
		return withChance(rnd, 8, dirt, rock)

	case noisegeneration.BiomeMountains, noisegeneration.BiomeSnowMountains:
		cell := wt.Cell{Ground: wt.TileDirt, Object: wt.TileStone}
		if biome.Snowy() {
			cell.Ground = wt.TileIcyDirt
		}
		if rnd.Intn(16) == 0 && s.Terrain > noisegeneration.OreMinimum {
			switch {
			case rnd.Intn(21) == 0:
				cell.Object = wt.TileDiamondOre
			case rnd.Intn(4) == 0:
				cell.Object = wt.TileCoalOre
			default:
				cell.Object = wt.TileIronOre
			}
		}
		return cell

	case noisegeneration.BiomeFrozenLake:
		return wt.Cell{Ground: wt.TileIce}
	default:
		return wt.Cell{Ground: wt.TileWater}
	}
}

// withChance ставит объект с вероятностью 1/n
func withChance(rnd *rand.Rand, n int, ground, object wt.TileID) wt.Cell {
	if rnd.Intn(n) == 0 {
		return wt.Cell{Ground: ground, Object: object}
	}
	return wt.Cell{Ground: ground}
}

// GenerateArea параллельно генерирует квадрат чанков радиуса radius вокруг center.
// Результат отсортирован по (Y, X).
func (g *Generator) GenerateArea(ctx context.Context, center wt.ChunkPosition, radius int32) ([]*wt.Chunk, error) {
	if radius < 0 {
		radius = 0
	}
	side := int(radius*2 + 1)
	chunks := make([]*wt.Chunk, side*side)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)

	i := 0
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			idx := i
			pos := wt.ChunkPosition{X: center.X + dx, Y: center.Y + dy}
			i++
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				chunks[idx] = g.GenerateChunk(pos)
				return nil
			})
		}
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(chunks, func(a, b int) bool {
		pa, pb := chunks[a].Position, chunks[b].Position
		if pa.Y != pb.Y {
			return pa.Y < pb.Y
		}
		return pa.X < pb.X
	})
	return chunks, nil
}

// BiomeAt возвращает биом тайла
func (g *Generator) BiomeAt(tile wt.TilePosition) noisegeneration.Biome {
	return g.noise.BiomeAt(tile.X, tile.Y)
}

// FindSpawn ищет ближайшую к началу координат проходимую клетку с травой.
// Поиск идет кольцами чанков до maxRadius.
func (g *Generator) FindSpawn(ctx context.Context, maxRadius int32) (wt.TilePosition, error) {
	for r := int32(0); r <= maxRadius; r++ {
		if err := ctx.Err(); err != nil {
			return wt.TilePosition{}, err
		}
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if abs32(dx) != r && abs32(dy) != r {
					continue
				}
				chunk := g.GenerateChunk(wt.ChunkPosition{X: dx, Y: dy})
				for ly := 0; ly < wt.ChunkSize; ly++ {
					for lx := 0; lx < wt.ChunkSize; lx++ {
						c := chunk.At(lx, ly)
						if c.Walkable() && (c.Ground == wt.TileGrass || c.Ground == wt.TileIcyGrass) {
							return wt.WorldTile(chunk.Position, lx, ly), nil
						}
					}
				}
			}
		}
	}
	return wt.TilePosition{}, ErrNoSpawn
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
