package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/annelo/tileworld/internal/noisegeneration"
	"github.com/annelo/tileworld/internal/savegame"
	"github.com/annelo/tileworld/internal/worldgen"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

var (
	seedFlag = flag.String("seed", "", "Сид мира: число или строка (пусто = текущее время)")
	originX  = flag.Int("x", 0, "Мировая координата X левого верхнего тайла")
	originY  = flag.Int("y", 0, "Мировая координата Y левого верхнего тайла")
	width    = flag.Int("w", 80, "Ширина карты в тайлах")
	height   = flag.Int("h", 40, "Высота карты в тайлах")
	mode     = flag.String("mode", "tiles", "Что рисовать: tiles или biomes")
	spawn    = flag.Bool("spawn", false, "Центрировать карту на точке появления")
)

// Символы для верхнего тайла клетки
var tileChars = map[wt.TileID]rune{
	wt.TileWater:      '~',
	wt.TileGrass:      '.',
	wt.TileDirt:       ',',
	wt.TileIce:        '=',
	wt.TileIcyGrass:   ':',
	wt.TileIcyDirt:    ';',
	wt.TileStone:      '#',
	wt.TileBush:       '%',
	wt.TileIcyBush:    '&',
	wt.TileRock:       'o',
	wt.TileIcyRock:    'O',
	wt.TileIronOre:    'i',
	wt.TileDiamondOre: 'd',
	wt.TileCoalOre:    'c',
}

// Символы для биомов
var biomeChars = map[noisegeneration.Biome]rune{
	noisegeneration.BiomeOcean:           '~',
	noisegeneration.BiomeFrozenLake:      '=',
	noisegeneration.BiomeTemperateForest: 'f',
	noisegeneration.BiomeTemperatePlains: '_',
	noisegeneration.BiomeSnowPlains:      '*',
	noisegeneration.BiomeSnowForest:      't',
	noisegeneration.BiomeHills:           'n',
	noisegeneration.BiomeSnowHills:       'N',
	noisegeneration.BiomeMountains:       '^',
	noisegeneration.BiomeSnowMountains:   'A',
}

func parseSeed(raw string) int64 {
	if raw == "" {
		return time.Now().UnixNano()
	}
	return savegame.SeedFromString(raw)
}

func main() {
	flag.Parse()
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "worldmap"})

	if *width <= 0 || *height <= 0 {
		logger.Fatal("Размеры карты должны быть положительными", "w", *width, "h", *height)
	}
	if *mode != "tiles" && *mode != "biomes" {
		logger.Fatal("Неизвестный режим", "mode", *mode)
	}

	seed := parseSeed(*seedFlag)
	gen := worldgen.NewGenerator(seed)
	origin := wt.TilePosition{X: int32(*originX), Y: int32(*originY)}
	if *spawn {
		sp, err := gen.FindSpawn(context.Background(), 16)
		if err != nil {
			logger.Fatal("Не удалось найти точку появления", "error", err)
		}
		origin = wt.TilePosition{X: sp.X - int32(*width/2), Y: sp.Y - int32(*height/2)}
		logger.Info("Точка появления", "x", sp.X, "y", sp.Y)
	}
	logger.Info("Рисуем карту", "seed", seed, "mode", *mode, "x", origin.X, "y", origin.Y, "w", *width, "h", *height)

	start := time.Now()
	chunks := make(map[wt.ChunkPosition]*wt.Chunk)
	biomes := make(map[noisegeneration.Biome]int)

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	for y := 0; y < *height; y++ {
		for x := 0; x < *width; x++ {
			tile := wt.TilePosition{X: origin.X + int32(x), Y: origin.Y + int32(y)}
			biome := gen.BiomeAt(tile)
			biomes[biome]++

			if *mode == "biomes" {
				out.WriteRune(biomeChars[biome])
				continue
			}
			pos := tile.Chunk()
			chunk, ok := chunks[pos]
			if !ok {
				chunk = gen.GenerateChunk(pos)
				chunks[pos] = chunk
			}
			lx, ly := tile.Local()
			ch, ok := tileChars[chunk.At(lx, ly).Top()]
			if !ok {
				ch = '?'
			}
			out.WriteRune(ch)
		}
		out.WriteByte('\n')
	}

	for b, n := range biomes {
		logger.Debug("Биом", "biome", b.String(), "tiles", n)
	}
	logger.Info("Готово", "chunks", len(chunks), "biomes", len(biomes), "elapsed", time.Since(start))
	logger.Info("Кеш шума", "stats", gen.Noise().GetCacheStats())
}
