package worldgen_test

import (
	"context"
	"testing"

	"github.com/annelo/tileworld/internal/worldgen"
	wt "github.com/annelo/tileworld/internal/worldtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateChunkDeterministic(t *testing.T) {
	pos := wt.ChunkPosition{X: 3, Y: -2}

	a := worldgen.NewGenerator(42).GenerateChunk(pos)
	g := worldgen.NewGenerator(42)
	// Порядок генерации не должен влиять на результат
	g.GenerateChunk(wt.ChunkPosition{X: 0, Y: 0})
	g.GenerateChunk(wt.ChunkPosition{X: 4, Y: -2})
	b := g.GenerateChunk(pos)

	assert.Equal(t, a.Cells, b.Cells, "чанк должен зависеть только от сида и позиции")
	assert.Equal(t, pos, a.Position)
}

func TestDifferentSeedsDiffer(t *testing.T) {
	pos := wt.ChunkPosition{X: 0, Y: 0}
	a := worldgen.NewGenerator(1)
	b := worldgen.NewGenerator(2)

	same := true
	for x := int32(0); x < 8 && same; x++ {
		ca := a.GenerateChunk(wt.ChunkPosition{X: pos.X + x*10, Y: 0})
		cb := b.GenerateChunk(wt.ChunkPosition{X: pos.X + x*10, Y: 0})
		same = ca.Cells == cb.Cells
	}
	assert.False(t, same, "разные сиды должны давать разные миры")
}

func TestGeneratedCellsAreConsistent(t *testing.T) {
	g := worldgen.NewGenerator(1337)
	chunks, err := g.GenerateArea(context.Background(), wt.ChunkPosition{}, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 25)

	for _, c := range chunks {
		for i, cell := range c.Cells {
			require.Equal(t, wt.LayerGround, cell.Ground.Layer(), "у каждой клетки должна быть земля (чанк %v, клетка %d)", c.Position, i)
			if cell.Object != wt.TileNone {
				require.Equal(t, wt.LayerObject, cell.Object.Layer())
				require.NotEqual(t, wt.TileWater, cell.Ground, "объекты не генерируются на воде")
			}
			assert.Equal(t, wt.TileNone, cell.Overlay, "генератор не ставит покрытия")
		}
	}
}

func TestGenerateAreaMatchesSingleChunks(t *testing.T) {
	g := worldgen.NewGenerator(99, worldgen.WithWorkers(3))
	center := wt.ChunkPosition{X: -1, Y: 5}
	chunks, err := g.GenerateArea(context.Background(), center, 1)
	require.NoError(t, err)
	require.Len(t, chunks, 9)

	assert.Equal(t, wt.ChunkPosition{X: -2, Y: 4}, chunks[0].Position, "первым идет левый верхний чанк")
	assert.Equal(t, wt.ChunkPosition{X: 0, Y: 6}, chunks[8].Position)

	single := worldgen.NewGenerator(99)
	for _, c := range chunks {
		assert.Equal(t, single.GenerateChunk(c.Position).Cells, c.Cells)
	}
}

func TestGenerateAreaCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := worldgen.NewGenerator(5).GenerateArea(ctx, wt.ChunkPosition{}, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindSpawnIsWalkableGrass(t *testing.T) {
	g := worldgen.NewGenerator(42)
	tile, err := g.FindSpawn(context.Background(), 16)
	require.NoError(t, err)

	chunk := g.GenerateChunk(tile.Chunk())
	lx, ly := tile.Local()
	cell := chunk.At(lx, ly)
	assert.True(t, cell.Walkable(), "точка появления должна быть проходимой")
	assert.Contains(t, []wt.TileID{wt.TileGrass, wt.TileIcyGrass}, cell.Ground)
}
