package worldtypes_test

import (
	"testing"

	"github.com/annelo/tileworld/internal/worldtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileChunkConversion(t *testing.T) {
	cases := []struct {
		tile   worldtypes.TilePosition
		chunk  worldtypes.ChunkPosition
		lx, ly int
	}{
		{worldtypes.TilePosition{X: 0, Y: 0}, worldtypes.ChunkPosition{X: 0, Y: 0}, 0, 0},
		{worldtypes.TilePosition{X: 15, Y: 15}, worldtypes.ChunkPosition{X: 0, Y: 0}, 15, 15},
		{worldtypes.TilePosition{X: 16, Y: 31}, worldtypes.ChunkPosition{X: 1, Y: 1}, 0, 15},
		{worldtypes.TilePosition{X: -1, Y: -1}, worldtypes.ChunkPosition{X: -1, Y: -1}, 15, 15},
		{worldtypes.TilePosition{X: -16, Y: -17}, worldtypes.ChunkPosition{X: -1, Y: -2}, 0, 15},
	}

	for _, c := range cases {
		assert.Equal(t, c.chunk, c.tile.Chunk(), "неверный чанк для тайла %v", c.tile)
		lx, ly := c.tile.Local()
		assert.Equal(t, c.lx, lx, "неверный локальный X для тайла %v", c.tile)
		assert.Equal(t, c.ly, ly, "неверный локальный Y для тайла %v", c.tile)
		assert.Equal(t, c.tile, worldtypes.WorldTile(c.chunk, lx, ly), "обратное преобразование не совпало")
	}
}

func TestVecTileUsesFloor(t *testing.T) {
	v := worldtypes.Vec2{X: -0.5, Y: 3.99}
	assert.Equal(t, worldtypes.TilePosition{X: -1, Y: 3}, v.Tile())
	assert.Equal(t, worldtypes.ChunkPosition{X: -1, Y: 0}, v.Chunk())
}

func TestChunkKeyRoundTrip(t *testing.T) {
	pos := worldtypes.ChunkPosition{X: -3, Y: 12}
	assert.Equal(t, "-3,12", pos.Key())

	parsed, err := worldtypes.ParseChunkKey(pos.Key())
	require.NoError(t, err)
	assert.Equal(t, pos, parsed)

	_, err = worldtypes.ParseChunkKey("1;2")
	assert.Error(t, err, "ключ без запятой должен давать ошибку")
	_, err = worldtypes.ParseChunkKey("a,2")
	assert.Error(t, err)
}

func TestChebyshevDistance(t *testing.T) {
	a := worldtypes.ChunkPosition{X: 0, Y: 0}
	assert.Equal(t, int32(5), a.Distance(worldtypes.ChunkPosition{X: -5, Y: 3}))
	assert.Equal(t, int32(0), a.Distance(a))
}

func TestCellCodes(t *testing.T) {
	cell := worldtypes.Cell{Ground: worldtypes.TileGrass, Object: worldtypes.TileBush}
	assert.Equal(t, []string{"01", "111"}, cell.Codes())
	assert.False(t, cell.Walkable(), "клетка с кустом непроходима")

	torch := worldtypes.Cell{Ground: worldtypes.TileDirt, Overlay: worldtypes.TileTorch}
	assert.Equal(t, []string{"025", "07"}, torch.Codes(), "покрытие идет первым, как в старом формате")
	assert.Equal(t, worldtypes.TileTorch, torch.GroundTop())
	assert.True(t, torch.Walkable())

	restored := worldtypes.CellFromCodes([]string{"025", "07", "zz"})
	assert.Equal(t, torch, restored)

	water := worldtypes.Cell{Ground: worldtypes.TileWater}
	assert.False(t, water.Walkable(), "по воде ходить нельзя")
}

func TestTileLayers(t *testing.T) {
	assert.Equal(t, worldtypes.LayerGround, worldtypes.TileIce.Layer())
	assert.Equal(t, worldtypes.LayerOverlay, worldtypes.TileSleepingBag.Layer())
	assert.Equal(t, worldtypes.LayerObject, worldtypes.TileChest.Layer())
	assert.Equal(t, worldtypes.LayerNone, worldtypes.TileNone.Layer())

	id, ok := worldtypes.TileByCode("1p")
	require.True(t, ok)
	assert.Equal(t, worldtypes.TileRock, id)
}

func TestChunkClone(t *testing.T) {
	c := worldtypes.NewChunk(worldtypes.ChunkPosition{X: 1, Y: 2})
	c.Set(3, 4, worldtypes.Cell{Ground: worldtypes.TileGrass})

	cp := c.Clone()
	cp.Set(3, 4, worldtypes.Cell{Ground: worldtypes.TileWater})

	assert.Equal(t, worldtypes.TileGrass, c.At(3, 4).Ground, "копия не должна менять оригинал")
	assert.Len(t, c.CodeGrid(), worldtypes.ChunkSize)
}

func TestEventPriority(t *testing.T) {
	assert.Equal(t, worldtypes.PriorityHigh, worldtypes.EventPlayerHealth.Priority())
	assert.Equal(t, worldtypes.PriorityLow, worldtypes.EventEntityMoved.Priority())
	assert.Equal(t, worldtypes.PriorityNormal, worldtypes.EventTileChanged.Priority())
	assert.Equal(t, "tile_changed", worldtypes.EventTileChanged.String())
}
