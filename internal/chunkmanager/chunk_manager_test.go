package chunkmanager_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/annelo/tileworld/internal/chunkmanager"
	"github.com/annelo/tileworld/internal/storage"
	"github.com/annelo/tileworld/internal/storage/mocks"
	"github.com/annelo/tileworld/internal/worldgen"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

func smallConfig() chunkmanager.Config {
	cfg := chunkmanager.DefaultConfig()
	cfg.RenderX = 1
	cfg.RenderY = 1
	return cfg
}

func newManager(opts ...chunkmanager.Option) *chunkmanager.ChunkManager {
	return chunkmanager.New(worldgen.NewGenerator(42), smallConfig(), opts...)
}

func TestGetOrGenerateCaches(t *testing.T) {
	cm := newManager()
	ctx := context.Background()
	pos := wt.ChunkPosition{X: 0, Y: 0}

	c1, err := cm.GetOrGenerate(ctx, pos)
	require.NoError(t, err)
	c2, err := cm.GetOrGenerate(ctx, pos)
	require.NoError(t, err)

	assert.Equal(t, c1.Cells, c2.Cells)
	assert.Equal(t, 1, cm.CachedCount(), "повторный запрос берет чанк из кеша")
	assert.Equal(t, 1, cm.Stats()["generated"])

	// Возвращается копия: ее изменение не трогает кеш
	c1.Set(0, 0, wt.Cell{Ground: wt.TileDirt, Object: wt.TileChest})
	cell, err := cm.Cell(wt.TilePosition{X: 0, Y: 0})
	require.NoError(t, err)
	assert.NotEqual(t, wt.TileChest, cell.Object)
}

func TestReloadAroundWindow(t *testing.T) {
	cm := newManager()
	ctx := context.Background()

	loaded, unloaded, err := cm.ReloadAround(ctx, wt.ChunkPosition{X: 0, Y: 0})
	require.NoError(t, err)
	assert.Len(t, loaded, 16, "окно [-2,1]x[-2,1] содержит 16 чанков")
	assert.Empty(t, unloaded)
	assert.True(t, cm.IsLoaded(wt.ChunkPosition{X: -2, Y: -2}))
	assert.False(t, cm.IsLoaded(wt.ChunkPosition{X: 2, Y: 0}))

	loaded, unloaded, err = cm.ReloadAround(ctx, wt.ChunkPosition{X: 1, Y: 0})
	require.NoError(t, err)
	assert.Len(t, loaded, 4, "при сдвиге на чанк догружается один столбец")
	assert.Len(t, unloaded, 4)
	for _, p := range unloaded {
		assert.Equal(t, int32(-2), p.X)
	}
	assert.Equal(t, 20, cm.CachedCount(), "выгруженные чанки остаются в кеше")
}

func TestReloadAroundSeveralPlayers(t *testing.T) {
	cm := newManager()
	loaded, _, err := cm.ReloadAround(context.Background(), wt.ChunkPosition{X: 0, Y: 0}, wt.ChunkPosition{X: 10, Y: 0})
	require.NoError(t, err)
	assert.Len(t, loaded, 32, "окна разных игроков объединяются")
}

func TestCleanupDistant(t *testing.T) {
	cfg := smallConfig()
	cfg.UnloadDistance = 1
	cm := chunkmanager.New(worldgen.NewGenerator(1), cfg)

	_, _, err := cm.ReloadAround(context.Background(), wt.ChunkPosition{X: 0, Y: 0})
	require.NoError(t, err)

	dropped := cm.CleanupDistant(wt.ChunkPosition{X: 0, Y: 0})
	assert.Len(t, dropped, 7, "чанки с координатой -2 дальше расстояния 1")
	assert.Len(t, cm.LoadedChunks(), 9)
	assert.Equal(t, 16, cm.CachedCount())
}

func TestModifiedChunksSurviveUnload(t *testing.T) {
	cfg := smallConfig()
	cfg.UnloadDistance = 1
	cm := chunkmanager.New(worldgen.NewGenerator(1), cfg)
	ctx := context.Background()

	_, _, err := cm.ReloadAround(ctx, wt.ChunkPosition{X: 0, Y: 0})
	require.NoError(t, err)
	tile := wt.TilePosition{X: 3, Y: 3}
	require.NoError(t, cm.SetCell(tile, wt.Cell{Ground: wt.TileDirt}))

	dropped := cm.CleanupDistant(wt.ChunkPosition{X: 10, Y: 10})
	assert.Contains(t, dropped, tile.Chunk())
	assert.False(t, cm.IsLoaded(tile.Chunk()))
	assert.Equal(t, []wt.ChunkPosition{tile.Chunk()}, cm.ModifiedChunks(), "выгруженный чанк остается измененным")
}

func TestTileOperations(t *testing.T) {
	cm := newManager()
	ctx := context.Background()
	tile := wt.TilePosition{X: -5, Y: 7}

	_, err := cm.Cell(tile)
	assert.ErrorIs(t, err, chunkmanager.ErrChunkNotLoaded)

	_, err = cm.GetOrGenerate(ctx, tile.Chunk())
	require.NoError(t, err)

	require.NoError(t, cm.SetCell(tile, wt.Cell{Ground: wt.TileGrass}))
	assert.True(t, cm.IsModified(tile.Chunk()))

	require.NoError(t, cm.PlaceOverlay(tile, wt.TileTorch))
	ground, err := cm.GroundAt(tile)
	require.NoError(t, err)
	assert.Equal(t, wt.TileTorch, ground, "покрытие считается землей")
	assert.True(t, cm.Walkable(tile), "по факелу можно ходить")

	assert.ErrorIs(t, cm.PlaceOverlay(tile, wt.TileSleepingBag), chunkmanager.ErrOccupied)

	removed, err := cm.RemoveOverlay(tile)
	require.NoError(t, err)
	assert.Equal(t, wt.TileTorch, removed)

	require.NoError(t, cm.PlaceObject(tile, wt.TileChest))
	assert.False(t, cm.Walkable(tile))
	assert.ErrorIs(t, cm.PlaceObject(tile, wt.TileFurnace), chunkmanager.ErrOccupied)
	assert.Error(t, cm.PlaceObject(tile, wt.TileTorch), "факел не объект")

	id, err := cm.RemoveObject(tile)
	require.NoError(t, err)
	assert.Equal(t, wt.TileChest, id)
	_, err = cm.RemoveObject(tile)
	assert.ErrorIs(t, err, chunkmanager.ErrNothingToRemove)

	water := wt.TilePosition{X: -6, Y: 7}
	require.NoError(t, cm.SetCell(water, wt.Cell{Ground: wt.TileWater}))
	assert.ErrorIs(t, cm.PlaceObject(water, wt.TileChest), chunkmanager.ErrInvalidPlacement)
}

func TestDamageObject(t *testing.T) {
	cm := newManager()
	tile := wt.TilePosition{X: 3, Y: 3}
	_, err := cm.GetOrGenerate(context.Background(), tile.Chunk())
	require.NoError(t, err)
	require.NoError(t, cm.SetCell(tile, wt.Cell{Ground: wt.TileDirt, Object: wt.TileRock}))

	id, broken, err := cm.DamageObject(tile, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, wt.TileRock, id)
	assert.False(t, broken)

	cell, _ := cm.Cell(tile)
	assert.Equal(t, uint8(2), cell.Damage, "урон копится в клетке")

	_, broken, err = cm.DamageObject(tile, 3, 5)
	require.NoError(t, err)
	assert.True(t, broken)
	cell, _ = cm.Cell(tile)
	assert.Equal(t, wt.TileNone, cell.Object)
	assert.Equal(t, uint8(0), cell.Damage)
}

func TestManageMemoryEvictsOldest(t *testing.T) {
	now := time.Unix(1000, 0)
	cfg := smallConfig()
	cfg.MaxCachedChunks = 2
	cfg.EvictAfter = time.Minute
	cm := chunkmanager.New(worldgen.NewGenerator(3), cfg, chunkmanager.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := int32(0); i < 5; i++ {
		_, err := cm.GetOrGenerate(ctx, wt.ChunkPosition{X: 100 + i, Y: 0})
		require.NoError(t, err)
		now = now.Add(time.Second)
	}
	modified := wt.ChunkPosition{X: 100, Y: 0}
	require.NoError(t, cm.SetCell(modified.Origin(), wt.Cell{Ground: wt.TileDirt}))

	assert.Equal(t, 0, cm.ManageMemory(ctx), "свежие чанки не вытесняются")

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 3, cm.ManageMemory(ctx))
	assert.Equal(t, 2, cm.CachedCount())

	_, ok := cm.Chunk(modified)
	assert.True(t, ok, "измененный чанк остается в памяти")
	_, ok = cm.Chunk(wt.ChunkPosition{X: 104, Y: 0})
	assert.True(t, ok, "самый свежий неизмененный чанк остается")
}

func TestManageMemoryDebugDoublesLimit(t *testing.T) {
	now := time.Unix(0, 0)
	cfg := smallConfig()
	cfg.MaxCachedChunks = 2
	cfg.EvictAfter = 0
	cfg.Debug = true
	cm := chunkmanager.New(worldgen.NewGenerator(3), cfg, chunkmanager.WithClock(func() time.Time { return now }))

	for i := int32(0); i < 4; i++ {
		_, err := cm.GetOrGenerate(context.Background(), wt.ChunkPosition{X: i, Y: 50})
		require.NoError(t, err)
	}
	assert.Equal(t, 0, cm.ManageMemory(context.Background()), "в отладке порог удвоен")
}

func TestSaveDirtyWritesDelta(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockWorldStorage(ctrl)
	pos := wt.ChunkPosition{X: 2, Y: 2}

	st.EXPECT().LoadChunk(gomock.Any(), pos).Return(nil, storage.ErrChunkNotFound{X: 2, Y: 2})
	st.EXPECT().SaveChunk(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, d *storage.ChunkDelta) error {
		assert.Equal(t, pos, d.ChunkPos)
		assert.Equal(t, 1, d.Len(), "в дельту попадает только измененная клетка")
		assert.Equal(t, wt.TileSign, d.Cells[0].Object)
		return nil
	})

	var savedHook []wt.ChunkPosition
	cm := newManager(chunkmanager.WithStorage(st), chunkmanager.WithSaveHook(func(p wt.ChunkPosition) {
		savedHook = append(savedHook, p)
	}))
	ctx := context.Background()
	_, err := cm.GetOrGenerate(ctx, pos)
	require.NoError(t, err)
	require.NoError(t, cm.SetCell(pos.Origin(), wt.Cell{Ground: wt.TileGrass, Object: wt.TileSign}))

	n, err := cm.SaveDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []wt.ChunkPosition{pos}, savedHook)

	n, err = cm.SaveDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "после сохранения грязных чанков нет")
}

func TestLoadAppliesStoredDelta(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockWorldStorage(ctrl)
	pos := wt.ChunkPosition{X: -1, Y: 4}

	delta := storage.NewChunkDelta(pos)
	delta.SetCell(5, 6, wt.Cell{Ground: wt.TileDirt, Object: wt.TileFurnace})
	st.EXPECT().LoadChunk(gomock.Any(), pos).Return(delta, nil)

	generated := 0
	cm := newManager(chunkmanager.WithStorage(st), chunkmanager.WithGenerateHook(func(*wt.Chunk) { generated++ }))
	chunk, err := cm.GetOrGenerate(context.Background(), pos)
	require.NoError(t, err)

	assert.Equal(t, wt.TileFurnace, chunk.At(5, 6).Object)
	assert.Equal(t, 0, generated, "загруженный чанк не считается новым")
	assert.Equal(t, 1, cm.Stats()["from_storage"])
}

func TestWalkGrid(t *testing.T) {
	cm := newManager()
	center := wt.ChunkPosition{X: 0, Y: 0}
	_, _, err := cm.ReloadAround(context.Background(), center)
	require.NoError(t, err)

	grid, origin := cm.WalkGrid(center)
	assert.Equal(t, wt.TilePosition{X: -32, Y: -32}, origin)
	require.Len(t, grid, 64)
	assert.Len(t, grid[0], 64)

	require.NoError(t, cm.SetCell(origin, wt.Cell{Ground: wt.TileGrass, Object: wt.TileStone}))
	require.NoError(t, cm.SetCell(wt.TilePosition{X: -31, Y: -32}, wt.Cell{Ground: wt.TileGrass}))
	grid, _ = cm.WalkGrid(center)
	assert.Equal(t, uint8(0), grid[0][0])
	assert.Equal(t, uint8(1), grid[0][1])
}
