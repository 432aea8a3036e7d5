package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/tileworld/internal/storage"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

func bushCell() wt.Cell {
	return wt.Cell{Ground: wt.TileGrass, Object: wt.TileBush, Damage: 3}
}

func TestDiffAndApply(t *testing.T) {
	base := wt.NewChunk(wt.ChunkPosition{X: 2, Y: -1})
	for i := range base.Cells {
		base.Cells[i] = wt.Cell{Ground: wt.TileGrass}
	}

	cur := base.Clone()
	cur.Set(1, 2, bushCell())
	cur.Set(15, 15, wt.Cell{Ground: wt.TileDirt, Overlay: wt.TileTorch})

	delta := storage.DiffChunks(base, cur)
	assert.Equal(t, 2, delta.Len(), "в дельте только измененные клетки")
	assert.True(t, delta.IsCellModified(1, 2))
	assert.False(t, delta.IsCellModified(0, 0))

	restored := delta.Apply(base)
	assert.Equal(t, cur.Cells, restored.Cells, "наложение дельты восстанавливает чанк")
	assert.Equal(t, wt.TileGrass, base.At(1, 2).Ground, "базовый чанк не меняется")
	assert.Equal(t, wt.TileNone, base.At(1, 2).Object)

	assert.True(t, delta.ResetCell(1, 2))
	assert.False(t, delta.ResetCell(1, 2), "повторный сброс ничего не меняет")
	assert.Equal(t, base.At(1, 2), delta.Cell(1, 2, base))
}

func TestRegionFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pos := wt.ChunkPosition{X: -3, Y: 5}
	rx, ry := -1, 0

	region, err := storage.NewRegionFile(dir, int32(rx), int32(ry))
	require.NoError(t, err)

	delta := storage.NewChunkDelta(pos)
	delta.SetCell(0, 0, bushCell())
	delta.SetCell(7, 9, wt.Cell{Ground: wt.TileIce})
	require.NoError(t, region.SaveChunk(delta))
	require.NoError(t, region.Close())

	reopened, err := storage.NewRegionFile(dir, int32(rx), int32(ry))
	require.NoError(t, err)
	defer reopened.Close()

	assert.True(t, reopened.HasChunk(pos))
	loaded, err := reopened.GetChunk(pos)
	require.NoError(t, err)
	assert.Equal(t, delta.Cells, loaded.Cells, "клетки должны пережить переоткрытие файла")

	_, err = reopened.GetChunk(wt.ChunkPosition{X: -4, Y: 5})
	var nf storage.ErrChunkNotFound
	assert.True(t, errors.As(err, &nf), "ожидалась ErrChunkNotFound, получено %v", err)

	require.NoError(t, reopened.DeleteChunk(pos))
	assert.False(t, reopened.HasChunk(pos))
}

func TestRegionFileRejectsForeignChunk(t *testing.T) {
	region, err := storage.NewRegionFile(t.TempDir(), 0, 0)
	require.NoError(t, err)
	defer region.Close()

	err = region.SaveChunk(storage.NewChunkDelta(wt.ChunkPosition{X: 16, Y: 0}))
	assert.Error(t, err, "чанк 16,0 лежит в другом регионе")
}

func TestRegionFileCorruptMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, storage.RegionFileName(0, 0))
	require.NoError(t, os.WriteFile(path, make([]byte, 8192), 0o644))

	_, err := storage.NewRegionFile(dir, 0, 0)
	assert.Error(t, err, "файл без сигнатуры BREG не должен открываться")
}

func TestRegionFileCompaction(t *testing.T) {
	region, err := storage.NewRegionFile(t.TempDir(), 0, 0)
	require.NoError(t, err)
	defer region.Close()

	pos := wt.ChunkPosition{X: 3, Y: 4}
	delta := storage.NewChunkDelta(pos)
	for n := 10; n <= 250; n += 10 {
		for i := 0; i < n; i++ {
			delta.SetCell(i%16, i/16, wt.Cell{Ground: wt.TileDirt, Object: wt.TileRock})
		}
		require.NoError(t, region.SaveChunk(delta))
	}

	before := region.Size()
	require.True(t, region.NeedsCompaction(), "после многих перезаписей файл должен разрастись")
	require.NoError(t, region.Compact())
	assert.Less(t, region.Size(), before)
	assert.False(t, region.NeedsCompaction())

	loaded, err := region.GetChunk(pos)
	require.NoError(t, err)
	assert.Equal(t, 250, loaded.Len(), "после компактации данные на месте")
}

func TestRegionFileCompactionFailureKeepsRegionUsable(t *testing.T) {
	region, err := storage.NewRegionFile(t.TempDir(), 0, 0)
	require.NoError(t, err)
	defer region.Close()

	pos := wt.ChunkPosition{X: 1, Y: 1}
	delta := storage.NewChunkDelta(pos)
	for n := 10; n <= 200; n += 10 {
		for i := 0; i < n; i++ {
			delta.SetCell(i%16, i/16, wt.Cell{Ground: wt.TileDirt})
		}
		require.NoError(t, region.SaveChunk(delta))
	}
	require.True(t, region.NeedsCompaction())

	restore := storage.SetRenameFile(func(string, string) error { return errors.New("диск занят") })
	err = region.Compact()
	restore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "диск занят")

	loaded, err := region.GetChunk(pos)
	require.NoError(t, err, "регион читается после неудачной компактации")
	assert.Equal(t, 200, loaded.Len())

	other := storage.NewChunkDelta(wt.ChunkPosition{X: 2, Y: 1})
	other.SetCell(0, 0, bushCell())
	require.NoError(t, region.SaveChunk(other), "в регион можно писать после неудачной компактации")

	require.NoError(t, region.Compact(), "повторная компактация проходит")
	loaded, err = region.GetChunk(pos)
	require.NoError(t, err)
	assert.Equal(t, 200, loaded.Len())
}

func TestPlayerStateCodec(t *testing.T) {
	ps := &storage.PlayerState{
		ID:        "p-1",
		Name:      "Аня",
		Position:  wt.Vec2{X: -12.25, Y: 40.5},
		Health:    7,
		MaxHealth: 20,
		Inventory: [][2]int{{5, 64}, {0, 0}, {12, 3}},
		Spawn:     wt.TilePosition{X: -100, Y: 3},
		LastSeen:  1700000000,
	}

	decoded, err := storage.UnmarshalPlayerState(storage.MarshalPlayerState(ps))
	require.NoError(t, err)
	assert.Equal(t, ps, decoded)

	_, err = storage.UnmarshalPlayerState([]byte{0x0a, 0x10, 'x'})
	assert.Error(t, err, "обрезанная строка должна давать ошибку")
}

func TestEntitySnapshotFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.json.zst")

	empty, err := storage.ReadEntitySnapshot(path)
	require.NoError(t, err, "отсутствующий файл - пустой снимок")
	assert.True(t, empty.Empty())

	snap := storage.NewEntitySnapshot()
	snap.Mobs = append(snap.Mobs, storage.MobRecord{ID: "m1", MobID: 3, Position: wt.Vec2{X: 1, Y: 2}, Health: 5})
	snap.Chests = append(snap.Chests, storage.ChestRecord{Position: wt.TilePosition{X: 4, Y: 4}, Slots: [][2]int{{1, 2}}})
	snap.Signs = append(snap.Signs, storage.SignRecord{Position: wt.TilePosition{X: -1, Y: 0}, Text: "привет"})
	require.NoError(t, storage.WriteEntitySnapshot(path, snap))

	loaded, err := storage.ReadEntitySnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap.Mobs, loaded.Mobs)
	assert.Equal(t, snap.Chests, loaded.Chests)
	assert.Equal(t, "привет", loaded.Signs[0].Text)
}

func TestBinaryStoragePersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := storage.NewBinaryStorage(dir, "test", 42)
	require.NoError(t, err)

	info, err := s.LoadWorld(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), info.Seed)
	assert.Equal(t, 255, info.NightShade, "новый мир начинается днем")

	pos := wt.ChunkPosition{X: 20, Y: -7}
	delta := storage.NewChunkDelta(pos)
	delta.SetCell(4, 4, bushCell())
	require.NoError(t, s.SaveChunk(ctx, delta))

	// Изменение исходной дельты после сохранения не должно влиять на кеш
	delta.SetCell(5, 5, bushCell())

	require.NoError(t, s.SavePlayerState(ctx, &storage.PlayerState{ID: "abc", Name: "abc", Health: 20, MaxHealth: 20}))
	require.NoError(t, s.SaveEntities(ctx, &storage.EntitySnapshot{Signs: []storage.SignRecord{{Text: "x"}}}))
	info.GlobalTime = 12345
	require.NoError(t, s.SaveWorld(ctx, info))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "повторное закрытие безопасно")

	s2, err := storage.NewBinaryStorage(dir, "ignored", 1)
	require.NoError(t, err)
	defer s2.Close()

	info2, err := s2.LoadWorld(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), info2.Seed, "сид берется из сохранения")
	assert.Equal(t, int64(12345), info2.GlobalTime)

	loaded, err := s2.LoadChunk(ctx, pos)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	assert.Equal(t, bushCell(), loaded.Cell(4, 4, wt.NewChunk(pos)))

	chunks, err := s2.ListChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []wt.ChunkPosition{pos}, chunks)

	players, err := s2.ListPlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, players)

	_, err = s2.LoadPlayerState(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrPlayerNotFound)
	_, err = s2.LoadPlayerState(ctx, "../etc")
	assert.Error(t, err)

	snap, err := s2.LoadEntities(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Signs, 1)

	require.NoError(t, s2.DeleteChunk(ctx, pos))
	_, err = s2.LoadChunk(ctx, pos)
	var nf storage.ErrChunkNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestBinaryStorageFlush(t *testing.T) {
	s, err := storage.NewBinaryStorage(t.TempDir(), "flush", 7)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for i := int32(0); i < 5; i++ {
		d := storage.NewChunkDelta(wt.ChunkPosition{X: i, Y: i})
		d.SetCell(0, 0, bushCell())
		require.NoError(t, s.SaveChunk(ctx, d))
	}
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 0, s.DirtyCount(), "после Flush грязных дельт нет")
}

func TestRegionManagerListsAcrossRegions(t *testing.T) {
	rm := storage.NewRegionManager(t.TempDir(), nil)
	defer rm.Close()

	positions := []wt.ChunkPosition{{X: 0, Y: 0}, {X: -1, Y: -1}, {X: 40, Y: 3}}
	for _, p := range positions {
		require.NoError(t, rm.SaveChunkDelta(storage.NewChunkDelta(p)))
	}

	list, err := rm.ListChunks()
	require.NoError(t, err)
	assert.ElementsMatch(t, positions, list)
	assert.Equal(t, 3, rm.OpenRegions())

	_, err = rm.GetChunkDelta(wt.ChunkPosition{X: 100, Y: 100})
	var nf storage.ErrChunkNotFound
	assert.ErrorAs(t, err, &nf, "несуществующий регион не создается при чтении")
}
