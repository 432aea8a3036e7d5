package savegame_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/tileworld/internal/savegame"
	"github.com/annelo/tileworld/internal/storage"
	"github.com/annelo/tileworld/internal/worldgen"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

func TestParseLegacyPlayerLine(t *testing.T) {
	ps, err := savegame.ParseLegacyPlayerLine("320:-64:0:14:24")
	require.NoError(t, err)
	assert.Equal(t, [2]float64{320, -64}, ps.Position)
	assert.Equal(t, 14, ps.Health)
	assert.Equal(t, 24, ps.MaxHealth)

	short, err := savegame.ParseLegacyPlayerLine("10:20:7")
	require.NoError(t, err)
	assert.Equal(t, 7, short.Health)
	assert.Equal(t, savegame.DefaultHealth, short.MaxHealth, "в короткой форме максимум по умолчанию")

	_, err = savegame.ParseLegacyPlayerLine("10:20")
	assert.ErrorIs(t, err, savegame.ErrBadSave)
	_, err = savegame.ParseLegacyPlayerLine("x:20:0:1:2")
	assert.ErrorIs(t, err, savegame.ErrBadSave)
}

func TestParseLegacyLevel(t *testing.T) {
	data := "64:96:0:18:20\n[[4,3],[0,0]]\n777\n128:160\n54000\n120\n"
	gs, err := savegame.ParseLegacyLevel([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, "777", gs.WorldState.Seed)
	assert.Equal(t, [2]float64{128, 160}, gs.WorldState.SpawnPoint)
	assert.Equal(t, int64(54000), gs.WorldState.GlobalTime)
	assert.Equal(t, 120, gs.WorldState.NightShade)
	assert.Equal(t, [][2]int{{4, 3}, {0, 0}}, gs.PlayerState.Inventory)
	assert.Equal(t, 18, gs.PlayerState.Health)
}

func TestSeedFromString(t *testing.T) {
	assert.Equal(t, int64(-12), savegame.SeedFromString("-12"))
	assert.Equal(t, savegame.SeedFromString("forest"), savegame.SeedFromString("forest"), "хеш стабилен")
	assert.NotEqual(t, savegame.SeedFromString("forest"), savegame.SeedFromString("desert"))
}

func sampleInfo() *storage.WorldInfo {
	return &storage.WorldInfo{
		Name:       "alpha",
		Seed:       42,
		Spawn:      wt.TilePosition{X: 3, Y: -2},
		SpawnSet:   true,
		GlobalTime: 1000,
		NightShade: 200,
	}
}

func TestBuildAndSplit(t *testing.T) {
	snap := storage.NewEntitySnapshot()
	snap.Chests = append(snap.Chests, storage.ChestRecord{Position: wt.TilePosition{X: -1, Y: 4}, Slots: [][2]int{{5, 10}}})
	snap.Signs = append(snap.Signs, storage.SignRecord{Position: wt.TilePosition{X: 2, Y: 2}, Text: "привет"})
	snap.Furnaces = append(snap.Furnaces, storage.FurnaceRecord{Position: wt.TilePosition{X: 0, Y: 0}, Fuel: [2]int{11, 2}})
	snap.Mobs = append(snap.Mobs, storage.MobRecord{MobID: 2, Position: wt.Vec2{X: 1.5, Y: 1.5}, Health: 4})
	snap.FloatingItems = append(snap.FloatingItems, storage.FloatingItemRecord{Position: wt.Vec2{X: 0.5, Y: 0.25}, Item: [2]int{6, 1}, Age: 300})

	chunk := wt.NewChunk(wt.ChunkPosition{X: 0, Y: -1})
	for i := range chunk.Cells {
		chunk.Cells[i] = wt.Cell{Ground: wt.TileGrass}
	}
	chunk.Set(4, 5, wt.Cell{Ground: wt.TileDirt, Object: wt.TileChest})

	player := &storage.PlayerState{
		ID: "p1", Position: wt.Vec2{X: 2, Y: 3}, Health: 15, MaxHealth: 20,
		Inventory: [][2]int{{4, 2}},
	}

	gs := savegame.Build(sampleInfo(), player, snap, []*wt.Chunk{chunk})
	assert.Equal(t, "42", gs.WorldState.Seed)
	assert.Equal(t, [2]float64{64, 96}, gs.PlayerState.Position, "позиции в пикселях")
	assert.Equal(t, [2]float64{3.5 * wt.TileSize, -1.5 * wt.TileSize}, gs.WorldState.SpawnPoint)
	assert.Equal(t, "привет", gs.Signs["2,2"])
	assert.Equal(t, [][2]int{{5, 10}}, gs.Chests["-1,4"])
	assert.Equal(t, []string{"07", "120"}, gs.Chunks["0,-1"][5][4])

	parts, err := gs.Split("p1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), parts.Info.Seed)
	assert.Equal(t, wt.TilePosition{X: 3, Y: -2}, parts.Info.Spawn)
	assert.True(t, parts.Info.SpawnSet)
	assert.Equal(t, wt.Vec2{X: 2, Y: 3}, parts.Player.Position)
	assert.Equal(t, int32(15), parts.Player.Health)
	assert.Equal(t, snap.Chests, parts.Entities.Chests)
	assert.Equal(t, snap.Signs, parts.Entities.Signs)
	assert.Equal(t, snap.FloatingItems[0].Position, parts.Entities.FloatingItems[0].Position)
	require.Len(t, parts.Chunks, 1)
	assert.Equal(t, chunk.Cells, parts.Chunks[0].Cells)
}

func TestBuildWithoutPlayerUsesDefaults(t *testing.T) {
	gs := savegame.Build(sampleInfo(), nil, nil, nil)
	assert.Equal(t, savegame.DefaultHealth, gs.PlayerState.Health)
	assert.Equal(t, savegame.DefaultHealth, gs.PlayerState.MaxHealth)
	assert.Len(t, gs.PlayerState.Inventory, 34, "новый игрок получает пустой инвентарь")
	assert.Equal(t, gs.WorldState.SpawnPoint, gs.PlayerState.Position)
}

func TestSplitRejectsBrokenChunk(t *testing.T) {
	gs := savegame.Build(sampleInfo(), nil, nil, nil)
	gs.Chunks["0,0"] = [][][]string{{{"01"}}}
	_, err := gs.Split("")
	assert.ErrorIs(t, err, savegame.ErrBadSave)

	gs = savegame.Build(sampleInfo(), nil, nil, nil)
	gs.Signs["oops"] = "текст"
	_, err = gs.Split("")
	assert.ErrorIs(t, err, savegame.ErrBadSave)
}

func TestExportImportThroughStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	gen := worldgen.NewGenerator(42)
	chunk := gen.GenerateChunk(wt.ChunkPosition{X: 1, Y: 1})
	chunk.Set(0, 0, wt.Cell{Ground: wt.TileGrass, Object: wt.TileWorkbench})
	untouched := gen.GenerateChunk(wt.ChunkPosition{X: 2, Y: 1})

	gs := savegame.Build(sampleInfo(), nil, nil, []*wt.Chunk{chunk, untouched})
	path := filepath.Join(dir, "export", savegame.SaveFileName)
	require.NoError(t, savegame.ExportJSON(path, gs))

	read, err := savegame.ReadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, gs.Chunks, read.Chunks)

	store, err := storage.NewBinaryStorage(filepath.Join(dir, "alpha"), "alpha", 0)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, savegame.ImportJSON(ctx, read, store, "p1"))

	chunks, err := store.ListChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []wt.ChunkPosition{{X: 1, Y: 1}}, chunks, "неизмененные чанки не сохраняются")

	delta, err := store.LoadChunk(ctx, wt.ChunkPosition{X: 1, Y: 1})
	require.NoError(t, err)
	assert.Equal(t, wt.TileWorkbench, delta.Apply(gen.GenerateChunk(wt.ChunkPosition{X: 1, Y: 1})).At(0, 0).Object)

	info, err := store.LoadWorld(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), info.Seed)
	assert.True(t, info.SpawnSet)

	ps, err := store.LoadPlayerState(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int32(savegame.DefaultHealth), ps.Health)
}

func TestReadJSONBroken(t *testing.T) {
	path := filepath.Join(t.TempDir(), savegame.SaveFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := savegame.ReadJSON(path)
	assert.ErrorIs(t, err, savegame.ErrBadSave)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, savegame.ValidateName("мой мир"))
	assert.ErrorIs(t, savegame.ValidateName(""), savegame.ErrInvalidName)
	assert.ErrorIs(t, savegame.ValidateName("  "), savegame.ErrInvalidName)
	assert.ErrorIs(t, savegame.ValidateName("a/b"), savegame.ErrInvalidName)
	assert.ErrorIs(t, savegame.ValidateName(`a\b`), savegame.ErrInvalidName)
	assert.ErrorIs(t, savegame.ValidateName(".."), savegame.ErrInvalidName)
}

type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func openCatalog(t *testing.T, root string) *savegame.Catalog {
	t.Helper()
	clock := &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cat, err := savegame.Open(root, savegame.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestCatalogCreateListDelete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	cat := openCatalog(t, root)

	first, err := cat.Create(ctx, "first", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), first.Seed)
	_, err = cat.Create(ctx, "second", 7)
	require.NoError(t, err)

	_, err = cat.Create(ctx, "first", 1)
	assert.ErrorIs(t, err, savegame.ErrWorldExists)
	_, err = cat.Create(ctx, "../evil", 1)
	assert.ErrorIs(t, err, savegame.ErrInvalidName)

	gs, err := savegame.ReadJSON(filepath.Join(root, "first", savegame.SaveFileName))
	require.NoError(t, err)
	assert.Equal(t, 255, gs.WorldState.NightShade)
	assert.Equal(t, int64(0), gs.WorldState.GlobalTime)
	assert.Len(t, gs.PlayerState.Inventory, 34)

	entries, err := cat.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Name, "последний созданный идет первым")

	require.NoError(t, cat.Touch(ctx, "first"))
	entries, err = cat.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", entries[0].Name, "после запуска мир поднимается наверх")

	require.NoError(t, cat.Delete(ctx, "second"))
	assert.False(t, cat.Exists("second"))
	assert.ErrorIs(t, cat.Delete(ctx, "second"), savegame.ErrNoSuchWorld)
	assert.ErrorIs(t, cat.Touch(ctx, "second"), savegame.ErrNoSuchWorld)
}

func TestCatalogCreateFindsSpawn(t *testing.T) {
	ctx := context.Background()
	cat := openCatalog(t, t.TempDir())

	_, err := cat.Create(ctx, "w", 42)
	require.NoError(t, err)

	store, err := cat.OpenStorage(ctx, "w", 0)
	require.NoError(t, err)
	defer store.Close()

	info, err := store.LoadWorld(ctx)
	require.NoError(t, err)
	assert.True(t, info.SpawnSet)
	assert.Equal(t, int64(42), info.Seed, "сид берется из каталога")

	want, err := worldgen.NewGenerator(42).FindSpawn(ctx, 16)
	require.NoError(t, err)
	assert.Equal(t, want, info.Spawn)
}

func TestCatalogDiscoversForeignSaves(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	cat := openCatalog(t, root)

	gs := savegame.Build(sampleInfo(), nil, nil, nil)
	require.NoError(t, savegame.ExportJSON(filepath.Join(root, "copied", savegame.SaveFileName), gs))

	legacyDir := filepath.Join(root, "old")
	require.NoError(t, os.MkdirAll(legacyDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(legacyDir, savegame.LegacyFileName), []byte("0:0:20\n[]\n99\n"), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	entries, err := cat.List(ctx)
	require.NoError(t, err)
	names := make(map[string]int64)
	for _, e := range entries {
		names[e.Name] = e.Seed
	}
	assert.Equal(t, map[string]int64{"copied": 42, "old": 99}, names, "пустая директория не считается миром")

	store, err := cat.OpenStorage(ctx, "copied", 0)
	require.NoError(t, err)
	defer store.Close()
	info, err := store.LoadWorld(ctx)
	require.NoError(t, err)
	assert.Equal(t, wt.TilePosition{X: 3, Y: -2}, info.Spawn, "save.json импортирован при первом открытии")
	assert.Equal(t, int64(1000), info.GlobalTime)

	require.NoError(t, os.RemoveAll(legacyDir))
	entries, err = cat.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "удаленный вручную мир пропадает из каталога")
}

func TestCatalogBackup(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	cat := openCatalog(t, root)

	assert.Error(t, cat.Backup("none"))

	_, err := cat.Create(ctx, "w", 1)
	require.NoError(t, err)
	require.NoError(t, cat.Backup("w"))

	orig, err := os.ReadFile(filepath.Join(root, "w", savegame.SaveFileName))
	require.NoError(t, err)
	backup, err := os.ReadFile(filepath.Join(root, "w", savegame.SaveFileName+savegame.BackupSuffix))
	require.NoError(t, err)
	assert.Equal(t, orig, backup)
}

func TestCatalogReopenKeepsIndex(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	cat, err := savegame.Open(root)
	require.NoError(t, err)
	_, err = cat.Create(ctx, "w", 5)
	require.NoError(t, err)
	require.NoError(t, cat.Close())

	again := openCatalog(t, root)
	e, err := again.Get(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, int64(5), e.Seed)
}
