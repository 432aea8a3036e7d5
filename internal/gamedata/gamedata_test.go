package gamedata_test

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/tileworld/internal/gamedata"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

func TestLoadEmbedded(t *testing.T) {
	c, err := gamedata.Load()
	require.NoError(t, err)

	bow, ok := c.Item(1)
	require.True(t, ok)
	assert.Equal(t, "bow", bow.Name)
	assert.Equal(t, 1, c.MaxStack(1))
	assert.Equal(t, gamedata.DefaultStack, c.MaxStack(999), "для неизвестного предмета стопка по умолчанию")

	wood, ok := c.ItemByName("wood")
	require.True(t, ok)
	assert.Equal(t, -1, wood.Durability, "без прочности значит бесконечно")

	chest, ok := c.ItemByName("chest")
	require.True(t, ok)
	tile, ok := chest.PlacesTile()
	require.True(t, ok)
	assert.Equal(t, wt.TileChest, tile)

	assert.Equal(t, []int{0, 1, 2}, c.MobIDs(false))
	assert.Equal(t, []int{3, 4, 5}, c.MobIDs(true))

	skeleton, err := c.Mob(4)
	require.NoError(t, err)
	assert.Equal(t, gamedata.AttackRanged, skeleton.Attack)
	_, err = c.Mob(42)
	assert.ErrorIs(t, err, gamedata.ErrUnknownMob)

	rock, ok := c.Tile(wt.TileRock)
	require.True(t, ok)
	assert.Equal(t, gamedata.ToolPickaxe, rock.Tool)
	assert.Zero(t, rock.HandHarvest, "камень рукой не добывается")
	bush, ok := c.Tile(wt.TileBush)
	require.True(t, ok)
	assert.Equal(t, 10, bush.HandHarvest, "куст можно собирать рукой")

	ms, ok := c.FuelTime(11)
	require.True(t, ok)
	assert.Equal(t, int64(40000), ms)
	out, ok := c.SmeltResult(12)
	require.True(t, ok)
	assert.Equal(t, 13, out)

	_, err = c.Recipe(len(c.Recipes()))
	assert.ErrorIs(t, err, gamedata.ErrUnknownRecipe)
}

func TestEveryPlaceableHasTileDefinition(t *testing.T) {
	c, err := gamedata.Load()
	require.NoError(t, err)

	for _, it := range c.Items() {
		tile, ok := it.PlacesTile()
		if !ok {
			continue
		}
		_, ok = c.Tile(tile)
		assert.True(t, ok, "у тайла %s нет прочности", tile)
	}
}

func diskData(t *testing.T) fstest.MapFS {
	t.Helper()
	fsys := fstest.MapFS{}
	for _, name := range []string{"items.json", "recipes.json", "mobs.json", "tiles.json", "furnace.json"} {
		raw, err := os.ReadFile(filepath.Join("data", name))
		require.NoError(t, err)
		fsys[name] = &fstest.MapFile{Data: raw}
	}
	return fsys
}

func TestSchemaRejectsBadItem(t *testing.T) {
	fsys := diskData(t)
	fsys["items.json"] = &fstest.MapFile{Data: []byte(`[{"id": 1, "name": "bow", "type": "laser", "max_stack": 1}]`)}

	_, err := gamedata.LoadFS(fsys)
	assert.Error(t, err, "тип laser не описан схемой")
}

func TestRejectsDanglingRecipe(t *testing.T) {
	fsys := diskData(t)
	fsys["recipes.json"] = &fstest.MapFile{Data: []byte(`[{"result": 500, "quantity": 1, "ingredients": [[4, 1]]}]`)}

	_, err := gamedata.LoadFS(fsys)
	assert.ErrorIs(t, err, gamedata.ErrUnknownItem)
}

func TestPlaceableRequiresPlaces(t *testing.T) {
	fsys := diskData(t)
	fsys["items.json"] = &fstest.MapFile{Data: []byte(`[{"id": 18, "name": "chest", "type": "placeable", "max_stack": 64}]`)}

	_, err := gamedata.LoadFS(fsys)
	assert.Error(t, err)
}
