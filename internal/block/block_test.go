package block_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/tileworld/internal/block"
	"github.com/annelo/tileworld/internal/gamedata"
	"github.com/annelo/tileworld/internal/inventory"
	"github.com/annelo/tileworld/internal/storage"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

const (
	itemCoal      = 11
	itemIronOre   = 12
	itemIronIngot = 13
	itemWood      = 4
	itemStick     = 6
)

// fakeClock - управляемый источник времени
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func newClock() *fakeClock                   { return &fakeClock{t: time.Unix(1000, 0)} }

func loadCatalog(t *testing.T) *gamedata.Catalog {
	t.Helper()
	cat, err := gamedata.Load()
	require.NoError(t, err)
	return cat
}

func TestChestPutAndTake(t *testing.T) {
	cat := loadCatalog(t)
	chest := block.NewChest(wt.TilePosition{X: 1, Y: 2}, cat)
	player := inventory.New(inventory.PlayerSlots, cat)
	player.Add(wt.ItemStack{ID: itemWood, Count: 10})

	ev, err := chest.OnInteract("p1", block.ActionPut, block.Request{Inventory: player, Slot: 0, Count: 4})
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, wt.EventTileEntityUpdated, ev.Type)
	assert.Equal(t, "chest", ev.Payload["kind"])
	assert.Equal(t, 6, player.Count(itemWood), "в инвентаре игрока должно остаться 6 дерева")
	assert.Equal(t, 4, chest.Inventory().Count(itemWood))

	// Без количества забирается вся стопка
	_, err = chest.OnInteract("p1", block.ActionTake, block.Request{Inventory: player, Slot: 0})
	require.NoError(t, err)
	assert.Equal(t, 10, player.Count(itemWood))
	assert.Equal(t, 0, chest.Inventory().Count(itemWood))

	_, err = chest.OnInteract("p1", block.ActionTake, block.Request{Inventory: player, Slot: 0})
	assert.ErrorIs(t, err, block.ErrInteractionFailed, "пустой слот сундука")

	_, err = chest.OnInteract("p1", block.ActionPut, block.Request{Slot: 0})
	assert.ErrorIs(t, err, block.ErrInteractionFailed, "без инвентаря класть нечего")

	_, err = chest.OnInteract("p1", "smash", block.Request{})
	assert.ErrorIs(t, err, block.ErrUnknownAction)
}

func TestChestSpill(t *testing.T) {
	cat := loadCatalog(t)
	chest := block.NewChest(wt.TilePosition{}, cat)
	chest.Inventory().Add(wt.ItemStack{ID: itemStick, Count: 3})
	chest.Inventory().Add(wt.ItemStack{ID: itemCoal, Count: 64})

	spilled := chest.Spill()
	assert.ElementsMatch(t, []wt.ItemStack{{ID: itemStick, Count: 3}, {ID: itemCoal, Count: 64}}, spilled)
	assert.True(t, chest.Inventory().Empty(), "после высыпания сундук пуст")
}

func TestSignText(t *testing.T) {
	sign := block.NewSign(wt.TilePosition{X: 5, Y: 5})

	_, err := sign.OnInteract("p1", block.ActionWrite, block.Request{Text: "Привет"})
	require.NoError(t, err)
	assert.Equal(t, "Привет", sign.Text())

	sign.SetText(strings.Repeat("ж", block.MaxSignText+30))
	assert.Equal(t, block.MaxSignText, len([]rune(sign.Text())), "текст обрезается по символам, а не по байтам")

	ev, err := sign.OnInteract("p1", block.ActionRead, block.Request{})
	require.NoError(t, err)
	assert.Equal(t, sign.Text(), ev.Payload["text"])
}

func TestFurnaceSmelting(t *testing.T) {
	cat := loadCatalog(t)
	clock := newClock()
	furnace := block.NewFurnace(wt.TilePosition{}, cat, 5*time.Second, clock.Now())

	player := inventory.New(inventory.PlayerSlots, cat)
	player.Add(wt.ItemStack{ID: itemIronOre, Count: 2})
	player.Add(wt.ItemStack{ID: itemCoal, Count: 1})
	player.Add(wt.ItemStack{ID: itemStick, Count: 1})

	_, err := furnace.OnInteract("p1", block.ActionPutFuel, block.Request{Inventory: player, Slot: 0})
	assert.ErrorIs(t, err, block.ErrInteractionFailed, "руда не является топливом")
	_, err = furnace.OnInteract("p1", block.ActionPutInput, block.Request{Inventory: player, Slot: 1})
	assert.ErrorIs(t, err, block.ErrInteractionFailed, "уголь не плавится")

	_, err = furnace.OnInteract("p1", block.ActionPutInput, block.Request{Inventory: player, Slot: 0})
	require.NoError(t, err)
	_, err = furnace.OnInteract("p1", block.ActionPutFuel, block.Request{Inventory: player, Slot: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, player.Count(itemIronOre))
	assert.Equal(t, 0, player.Count(itemCoal))

	clock.Advance(4 * time.Second)
	furnace.Tick(clock.Now())
	assert.True(t, furnace.Burning(), "уголь должен гореть")
	_, _, out := furnace.Slots()
	assert.True(t, out.Empty(), "за 4 секунды слиток еще не готов")

	clock.Advance(time.Second)
	assert.True(t, furnace.Tick(clock.Now()))
	in, fuel, out := furnace.Slots()
	assert.Equal(t, wt.ItemStack{ID: itemIronOre, Count: 1}, in)
	assert.True(t, fuel.Empty(), "единственный уголь израсходован при розжиге")
	assert.Equal(t, wt.ItemStack{ID: itemIronIngot, Count: 1}, out)

	// Длинный шаг переплавляет оставшееся сразу
	clock.Advance(20 * time.Second)
	furnace.Tick(clock.Now())
	in, _, out = furnace.Slots()
	assert.True(t, in.Empty())
	assert.Equal(t, 2, out.Count)

	_, err = furnace.OnInteract("p1", block.ActionTakeOutput, block.Request{Inventory: player})
	require.NoError(t, err)
	assert.Equal(t, 2, player.Count(itemIronIngot))

	_, err = furnace.OnInteract("p1", block.ActionTakeOutput, block.Request{Inventory: player})
	assert.ErrorIs(t, err, block.ErrInteractionFailed)
}

func TestFurnaceDoesNotBurnWithoutInput(t *testing.T) {
	cat := loadCatalog(t)
	clock := newClock()
	furnace := block.NewFurnace(wt.TilePosition{}, cat, 0, clock.Now())

	player := inventory.New(inventory.PlayerSlots, cat)
	player.Add(wt.ItemStack{ID: itemCoal, Count: 3})
	_, err := furnace.OnInteract("p1", block.ActionPutFuel, block.Request{Inventory: player, Slot: 0})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	furnace.Tick(clock.Now())
	_, fuel, _ := furnace.Slots()
	assert.Equal(t, 3, fuel.Count, "без сырья топливо не тратится")
	assert.False(t, furnace.Burning())
}

func TestManagerCreateAndRemove(t *testing.T) {
	cat := loadCatalog(t)
	m := block.NewManager(cat)
	pos := wt.TilePosition{X: -3, Y: 7}

	assert.True(t, m.HasFactory(wt.TileChest))
	assert.False(t, m.HasFactory(wt.TileRock))

	_, err := m.Create(pos, wt.TileRock)
	assert.ErrorIs(t, err, block.ErrInvalidTileType)

	te, err := m.Create(pos, wt.TileChest)
	require.NoError(t, err)
	assert.Equal(t, block.KindChest, te.Kind())
	_, err = m.Create(pos, wt.TileSign)
	assert.ErrorIs(t, err, block.ErrTileEntityExists, "в клетке может быть только одна сущность")

	te.(*block.Chest).Inventory().Add(wt.ItemStack{ID: itemWood, Count: 5})
	assert.Len(t, m.InChunk(pos.Chunk()), 1)
	assert.Empty(t, m.InChunk(wt.ChunkPosition{X: 5, Y: 5}))

	spilled := m.Remove(pos)
	assert.Equal(t, []wt.ItemStack{{ID: itemWood, Count: 5}}, spilled)
	assert.Equal(t, 0, m.Count())
	assert.Nil(t, m.Remove(pos), "повторное удаление ничего не возвращает")
}

func TestManagerInteract(t *testing.T) {
	cat := loadCatalog(t)
	m := block.NewManager(cat)
	pos := wt.TilePosition{X: 1, Y: 1}

	_, err := m.Interact("p1", pos, block.ActionOpen, block.Request{})
	assert.ErrorIs(t, err, block.ErrTileEntityMissing)

	_, err = m.Create(pos, wt.TileSign)
	require.NoError(t, err)
	ev, err := m.Interact("p1", pos, block.ActionWrite, block.Request{Text: "дом"})
	require.NoError(t, err)
	assert.Equal(t, "p1", ev.PlayerID)

	select {
	case got := <-m.Events():
		assert.Equal(t, ev, got, "событие взаимодействия должно уйти в канал")
	default:
		t.Fatal("канал событий пуст")
	}
}

func TestManagerTicksFurnaces(t *testing.T) {
	cat := loadCatalog(t)
	clock := newClock()
	m := block.NewManager(cat, block.WithClock(clock.Now), block.WithSmeltTime(time.Second))
	pos := wt.TilePosition{X: 2, Y: 2}

	te, err := m.Create(pos, wt.TileFurnace)
	require.NoError(t, err)
	assert.Equal(t, 1, m.QueueLen(), "печь должна попасть в очередь обновлений")

	player := inventory.New(inventory.PlayerSlots, cat)
	player.Add(wt.ItemStack{ID: itemIronOre, Count: 1})
	player.Add(wt.ItemStack{ID: itemWood, Count: 1})
	_, err = m.Interact("p1", pos, block.ActionPutInput, block.Request{Inventory: player, Slot: 0})
	require.NoError(t, err)
	_, err = m.Interact("p1", pos, block.ActionPutFuel, block.Request{Inventory: player, Slot: 1})
	require.NoError(t, err)

	assert.Equal(t, 0, m.Tick(), "время еще не пришло")

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1, m.Tick())
	_, _, out := te.(*block.Furnace).Slots()
	assert.Equal(t, wt.ItemStack{ID: itemIronIngot, Count: 1}, out)
	assert.Equal(t, 1, m.QueueLen(), "после обновления печь перепланируется")

	// Удаленная печь выпадает из расписания
	m.Remove(pos)
	clock.Advance(time.Second)
	assert.Equal(t, 0, m.Tick())
	assert.Equal(t, 0, m.QueueLen())
}

func TestManagerSnapshotRestore(t *testing.T) {
	cat := loadCatalog(t)
	m := block.NewManager(cat)

	chest, err := m.Create(wt.TilePosition{X: 0, Y: 0}, wt.TileChest)
	require.NoError(t, err)
	chest.(*block.Chest).Inventory().Add(wt.ItemStack{ID: itemCoal, Count: 7})

	sign, err := m.Create(wt.TilePosition{X: 1, Y: 0}, wt.TileSign)
	require.NoError(t, err)
	sign.(*block.Sign).SetText("склад")

	_, err = m.Create(wt.TilePosition{X: 0, Y: 1}, wt.TileFurnace)
	require.NoError(t, err)

	snap := storage.NewEntitySnapshot()
	m.Snapshot(snap)
	require.Len(t, snap.Chests, 1)
	require.Len(t, snap.Signs, 1)
	require.Len(t, snap.Furnaces, 1)

	restored := block.NewManager(cat)
	assert.Equal(t, 3, restored.Restore(snap))
	assert.Equal(t, 3, restored.Count())

	te, ok := restored.Get(wt.TilePosition{X: 0, Y: 0})
	require.True(t, ok)
	assert.Equal(t, 7, te.(*block.Chest).Inventory().Count(itemCoal))
	assert.False(t, te.HasChanges(), "восстановленная сущность не считается измененной")

	te, ok = restored.Get(wt.TilePosition{X: 1, Y: 0})
	require.True(t, ok)
	assert.Equal(t, "склад", te.(*block.Sign).Text())

	assert.Equal(t, 0, restored.Restore(snap), "повторное восстановление ничего не создает")
}
