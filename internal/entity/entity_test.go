package entity_test

import (
	"math/rand"
	"testing"

	"github.com/annelo/tileworld/internal/entity"
	"github.com/annelo/tileworld/internal/gamedata"
	"github.com/annelo/tileworld/internal/storage"
	wt "github.com/annelo/tileworld/internal/worldtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTerrain - бесконечное поле травы с отдельными заданными клетками
type fakeTerrain struct {
	ground wt.Cell
	cells  map[wt.TilePosition]wt.Cell
}

func newTerrain() *fakeTerrain {
	return &fakeTerrain{ground: wt.Cell{Ground: wt.TileGrass}, cells: make(map[wt.TilePosition]wt.Cell)}
}

func (f *fakeTerrain) Cell(t wt.TilePosition) (wt.Cell, error) {
	if c, ok := f.cells[t]; ok {
		return c, nil
	}
	return f.ground, nil
}

func (f *fakeTerrain) WalkGrid(center wt.ChunkPosition) ([][]uint8, wt.TilePosition) {
	origin := wt.ChunkPosition{X: center.X - 3, Y: center.Y - 3}.Origin()
	const size = 6 * wt.ChunkSize
	grid := make([][]uint8, size)
	for y := range grid {
		grid[y] = make([]uint8, size)
		for x := range grid[y] {
			c, _ := f.Cell(wt.TilePosition{X: origin.X + int32(x), Y: origin.Y + int32(y)})
			if c.Walkable() {
				grid[y][x] = 1
			}
		}
	}
	return grid, origin
}

type harness struct {
	ctx     *entity.TickContext
	terrain *fakeTerrain
	cat     *gamedata.Catalog
	events  []wt.WorldEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat, err := gamedata.Load()
	require.NoError(t, err)

	h := &harness{terrain: newTerrain(), cat: cat}
	h.ctx = &entity.TickContext{
		Terrain:  h.terrain,
		Entities: entity.NewManager(),
		Catalog:  cat,
		Rand:     rand.New(rand.NewSource(42)),
		Settings: entity.DefaultSettings(),
		Emit:     func(ev wt.WorldEvent) { h.events = append(h.events, ev) },
	}
	return h
}

func (h *harness) addPlayer(t *testing.T, id string, pos wt.Vec2) *entity.Player {
	t.Helper()
	p := entity.NewPlayer(id, id, pos, 20, h.cat)
	require.NoError(t, h.ctx.Entities.Add(p))
	return p
}

func (h *harness) countEvents(typ wt.EventType) int {
	n := 0
	for _, ev := range h.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func openGrid(w, hgt int) [][]uint8 {
	g := make([][]uint8, hgt)
	for y := range g {
		g[y] = make([]uint8, w)
		for x := range g[y] {
			g[y][x] = 1
		}
	}
	return g
}

func TestFindPathOpenGrid(t *testing.T) {
	grid := openGrid(10, 10)
	path := entity.FindPath(grid, entity.GridPoint{X: 0, Y: 0}, entity.GridPoint{X: 6, Y: 3}, 0)
	require.NotNil(t, path)
	assert.Len(t, path, 10, "длина пути равна манхэттенскому расстоянию плюс старт")
	assert.Equal(t, entity.GridPoint{X: 0, Y: 0}, path[0])
	assert.Equal(t, entity.GridPoint{X: 6, Y: 3}, path[len(path)-1])

	for i := 1; i < len(path); i++ {
		dx := path[i].X - path[i-1].X
		dy := path[i].Y - path[i-1].Y
		assert.Equal(t, 1, dx*dx+dy*dy, "шаги только по четырем направлениям")
	}
}

func TestFindPathAroundWall(t *testing.T) {
	grid := openGrid(7, 7)
	for y := 0; y < 6; y++ {
		grid[y][3] = 0
	}
	path := entity.FindPath(grid, entity.GridPoint{X: 0, Y: 0}, entity.GridPoint{X: 6, Y: 0}, 0)
	require.NotNil(t, path)
	assert.Len(t, path, 19, "обход стены через нижний ряд")
	for _, p := range path {
		assert.Equal(t, uint8(1), grid[p.Y][p.X], "путь не проходит через стену")
	}

	grid[6][3] = 0
	assert.Nil(t, entity.FindPath(grid, entity.GridPoint{X: 0, Y: 0}, entity.GridPoint{X: 6, Y: 0}, 0), "стена сплошная")
}

func TestFindPathNodeLimit(t *testing.T) {
	grid := openGrid(50, 50)
	assert.Nil(t, entity.FindPath(grid, entity.GridPoint{X: 0, Y: 0}, entity.GridPoint{X: 49, Y: 49}, 10))
	assert.NotNil(t, entity.FindPath(grid, entity.GridPoint{X: 0, Y: 0}, entity.GridPoint{X: 49, Y: 49}, 0))
}

func TestPlayerMoveCollidesWithObjects(t *testing.T) {
	h := newHarness(t)
	h.terrain.cells[wt.TilePosition{X: 2, Y: 0}] = wt.Cell{Ground: wt.TileGrass, Object: wt.TileRock}
	p := h.addPlayer(t, "p1", wt.Vec2{X: 0.5, Y: 0.5})

	for i := 0; i < 20; i++ {
		p.Move(h.terrain, wt.Vec2{X: 1}, 0.05, h.ctx.Settings)
	}
	assert.InDelta(t, 1.6, p.Position().X, 1e-3, "игрок упирается в камень")
	assert.InDelta(t, 0.5, p.Position().Y, 1e-9)
}

func TestPlayerSlowerInWater(t *testing.T) {
	h := newHarness(t)
	h.terrain.ground = wt.Cell{Ground: wt.TileWater}
	p := h.addPlayer(t, "p1", wt.Vec2{X: 0.5, Y: 0.5})

	p.Move(h.terrain, wt.Vec2{X: 0, Y: 3}, 0.1, h.ctx.Settings)
	assert.InDelta(t, 0.75, p.Position().Y, 1e-9, "в воде скорость делится на 2")
}

func TestPlayerRegeneration(t *testing.T) {
	h := newHarness(t)
	p := h.addPlayer(t, "p1", wt.Vec2{X: 0.5, Y: 0.5})

	died, health := p.TakeDamage(5, 1000)
	assert.False(t, died)
	assert.Equal(t, 15, health)

	h.ctx.Now = 4000
	p.Update(h.ctx, 0.05)
	hp, _ := p.Health()
	assert.Equal(t, 15, hp, "после удара прошло меньше 3.5 с")

	h.ctx.Now = 4600
	p.Update(h.ctx, 0.05)
	hp, _ = p.Health()
	assert.Equal(t, 16, hp)

	h.ctx.Now = 5000
	p.Update(h.ctx, 0.05)
	hp, _ = p.Health()
	assert.Equal(t, 16, hp, "следующая единица только через RegenSpeed")
}

func TestPlayerDeathDropsHotbar(t *testing.T) {
	h := newHarness(t)
	p := h.addPlayer(t, "p1", wt.Vec2{X: 3.5, Y: 3.5})
	p.SetSpawn(wt.Vec2{X: 0.5, Y: 0.5})
	require.NoError(t, p.Inventory().SetSlot(0, wt.ItemStack{ID: 4, Count: 5}))
	require.NoError(t, p.Inventory().SetSlot(20, wt.ItemStack{ID: 16, Count: 1}))

	h.ctx.HurtPlayer(p, 25)
	assert.True(t, p.Dead())
	assert.Equal(t, 1, h.countEvents(wt.EventPlayerDied))

	items := h.ctx.Entities.FloatingItems()
	require.Len(t, items, 1, "выпадает только хотбар")
	assert.Equal(t, wt.ItemStack{ID: 4, Count: 5}, items[0].Item())
	assert.Equal(t, 1, p.Inventory().Count(16), "рюкзак остается у игрока")

	pos := p.Respawn(10)
	assert.Equal(t, wt.Vec2{X: 0.5, Y: 0.5}, pos)
	hp, max := p.Health()
	assert.Equal(t, max, hp)
	assert.False(t, p.Dead())
}

func TestMobTakeDamageAndDrop(t *testing.T) {
	h := newHarness(t)
	def, err := h.cat.Mob(0)
	require.NoError(t, err)

	m := h.ctx.SpawnMob(def, wt.Vec2{X: 5.5, Y: 5.5})
	require.NotNil(t, m)

	h.ctx.HurtMob(m, 20)
	assert.True(t, m.Alive(), "моб с большим здоровьем не умирает сразу")
	assert.Equal(t, 1, m.Health())

	h.ctx.HurtMob(m, 1)
	assert.False(t, m.Alive())

	items := h.ctx.Entities.FloatingItems()
	require.Len(t, items, 1)
	drop := items[0].Item()
	assert.Equal(t, def.Drop[0], drop.ID)
	assert.GreaterOrEqual(t, drop.Count, 1)
	assert.LessOrEqual(t, drop.Count, def.Drop[1])

	removed := h.ctx.Entities.Update(h.ctx, 0.05)
	assert.Contains(t, removed, m.ID(), "мертвый моб удаляется менеджером")
}

func TestMeleeMobAttacksPlayer(t *testing.T) {
	h := newHarness(t)
	p := h.addPlayer(t, "p1", wt.Vec2{X: 0.5, Y: 0.5})
	def, ok := h.cat.MobByName("zombie")
	require.True(t, ok)

	m := h.ctx.SpawnMob(def, wt.Vec2{X: 1.5, Y: 0.5})
	require.NotNil(t, m)

	h.ctx.Now = 500
	m.Update(h.ctx, 0.05)
	hp, _ := p.Health()
	assert.Equal(t, 20, hp, "перезарядка атаки еще не прошла")

	h.ctx.Now = 2000
	m.Update(h.ctx, 0.05)
	hp, _ = p.Health()
	assert.Equal(t, 20-def.Damage, hp)
}

func TestRangedMobShoots(t *testing.T) {
	h := newHarness(t)
	h.ctx.Settings.ProjectileSpread = 0
	p := h.addPlayer(t, "p1", wt.Vec2{X: 0.5, Y: 0.5})
	def, ok := h.cat.MobByName("skeleton")
	require.True(t, ok)

	m := h.ctx.SpawnMob(def, wt.Vec2{X: 4.5, Y: 0.5})
	require.NotNil(t, m)

	h.ctx.Now = 2000
	m.Update(h.ctx, 0.05)

	var arrow *entity.Projectile
	for _, e := range h.ctx.Entities.All() {
		if pr, ok := e.(*entity.Projectile); ok {
			arrow = pr
		}
	}
	require.NotNil(t, arrow, "скелет выпускает стрелу")
	assert.Equal(t, entity.TeamMob, arrow.Team())
	assert.Less(t, arrow.Velocity().X, 0.0, "стрела летит к игроку")

	for i := 0; i < 20 && arrow.Alive(); i++ {
		arrow.Update(h.ctx, 0.05)
	}
	assert.False(t, arrow.Alive())
	hp, _ := p.Health()
	assert.Equal(t, 20-def.Damage, hp)
}

func TestProjectileStopsAtObject(t *testing.T) {
	h := newHarness(t)
	h.terrain.cells[wt.TilePosition{X: 3, Y: 0}] = wt.Cell{Ground: wt.TileGrass, Object: wt.TileStone}

	pr := entity.NewProjectile(wt.Vec2{X: 0.5, Y: 0.5}, 0, 12, entity.TeamPlayer, 3, 0)
	require.NoError(t, h.ctx.Entities.Add(pr))
	for i := 0; i < 10 && pr.Alive(); i++ {
		pr.Update(h.ctx, 0.05)
	}
	assert.False(t, pr.Alive())
	assert.Less(t, pr.Position().X, 4.0)
}

func TestPlayerArrowHitsMob(t *testing.T) {
	h := newHarness(t)
	def, err := h.cat.Mob(1)
	require.NoError(t, err)
	m := h.ctx.SpawnMob(def, wt.Vec2{X: 3.5, Y: 0.5})

	pr := entity.NewProjectile(wt.Vec2{X: 0.5, Y: 0.5}, 0, 12, entity.TeamPlayer, 3, 0)
	require.NoError(t, h.ctx.Entities.Add(pr))
	for i := 0; i < 10 && pr.Alive(); i++ {
		pr.Update(h.ctx, 0.05)
	}
	assert.False(t, pr.Alive())
	assert.Equal(t, def.Health-3, m.Health())
}

func TestProjectileLifetime(t *testing.T) {
	h := newHarness(t)
	pr := entity.NewProjectile(wt.Vec2{X: 0.5, Y: 0.5}, 90, 1, entity.TeamPlayer, 3, 0)
	h.ctx.Now = 1000
	pr.Update(h.ctx, 0.05)
	assert.True(t, pr.Alive())
	h.ctx.Now = 2500
	pr.Update(h.ctx, 0.05)
	assert.False(t, pr.Alive(), "стрела исчезает после ProjectileLifetime")
}

func TestFloatingItemPickup(t *testing.T) {
	h := newHarness(t)
	p := h.addPlayer(t, "p1", wt.Vec2{X: 2.5, Y: 2.5})

	h.ctx.DropItem(wt.Vec2{X: 2.6, Y: 2.5}, wt.ItemStack{ID: 4, Count: 3})
	items := h.ctx.Entities.FloatingItems()
	require.Len(t, items, 1)

	items[0].Update(h.ctx, 0.05)
	assert.False(t, items[0].Alive())
	assert.Equal(t, 3, p.Inventory().Count(4))
	assert.Equal(t, 1, h.countEvents(wt.EventItemPickup))
}

func TestFloatingItemPartialPickup(t *testing.T) {
	h := newHarness(t)
	p := h.addPlayer(t, "p1", wt.Vec2{X: 2.5, Y: 2.5})
	for i := 0; i < p.Inventory().Size(); i++ {
		require.NoError(t, p.Inventory().SetSlot(i, wt.ItemStack{ID: 10, Count: 64}))
	}
	require.NoError(t, p.Inventory().SetSlot(0, wt.ItemStack{ID: 4, Count: 62}))

	fi := entity.NewFloatingItem(wt.Vec2{X: 2.5, Y: 2.5}, wt.ItemStack{ID: 4, Count: 5}, 0)
	require.NoError(t, h.ctx.Entities.Add(fi))
	fi.Update(h.ctx, 0.05)

	assert.True(t, fi.Alive(), "остаток лежит на земле")
	assert.Equal(t, wt.ItemStack{ID: 4, Count: 3}, fi.Item())
	assert.Equal(t, 64, p.Inventory().Count(4))
}

func TestDropsMergeAndCap(t *testing.T) {
	h := newHarness(t)
	h.ctx.Settings.MaxFloatingItems = 3

	h.ctx.DropItem(wt.Vec2{X: 10, Y: 10}, wt.ItemStack{ID: 4, Count: 60})
	h.ctx.Now = 1
	h.ctx.DropItem(wt.Vec2{X: 10.3, Y: 10}, wt.ItemStack{ID: 4, Count: 10})
	items := h.ctx.Entities.FloatingItems()
	require.Len(t, items, 2, "сверх стопки создается новый предмет")
	assert.Equal(t, 64, items[0].Item().Count)
	assert.Equal(t, 6, items[1].Item().Count)

	for i := 0; i < 3; i++ {
		h.ctx.Now = int64(100 * (i + 1))
		h.ctx.DropItem(wt.Vec2{X: float64(20 + 5*i), Y: 0}, wt.ItemStack{ID: 5, Count: 1})
	}
	items = h.ctx.Entities.FloatingItems()
	require.Len(t, items, 3, "лимит предметов на земле")
	for _, fi := range items {
		assert.Equal(t, 5, fi.Item().ID, "удаляются самые старые")
	}
}

func TestCleanupItemsDespawn(t *testing.T) {
	m := entity.NewManager()
	require.NoError(t, m.Add(entity.NewFloatingItem(wt.Vec2{}, wt.ItemStack{ID: 4, Count: 1}, 0)))
	require.NoError(t, m.Add(entity.NewFloatingItem(wt.Vec2{}, wt.ItemStack{ID: 5, Count: 1}, 250000)))

	removed := m.CleanupItems(310000, 300000, 200)
	assert.Len(t, removed, 1)
	items := m.FloatingItems()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Item().ID)
}

func TestDespawnChunkKeepsPlayersAndItems(t *testing.T) {
	h := newHarness(t)
	h.addPlayer(t, "p1", wt.Vec2{X: 20, Y: 3})
	def, err := h.cat.Mob(4)
	require.NoError(t, err)
	h.ctx.SpawnMob(def, wt.Vec2{X: 18, Y: 2})
	h.ctx.SpawnMob(def, wt.Vec2{X: 2, Y: 2})
	h.ctx.DropItem(wt.Vec2{X: 17, Y: 1}, wt.ItemStack{ID: 4, Count: 1})

	removed := h.ctx.Entities.DespawnChunk(wt.ChunkPosition{X: 1, Y: 0})
	assert.Len(t, removed, 1)
	assert.Len(t, h.ctx.Entities.Mobs(), 1)
	assert.Len(t, h.ctx.Entities.Players(), 1)
	assert.Len(t, h.ctx.Entities.FloatingItems(), 1)

	hostile, friendly := h.ctx.Entities.MobCounts()
	assert.Equal(t, 1, hostile)
	assert.Equal(t, 0, friendly)
}

func TestManagerSnapshotRestore(t *testing.T) {
	h := newHarness(t)
	def, err := h.cat.Mob(2)
	require.NoError(t, err)
	m := h.ctx.SpawnMob(def, wt.Vec2{X: 7.5, Y: -3.5})
	h.ctx.Now = 1000
	h.ctx.DropItem(wt.Vec2{X: 1, Y: 1}, wt.ItemStack{ID: 13, Count: 2})

	mobs, items := h.ctx.Entities.Snapshot(6000)
	require.Len(t, mobs, 1)
	require.Len(t, items, 1)
	assert.Equal(t, int64(5000), items[0].Age)

	snap := storage.NewEntitySnapshot()
	snap.Mobs, snap.FloatingItems = mobs, items
	snap.Mobs = append(snap.Mobs, storage.MobRecord{ID: "x", MobID: 99})

	other := entity.NewManager()
	n, err := other.Restore(h.cat, snap, 100000)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "неизвестный моб пропускается")

	restored, ok := other.Get(m.ID())
	require.True(t, ok)
	assert.Equal(t, wt.Vec2{X: 7.5, Y: -3.5}, restored.Position())
	fis := other.FloatingItems()
	require.Len(t, fis, 1)
	assert.Equal(t, int64(95000), fis[0].Spawned())
}

func TestFriendlyMobWanders(t *testing.T) {
	h := newHarness(t)
	def, err := h.cat.Mob(0)
	require.NoError(t, err)
	start := wt.Vec2{X: 8.5, Y: 8.5}
	m := h.ctx.SpawnMob(def, start)

	for i := 0; i < 400; i++ {
		h.ctx.Now += 50
		m.Update(h.ctx, 0.05)
	}
	assert.NotEqual(t, start, m.Position(), "моб должен куда-то уйти")
	assert.Greater(t, h.countEvents(wt.EventEntityMoved), 0)
}

func TestSpawner(t *testing.T) {
	h := newHarness(t)
	h.ctx.Settings.MaxFriendlyMobs = 1
	p := h.addPlayer(t, "p1", wt.Vec2{X: 8.5, Y: 8.5})
	sp := entity.NewSpawner(h.cat, 2, 2)

	var mob *entity.Mob
	for i := 0; i < 200 && mob == nil; i++ {
		mob = sp.Attempt(h.ctx, p, false)
	}
	require.NotNil(t, mob, "днем появляется мирный моб")
	assert.False(t, mob.Hostile())

	for i := 0; i < 50; i++ {
		assert.Nil(t, sp.Attempt(h.ctx, p, false), "лимит мирных мобов")
	}

	h.terrain.ground = wt.Cell{Ground: wt.TileGrass, Overlay: wt.TileTorch}
	for i := 0; i < 100; i++ {
		assert.Nil(t, sp.Attempt(h.ctx, p, true), "рядом с факелами враждебные мобы не появляются")
	}

	h.terrain.ground = wt.Cell{Ground: wt.TileGrass}
	var hostile *entity.Mob
	for i := 0; i < 200 && hostile == nil; i++ {
		hostile = sp.Attempt(h.ctx, p, true)
	}
	require.NotNil(t, hostile)
	assert.True(t, hostile.Hostile())
}
