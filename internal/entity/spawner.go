package entity

import (
	"github.com/annelo/tileworld/internal/gamedata"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// spawnSafeRadius - ближе этого расстояния (в тайлах) к игроку мобы не появляются
const spawnSafeRadius = 8

// Spawner выбирает место и вид моба для появления рядом с игроками
type Spawner struct {
	catalog  *gamedata.Catalog
	hostile  []int
	friendly []int
	renderX  int32
	renderY  int32
}

// NewSpawner создает спаунер для окна загрузки renderX x renderY чанков
func NewSpawner(cat *gamedata.Catalog, renderX, renderY int32) *Spawner {
	return &Spawner{
		catalog:  cat,
		hostile:  cat.MobIDs(true),
		friendly: cat.MobIDs(false),
		renderX:  renderX,
		renderY:  renderY,
	}
}

// Attempt делает одну попытку заспаунить моба возле игрока.
// Ночью появляются враждебные мобы вдали от факелов, днем мирные.
func (s *Spawner) Attempt(ctx *TickContext, p *Player, night bool) *Mob {
	if ctx.Terrain == nil || ctx.Entities == nil || p.Dead() {
		return nil
	}

	hostile, friendly := ctx.Entities.MobCounts()
	pool := s.friendly
	if night {
		if hostile >= ctx.Settings.MaxHostileMobs {
			return nil
		}
		pool = s.hostile
	} else if friendly >= ctx.Settings.MaxFriendlyMobs {
		return nil
	}
	if len(pool) == 0 {
		return nil
	}

	tile, ok := s.pickTile(ctx, p)
	if !ok {
		return nil
	}
	if night && s.torchNearby(ctx.Terrain, tile, ctx.Settings.TorchRadius) {
		return nil
	}

	def, err := s.catalog.Mob(pool[ctx.Rand.Intn(len(pool))])
	if err != nil {
		return nil
	}
	return ctx.SpawnMob(def, tile.Center())
}

// pickTile выбирает случайный тайл в окне загрузки игрока вне безопасной зоны
func (s *Spawner) pickTile(ctx *TickContext, p *Player) (wt.TilePosition, bool) {
	center := p.Position().Chunk()
	minX := (center.X - s.renderX) * wt.ChunkSize
	minY := (center.Y - s.renderY) * wt.ChunkSize
	w := (2*s.renderX + 1) * wt.ChunkSize
	h := (2*s.renderY + 1) * wt.ChunkSize

	tile := wt.TilePosition{X: minX + ctx.Rand.Int31n(w), Y: minY + ctx.Rand.Int31n(h)}
	pt := p.Position().Tile()
	if abs32(tile.X-pt.X) < spawnSafeRadius && abs32(tile.Y-pt.Y) < spawnSafeRadius {
		return tile, false
	}

	cell, err := ctx.Terrain.Cell(tile)
	if err != nil || cell.Ground == wt.TileWater || cell.Ground == wt.TileNone || cell.Object != wt.TileNone {
		return tile, false
	}
	return tile, true
}

func (s *Spawner) torchNearby(t Terrain, tile wt.TilePosition, radius int32) bool {
	for y := tile.Y - radius; y <= tile.Y+radius; y++ {
		for x := tile.X - radius; x <= tile.X+radius; x++ {
			dx, dy := x-tile.X, y-tile.Y
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			cell, err := t.Cell(wt.TilePosition{X: x, Y: y})
			if err == nil && cell.Overlay == wt.TileTorch {
				return true
			}
		}
	}
	return false
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
