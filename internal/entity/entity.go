// Package entity реализует динамические сущности мира: игроков, мобов, снаряды и предметы на земле.
package entity

import (
	"errors"
	"math"
	"math/rand"

	"github.com/annelo/tileworld/internal/gamedata"
	wt "github.com/annelo/tileworld/internal/worldtypes"
	"github.com/google/uuid"
)

// Kind - вид сущности
type Kind uint8

const (
	KindPlayer Kind = iota + 1
	KindMob
	KindProjectile
	KindFloatingItem
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindMob:
		return "mob"
	case KindProjectile:
		return "projectile"
	case KindFloatingItem:
		return "item"
	}
	return "unknown"
}

// Entity - любая сущность, обновляемая игровым циклом
type Entity interface {
	ID() string
	Kind() Kind
	Position() wt.Vec2
	// Update продвигает сущность на dt секунд
	Update(ctx *TickContext, dt float64)
	// Alive сообщает, что сущность еще существует; мертвые удаляются менеджером
	Alive() bool
}

var (
	// ErrEntityExists - сущность с таким ID уже есть
	ErrEntityExists = errors.New("сущность уже существует")
	// ErrEntityNotFound - сущность не найдена
	ErrEntityNotFound = errors.New("сущность не найдена")
	// ErrBadSlot - слот хотбара вне диапазона
	ErrBadSlot = errors.New("неверный слот хотбара")
)

// Settings - игровые константы сущностей. Время в миллисекундах, скорости в тайлах в секунду.
type Settings struct {
	WalkSpeed             float64
	MobWalkSpeed          float64
	WaterSpeedDivider     float64
	MeleeReach            float64
	PlayerDetectionRadius float64
	FireRate              int64
	RegenSpeed            int64
	RegenDelay            int64
	ItemDespawnTime       int64
	ProjectileLifetime    int64
	ProjectileSpeed       float64
	ProjectileSpread      float64
	MaxFloatingItems      int
	MaxHostileMobs        int
	MaxFriendlyMobs       int
	PickupRadius          float64
	MergeRadius           float64
	PathNodeLimit         int
	TorchRadius           int32
}

// DefaultSettings возвращает значения по умолчанию
func DefaultSettings() Settings {
	return Settings{
		WalkSpeed:             5,
		MobWalkSpeed:          2,
		WaterSpeedDivider:     2,
		MeleeReach:            1.5,
		PlayerDetectionRadius: 8,
		FireRate:              1000,
		RegenSpeed:            2000,
		RegenDelay:            3500,
		ItemDespawnTime:       300000,
		ProjectileLifetime:    2000,
		ProjectileSpeed:       12,
		ProjectileSpread:      5,
		MaxFloatingItems:      200,
		MaxHostileMobs:        10,
		MaxFriendlyMobs:       10,
		PickupRadius:          0.5,
		MergeRadius:           1,
		PathNodeLimit:         4096,
		TorchRadius:           5,
	}
}

// Terrain - то, что сущностям нужно знать о тайлах мира
type Terrain interface {
	Cell(tile wt.TilePosition) (wt.Cell, error)
	WalkGrid(center wt.ChunkPosition) ([][]uint8, wt.TilePosition)
}

// TickContext - окружение, в котором обновляются сущности
type TickContext struct {
	Terrain  Terrain
	Entities *Manager
	Catalog  *gamedata.Catalog
	Rand     *rand.Rand
	Settings Settings
	// Now - игровое время в миллисекундах
	Now  int64
	Tick uint64
	Emit func(wt.WorldEvent)
}

func (tc *TickContext) emit(ev wt.WorldEvent) {
	if tc.Emit == nil {
		return
	}
	ev.Tick = tc.Tick
	tc.Emit(ev)
}

// HurtPlayer наносит урон игроку и при смерти выбрасывает его хотбар
func (tc *TickContext) HurtPlayer(p *Player, amount int) {
	died, health := p.TakeDamage(amount, tc.Now)
	if !died {
		tc.emit(wt.WorldEvent{
			Type:     wt.EventPlayerHealth,
			Position: p.Position(),
			PlayerID: p.ID(),
			Payload:  map[string]any{"health": health},
		})
		return
	}
	tc.KillPlayer(p)
}

// KillPlayer убивает игрока, выбрасывая хотбар на землю
func (tc *TickContext) KillPlayer(p *Player) {
	drops := p.Die()
	pos := p.Position()
	for _, s := range drops {
		tc.DropItem(pos, s)
	}
	tc.emit(wt.WorldEvent{Type: wt.EventPlayerDied, Position: pos, PlayerID: p.ID()})
}

// DropItem кладет стопку на землю, объединяя с лежащей рядом такой же
func (tc *TickContext) DropItem(pos wt.Vec2, s wt.ItemStack) {
	if s.Empty() || tc.Entities == nil {
		return
	}
	max := gamedata.DefaultStack
	if tc.Catalog != nil {
		max = tc.Catalog.MaxStack(s.ID)
	}
	rest := tc.Entities.MergeDrop(pos, s, max, tc.Settings.MergeRadius)
	if rest.Empty() {
		return
	}
	item := NewFloatingItem(pos, rest, tc.Now)
	tc.Entities.AddFloating(item, tc.Settings.MaxFloatingItems)
	tc.emit(wt.WorldEvent{
		Type:     wt.EventEntitySpawned,
		Position: pos,
		EntityID: item.ID(),
		Payload:  map[string]any{"kind": KindFloatingItem.String(), "item": rest.Pair()},
	})
}

// SpawnMob создает моба по описанию и добавляет в менеджер
func (tc *TickContext) SpawnMob(def gamedata.MobDefinition, pos wt.Vec2) *Mob {
	m := NewMob(def, pos, tc.Now)
	if err := tc.Entities.Add(m); err != nil {
		return nil
	}
	tc.emit(wt.WorldEvent{
		Type:     wt.EventEntitySpawned,
		Position: pos,
		EntityID: m.ID(),
		Payload:  map[string]any{"kind": KindMob.String(), "mob": def.ID, "name": def.Name},
	})
	return m
}

func newID() string {
	return uuid.NewString()
}

// box - половина стороны квадрата столкновений сущности
const box = 0.4

// overlapping возвращает тайлы, которые пересекает квадрат вокруг точки
func overlapping(p wt.Vec2, half float64) []wt.TilePosition {
	x0 := int32(math.Floor(p.X - half))
	x1 := int32(math.Floor(p.X + half))
	y0 := int32(math.Floor(p.Y - half))
	y1 := int32(math.Floor(p.Y + half))
	out := make([]wt.TilePosition, 0, 4)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			out = append(out, wt.TilePosition{X: x, Y: y})
		}
	}
	return out
}

// moveAxis сдвигает точку по одной оси и прижимает ее к первому препятствию
func moveAxis(t Terrain, pos wt.Vec2, delta float64, xAxis bool, blocked func(wt.Cell) bool) (wt.Vec2, bool) {
	if delta == 0 {
		return pos, false
	}
	next := pos
	if xAxis {
		next.X += delta
	} else {
		next.Y += delta
	}
	for _, tile := range overlapping(next, box) {
		cell, err := t.Cell(tile)
		if err == nil && !blocked(cell) {
			continue
		}
		const eps = 1e-6
		switch {
		case xAxis && delta > 0:
			next.X = float64(tile.X) - box - eps
		case xAxis:
			next.X = float64(tile.X+1) + box + eps
		case delta > 0:
			next.Y = float64(tile.Y) - box - eps
		default:
			next.Y = float64(tile.Y+1) + box + eps
		}
		if xAxis && (next.X-pos.X)*delta < 0 {
			next.X = pos.X
		}
		if !xAxis && (next.Y-pos.Y)*delta < 0 {
			next.Y = pos.Y
		}
		return next, true
	}
	return next, false
}

func boxesOverlap(a, b wt.Vec2) bool {
	return math.Abs(a.X-b.X) < 2*box && math.Abs(a.Y-b.Y) < 2*box
}

// angleTo возвращает угол направления от a к b в градусах
func angleTo(a, b wt.Vec2) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X) * 180 / math.Pi
}
