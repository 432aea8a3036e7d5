package entity

import (
	"fmt"
	"sync"

	"github.com/annelo/tileworld/internal/inventory"
	"github.com/annelo/tileworld/internal/storage"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Player - игрок в мире
type Player struct {
	mu        sync.RWMutex
	id        string
	name      string
	pos       wt.Vec2
	health    int
	maxHealth int
	inv       *inventory.Inventory
	selected  int
	spawn     wt.Vec2
	lastHit   int64
	lastRegen int64
	dead      bool

	// удары рукой по одной клетке подряд
	harvestCell wt.TilePosition
	harvestHits int
}

// NewPlayer создает игрока с полным здоровьем в точке pos
func NewPlayer(id, name string, pos wt.Vec2, maxHealth int, limits inventory.Limits) *Player {
	return &Player{
		id:        id,
		name:      name,
		pos:       pos,
		health:    maxHealth,
		maxHealth: maxHealth,
		inv:       inventory.New(inventory.PlayerSlots, limits),
		spawn:     pos,
	}
}

// PlayerFromState восстанавливает игрока из сохраненного состояния
func PlayerFromState(st *storage.PlayerState, limits inventory.Limits) *Player {
	p := NewPlayer(st.ID, st.Name, st.Position, int(st.MaxHealth), limits)
	p.health = int(st.Health)
	if p.health <= 0 {
		p.health = p.maxHealth
	}
	p.spawn = st.Spawn.Center()
	p.inv.Restore(st.Inventory)
	return p
}

func (p *Player) ID() string { return p.id }

func (p *Player) Kind() Kind { return KindPlayer }

// Name возвращает имя игрока
func (p *Player) Name() string { return p.name }

// Alive для игрока всегда true: мертвый игрок ждет возрождения, а не удаляется
func (p *Player) Alive() bool { return true }

func (p *Player) Position() wt.Vec2 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos
}

// SetPosition телепортирует игрока
func (p *Player) SetPosition(v wt.Vec2) {
	p.mu.Lock()
	p.pos = v
	p.mu.Unlock()
}

// Health возвращает текущее и максимальное здоровье
func (p *Player) Health() (int, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health, p.maxHealth
}

// Heal восстанавливает здоровье до максимума
func (p *Player) Heal() {
	p.mu.Lock()
	p.health = p.maxHealth
	p.mu.Unlock()
}

// Dead сообщает, что игрок ждет возрождения
func (p *Player) Dead() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dead
}

// Inventory возвращает инвентарь игрока
func (p *Player) Inventory() *inventory.Inventory { return p.inv }

// Selected возвращает номер выбранного слота хотбара
func (p *Player) Selected() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selected
}

// SelectSlot выбирает слот хотбара
func (p *Player) SelectSlot(i int) error {
	if i < 0 || i >= inventory.HotbarSlots {
		return fmt.Errorf("%w: %d", ErrBadSlot, i)
	}
	p.mu.Lock()
	p.selected = i
	p.mu.Unlock()
	return nil
}

// Held возвращает стопку в выбранном слоте
func (p *Player) Held() wt.ItemStack {
	return p.inv.Slot(p.Selected())
}

// HarvestHit засчитывает удар рукой по клетке и возвращает номер удара подряд.
// Удар по другой клетке начинает счет заново.
func (p *Player) HarvestHit(target wt.TilePosition) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.harvestHits == 0 || p.harvestCell != target {
		p.harvestCell = target
		p.harvestHits = 0
	}
	p.harvestHits++
	return p.harvestHits
}

// Spawn возвращает точку возрождения
func (p *Player) Spawn() wt.Vec2 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.spawn
}

// SetSpawn меняет точку возрождения
func (p *Player) SetSpawn(v wt.Vec2) {
	p.mu.Lock()
	p.spawn = v
	p.mu.Unlock()
}

// Move сдвигает игрока в направлении dir на dt секунд. Возвращает новую позицию.
func (p *Player) Move(t Terrain, dir wt.Vec2, dt float64, s Settings) wt.Vec2 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead {
		return p.pos
	}

	speed := s.WalkSpeed
	if cell, err := t.Cell(p.pos.Tile()); err == nil && cell.Ground == wt.TileWater && s.WaterSpeedDivider > 0 {
		speed /= s.WaterSpeedDivider
	}
	vel := dir.Normalize().Scale(speed * dt)

	blocked := func(c wt.Cell) bool { return c.Solid() }
	p.pos, _ = moveAxis(t, p.pos, vel.X, true, blocked)
	p.pos, _ = moveAxis(t, p.pos, vel.Y, false, blocked)
	return p.pos
}

// Update восстанавливает здоровье, если игрока давно не били
func (p *Player) Update(ctx *TickContext, dt float64) {
	p.mu.Lock()
	healed := false
	if !p.dead && p.health < p.maxHealth && ctx.Now > p.lastHit+ctx.Settings.RegenDelay &&
		ctx.Now-p.lastRegen > ctx.Settings.RegenSpeed {
		p.lastRegen = ctx.Now
		p.health++
		healed = true
	}
	health, pos := p.health, p.pos
	p.mu.Unlock()

	if healed {
		ctx.emit(wt.WorldEvent{
			Type:     wt.EventPlayerHealth,
			Position: pos,
			PlayerID: p.id,
			Payload:  map[string]any{"health": health},
		})
	}
}

// TakeDamage наносит урон. Возвращает true, если игрок умер, и оставшееся здоровье.
func (p *Player) TakeDamage(amount int, now int64) (bool, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead {
		return false, 0
	}
	p.lastHit = now
	p.health -= amount
	if p.health <= 0 {
		p.health = 0
		return true, 0
	}
	return false, p.health
}

// Die помечает игрока мертвым и возвращает содержимое хотбара
func (p *Player) Die() []wt.ItemStack {
	p.mu.Lock()
	p.dead = true
	p.health = 0
	p.mu.Unlock()
	return p.inv.DrainRange(0, inventory.HotbarSlots)
}

// Respawn возвращает игрока в точку возрождения с полным здоровьем
func (p *Player) Respawn(now int64) wt.Vec2 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = p.spawn
	p.health = p.maxHealth
	p.dead = false
	p.lastHit = now
	return p.pos
}

// State возвращает сохраняемое состояние
func (p *Player) State(now int64) *storage.PlayerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &storage.PlayerState{
		ID:        p.id,
		Name:      p.name,
		Position:  p.pos,
		Health:    int32(p.health),
		MaxHealth: int32(p.maxHealth),
		Inventory: p.inv.Snapshot(),
		Spawn:     p.spawn.Tile(),
		LastSeen:  now,
	}
}
