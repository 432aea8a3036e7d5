package entity

import (
	"sync"

	"github.com/annelo/tileworld/internal/storage"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// FloatingItem - стопка предметов, лежащая на земле
type FloatingItem struct {
	mu      sync.Mutex
	id      string
	pos     wt.Vec2
	item    wt.ItemStack
	spawned int64
	alive   bool
}

// NewFloatingItem создает предмет на земле
func NewFloatingItem(pos wt.Vec2, item wt.ItemStack, now int64) *FloatingItem {
	return &FloatingItem{id: newID(), pos: pos, item: item, spawned: now, alive: true}
}

// FloatingItemFromRecord восстанавливает предмет из снимка
func FloatingItemFromRecord(rec storage.FloatingItemRecord, now int64) *FloatingItem {
	fi := NewFloatingItem(rec.Position, wt.StackFromPair(rec.Item), now-rec.Age)
	if rec.ID != "" {
		fi.id = rec.ID
	}
	return fi
}

func (fi *FloatingItem) ID() string { return fi.id }

func (fi *FloatingItem) Kind() Kind { return KindFloatingItem }

func (fi *FloatingItem) Position() wt.Vec2 {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return fi.pos
}

// Item возвращает лежащую стопку
func (fi *FloatingItem) Item() wt.ItemStack {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return fi.item
}

// Spawned возвращает время появления, мс
func (fi *FloatingItem) Spawned() int64 {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return fi.spawned
}

func (fi *FloatingItem) Alive() bool {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return fi.alive && !fi.item.Empty()
}

// Record возвращает запись для снимка сущностей
func (fi *FloatingItem) Record(now int64) storage.FloatingItemRecord {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return storage.FloatingItemRecord{ID: fi.id, Position: fi.pos, Item: fi.item.Pair(), Age: now - fi.spawned}
}

// merge доливает стопку до max и возвращает остаток
func (fi *FloatingItem) merge(s wt.ItemStack, max int) wt.ItemStack {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if !fi.alive || fi.item.ID != s.ID || fi.item.Count >= max {
		return s
	}
	n := max - fi.item.Count
	if n > s.Count {
		n = s.Count
	}
	fi.item.Count += n
	s.Count -= n
	if s.Count == 0 {
		return wt.ItemStack{}
	}
	return s
}

func (fi *FloatingItem) expire() {
	fi.mu.Lock()
	fi.alive = false
	fi.mu.Unlock()
}

// Update исчезает по таймауту или отдает стопку ближайшему игроку
func (fi *FloatingItem) Update(ctx *TickContext, dt float64) {
	fi.mu.Lock()
	if !fi.alive {
		fi.mu.Unlock()
		return
	}
	if ctx.Now-fi.spawned > ctx.Settings.ItemDespawnTime {
		fi.alive = false
		fi.mu.Unlock()
		return
	}
	pos := fi.pos
	fi.mu.Unlock()

	if ctx.Entities == nil {
		return
	}
	for _, p := range ctx.Entities.Players() {
		if p.Dead() || p.Position().Dist(pos) > ctx.Settings.PickupRadius {
			continue
		}
		if fi.pickup(ctx, p) {
			return
		}
	}
}

// pickup кладет стопку в инвентарь игрока; остаток остается на земле
func (fi *FloatingItem) pickup(ctx *TickContext, p *Player) bool {
	fi.mu.Lock()
	item := fi.item
	rest := p.Inventory().Add(item)
	fi.item = rest
	if rest.Empty() {
		fi.alive = false
	}
	pos := fi.pos
	fi.mu.Unlock()

	taken := item.Count - rest.Count
	if taken == 0 {
		return false
	}
	ctx.emit(wt.WorldEvent{
		Type:     wt.EventItemPickup,
		Position: pos,
		EntityID: fi.id,
		PlayerID: p.ID(),
		Payload:  map[string]any{"item": [2]int{item.ID, taken}},
	})
	ctx.emit(wt.WorldEvent{
		Type:     wt.EventInventory,
		Position: p.Position(),
		PlayerID: p.ID(),
		Payload:  map[string]any{"slots": p.Inventory().Snapshot()},
	})
	return rest.Empty()
}
