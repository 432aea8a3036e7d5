package entity

import (
	"fmt"
	"sort"
	"sync"

	"github.com/annelo/tileworld/internal/gamedata"
	"github.com/annelo/tileworld/internal/storage"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Manager хранит все сущности мира по ID
type Manager struct {
	mu       sync.RWMutex
	entities map[string]Entity
}

// NewManager создает пустой менеджер сущностей
func NewManager() *Manager {
	return &Manager{entities: make(map[string]Entity)}
}

// Add добавляет сущность
func (m *Manager) Add(e Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[e.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrEntityExists, e.ID())
	}
	m.entities[e.ID()] = e
	return nil
}

// Remove удаляет сущность и возвращает ее
func (m *Manager) Remove(id string) (Entity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if ok {
		delete(m.entities, id)
	}
	return e, ok
}

// Get возвращает сущность по ID
func (m *Manager) Get(id string) (Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	return e, ok
}

// Player возвращает игрока по ID
func (m *Manager) Player(id string) (*Player, bool) {
	e, ok := m.Get(id)
	if !ok {
		return nil, false
	}
	p, ok := e.(*Player)
	return p, ok
}

// Count возвращает число сущностей
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// snapshot копирует список сущностей. Методы сущностей вызываются только вне блокировки менеджера.
func (m *Manager) snapshot() []Entity {
	m.mu.RLock()
	out := make([]Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// All возвращает все сущности, упорядоченные по ID
func (m *Manager) All() []Entity {
	return m.snapshot()
}

// Players возвращает всех игроков
func (m *Manager) Players() []*Player {
	var out []*Player
	for _, e := range m.snapshot() {
		if p, ok := e.(*Player); ok {
			out = append(out, p)
		}
	}
	return out
}

// Mobs возвращает всех живых мобов
func (m *Manager) Mobs() []*Mob {
	var out []*Mob
	for _, e := range m.snapshot() {
		if mob, ok := e.(*Mob); ok && mob.Alive() {
			out = append(out, mob)
		}
	}
	return out
}

// FloatingItems возвращает предметы на земле от старых к новым
func (m *Manager) FloatingItems() []*FloatingItem {
	var out []*FloatingItem
	for _, e := range m.snapshot() {
		if fi, ok := e.(*FloatingItem); ok {
			out = append(out, fi)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Spawned() < out[j].Spawned() })
	return out
}

// Within возвращает сущности вида kind (0 - любые) в радиусе от точки
func (m *Manager) Within(center wt.Vec2, radius float64, kind Kind) []Entity {
	var out []Entity
	for _, e := range m.snapshot() {
		if kind != 0 && e.Kind() != kind {
			continue
		}
		if e.Position().Dist(center) <= radius {
			out = append(out, e)
		}
	}
	return out
}

// NearestMob возвращает ближайшего живого моба в радиусе
func (m *Manager) NearestMob(center wt.Vec2, radius float64) *Mob {
	var best *Mob
	bestDist := radius
	for _, mob := range m.Mobs() {
		if d := mob.Position().Dist(center); d <= bestDist {
			best, bestDist = mob, d
		}
	}
	return best
}

// MobCounts возвращает число живых враждебных и мирных мобов
func (m *Manager) MobCounts() (hostile, friendly int) {
	for _, mob := range m.Mobs() {
		if mob.Hostile() {
			hostile++
		} else {
			friendly++
		}
	}
	return hostile, friendly
}

// removeAll удаляет сущности по списку и возвращает ID реально удаленных
func (m *Manager) removeAll(victims []Entity) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []string
	for _, e := range victims {
		if _, ok := m.entities[e.ID()]; ok {
			delete(m.entities, e.ID())
			removed = append(removed, e.ID())
		}
	}
	return removed
}

// AddFloating добавляет предмет на землю и удаляет самые старые сверх limit.
// Возвращает ID удаленных.
func (m *Manager) AddFloating(fi *FloatingItem, limit int) []string {
	m.mu.Lock()
	m.entities[fi.ID()] = fi
	m.mu.Unlock()
	if limit <= 0 {
		return nil
	}
	items := m.FloatingItems()
	var victims []Entity
	for i := 0; len(items)-i > limit; i++ {
		items[i].expire()
		victims = append(victims, items[i])
	}
	return m.removeAll(victims)
}

// MergeDrop доливает стопку в лежащие рядом такие же предметы и возвращает остаток
func (m *Manager) MergeDrop(pos wt.Vec2, s wt.ItemStack, max int, radius float64) wt.ItemStack {
	for _, fi := range m.FloatingItems() {
		if s.Empty() {
			break
		}
		if fi.Position().Dist(pos) > radius {
			continue
		}
		s = fi.merge(s, max)
	}
	if s.Empty() {
		return wt.ItemStack{}
	}
	return s
}

// DespawnChunk удаляет мобов и снаряды выгруженного чанка. Игроки и предметы остаются.
func (m *Manager) DespawnChunk(pos wt.ChunkPosition) []string {
	var victims []Entity
	for _, e := range m.snapshot() {
		if e.Kind() != KindMob && e.Kind() != KindProjectile {
			continue
		}
		if e.Position().Chunk() == pos {
			victims = append(victims, e)
		}
	}
	return m.removeAll(victims)
}

// Update обновляет все сущности и удаляет погибшие. Возвращает ID удаленных.
func (m *Manager) Update(ctx *TickContext, dt float64) []string {
	all := m.snapshot()
	for _, e := range all {
		if e.Alive() {
			e.Update(ctx, dt)
		}
	}

	var dead []Entity
	for _, e := range all {
		if !e.Alive() {
			dead = append(dead, e)
		}
	}
	removed := m.removeAll(dead)
	for _, id := range removed {
		ctx.emit(wt.WorldEvent{Type: wt.EventEntityDespawned, EntityID: id})
	}
	return removed
}

// CleanupItems удаляет предметы, пролежавшие дольше despawn, и лишние сверх limit
func (m *Manager) CleanupItems(now, despawn int64, limit int) []string {
	items := m.FloatingItems()
	var victims []Entity
	for i, fi := range items {
		over := limit > 0 && len(items)-i > limit
		if over || now-fi.Spawned() > despawn || !fi.Alive() {
			fi.expire()
			victims = append(victims, fi)
		}
	}
	return m.removeAll(victims)
}

// Snapshot возвращает мобов и предметы для сохранения
func (m *Manager) Snapshot(now int64) ([]storage.MobRecord, []storage.FloatingItemRecord) {
	var mobs []storage.MobRecord
	for _, mob := range m.Mobs() {
		mobs = append(mobs, mob.Record())
	}
	var items []storage.FloatingItemRecord
	for _, fi := range m.FloatingItems() {
		if fi.Alive() {
			items = append(items, fi.Record(now))
		}
	}
	return mobs, items
}

// Restore добавляет мобов и предметы из снимка. Мобы с неизвестным описанием пропускаются.
func (m *Manager) Restore(cat *gamedata.Catalog, snap *storage.EntitySnapshot, now int64) (int, error) {
	restored := 0
	for _, rec := range snap.Mobs {
		def, err := cat.Mob(rec.MobID)
		if err != nil {
			continue
		}
		if err := m.Add(MobFromRecord(def, rec, now)); err != nil {
			return restored, err
		}
		restored++
	}
	for _, rec := range snap.FloatingItems {
		if rec.Item[0] == 0 || rec.Item[1] <= 0 {
			continue
		}
		if err := m.Add(FloatingItemFromRecord(rec, now)); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}
