package block

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/annelo/tileworld/internal/gamedata"
	"github.com/annelo/tileworld/internal/storage"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Factory - функция-фабрика тайловых сущностей
type Factory func(pos wt.TilePosition, tile wt.TileID) TileEntity

// Manager управляет всеми тайловыми сущностями мира
type Manager struct {
	// Сущности по позиции клетки
	entities map[wt.TilePosition]TileEntity
	mu       sync.RWMutex

	// Карта динамических сущностей
	dynamic   map[wt.TilePosition]Dynamic
	dynamicMu sync.RWMutex

	// Реестр фабрик по тайлу
	factories   map[wt.TileID]Factory
	factoriesMu sync.RWMutex

	// Календарь обновлений
	updateQueue []*updateInfo
	queueMu     sync.Mutex

	// Канал событий изменения сущностей
	events  chan *wt.WorldEvent
	dropped atomic.Int64

	// Время последней отправки изменения для каждой сущности
	lastSent map[wt.TilePosition]time.Time
	sentMu   sync.Mutex

	smeltTime time.Duration
	now       func() time.Time
	logger    *zap.SugaredLogger
}

// updateInfo содержит информацию о планировании обновления
type updateInfo struct {
	Pos      wt.TilePosition
	NextTick time.Time
	Priority int
}

// Option настраивает менеджер
type Option func(*Manager)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger задает логгер
func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSmeltTime задает время переплавки для печей
func WithSmeltTime(d time.Duration) Option {
	return func(m *Manager) {
		m.smeltTime = d
	}
}

// NewManager создает менеджер и регистрирует фабрики сундука, печи и таблички
func NewManager(cat *gamedata.Catalog, opts ...Option) *Manager {
	m := &Manager{
		entities:    make(map[wt.TilePosition]TileEntity),
		dynamic:     make(map[wt.TilePosition]Dynamic),
		factories:   make(map[wt.TileID]Factory),
		updateQueue: make([]*updateInfo, 0),
		events:      make(chan *wt.WorldEvent, 256),
		lastSent:    make(map[wt.TilePosition]time.Time),
		now:         time.Now,
		logger:      zap.NewNop().Sugar(),
		smeltTime:   DefaultSmeltTime,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.RegisterFactory(wt.TileChest, func(pos wt.TilePosition, _ wt.TileID) TileEntity {
		return NewChest(pos, cat)
	})
	m.RegisterFactory(wt.TileFurnace, func(pos wt.TilePosition, _ wt.TileID) TileEntity {
		return NewFurnace(pos, cat, m.smeltTime, m.now())
	})
	m.RegisterFactory(wt.TileSign, func(pos wt.TilePosition, _ wt.TileID) TileEntity {
		return NewSign(pos)
	})
	return m
}

// RegisterFactory регистрирует фабрику для тайла
func (m *Manager) RegisterFactory(tile wt.TileID, f Factory) {
	m.factoriesMu.Lock()
	defer m.factoriesMu.Unlock()
	m.factories[tile] = f
}

// HasFactory сообщает, создается ли для тайла тайловая сущность
func (m *Manager) HasFactory(tile wt.TileID) bool {
	m.factoriesMu.RLock()
	defer m.factoriesMu.RUnlock()
	_, ok := m.factories[tile]
	return ok
}

// Create создает тайловую сущность в клетке
func (m *Manager) Create(pos wt.TilePosition, tile wt.TileID) (TileEntity, error) {
	m.factoriesMu.RLock()
	factory, ok := m.factories[tile]
	m.factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTileType, tile)
	}

	te := factory(pos, tile)
	if err := m.add(te); err != nil {
		return nil, err
	}
	m.logger.Debugw("Создана тайловая сущность", "kind", te.Kind(), "x", pos.X, "y", pos.Y)
	return te, nil
}

func (m *Manager) add(te TileEntity) error {
	pos := te.Position()

	m.mu.Lock()
	if _, exists := m.entities[pos]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: [%d,%d]", ErrTileEntityExists, pos.X, pos.Y)
	}
	m.entities[pos] = te
	m.mu.Unlock()

	if d, ok := te.(Dynamic); ok {
		m.dynamicMu.Lock()
		m.dynamic[pos] = d
		m.dynamicMu.Unlock()

		info := d.ScheduleInfo()
		m.schedule(pos, info.NextTick, info.Priority)
	}
	return nil
}

// Get возвращает сущность по позиции
func (m *Manager) Get(pos wt.TilePosition) (TileEntity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	te, ok := m.entities[pos]
	return te, ok
}

// Count возвращает число сущностей
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// All возвращает все сущности, упорядоченные по позиции
func (m *Manager) All() []TileEntity {
	m.mu.RLock()
	out := make([]TileEntity, 0, len(m.entities))
	for _, te := range m.entities {
		out = append(out, te)
	}
	m.mu.RUnlock()
	sortEntities(out)
	return out
}

// InChunk возвращает сущности чанка
func (m *Manager) InChunk(chunk wt.ChunkPosition) []TileEntity {
	m.mu.RLock()
	var out []TileEntity
	for pos, te := range m.entities {
		if pos.Chunk() == chunk {
			out = append(out, te)
		}
	}
	m.mu.RUnlock()
	sortEntities(out)
	return out
}

func sortEntities(list []TileEntity) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i].Position(), list[j].Position()
		if a.Y == b.Y {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
}

// Remove удаляет сущность и возвращает ее содержимое, которое нужно высыпать в мир
func (m *Manager) Remove(pos wt.TilePosition) []wt.ItemStack {
	m.mu.Lock()
	te, ok := m.entities[pos]
	delete(m.entities, pos)
	m.mu.Unlock()

	m.dynamicMu.Lock()
	delete(m.dynamic, pos)
	m.dynamicMu.Unlock()

	m.sentMu.Lock()
	delete(m.lastSent, pos)
	m.sentMu.Unlock()

	if !ok {
		return nil
	}
	if s, ok := te.(Spiller); ok {
		return s.Spill()
	}
	return nil
}

// Interact обрабатывает взаимодействие игрока с сущностью
func (m *Manager) Interact(playerID string, pos wt.TilePosition, action string, req Request) (*wt.WorldEvent, error) {
	te, ok := m.Get(pos)
	if !ok {
		return nil, fmt.Errorf("%w: [%d,%d]", ErrTileEntityMissing, pos.X, pos.Y)
	}
	it, ok := te.(Interactive)
	if !ok {
		return nil, ErrNotInteractive
	}

	ev, err := it.OnInteract(playerID, action, req)
	if err != nil {
		return nil, err
	}
	if te.HasChanges() {
		te.ResetChanges()
		m.forceSent(pos)
	}
	if ev != nil {
		m.publish(ev)
	}
	return ev, nil
}

func (m *Manager) forceSent(pos wt.TilePosition) {
	m.sentMu.Lock()
	m.lastSent[pos] = m.now()
	m.sentMu.Unlock()
}

// Update рассылает изменение сущности. Для динамических сущностей события не чаще MinInterval.
func (m *Manager) Update(te TileEntity) *wt.WorldEvent {
	pos := te.Position()
	now := m.now()

	var minInterval time.Duration
	if d, ok := te.(Dynamic); ok {
		minInterval = d.ScheduleInfo().MinInterval
	}
	m.sentMu.Lock()
	if last, ok := m.lastSent[pos]; ok && minInterval > 0 && now.Sub(last) < minInterval {
		m.sentMu.Unlock()
		return nil
	}
	m.lastSent[pos] = now
	m.sentMu.Unlock()

	te.ResetChanges()
	ev := event(te, "", "update")
	m.publish(ev)
	return ev
}

// publish отправляет событие, не блокируясь на переполненном канале
func (m *Manager) publish(ev *wt.WorldEvent) {
	select {
	case m.events <- ev:
	default:
		if m.dropped.Add(1)%100 == 1 {
			m.logger.Warnw("Канал событий тайловых сущностей переполнен", "dropped", m.dropped.Load())
		}
	}
}

// Events возвращает канал событий изменения сущностей
func (m *Manager) Events() <-chan *wt.WorldEvent {
	return m.events
}

// schedule добавляет сущность в очередь обновлений
func (m *Manager) schedule(pos wt.TilePosition, next time.Time, priority int) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	m.updateQueue = append(m.updateQueue, &updateInfo{Pos: pos, NextTick: next, Priority: priority})

	// Сортируем очередь по времени и приоритету
	sort.Slice(m.updateQueue, func(i, j int) bool {
		if m.updateQueue[i].NextTick.Equal(m.updateQueue[j].NextTick) {
			return m.updateQueue[i].Priority > m.updateQueue[j].Priority
		}
		return m.updateQueue[i].NextTick.Before(m.updateQueue[j].NextTick)
	})
}

// QueueLen возвращает длину очереди обновлений
func (m *Manager) QueueLen() int {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	return len(m.updateQueue)
}

// Tick обрабатывает наступившие обновления динамических сущностей. Возвращает число измененных.
func (m *Manager) Tick() int {
	now := m.now()

	m.queueMu.Lock()
	due := 0
	for _, u := range m.updateQueue {
		if u.NextTick.After(now) {
			break
		}
		due++
	}
	if due == 0 {
		m.queueMu.Unlock()
		return 0
	}
	batch := make([]*updateInfo, due)
	copy(batch, m.updateQueue[:due])
	m.updateQueue = m.updateQueue[due:]
	m.queueMu.Unlock()

	changed := 0
	for _, u := range batch {
		m.dynamicMu.RLock()
		d, exists := m.dynamic[u.Pos]
		m.dynamicMu.RUnlock()
		if !exists {
			// сущность удалена, расписание отбрасывается
			continue
		}

		if d.Tick(now) {
			changed++
			m.Update(d)
		}

		info := d.ScheduleInfo()
		m.schedule(u.Pos, info.NextTick, info.Priority)
	}
	return changed
}

// Snapshot записывает сундуки, печи и таблички в снимок сущностей
func (m *Manager) Snapshot(snap *storage.EntitySnapshot) {
	snap.Chests = snap.Chests[:0]
	snap.Furnaces = snap.Furnaces[:0]
	snap.Signs = snap.Signs[:0]
	for _, te := range m.All() {
		switch v := te.(type) {
		case *Chest:
			snap.Chests = append(snap.Chests, v.Record())
		case *Furnace:
			snap.Furnaces = append(snap.Furnaces, v.Record())
		case *Sign:
			snap.Signs = append(snap.Signs, v.Record())
		}
	}
}

// Restore создает сущности из снимка. Уже существующие позиции пропускаются.
func (m *Manager) Restore(snap *storage.EntitySnapshot) int {
	restored := 0
	for _, rec := range snap.Chests {
		te, err := m.Create(rec.Position, wt.TileChest)
		if err != nil {
			continue
		}
		te.(*Chest).inv.Restore(rec.Slots)
		te.ResetChanges()
		restored++
	}
	for _, rec := range snap.Furnaces {
		te, err := m.Create(rec.Position, wt.TileFurnace)
		if err != nil {
			continue
		}
		te.(*Furnace).restore(rec)
		te.ResetChanges()
		restored++
	}
	for _, rec := range snap.Signs {
		te, err := m.Create(rec.Position, wt.TileSign)
		if err != nil {
			continue
		}
		te.(*Sign).SetText(rec.Text)
		te.ResetChanges()
		restored++
	}
	return restored
}
