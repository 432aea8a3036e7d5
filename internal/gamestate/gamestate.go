// Package gamestate хранит глобальное состояние партии: время суток, паузу и автосохранение.
package gamestate

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// ErrNotNight - спать можно только ночью
var ErrNotNight = errors.New("спать можно только ночью")

// MaxShade - яркость полного дня
const MaxShade = 255

// Config - параметры суточного цикла и автосохранения, мс
type Config struct {
	DayLength     int64
	ShadeSpeed    int64
	MinNightShade int
	SaveDelay     int64
}

// DefaultConfig возвращает значения по умолчанию
func DefaultConfig() Config {
	return Config{
		DayLength:     600000,
		ShadeSpeed:    50,
		MinNightShade: 60,
		SaveDelay:     20000,
	}
}

// ClockState - сохраняемое состояние часов
type ClockState struct {
	GlobalTime int64 `json:"global_time"`
	Shade      int   `json:"night_shade"`
}

// Clock - игровые часы и освещенность
type Clock struct {
	mu       sync.RWMutex
	cfg      Config
	global   int64
	shade    int
	shadeAcc int64
}

// NewClock создает часы в начале первого дня
func NewClock(cfg Config) *Clock {
	if cfg.DayLength <= 0 {
		cfg.DayLength = DefaultConfig().DayLength
	}
	if cfg.ShadeSpeed <= 0 {
		cfg.ShadeSpeed = DefaultConfig().ShadeSpeed
	}
	return &Clock{cfg: cfg, shade: MaxShade}
}

// Advance продвигает время на dt секунд. Возвращает true, если изменилась освещенность.
func (c *Clock) Advance(dt float64) bool {
	ms := int64(math.Round(dt * 1000))
	if ms <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.global += ms
	c.shadeAcc += ms
	steps := c.shadeAcc / c.cfg.ShadeSpeed
	c.shadeAcc %= c.cfg.ShadeSpeed

	before := c.shade
	night := c.isNightLocked()
	for ; steps > 0; steps-- {
		if night && c.shade > c.cfg.MinNightShade {
			c.shade--
		} else if !night && c.shade < MaxShade {
			c.shade++
		} else {
			break
		}
	}
	return c.shade != before
}

func (c *Clock) dayTimeLocked() int64 {
	return c.global % c.cfg.DayLength
}

func (c *Clock) isNightLocked() bool {
	return c.dayTimeLocked() > c.cfg.DayLength-c.cfg.DayLength/3
}

// Now возвращает глобальное игровое время, мс
func (c *Clock) Now() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.global
}

// DayTime возвращает время внутри текущих суток, мс
func (c *Clock) DayTime() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dayTimeLocked()
}

// Day возвращает номер текущих суток, начиная с нуля
func (c *Clock) Day() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.global / c.cfg.DayLength
}

// IsNight сообщает, что наступила ночь (последняя треть суток)
func (c *Clock) IsNight() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isNightLocked()
}

// Shade возвращает текущую освещенность от MinNightShade до 255
func (c *Clock) Shade() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shade
}

// SkipNight переводит часы на начало следующих суток
func (c *Clock) SkipNight() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global += c.cfg.DayLength - c.dayTimeLocked()
	c.shade = MaxShade
	c.shadeAcc = 0
}

// Snapshot возвращает состояние для сохранения
func (c *Clock) Snapshot() ClockState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ClockState{GlobalTime: c.global, Shade: c.shade}
}

// Restore восстанавливает состояние часов
func (c *Clock) Restore(st ClockState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = st.GlobalTime
	c.shade = st.Shade
	if c.shade <= 0 || c.shade > MaxShade {
		c.shade = MaxShade
	}
	c.shadeAcc = 0
}

// AutosaveTracker решает, пора ли сохранять мир
type AutosaveTracker struct {
	mu       sync.Mutex
	delay    int64
	lastSave int64
	dirty    bool
}

// NewAutosaveTracker создает трекер с задержкой delay мс между сохранениями
func NewAutosaveTracker(delay int64) *AutosaveTracker {
	return &AutosaveTracker{delay: delay}
}

// MarkDirty отмечает, что есть несохраненные изменения
func (t *AutosaveTracker) MarkDirty() {
	t.mu.Lock()
	t.dirty = true
	t.mu.Unlock()
}

// Dirty сообщает, есть ли несохраненные изменения
func (t *AutosaveTracker) Dirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

// Due сообщает, что изменения есть и с прошлого сохранения прошло не меньше задержки
func (t *AutosaveTracker) Due(now int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty && now >= t.lastSave+t.delay
}

// Saved отмечает успешное сохранение
func (t *AutosaveTracker) Saved(now int64) {
	t.mu.Lock()
	t.dirty = false
	t.lastSave = now
	t.mu.Unlock()
}

// Sleeper - тот, кто может лечь спать
type Sleeper interface {
	SetSpawn(v wt.Vec2)
	Heal()
}

// Manager объединяет часы, паузу и автосохранение
type Manager struct {
	clock    *Clock
	autosave *AutosaveTracker
	paused   atomic.Bool
}

// NewManager создает менеджер состояния игры
func NewManager(cfg Config) *Manager {
	return &Manager{
		clock:    NewClock(cfg),
		autosave: NewAutosaveTracker(cfg.SaveDelay),
	}
}

// Clock возвращает игровые часы
func (m *Manager) Clock() *Clock { return m.clock }

// Autosave возвращает трекер автосохранения
func (m *Manager) Autosave() *AutosaveTracker { return m.autosave }

// Pause останавливает симуляцию. Возвращает false, если игра уже на паузе.
func (m *Manager) Pause() bool { return m.paused.CompareAndSwap(false, true) }

// Resume продолжает симуляцию. Возвращает false, если паузы не было.
func (m *Manager) Resume() bool { return m.paused.CompareAndSwap(true, false) }

// Paused сообщает, стоит ли игра на паузе
func (m *Manager) Paused() bool { return m.paused.Load() }

// Sleep укладывает спать в кровати bed: точка возрождения переносится к кровати,
// ночь пропускается, здоровье восстанавливается
func (m *Manager) Sleep(s Sleeper, bed wt.TilePosition) error {
	if !m.clock.IsNight() {
		return ErrNotNight
	}
	s.SetSpawn(bed.Center())
	m.clock.SkipNight()
	s.Heal()
	m.autosave.MarkDirty()
	return nil
}
