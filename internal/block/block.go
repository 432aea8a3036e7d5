// Package block реализует тайловые сущности: сундуки, печи и таблички, привязанные к клетке мира.
package block

import (
	"errors"
	"sync"
	"time"

	"github.com/annelo/tileworld/internal/inventory"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Kind - вид тайловой сущности
type Kind string

const (
	KindChest   Kind = "chest"
	KindFurnace Kind = "furnace"
	KindSign    Kind = "sign"
)

// TileEntity определяет базовое поведение всех тайловых сущностей
type TileEntity interface {
	// Position возвращает мировые координаты клетки
	Position() wt.TilePosition

	// Kind возвращает вид сущности
	Kind() Kind

	// Tile возвращает тайл, которым сущность представлена в мире
	Tile() wt.TileID

	// Snapshot возвращает состояние для клиентов
	Snapshot() map[string]any

	// HasChanges возвращает true, если состояние изменилось с момента последней синхронизации
	HasChanges() bool

	// ResetChanges сбрасывает флаг изменений после синхронизации
	ResetChanges()
}

// Dynamic - сущность, меняющая состояние со временем
type Dynamic interface {
	TileEntity

	// Tick обновляет состояние; возвращает true, если оно изменилось
	Tick(now time.Time) bool

	// ScheduleInfo возвращает информацию о том, как часто сущность должна обновляться
	ScheduleInfo() TickScheduleInfo
}

// Interactive - сущность, с которой игрок может взаимодействовать
type Interactive interface {
	TileEntity

	// OnInteract обрабатывает действие игрока
	OnInteract(playerID string, action string, req Request) (*wt.WorldEvent, error)
}

// Request - данные действия игрока
type Request struct {
	// Inventory - инвентарь игрока, из которого кладут и в который забирают
	Inventory *inventory.Inventory
	// Slot - слот игрока (put) или сущности (take)
	Slot int
	// Count - сколько предметов переложить; 0 - всю стопку
	Count int
	Text  string
}

// Spiller - сущность, содержимое которой высыпается при разрушении
type Spiller interface {
	Spill() []wt.ItemStack
}

// TickScheduleInfo определяет параметры обновления сущности
type TickScheduleInfo struct {
	// MinInterval - минимальное время между обновлениями
	MinInterval time.Duration

	// Priority - приоритет обновления (выше число - выше приоритет)
	Priority int

	// NextTick - когда сущность должна получить следующее обновление
	NextTick time.Time
}

// Base предоставляет общую часть всех тайловых сущностей
type Base struct {
	mu      sync.RWMutex
	pos     wt.TilePosition
	tile    wt.TileID
	changed bool
}

func (b *Base) init(pos wt.TilePosition, tile wt.TileID) {
	b.pos = pos
	b.tile = tile
	// новая сущность сразу помечена измененной для первичной синхронизации
	b.changed = true
}

// Setup привязывает сущность к клетке. Нужен тайловым сущностям плагинов.
func (b *Base) Setup(pos wt.TilePosition, tile wt.TileID) {
	b.init(pos, tile)
}

// MarkChanged помечает сущность измененной
func (b *Base) MarkChanged() {
	b.mu.Lock()
	b.changed = true
	b.mu.Unlock()
}

func (b *Base) Position() wt.TilePosition { return b.pos }

func (b *Base) Tile() wt.TileID { return b.tile }

func (b *Base) HasChanges() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.changed
}

func (b *Base) ResetChanges() {
	b.mu.Lock()
	b.changed = false
	b.mu.Unlock()
}

// markChangedLocked вызывается под блокировкой b.mu
func (b *Base) markChangedLocked() {
	b.changed = true
}

// event собирает событие обновления сущности
func event(te TileEntity, playerID, action string) *wt.WorldEvent {
	payload := te.Snapshot()
	payload["kind"] = string(te.Kind())
	payload["action"] = action
	return &wt.WorldEvent{
		Type:     wt.EventTileEntityUpdated,
		Position: te.Position().Center(),
		PlayerID: playerID,
		Payload:  payload,
	}
}

// Ошибки
var (
	ErrInvalidTileType   = errors.New("для тайла нет тайловой сущности")
	ErrTileEntityExists  = errors.New("тайловая сущность уже существует")
	ErrTileEntityMissing = errors.New("тайловая сущность не найдена")
	ErrNotInteractive    = errors.New("с тайловой сущностью нельзя взаимодействовать")
	ErrUnknownAction     = errors.New("неизвестное действие")
	ErrInteractionFailed = errors.New("взаимодействие не удалось")
)
