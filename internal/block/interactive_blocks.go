package block

import (
	"fmt"
	"unicode/utf8"

	"github.com/annelo/tileworld/internal/inventory"
	"github.com/annelo/tileworld/internal/storage"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Действия с сундуком и табличкой
const (
	ActionOpen  = "open"
	ActionPut   = "put"
	ActionTake  = "take"
	ActionRead  = "read"
	ActionWrite = "write"
)

// MaxSignText - максимальная длина текста таблички в символах
const MaxSignText = 120

// Chest - сундук на 45 слотов
type Chest struct {
	Base
	inv *inventory.Inventory
}

// NewChest создает пустой сундук
func NewChest(pos wt.TilePosition, limits inventory.Limits) *Chest {
	c := &Chest{inv: inventory.New(inventory.ChestSlots, limits)}
	c.init(pos, wt.TileChest)
	return c
}

func (c *Chest) Kind() Kind { return KindChest }

// Inventory возвращает содержимое сундука
func (c *Chest) Inventory() *inventory.Inventory { return c.inv }

func (c *Chest) Snapshot() map[string]any {
	return map[string]any{"slots": c.inv.Snapshot()}
}

// Spill опустошает сундук
func (c *Chest) Spill() []wt.ItemStack {
	return c.inv.Drain()
}

// Record возвращает запись для снимка
func (c *Chest) Record() storage.ChestRecord {
	return storage.ChestRecord{Position: c.pos, Slots: c.inv.Snapshot()}
}

func (c *Chest) markChanged() {
	c.mu.Lock()
	c.markChangedLocked()
	c.mu.Unlock()
}

// OnInteract обрабатывает open, put и take
func (c *Chest) OnInteract(playerID string, action string, req Request) (*wt.WorldEvent, error) {
	switch action {
	case ActionOpen:
		return event(c, playerID, action), nil

	case ActionPut:
		if req.Inventory == nil {
			return nil, fmt.Errorf("%w: нет инвентаря игрока", ErrInteractionFailed)
		}
		if err := transfer(req.Inventory, req.Slot, req.Count, c.inv); err != nil {
			return nil, err
		}
		c.markChanged()
		return event(c, playerID, action), nil

	case ActionTake:
		if req.Inventory == nil {
			return nil, fmt.Errorf("%w: нет инвентаря игрока", ErrInteractionFailed)
		}
		if err := transfer(c.inv, req.Slot, req.Count, req.Inventory); err != nil {
			return nil, err
		}
		c.markChanged()
		return event(c, playerID, action), nil
	}
	return nil, fmt.Errorf("%w: сундук не умеет %q", ErrUnknownAction, action)
}

// transfer перекладывает count предметов из слота src в dst. То, что не влезло, остается в src.
func transfer(src *inventory.Inventory, slot, count int, dst *inventory.Inventory) error {
	if slot < 0 || slot >= src.Size() {
		return fmt.Errorf("%w: слот %d", ErrInteractionFailed, slot)
	}
	s := src.Slot(slot)
	if s.Empty() {
		return fmt.Errorf("%w: слот %d пуст", ErrInteractionFailed, slot)
	}
	if count <= 0 || count > s.Count {
		count = s.Count
	}
	rest := dst.Add(wt.ItemStack{ID: s.ID, Count: count})
	moved := count - rest.Count
	if moved == 0 {
		return fmt.Errorf("%w: %v", ErrInteractionFailed, inventory.ErrNoSpace)
	}
	return src.Subtract(slot, moved)
}

// Sign - табличка с текстом
type Sign struct {
	Base
	text string
}

// NewSign создает пустую табличку
func NewSign(pos wt.TilePosition) *Sign {
	s := &Sign{}
	s.init(pos, wt.TileSign)
	return s
}

func (s *Sign) Kind() Kind { return KindSign }

// Text возвращает текст таблички
func (s *Sign) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// SetText записывает текст, обрезая его до MaxSignText символов
func (s *Sign) SetText(text string) {
	if utf8.RuneCountInString(text) > MaxSignText {
		text = string([]rune(text)[:MaxSignText])
	}
	s.mu.Lock()
	s.text = text
	s.markChangedLocked()
	s.mu.Unlock()
}

func (s *Sign) Snapshot() map[string]any {
	return map[string]any{"text": s.Text()}
}

// Record возвращает запись для снимка
func (s *Sign) Record() storage.SignRecord {
	return storage.SignRecord{Position: s.pos, Text: s.Text()}
}

// OnInteract обрабатывает read и write
func (s *Sign) OnInteract(playerID string, action string, req Request) (*wt.WorldEvent, error) {
	switch action {
	case ActionRead, ActionOpen:
		return event(s, playerID, ActionRead), nil
	case ActionWrite:
		s.SetText(req.Text)
		return event(s, playerID, action), nil
	}
	return nil, fmt.Errorf("%w: табличка не умеет %q", ErrUnknownAction, action)
}
