// Package inventory реализует инвентарь из фиксированного числа слотов со стопками предметов.
package inventory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/annelo/tileworld/internal/gamedata"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Размеры инвентарей
const (
	PlayerSlots = 34
	HotbarSlots = 9
	ChestSlots  = 45
	// Stack - размер стопки, если предмет не задает свой
	Stack = gamedata.DefaultStack
)

var (
	// ErrMissingIngredients - не хватает ингредиентов для рецепта
	ErrMissingIngredients = errors.New("не хватает ингредиентов")
	// ErrNeedWorkbench - рецепт требует верстак рядом
	ErrNeedWorkbench = errors.New("нужен верстак")
	// ErrNoSpace - результату крафта некуда поместиться
	ErrNoSpace = errors.New("нет места в инвентаре")
	// ErrNotEnough - в инвентаре меньше предметов, чем нужно
	ErrNotEnough = errors.New("недостаточно предметов")
	// ErrBadSlot - номер слота вне инвентаря
	ErrBadSlot = errors.New("неверный номер слота")
	// ErrBadCount - количество должно быть положительным
	ErrBadCount = errors.New("количество должно быть положительным")
)

// Limits сообщает размер стопки предмета
type Limits interface {
	MaxStack(id int) int
}

type fixedLimits int

func (f fixedLimits) MaxStack(int) int { return int(f) }

// Inventory - набор слотов. Безопасен для конкурентного использования.
type Inventory struct {
	mu     sync.Mutex
	slots  []wt.ItemStack
	limits Limits
}

// New создает пустой инвентарь. Если limits == nil, все стопки по Stack.
func New(size int, limits Limits) *Inventory {
	if limits == nil {
		limits = fixedLimits(Stack)
	}
	return &Inventory{slots: make([]wt.ItemStack, size), limits: limits}
}

// Size возвращает число слотов
func (inv *Inventory) Size() int {
	return len(inv.slots)
}

// Slot возвращает содержимое слота
func (inv *Inventory) Slot(i int) wt.ItemStack {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if i < 0 || i >= len(inv.slots) {
		return wt.ItemStack{}
	}
	return inv.slots[i]
}

// SetSlot записывает содержимое слота
func (inv *Inventory) SetSlot(i int, s wt.ItemStack) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if i < 0 || i >= len(inv.slots) {
		return fmt.Errorf("%w: %d", ErrBadSlot, i)
	}
	if s.Empty() {
		s = wt.ItemStack{}
	}
	inv.slots[i] = s
	return nil
}

// Add кладет стопку в инвентарь и возвращает то, что не поместилось.
// Сначала стопка целиком добавляется к такой же, затем занимает пустой слот,
// и только если пустых нет, доливается в неполные стопки.
func (inv *Inventory) Add(s wt.ItemStack) wt.ItemStack {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.addLocked(s)
}

func (inv *Inventory) addLocked(s wt.ItemStack) wt.ItemStack {
	if s.Empty() {
		return wt.ItemStack{}
	}
	max := inv.limits.MaxStack(s.ID)

	for s.Count > 0 {
		if i := inv.findMergeable(s.ID, s.Count, max); i >= 0 {
			inv.slots[i].Count += s.Count
			return wt.ItemStack{}
		}
		i := inv.findEmpty()
		if i < 0 {
			break
		}
		n := s.Count
		if n > max {
			n = max
		}
		inv.slots[i] = wt.ItemStack{ID: s.ID, Count: n}
		s.Count -= n
	}

	for i := range inv.slots {
		if s.Count == 0 {
			break
		}
		if inv.slots[i].ID != s.ID || inv.slots[i].Count >= max {
			continue
		}
		n := max - inv.slots[i].Count
		if n > s.Count {
			n = s.Count
		}
		inv.slots[i].Count += n
		s.Count -= n
	}

	if s.Count == 0 {
		return wt.ItemStack{}
	}
	return s
}

func (inv *Inventory) findMergeable(id, amount, max int) int {
	for i, slot := range inv.slots {
		if slot.ID == id && slot.Count > 0 && slot.Count <= max-amount {
			return i
		}
	}
	return -1
}

func (inv *Inventory) findEmpty() int {
	for i, slot := range inv.slots {
		if slot.Empty() {
			return i
		}
	}
	return -1
}

// Give выдает qty предметов, разбивая их на стопки. Возвращает не поместившиеся стопки.
func (inv *Inventory) Give(id, qty int) []wt.ItemStack {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	max := inv.limits.MaxStack(id)
	var overflow []wt.ItemStack
	for qty > 0 {
		n := qty
		if n > max {
			n = max
		}
		qty -= n
		if rest := inv.addLocked(wt.ItemStack{ID: id, Count: n}); !rest.Empty() {
			overflow = append(overflow, rest)
		}
	}
	return overflow
}

// Subtract уменьшает стопку в слоте на n и очищает слот, если она закончилась
func (inv *Inventory) Subtract(slot, n int) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if slot < 0 || slot >= len(inv.slots) {
		return fmt.Errorf("%w: %d", ErrBadSlot, slot)
	}
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrBadCount, n)
	}
	if inv.slots[slot].Count < n {
		return ErrNotEnough
	}
	inv.slots[slot].Count -= n
	if inv.slots[slot].Count <= 0 {
		inv.slots[slot] = wt.ItemStack{}
	}
	return nil
}

// Remove забирает n предметов id из любых слотов. Либо все, либо ничего.
func (inv *Inventory) Remove(id, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrBadCount, n)
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.removeLocked(id, n)
}

func (inv *Inventory) removeLocked(id, n int) error {
	if inv.countLocked(id) < n {
		return fmt.Errorf("%w: предмет %d, нужно %d", ErrNotEnough, id, n)
	}
	for i := range inv.slots {
		if n == 0 {
			break
		}
		if inv.slots[i].ID != id {
			continue
		}
		take := inv.slots[i].Count
		if take > n {
			take = n
		}
		inv.slots[i].Count -= take
		n -= take
		if inv.slots[i].Count == 0 {
			inv.slots[i] = wt.ItemStack{}
		}
	}
	return nil
}

// Count возвращает общее число предметов id
func (inv *Inventory) Count(id int) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.countLocked(id)
}

func (inv *Inventory) countLocked(id int) int {
	total := 0
	for _, s := range inv.slots {
		if s.ID == id {
			total += s.Count
		}
	}
	return total
}

// Craft проверяет и выполняет рецепт. При ошибке инвентарь не меняется.
func (inv *Inventory) Craft(r gamedata.Recipe, hasWorkbench bool) error {
	if r.RequiresWorkbench && !hasWorkbench {
		return ErrNeedWorkbench
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	for _, ing := range r.Ingredients {
		if inv.countLocked(ing[0]) < ing[1] {
			return fmt.Errorf("%w: предмет %d", ErrMissingIngredients, ing[0])
		}
	}

	backup := make([]wt.ItemStack, len(inv.slots))
	copy(backup, inv.slots)

	for _, ing := range r.Ingredients {
		if err := inv.removeLocked(ing[0], ing[1]); err != nil {
			inv.slots = backup
			return fmt.Errorf("%w: %v", ErrMissingIngredients, err)
		}
	}
	if rest := inv.addLocked(wt.ItemStack{ID: r.Result, Count: r.Quantity}); !rest.Empty() {
		inv.slots = backup
		return ErrNoSpace
	}
	return nil
}

// Snapshot возвращает содержимое в виде пар [id, qty]
func (inv *Inventory) Snapshot() [][2]int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([][2]int, len(inv.slots))
	for i, s := range inv.slots {
		out[i] = s.Pair()
	}
	return out
}

// Restore заполняет инвентарь из пар [id, qty]. Лишние пары отбрасываются.
func (inv *Inventory) Restore(pairs [][2]int) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for i := range inv.slots {
		if i < len(pairs) {
			inv.slots[i] = wt.StackFromPair(pairs[i])
		} else {
			inv.slots[i] = wt.ItemStack{}
		}
	}
}

// Drain опустошает инвентарь и возвращает непустые стопки
func (inv *Inventory) Drain() []wt.ItemStack {
	return inv.DrainRange(0, len(inv.slots))
}

// DrainRange опустошает слоты [from, to) и возвращает непустые стопки
func (inv *Inventory) DrainRange(from, to int) []wt.ItemStack {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if from < 0 {
		from = 0
	}
	if to > len(inv.slots) {
		to = len(inv.slots)
	}
	var out []wt.ItemStack
	for i := from; i < to; i++ {
		if !inv.slots[i].Empty() {
			out = append(out, inv.slots[i])
		}
		inv.slots[i] = wt.ItemStack{}
	}
	return out
}

// Empty сообщает, что все слоты пусты
func (inv *Inventory) Empty() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, s := range inv.slots {
		if !s.Empty() {
			return false
		}
	}
	return true
}
