package block

import (
	"fmt"
	"time"

	"github.com/annelo/tileworld/internal/gamedata"
	"github.com/annelo/tileworld/internal/inventory"
	"github.com/annelo/tileworld/internal/storage"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Действия с печью
const (
	ActionPutInput   = "put_input"
	ActionPutFuel    = "put_fuel"
	ActionTakeOutput = "take_output"
)

// Параметры печи
const (
	// DefaultSmeltTime - время переплавки одного предмета
	DefaultSmeltTime = 5 * time.Second
	// furnaceTickInterval - как часто печь обновляется
	furnaceTickInterval = 250 * time.Millisecond
)

// FurnaceRules - таблицы топлива и переплавки
type FurnaceRules interface {
	FuelTime(item int) (int64, bool)
	SmeltResult(item int) (int, bool)
	MaxStack(id int) int
}

var _ FurnaceRules = (*gamedata.Catalog)(nil)

// Furnace - печь со слотами сырья, топлива и результата
type Furnace struct {
	Base
	rules     FurnaceRules
	smeltTime time.Duration

	input  wt.ItemStack
	fuel   wt.ItemStack
	output wt.ItemStack

	burnLeft  time.Duration
	burnTotal time.Duration
	progress  time.Duration
	lastTick  time.Time
}

// NewFurnace создает остывшую пустую печь
func NewFurnace(pos wt.TilePosition, rules FurnaceRules, smeltTime time.Duration, now time.Time) *Furnace {
	if smeltTime <= 0 {
		smeltTime = DefaultSmeltTime
	}
	f := &Furnace{rules: rules, smeltTime: smeltTime, lastTick: now}
	f.init(pos, wt.TileFurnace)
	return f
}

func (f *Furnace) Kind() Kind { return KindFurnace }

// Slots возвращает сырье, топливо и результат
func (f *Furnace) Slots() (input, fuel, output wt.ItemStack) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.input, f.fuel, f.output
}

// Burning сообщает, горит ли печь
func (f *Furnace) Burning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.burnLeft > 0
}

func (f *Furnace) Snapshot() map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	progress := 0.0
	if f.smeltTime > 0 {
		progress = float64(f.progress) / float64(f.smeltTime)
	}
	return map[string]any{
		"input":    f.input.Pair(),
		"fuel":     f.fuel.Pair(),
		"output":   f.output.Pair(),
		"burning":  f.burnLeft > 0,
		"progress": progress,
	}
}

// Spill опустошает печь
func (f *Furnace) Spill() []wt.ItemStack {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wt.ItemStack
	for _, s := range []*wt.ItemStack{&f.input, &f.fuel, &f.output} {
		if !s.Empty() {
			out = append(out, *s)
		}
		*s = wt.ItemStack{}
	}
	f.burnLeft, f.progress = 0, 0
	return out
}

// Record возвращает запись для снимка. Таймеры не сохраняются.
func (f *Furnace) Record() storage.FurnaceRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return storage.FurnaceRecord{Position: f.pos, Input: f.input.Pair(), Fuel: f.fuel.Pair(), Output: f.output.Pair()}
}

// restore заполняет слоты из записи снимка
func (f *Furnace) restore(rec storage.FurnaceRecord) {
	f.mu.Lock()
	f.input = wt.StackFromPair(rec.Input)
	f.fuel = wt.StackFromPair(rec.Fuel)
	f.output = wt.StackFromPair(rec.Output)
	f.mu.Unlock()
}

// canSmeltLocked проверяет, есть ли что плавить и куда класть результат
func (f *Furnace) canSmeltLocked() (int, bool) {
	if f.input.Empty() {
		return 0, false
	}
	res, ok := f.rules.SmeltResult(f.input.ID)
	if !ok {
		return 0, false
	}
	if f.output.Empty() {
		return res, true
	}
	return res, f.output.ID == res && f.output.Count < f.rules.MaxStack(res)
}

// Tick сжигает топливо и переплавляет сырье
func (f *Furnace) Tick(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	dt := now.Sub(f.lastTick)
	f.lastTick = now
	if dt <= 0 {
		return false
	}

	changed := false
	for dt > 0 {
		res, canSmelt := f.canSmeltLocked()
		if f.burnLeft <= 0 {
			if !canSmelt || f.fuel.Empty() {
				break
			}
			ms, ok := f.rules.FuelTime(f.fuel.ID)
			if !ok || ms <= 0 {
				break
			}
			f.burnLeft = time.Duration(ms) * time.Millisecond
			f.burnTotal = f.burnLeft
			f.fuel.Count--
			if f.fuel.Count == 0 {
				f.fuel = wt.ItemStack{}
			}
			changed = true
		}

		step := dt
		if step > f.burnLeft {
			step = f.burnLeft
		}
		if canSmelt && step > f.smeltTime-f.progress {
			step = f.smeltTime - f.progress
		}
		dt -= step
		f.burnLeft -= step

		if !canSmelt {
			if f.progress > 0 {
				f.progress = 0
				changed = true
			}
			continue
		}
		f.progress += step
		if f.progress >= f.smeltTime {
			f.progress = 0
			f.input.Count--
			if f.input.Count == 0 {
				f.input = wt.ItemStack{}
			}
			if f.output.Empty() {
				f.output = wt.ItemStack{ID: res, Count: 1}
			} else {
				f.output.Count++
			}
			changed = true
		}
	}

	if f.burnLeft <= 0 {
		f.burnLeft = 0
		if _, ok := f.canSmeltLocked(); !ok && f.progress > 0 {
			f.progress = 0
			changed = true
		}
	}
	if changed {
		f.markChangedLocked()
	}
	return changed
}

// ScheduleInfo возвращает расписание обновлений печи
func (f *Furnace) ScheduleInfo() TickScheduleInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return TickScheduleInfo{
		MinInterval: furnaceTickInterval,
		Priority:    1,
		NextTick:    f.lastTick.Add(furnaceTickInterval),
	}
}

// putInto перекладывает предметы из слота игрока в слот печи
func (f *Furnace) putInto(dst *wt.ItemStack, req Request) error {
	if req.Inventory == nil {
		return fmt.Errorf("%w: нет инвентаря игрока", ErrInteractionFailed)
	}
	s := req.Inventory.Slot(req.Slot)
	if s.Empty() {
		return fmt.Errorf("%w: слот %d пуст", ErrInteractionFailed, req.Slot)
	}
	count := req.Count
	if count <= 0 || count > s.Count {
		count = s.Count
	}

	f.mu.Lock()
	if !dst.Empty() && dst.ID != s.ID {
		f.mu.Unlock()
		return fmt.Errorf("%w: слот печи занят другим предметом", ErrInteractionFailed)
	}
	free := f.rules.MaxStack(s.ID) - dst.Count
	if free < count {
		count = free
	}
	if count <= 0 {
		f.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInteractionFailed, inventory.ErrNoSpace)
	}
	dst.ID = s.ID
	dst.Count += count
	f.markChangedLocked()
	f.mu.Unlock()

	return req.Inventory.Subtract(req.Slot, count)
}

// OnInteract обрабатывает open, put_input, put_fuel и take_output
func (f *Furnace) OnInteract(playerID string, action string, req Request) (*wt.WorldEvent, error) {
	switch action {
	case ActionOpen:
		return event(f, playerID, action), nil
	}

	if req.Inventory == nil {
		return nil, fmt.Errorf("%w: нет инвентаря игрока", ErrInteractionFailed)
	}
	switch action {
	case ActionPutInput:
		s := req.Inventory.Slot(req.Slot)
		if _, ok := f.rules.SmeltResult(s.ID); !ok {
			return nil, fmt.Errorf("%w: предмет %d не плавится", ErrInteractionFailed, s.ID)
		}
		if err := f.putInto(&f.input, req); err != nil {
			return nil, err
		}
		return event(f, playerID, action), nil

	case ActionPutFuel:
		s := req.Inventory.Slot(req.Slot)
		if _, ok := f.rules.FuelTime(s.ID); !ok {
			return nil, fmt.Errorf("%w: предмет %d не горит", ErrInteractionFailed, s.ID)
		}
		if err := f.putInto(&f.fuel, req); err != nil {
			return nil, err
		}
		return event(f, playerID, action), nil

	case ActionTakeOutput:
		f.mu.Lock()
		out := f.output
		if out.Empty() {
			f.mu.Unlock()
			return nil, fmt.Errorf("%w: печь пуста", ErrInteractionFailed)
		}
		rest := req.Inventory.Add(out)
		f.output = rest
		f.markChangedLocked()
		f.mu.Unlock()
		return event(f, playerID, action), nil
	}
	return nil, fmt.Errorf("%w: печь не умеет %q", ErrUnknownAction, action)
}
