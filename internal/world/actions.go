package world

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/annelo/tileworld/internal/block"
	"github.com/annelo/tileworld/internal/chunkmanager"
	"github.com/annelo/tileworld/internal/entity"
	"github.com/annelo/tileworld/internal/gamedata"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Параметры боя и добычи
const (
	bowDamage  = 3
	handDamage = 1
	// flintChance - камень дает кремень с вероятностью 1/flintChance
	flintChance = 17
)

// Outcome - результат действия игрока
type Outcome string

const (
	OutcomeShot      Outcome = "shot"
	OutcomeHitMob    Outcome = "hit_mob"
	OutcomeDamaged   Outcome = "damaged"
	OutcomeBroken    Outcome = "broken"
	OutcomeHarvested Outcome = "harvested"
	OutcomePlaced    Outcome = "placed"
	OutcomeSpawned   Outcome = "spawned"
	OutcomeSlept     Outcome = "slept"
)

// InteractData - параметры взаимодействия с тайловой сущностью
type InteractData struct {
	Slot  int
	Count int
	Text  string
}

// Act выполняет основное действие игрока предметом в руке по клетке target
func (w *World) Act(id string, target wt.TilePosition) (Outcome, error) {
	p, err := w.player(id)
	if err != nil {
		return "", err
	}
	if p.Dead() {
		return "", ErrPlayerDead
	}

	held := p.Held()
	def, hasDef := w.catalog.Item(held.ID)
	if held.Empty() {
		hasDef = false
	}

	// Спальник: без инструмента в руке игрок ложится спать
	if !hasDef || def.Type != gamedata.ItemTool {
		if cell, err := w.chunks.Cell(target); err == nil && cell.Object == wt.TileNone && cell.Overlay == wt.TileSleepingBag {
			if err := w.Sleep(id, target); err != nil {
				return "", err
			}
			return OutcomeSlept, nil
		}
	}

	w.simMu.Lock()
	defer w.simMu.Unlock()
	ctx := w.tickContext()

	if hasDef {
		switch {
		case def.Name == "bow":
			return w.shoot(ctx, p, target)
		case def.Type == gamedata.ItemSpawnEgg:
			return w.useSpawnEgg(ctx, p, def, target)
		case def.Type == gamedata.ItemPlaceable:
			return w.place(p, def, target)
		case def.Type == gamedata.ItemTool:
			outcome, err := w.hitObject(ctx, p, def, true, target)
			if errors.Is(err, ErrNothingToHit) {
				// инструментом можно ударить и моба
				if mob := w.mobAt(p, target); mob != nil {
					ctx.HurtMob(mob, max(def.Damage, handDamage))
					return OutcomeHitMob, nil
				}
			}
			return outcome, err
		}
	}

	damage := handDamage
	if hasDef && def.Type == gamedata.ItemWeapon && def.Damage > 0 {
		damage = def.Damage
	}
	if mob := w.mobAt(p, target); mob != nil {
		ctx.HurtMob(mob, damage)
		return OutcomeHitMob, nil
	}
	return w.hitObject(ctx, p, def, hasDef, target)
}

// mobAt ищет моба у цели, а если там никого нет, ближайшего к игроку в пределах удара
func (w *World) mobAt(p *entity.Player, target wt.TilePosition) *entity.Mob {
	reach := w.cfg.Entity.MeleeReach
	if mob := w.entities.NearestMob(target.Center(), 1); mob != nil && mob.Position().Dist(p.Position()) <= reach {
		return mob
	}
	return w.entities.NearestMob(p.Position(), reach)
}

// shoot выпускает стрелу в сторону цели
func (w *World) shoot(ctx *entity.TickContext, p *entity.Player, target wt.TilePosition) (Outcome, error) {
	arrow, ok := w.catalog.ItemByName("arrow")
	if !ok {
		return "", ErrNoArrows
	}
	if err := p.Inventory().Remove(arrow.ID, 1); err != nil {
		return "", ErrNoArrows
	}
	from := p.Position()
	d := target.Center().Sub(from)
	deg := math.Atan2(d.Y, d.X) * 180 / math.Pi
	ctx.FireProjectile(from, deg, entity.TeamPlayer, bowDamage)
	w.emitInventory(p)
	return OutcomeShot, nil
}

// useSpawnEgg создает моба из яйца призыва
func (w *World) useSpawnEgg(ctx *entity.TickContext, p *entity.Player, def gamedata.ItemDefinition, target wt.TilePosition) (Outcome, error) {
	if p.Position().Dist(target.Center()) > w.cfg.Reach {
		return "", ErrOutOfReach
	}
	cell, err := w.chunks.Cell(target)
	if err != nil {
		return "", err
	}
	if !cell.Walkable() {
		return "", ErrCannotPlace
	}
	mobDef, err := w.catalog.Mob(def.Mob)
	if err != nil {
		return "", err
	}
	if ctx.SpawnMob(mobDef, target.Center()) == nil {
		return "", fmt.Errorf("не удалось создать моба %s", mobDef.Name)
	}
	if err := p.Inventory().Subtract(p.Selected(), 1); err != nil {
		return "", err
	}
	w.emitInventory(p)
	return OutcomeSpawned, nil
}

// place ставит тайл из руки игрока
func (w *World) place(p *entity.Player, def gamedata.ItemDefinition, target wt.TilePosition) (Outcome, error) {
	tile, ok := def.PlacesTile()
	if !ok {
		return "", ErrCannotPlace
	}
	if p.Position().Dist(target.Center()) > w.cfg.Reach {
		return "", ErrOutOfReach
	}
	if p.Position().Tile() == target {
		return "", fmt.Errorf("%w: игрок стоит в этой клетке", ErrCannotPlace)
	}

	switch tile.Layer() {
	case wt.LayerObject:
		// объект не может появиться внутри другого игрока или моба
		if len(w.entities.Within(target.Center(), 0.9, entity.KindPlayer)) > 0 ||
			len(w.entities.Within(target.Center(), 0.9, entity.KindMob)) > 0 {
			return "", fmt.Errorf("%w: клетка занята", ErrCannotPlace)
		}
		err := w.chunks.PlaceObject(target, tile)
		if err != nil {
			return "", placeError(err)
		}
	case wt.LayerOverlay:
		if err := w.chunks.PlaceOverlay(target, tile); err != nil {
			return "", placeError(err)
		}
	default:
		return "", ErrCannotPlace
	}

	if w.blocks.HasFactory(tile) {
		if _, err := w.blocks.Create(target, tile); err != nil {
			w.logger.Warnw("Не удалось создать тайловую сущность", "tile", tile.String(), "error", err)
		}
	}
	if err := p.Inventory().Subtract(p.Selected(), 1); err != nil {
		return "", err
	}

	w.emitTileChanged(p.ID(), target)
	w.emitInventory(p)
	w.hooks.TilePlaced(p.ID(), target, tile)
	w.state.Autosave().MarkDirty()
	return OutcomePlaced, nil
}

func placeError(err error) error {
	if errors.Is(err, chunkmanager.ErrOccupied) || errors.Is(err, chunkmanager.ErrInvalidPlacement) {
		return fmt.Errorf("%w: %v", ErrCannotPlace, err)
	}
	return err
}

// hitObject бьет объект или покрытие клетки. Разрушенный тайл отдает добычу в инвентарь.
func (w *World) hitObject(ctx *entity.TickContext, p *entity.Player, held gamedata.ItemDefinition, hasHeld bool, target wt.TilePosition) (Outcome, error) {
	if p.Position().Dist(target.Center()) > w.cfg.Reach {
		return "", ErrOutOfReach
	}
	cell, err := w.chunks.Cell(target)
	if err != nil {
		return "", err
	}

	tile := cell.Object
	if tile == wt.TileNone {
		tile = cell.Overlay
	}
	if tile == wt.TileNone {
		return "", ErrNothingToHit
	}
	tdef, ok := w.catalog.Tile(tile)
	if !ok {
		return "", ErrNothingToHit
	}
	if !toolAllows(tdef, held, hasHeld) {
		if handHarvests(tdef, held, hasHeld) {
			return w.harvestByHand(ctx, p, tdef, target), nil
		}
		return "", fmt.Errorf("%w: %s добывается инструментом %s", ErrWrongTool, tile, tdef.Tool)
	}

	var broken bool
	if tile.Layer() == wt.LayerObject {
		power := 1
		if hasHeld && held.Type == gamedata.ItemTool && held.Power > 0 {
			power = held.Power
		}
		_, broken, err = w.chunks.DamageObject(target, power, tdef.Health)
	} else {
		_, err = w.chunks.RemoveOverlay(target)
		broken = true
	}
	if err != nil {
		return "", err
	}

	w.emitTileChanged(p.ID(), target)
	w.state.Autosave().MarkDirty()
	if !broken {
		return OutcomeDamaged, nil
	}

	for _, s := range w.blocks.Remove(target) {
		ctx.DropItem(target.Center(), s)
	}

	drop := wt.StackFromPair(tdef.Drop)
	if tile == wt.TileRock || tile == wt.TileIcyRock {
		if flint, ok := w.catalog.ItemByName("flint"); ok && ctx.Rand.Intn(flintChance) == 0 {
			drop = wt.ItemStack{ID: flint.ID, Count: 1}
		}
	}
	if !drop.Empty() {
		if rest := p.Inventory().Add(drop); !rest.Empty() {
			ctx.DropItem(p.Position(), rest)
		}
		w.emitInventory(p)
	}
	w.hooks.TileBroken(p.ID(), target, tile)
	return OutcomeBroken, nil
}

// toolAllows проверяет, подходит ли предмет в руке для добычи тайла
func toolAllows(tdef gamedata.TileDefinition, held gamedata.ItemDefinition, hasHeld bool) bool {
	if tdef.Tool == "" || tdef.Tool == gamedata.ToolAny {
		return true
	}
	return hasHeld && held.Type == gamedata.ItemTool && held.Tool == tdef.Tool && held.Tier >= tdef.Tier
}

// handHarvests сообщает, что тайл можно собирать без инструмента
func handHarvests(tdef gamedata.TileDefinition, held gamedata.ItemDefinition, hasHeld bool) bool {
	return tdef.HandHarvest > 0 && (!hasHeld || held.Type != gamedata.ItemTool)
}

// harvestByHand собирает тайл рукой: каждый HandHarvest-й удар подряд дает добычу, тайл остается
func (w *World) harvestByHand(ctx *entity.TickContext, p *entity.Player, tdef gamedata.TileDefinition, target wt.TilePosition) Outcome {
	if p.HarvestHit(target)%tdef.HandHarvest != 0 {
		return OutcomeDamaged
	}
	drop := wt.StackFromPair(tdef.Drop)
	if drop.Empty() {
		return OutcomeDamaged
	}
	if rest := p.Inventory().Add(drop); !rest.Empty() {
		ctx.DropItem(p.Position(), rest)
	}
	w.emitInventory(p)
	w.state.Autosave().MarkDirty()
	return OutcomeHarvested
}

// emitTileChanged рассылает новое содержимое клетки
func (w *World) emitTileChanged(playerID string, pos wt.TilePosition) {
	cell, err := w.chunks.Cell(pos)
	if err != nil {
		return
	}
	w.emit(wt.WorldEvent{
		Type:     wt.EventTileChanged,
		Position: pos.Center(),
		PlayerID: playerID,
		Payload: map[string]any{
			"x":      pos.X,
			"y":      pos.Y,
			"codes":  cell.Codes(),
			"damage": int(cell.Damage),
		},
	})
}

// Interact передает действие тайловой сущности в клетке target
func (w *World) Interact(id string, target wt.TilePosition, action string, data InteractData) (*wt.WorldEvent, error) {
	p, err := w.player(id)
	if err != nil {
		return nil, err
	}
	if p.Dead() {
		return nil, ErrPlayerDead
	}
	if p.Position().Dist(target.Center()) > w.cfg.Reach {
		return nil, ErrOutOfReach
	}

	ev, err := w.blocks.Interact(id, target, action, block.Request{
		Inventory: p.Inventory(),
		Slot:      data.Slot,
		Count:     data.Count,
		Text:      data.Text,
	})
	if err != nil {
		return nil, err
	}
	w.drainBlockEvents()

	switch action {
	case block.ActionOpen, block.ActionRead:
	default:
		w.emitInventory(p)
		w.state.Autosave().MarkDirty()
	}
	return ev, nil
}

// Craft изготавливает предмет по рецепту с номером index
func (w *World) Craft(id string, index int) error {
	p, err := w.player(id)
	if err != nil {
		return err
	}
	if p.Dead() {
		return ErrPlayerDead
	}
	recipe, err := w.catalog.Recipe(index)
	if err != nil {
		return err
	}
	if err := p.Inventory().Craft(recipe, w.workbenchNear(p.Position())); err != nil {
		return err
	}
	w.emitInventory(p)
	w.state.Autosave().MarkDirty()
	return nil
}

// workbenchNear ищет верстак в пределах WorkbenchRadius тайлов
func (w *World) workbenchNear(pos wt.Vec2) bool {
	center := pos.Tile()
	r := w.cfg.WorkbenchRadius
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			cell, err := w.chunks.Cell(wt.TilePosition{X: center.X + dx, Y: center.Y + dy})
			if err == nil && cell.Object == wt.TileWorkbench {
				return true
			}
		}
	}
	return false
}

// SpawnMob создает моба по имени в точке pos
func (w *World) SpawnMob(ctx context.Context, name string, pos wt.Vec2) (*entity.Mob, error) {
	def, ok := w.catalog.MobByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMobName, name)
	}
	if _, err := w.chunks.GetOrGenerate(ctx, pos.Chunk()); err != nil {
		return nil, err
	}

	w.simMu.Lock()
	defer w.simMu.Unlock()
	mob := w.tickContext().SpawnMob(def, pos)
	if mob == nil {
		return nil, fmt.Errorf("не удалось создать моба %s", name)
	}
	return mob, nil
}

// SkipNight пропускает остаток суток
func (w *World) SkipNight() {
	w.simMu.Lock()
	w.state.Clock().SkipNight()
	w.simMu.Unlock()
	w.state.Autosave().MarkDirty()
	w.emitTime()
}

func (w *World) emitTime() {
	clock := w.state.Clock()
	w.emit(wt.WorldEvent{
		Type:    wt.EventTime,
		Payload: map[string]any{"time": clock.Now(), "day": clock.Day(), "night": clock.IsNight(), "shade": clock.Shade()},
	})
}
