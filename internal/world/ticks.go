package world

import (
	"context"

	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// StreamChunks загружает чанки вокруг игроков и выгружает ушедшие из окон.
// Мобы и снаряды выгруженных чанков исчезают.
func (w *World) StreamChunks(ctx context.Context) (loaded, unloaded []wt.ChunkPosition, err error) {
	centers := w.playerCenters()
	if len(centers) == 0 {
		return nil, nil, nil
	}
	loaded, unloaded, err = w.chunks.ReloadAround(ctx, centers...)
	if err != nil {
		return loaded, unloaded, err
	}

	for _, pos := range unloaded {
		for _, id := range w.entities.DespawnChunk(pos) {
			w.emit(wt.WorldEvent{Type: wt.EventEntityDespawned, EntityID: id, Position: pos.Origin().Center()})
		}
		w.emit(wt.WorldEvent{
			Type:     wt.EventChunkUnloaded,
			Position: pos.Origin().Center(),
			Payload:  map[string]any{"x": pos.X, "y": pos.Y},
		})
	}
	return loaded, unloaded, nil
}

// ManageChunks исключает дальние чанки и вытесняет старые из кеша
func (w *World) ManageChunks(ctx context.Context) int {
	if centers := w.playerCenters(); len(centers) > 0 {
		w.chunks.CleanupDistant(centers...)
	}
	return w.chunks.ManageMemory(ctx)
}

// UpdateEntities продвигает все сущности на dt секунд
func (w *World) UpdateEntities(dt float64) {
	w.simMu.Lock()
	defer w.simMu.Unlock()

	w.tick.Add(1)
	w.entities.Update(w.tickContext(), dt)
	if w.entities.Count() > 0 {
		w.state.Autosave().MarkDirty()
	}
}

// SpawnMobs делает по попытке спауна возле каждого игрока. Возвращает число новых мобов.
func (w *World) SpawnMobs() int {
	night := w.state.Clock().IsNight()

	w.simMu.Lock()
	defer w.simMu.Unlock()

	spawned := 0
	ctx := w.tickContext()
	for _, p := range w.players.All() {
		if w.spawner.Attempt(ctx, p, night) != nil {
			spawned++
		}
	}
	return spawned
}

// AdvanceClock продвигает часы на dt секунд. Возвращает true, если изменилась освещенность.
func (w *World) AdvanceClock(dt float64) bool {
	w.simMu.Lock()
	changed := w.state.Clock().Advance(dt)
	w.simMu.Unlock()
	return changed
}

// BroadcastTime рассылает всем текущее время
func (w *World) BroadcastTime() {
	w.emitTime()
}

// CleanupItems не чаще ItemCleanupInterval удаляет старые и лишние предметы на земле.
// Возвращает число удаленных.
func (w *World) CleanupItems() int {
	w.simMu.Lock()
	defer w.simMu.Unlock()

	now := w.state.Clock().Now()
	if now-w.lastCleanup < w.cfg.ItemCleanupInterval {
		return 0
	}
	w.lastCleanup = now

	removed := w.entities.CleanupItems(now, w.cfg.Entity.ItemDespawnTime, w.cfg.Entity.MaxFloatingItems)
	for _, id := range removed {
		w.emit(wt.WorldEvent{Type: wt.EventEntityDespawned, EntityID: id})
	}
	return len(removed)
}

// TickTileEntities обновляет печи и пересылает изменения тайловых сущностей
func (w *World) TickTileEntities() int {
	changed := w.blocks.Tick()
	w.drainBlockEvents()
	if changed > 0 {
		w.state.Autosave().MarkDirty()
	}
	return changed
}
