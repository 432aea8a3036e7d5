package world

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annelo/tileworld/internal/savegame"
	"github.com/annelo/tileworld/internal/storage"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// worldInfo возвращает информацию о мире с текущим временем суток
func (w *World) worldInfo() *storage.WorldInfo {
	clock := w.state.Clock().Snapshot()

	w.infoMu.Lock()
	defer w.infoMu.Unlock()
	w.info.GlobalTime = clock.GlobalTime
	w.info.NightShade = clock.Shade
	info := w.info
	return &info
}

// entitySnapshot собирает снимок мобов, предметов и тайловых сущностей
func (w *World) entitySnapshot() *storage.EntitySnapshot {
	now := w.state.Clock().Now()
	snap := storage.NewEntitySnapshot()
	snap.SavedAt = time.Now().Unix()
	snap.Mobs, snap.FloatingItems = w.entities.Snapshot(now)
	w.blocks.Snapshot(snap)
	return snap
}

// Save сохраняет измененные чанки, игроков, сущности и информацию о мире
func (w *World) Save(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	started := time.Now()
	var errs []error

	chunks, err := w.chunks.SaveDirty(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("чанки: %w", err))
	}

	now := w.state.Clock().Now()
	for _, p := range w.players.All() {
		if err := w.store.SavePlayerState(ctx, p.State(now)); err != nil {
			errs = append(errs, fmt.Errorf("игрок %s: %w", p.ID(), err))
		}
	}

	if err := w.store.SaveEntities(ctx, w.entitySnapshot()); err != nil {
		errs = append(errs, fmt.Errorf("сущности: %w", err))
	}

	info := w.worldInfo()
	info.LastSaveAt = time.Now().Unix()
	if err := w.store.SaveWorld(ctx, info); err != nil {
		errs = append(errs, fmt.Errorf("информация о мире: %w", err))
	}
	if err := w.store.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("запись на диск: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("ошибка при сохранении мира: %w", err)
	}

	w.infoMu.Lock()
	w.info.LastSaveAt = info.LastSaveAt
	w.infoMu.Unlock()
	w.state.Autosave().Saved(time.Now().UnixMilli())

	w.logger.Debugw("Мир сохранен", "chunks", chunks, "players", w.players.Count(), "duration", time.Since(started))
	return nil
}

// AutosaveDue сообщает, пора ли автосохранение
func (w *World) AutosaveDue() bool {
	return w.state.Autosave().Due(time.Now().UnixMilli())
}

// Snapshot собирает переносимое сохранение мира от лица игрока playerID.
// В него попадают все чанки, измененные игроками.
func (w *World) Snapshot(ctx context.Context, playerID string) (*savegame.GameSave, error) {
	positions := make(map[wt.ChunkPosition]bool)
	if w.store != nil {
		stored, err := w.store.ListChunks(ctx)
		if err != nil {
			return nil, fmt.Errorf("ошибка при получении списка чанков: %w", err)
		}
		for _, pos := range stored {
			positions[pos] = true
		}
	}
	for _, pos := range w.chunks.ModifiedChunks() {
		positions[pos] = true
	}

	chunks := make([]*wt.Chunk, 0, len(positions))
	for pos := range positions {
		c, err := w.chunks.GetOrGenerate(ctx, pos)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}

	var state *storage.PlayerState
	now := w.state.Clock().Now()
	if p, err := w.player(playerID); err == nil {
		state = p.State(now)
	} else if w.store != nil {
		if st, err := w.store.LoadPlayerState(ctx, playerID); err == nil {
			state = st
		}
	}

	return savegame.Build(w.worldInfo(), state, w.entitySnapshot(), chunks), nil
}
