package world

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/annelo/tileworld/internal/entity"
	"github.com/annelo/tileworld/internal/gamedata"
	"github.com/annelo/tileworld/internal/playermanager"
	"github.com/annelo/tileworld/internal/storage"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// MaxChatMessage - максимальная длина сообщения чата в символах
const MaxChatMessage = 256

// maxMoveStep ограничивает шаг перемещения, чтобы лаг клиента не давал телепортироваться
const maxMoveStep = 0.25

var playerNamespace = uuid.MustParse("6f1c2b3e-8a55-4d0e-9b7a-3c1f0f6a2d41")

// PlayerID возвращает постоянный ID игрока по имени
func PlayerID(name string) string {
	return uuid.NewSHA1(playerNamespace, []byte(strings.ToLower(name))).String()
}

// player возвращает подключенного игрока
func (w *World) player(id string) (*entity.Player, error) {
	return w.players.Get(id)
}

// playerCenters возвращает чанки всех игроков
func (w *World) playerCenters() []wt.ChunkPosition {
	all := w.players.All()
	centers := make([]wt.ChunkPosition, 0, len(all))
	for _, p := range all {
		centers = append(centers, p.Position().Chunk())
	}
	return centers
}

// JoinPlayer подключает игрока: восстанавливает его из хранилища или создает в точке появления
func (w *World) JoinPlayer(ctx context.Context, id, name string) (*entity.Player, error) {
	if _, err := w.players.Get(id); err == nil {
		return nil, fmt.Errorf("игрок %s: %w", id, playermanager.ErrPlayerExists)
	}

	var p *entity.Player
	if w.store != nil {
		st, err := w.store.LoadPlayerState(ctx, id)
		switch {
		case err == nil:
			p = entity.PlayerFromState(st, w.catalog)
		case !errors.Is(err, storage.ErrPlayerNotFound):
			return nil, fmt.Errorf("ошибка при загрузке игрока %s: %w", id, err)
		}
	}
	if p == nil {
		spawn := w.Spawn().Center()
		p = entity.NewPlayer(id, name, spawn, w.cfg.PlayerHealth, w.catalog)
		for _, s := range w.cfg.StartingInventory {
			p.Inventory().Add(s)
		}
	}

	// Чанки вокруг игрока должны быть загружены до того, как он начнет двигаться
	centers := append(w.playerCenters(), p.Position().Chunk())
	if _, _, err := w.chunks.ReloadAround(ctx, centers...); err != nil {
		return nil, fmt.Errorf("ошибка при загрузке чанков вокруг игрока: %w", err)
	}

	if err := w.players.Add(p); err != nil {
		return nil, err
	}
	if err := w.entities.Add(p); err != nil {
		w.players.Remove(id)
		return nil, err
	}

	w.emit(wt.WorldEvent{
		Type:     wt.EventPlayerJoined,
		Position: p.Position(),
		PlayerID: id,
		Message:  name,
	})
	w.logger.Infow("Игрок подключился", "player_id", id, "name", name)
	return p, nil
}

// LeavePlayer сохраняет игрока и отключает его
func (w *World) LeavePlayer(ctx context.Context, id string) error {
	p, err := w.players.Remove(id)
	if err != nil {
		return err
	}
	w.entities.Remove(id)

	w.emit(wt.WorldEvent{Type: wt.EventPlayerLeft, Position: p.Position(), PlayerID: id, Message: p.Name()})
	w.logger.Infow("Игрок отключился", "player_id", id)

	if w.store == nil {
		return nil
	}
	if err := w.store.SavePlayerState(ctx, p.State(w.state.Clock().Now())); err != nil {
		return fmt.Errorf("ошибка при сохранении игрока %s: %w", id, err)
	}
	return nil
}

// MovePlayer двигает игрока в направлении dir в течение dt секунд
func (w *World) MovePlayer(id string, dir wt.Vec2, dt float64) (wt.Vec2, error) {
	p, err := w.player(id)
	if err != nil {
		return wt.Vec2{}, err
	}
	if p.Dead() {
		return p.Position(), ErrPlayerDead
	}
	if dt <= 0 {
		return p.Position(), nil
	}
	if dt > maxMoveStep {
		dt = maxMoveStep
	}

	before := p.Position()
	pos := p.Move(w.chunks, dir.Normalize(), dt, w.cfg.Entity)
	if pos != before {
		w.emit(wt.WorldEvent{Type: wt.EventPlayerMoved, Position: pos, PlayerID: id, EntityID: id})
	}
	return pos, nil
}

// Teleport переносит игрока в точку
func (w *World) Teleport(ctx context.Context, id string, pos wt.Vec2) error {
	p, err := w.player(id)
	if err != nil {
		return err
	}
	if _, err := w.chunks.GetOrGenerate(ctx, pos.Chunk()); err != nil {
		return err
	}
	p.SetPosition(pos)
	w.emit(wt.WorldEvent{Type: wt.EventPlayerMoved, Position: pos, PlayerID: id, EntityID: id})
	return nil
}

// SelectSlot выбирает слот хотбара
func (w *World) SelectSlot(id string, slot int) error {
	p, err := w.player(id)
	if err != nil {
		return err
	}
	return p.SelectSlot(slot)
}

// Respawn возрождает мертвого игрока в его точке появления
func (w *World) Respawn(ctx context.Context, id string) (wt.Vec2, error) {
	p, err := w.player(id)
	if err != nil {
		return wt.Vec2{}, err
	}
	if !p.Dead() {
		return p.Position(), ErrPlayerAlive
	}
	pos := p.Respawn(w.state.Clock().Now())
	if _, _, err := w.chunks.ReloadAround(ctx, w.playerCenters()...); err != nil {
		w.logger.Warnw("Не удалось загрузить чанки вокруг точки возрождения", "player_id", id, "error", err)
	}
	health, _ := p.Health()
	w.emit(wt.WorldEvent{
		Type:     wt.EventPlayerRespawned,
		Position: pos,
		PlayerID: id,
		Payload:  map[string]any{"health": health},
	})
	return pos, nil
}

// Sleep укладывает игрока спать в спальнике bed
func (w *World) Sleep(id string, bed wt.TilePosition) error {
	p, err := w.player(id)
	if err != nil {
		return err
	}
	if p.Dead() {
		return ErrPlayerDead
	}
	if p.Position().Dist(bed.Center()) > w.cfg.Reach {
		return ErrOutOfReach
	}
	cell, err := w.chunks.Cell(bed)
	if err != nil {
		return err
	}
	if cell.Overlay != wt.TileSleepingBag {
		return ErrNoBed
	}

	w.simMu.Lock()
	err = w.state.Sleep(p, bed)
	w.simMu.Unlock()
	if err != nil {
		return err
	}

	clock := w.state.Clock()
	health, _ := p.Health()
	w.emit(wt.WorldEvent{
		Type:     wt.EventTime,
		Position: bed.Center(),
		PlayerID: id,
		Payload:  map[string]any{"time": clock.Now(), "day": clock.Day(), "shade": clock.Shade()},
	})
	w.emit(wt.WorldEvent{
		Type:     wt.EventPlayerHealth,
		Position: p.Position(),
		PlayerID: id,
		Payload:  map[string]any{"health": health},
	})
	return nil
}

// GiveItem выдает игроку предметы; то, что не влезло, падает на землю рядом с ним
func (w *World) GiveItem(id string, item, qty int) error {
	if _, ok := w.catalog.Item(item); !ok {
		return fmt.Errorf("предмет %d: %w", item, gamedata.ErrUnknownItem)
	}
	if qty <= 0 {
		return fmt.Errorf("количество должно быть положительным: %d", qty)
	}
	p, err := w.player(id)
	if err != nil {
		return err
	}

	overflow := p.Inventory().Give(item, qty)

	w.simMu.Lock()
	ctx := w.tickContext()
	for _, s := range overflow {
		ctx.DropItem(p.Position(), s)
	}
	w.simMu.Unlock()

	w.emitInventory(p)
	w.state.Autosave().MarkDirty()
	return nil
}

// Chat рассылает сообщение игрока
func (w *World) Chat(id, text string) error {
	p, err := w.player(id)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxChatMessage {
		text = string([]rune(text)[:MaxChatMessage])
	}
	w.emit(wt.WorldEvent{
		Type:     wt.EventChat,
		Position: p.Position(),
		PlayerID: id,
		Message:  text,
		Payload:  map[string]any{"name": p.Name()},
	})
	return nil
}

// emitInventory рассылает содержимое инвентаря игрока
func (w *World) emitInventory(p *entity.Player) {
	w.emit(wt.WorldEvent{
		Type:     wt.EventInventory,
		Position: p.Position(),
		PlayerID: p.ID(),
		Payload:  map[string]any{"slots": p.Inventory().Snapshot(), "selected": p.Selected()},
	})
}
