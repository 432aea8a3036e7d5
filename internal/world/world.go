// Package world связывает генератор, чанки, сущности, тайловые сущности и часы в один игровой мир
// и реализует действия игроков.
package world

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/annelo/tileworld/internal/block"
	"github.com/annelo/tileworld/internal/chunkmanager"
	"github.com/annelo/tileworld/internal/entity"
	"github.com/annelo/tileworld/internal/gamedata"
	"github.com/annelo/tileworld/internal/gamestate"
	"github.com/annelo/tileworld/internal/playermanager"
	"github.com/annelo/tileworld/internal/storage"
	"github.com/annelo/tileworld/internal/worldgen"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Ошибки действий игроков
var (
	ErrPlayerDead     = errors.New("игрок мертв")
	ErrPlayerAlive    = errors.New("игрок жив")
	ErrOutOfReach     = errors.New("слишком далеко")
	ErrWrongTool      = errors.New("нужен другой инструмент")
	ErrNothingToHit   = errors.New("здесь нечего добывать")
	ErrCannotPlace    = errors.New("сюда нельзя поставить")
	ErrNoArrows       = errors.New("нет стрел")
	ErrNoBed          = errors.New("здесь нет спальника")
	ErrEmptyMessage   = errors.New("пустое сообщение")
	ErrUnknownMobName = errors.New("неизвестный моб")
)

// Config - параметры мира
type Config struct {
	Name   string
	Seed   int64
	Chunks chunkmanager.Config
	Clock  gamestate.Config
	Entity entity.Settings

	// PlayerHealth - здоровье нового игрока
	PlayerHealth int
	// StartingInventory выдается новому игроку
	StartingInventory []wt.ItemStack
	// Reach - дальность действий игрока в тайлах
	Reach float64
	// WorkbenchRadius - на каком расстоянии верстак позволяет крафт
	WorkbenchRadius int32
	// SmeltTime - время переплавки в печи
	SmeltTime time.Duration
	// ItemCleanupInterval - период очистки предметов на земле, мс игрового времени
	ItemCleanupInterval int64
	// SpawnSearchRadius - радиус поиска точки появления в чанках
	SpawnSearchRadius int32
	// EventBuffer - размер канала событий
	EventBuffer int
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		Name:                "world",
		Chunks:              chunkmanager.DefaultConfig(),
		Clock:               gamestate.DefaultConfig(),
		Entity:              entity.DefaultSettings(),
		PlayerHealth:        20,
		Reach:               4,
		WorkbenchRadius:     3,
		SmeltTime:           block.DefaultSmeltTime,
		ItemCleanupInterval: 5000,
		SpawnSearchRadius:   16,
		EventBuffer:         1024,
	}
}

// Hooks - обработчики событий мира, которые подключают плагины
type Hooks interface {
	ChunkGenerated(c *wt.Chunk)
	ChunkSaved(pos wt.ChunkPosition)
	TilePlaced(playerID string, pos wt.TilePosition, tile wt.TileID)
	TileBroken(playerID string, pos wt.TilePosition, tile wt.TileID)
	PlayerDied(playerID string)
}

type noHooks struct{}

func (noHooks) ChunkGenerated(*wt.Chunk)                      {}
func (noHooks) ChunkSaved(wt.ChunkPosition)                   {}
func (noHooks) TilePlaced(string, wt.TilePosition, wt.TileID) {}
func (noHooks) TileBroken(string, wt.TilePosition, wt.TileID) {}
func (noHooks) PlayerDied(string)                             {}

// Option настраивает мир
type Option func(*World)

// WithHooks подключает обработчики событий
func WithHooks(h Hooks) Option {
	return func(w *World) {
		if h != nil {
			w.hooks = h
		}
	}
}

// WithBlockFactories регистрирует дополнительные фабрики тайловых сущностей
func WithBlockFactories(factories map[wt.TileID]block.Factory) Option {
	return func(w *World) {
		w.extraFactories = factories
	}
}

// World представляет полный игровой мир
type World struct {
	cfg     Config
	catalog *gamedata.Catalog
	store   storage.WorldStorage
	logger  *zap.SugaredLogger

	gen      *worldgen.Generator
	chunks   *chunkmanager.ChunkManager
	entities *entity.Manager
	blocks   *block.Manager
	players  *playermanager.PlayerManager
	state    *gamestate.Manager
	spawner  *entity.Spawner

	// simMu упорядочивает изменения симуляции: действия игроков и тики систем
	simMu       sync.Mutex
	rng         *rand.Rand
	lastCleanup int64

	infoMu sync.Mutex
	info   storage.WorldInfo

	tick    atomic.Uint64
	events  chan *wt.WorldEvent
	dropped atomic.Int64

	hooks          Hooks
	extraFactories map[wt.TileID]block.Factory
}

// New создает мир и восстанавливает из хранилища информацию о мире, часы и сущности.
// Если мир в хранилище уже есть, его сид важнее cfg.Seed. store может быть nil.
func New(ctx context.Context, cfg Config, cat *gamedata.Catalog, store storage.WorldStorage, rng *rand.Rand, logger *zap.SugaredLogger, opts ...Option) (*World, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}

	w := &World{
		cfg:      cfg,
		catalog:  cat,
		store:    store,
		logger:   logger,
		entities: entity.NewManager(),
		players:  playermanager.NewPlayerManager(),
		state:    gamestate.NewManager(cfg.Clock),
		spawner:  entity.NewSpawner(cat, cfg.Chunks.RenderX, cfg.Chunks.RenderY),
		rng:      rng,
		events:   make(chan *wt.WorldEvent, cfg.EventBuffer),
		hooks:    noHooks{},
	}
	for _, opt := range opts {
		opt(w)
	}

	info, fresh, err := w.loadInfo(ctx)
	if err != nil {
		return nil, err
	}
	w.info = *info
	w.gen = worldgen.NewGenerator(info.Seed)

	cmOpts := []chunkmanager.Option{
		chunkmanager.WithLogger(logger.Named("chunkmanager")),
		chunkmanager.WithGenerateHook(func(c *wt.Chunk) { w.hooks.ChunkGenerated(c) }),
		chunkmanager.WithSaveHook(func(pos wt.ChunkPosition) { w.hooks.ChunkSaved(pos) }),
	}
	if store != nil {
		cmOpts = append(cmOpts, chunkmanager.WithStorage(store))
	}
	w.chunks = chunkmanager.New(w.gen, cfg.Chunks, cmOpts...)

	w.blocks = block.NewManager(cat,
		block.WithLogger(logger.Named("block")),
		block.WithSmeltTime(cfg.SmeltTime),
	)
	for tile, f := range w.extraFactories {
		w.blocks.RegisterFactory(tile, f)
	}

	if !w.info.SpawnSet {
		spawn, err := w.gen.FindSpawn(ctx, cfg.SpawnSearchRadius)
		if err != nil {
			return nil, fmt.Errorf("ошибка при поиске точки появления: %w", err)
		}
		w.info.Spawn = spawn
		w.info.SpawnSet = true
	}

	w.state.Clock().Restore(gamestate.ClockState{GlobalTime: info.GlobalTime, Shade: info.NightShade})
	if err := w.restoreEntities(ctx); err != nil {
		return nil, err
	}

	logger.Infow("Мир загружен",
		"name", w.info.Name, "seed", w.info.Seed, "new", fresh,
		"spawn_x", w.info.Spawn.X, "spawn_y", w.info.Spawn.Y)
	return w, nil
}

// loadInfo читает информацию о мире или создает новую
func (w *World) loadInfo(ctx context.Context) (*storage.WorldInfo, bool, error) {
	if w.store != nil {
		info, err := w.store.LoadWorld(ctx)
		switch {
		case err == nil:
			if info.Name == "" {
				info.Name = w.cfg.Name
			}
			return info, false, nil
		case !errors.Is(err, storage.ErrWorldNotFound):
			return nil, false, fmt.Errorf("ошибка при загрузке информации о мире: %w", err)
		}
	}
	return &storage.WorldInfo{
		Name:       w.cfg.Name,
		Seed:       w.cfg.Seed,
		Version:    storage.FormatVersion,
		NightShade: gamestate.MaxShade,
		CreatedAt:  time.Now().Unix(),
	}, true, nil
}

// restoreEntities восстанавливает мобов, предметы и тайловые сущности
func (w *World) restoreEntities(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	snap, err := w.store.LoadEntities(ctx)
	if err != nil {
		return fmt.Errorf("ошибка при загрузке сущностей: %w", err)
	}
	n, err := w.entities.Restore(w.catalog, snap, w.state.Clock().Now())
	if err != nil {
		return fmt.Errorf("ошибка при восстановлении сущностей: %w", err)
	}
	tiles := w.blocks.Restore(snap)
	w.logger.Debugw("Сущности восстановлены", "entities", n, "tile_entities", tiles)
	return nil
}

// Config возвращает параметры мира
func (w *World) Config() Config { return w.cfg }

// Catalog возвращает игровые данные
func (w *World) Catalog() *gamedata.Catalog { return w.catalog }

// Chunks возвращает менеджер чанков
func (w *World) Chunks() *chunkmanager.ChunkManager { return w.chunks }

// Entities возвращает менеджер сущностей
func (w *World) Entities() *entity.Manager { return w.entities }

// Blocks возвращает менеджер тайловых сущностей
func (w *World) Blocks() *block.Manager { return w.blocks }

// Players возвращает реестр подключенных игроков
func (w *World) Players() *playermanager.PlayerManager { return w.players }

// State возвращает часы, паузу и автосохранение
func (w *World) State() *gamestate.Manager { return w.state }

// Generator возвращает генератор мира
func (w *World) Generator() *worldgen.Generator { return w.gen }

// Seed возвращает сид мира
func (w *World) Seed() int64 { return w.gen.Seed() }

// Name возвращает имя мира
func (w *World) Name() string {
	w.infoMu.Lock()
	defer w.infoMu.Unlock()
	return w.info.Name
}

// Spawn возвращает точку появления мира
func (w *World) Spawn() wt.TilePosition {
	w.infoMu.Lock()
	defer w.infoMu.Unlock()
	return w.info.Spawn
}

// Events возвращает канал событий мира
func (w *World) Events() <-chan *wt.WorldEvent {
	return w.events
}

// Emit публикует событие от имени системы или плагина
func (w *World) Emit(ev wt.WorldEvent) {
	w.emit(ev)
}

// Tick возвращает номер текущего тика
func (w *World) Tick() uint64 {
	return w.tick.Load()
}

// emit отправляет событие в канал, не блокируя симуляцию
func (w *World) emit(ev wt.WorldEvent) {
	if ev.Tick == 0 {
		ev.Tick = w.tick.Load()
	}
	if ev.Type == wt.EventPlayerDied {
		w.hooks.PlayerDied(ev.PlayerID)
	}
	w.publish(&ev)
}

func (w *World) publish(ev *wt.WorldEvent) {
	select {
	case w.events <- ev:
	default:
		if w.dropped.Add(1)%100 == 1 {
			w.logger.Warnw("Канал событий мира переполнен, событие отброшено",
				"type", ev.Type.String(), "dropped", w.dropped.Load())
		}
	}
}

// drainBlockEvents пересылает события тайловых сущностей в канал мира
func (w *World) drainBlockEvents() {
	for {
		select {
		case ev := <-w.blocks.Events():
			if ev.Tick == 0 {
				ev.Tick = w.tick.Load()
			}
			w.publish(ev)
		default:
			return
		}
	}
}

// tickContext собирает окружение для обновления сущностей. Вызывается под simMu.
func (w *World) tickContext() *entity.TickContext {
	return &entity.TickContext{
		Terrain:  w.chunks,
		Entities: w.entities,
		Catalog:  w.catalog,
		Rand:     w.rng,
		Settings: w.cfg.Entity,
		Now:      w.state.Clock().Now(),
		Tick:     w.tick.Load(),
		Emit:     w.emit,
	}
}

// Stats возвращает статистику мира
func (w *World) Stats() map[string]interface{} {
	hostile, friendly := w.entities.MobCounts()
	clock := w.state.Clock()
	return map[string]interface{}{
		"name":           w.Name(),
		"seed":           w.Seed(),
		"tick":           w.tick.Load(),
		"players":        w.players.Count(),
		"entities":       w.entities.Count(),
		"hostile_mobs":   hostile,
		"friendly_mobs":  friendly,
		"floating_items": len(w.entities.FloatingItems()),
		"tile_entities":  w.blocks.Count(),
		"time":           clock.Now(),
		"day":            clock.Day(),
		"night":          clock.IsNight(),
		"shade":          clock.Shade(),
		"paused":         w.state.Paused(),
		"dropped_events": w.dropped.Load(),
		"chunks":         w.chunks.Stats(),
	}
}
