package gameloop

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/annelo/tileworld/internal/world"
)

var errNoWorld = errors.New("системе нужен мир")

// Интервалы систем по умолчанию
const (
	DefaultStreamInterval  = 250 * time.Millisecond
	DefaultCleanupInterval = 60 * time.Second
	DefaultSpawnCooldown   = 2 * time.Second
	DefaultAutosaveCheck   = time.Second
)

// ChunkStreamingSystem подгружает чанки вокруг игроков, выгружает дальние и следит за памятью
type ChunkStreamingSystem struct {
	world   *world.World
	logger  *zap.SugaredLogger
	stream  every
	cleanup every
}

func NewChunkStreamingSystem(streamInterval, cleanupInterval time.Duration) *ChunkStreamingSystem {
	if streamInterval <= 0 {
		streamInterval = DefaultStreamInterval
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &ChunkStreamingSystem{
		stream:  every{interval: streamInterval},
		cleanup: every{interval: cleanupInterval},
	}
}

func (s *ChunkStreamingSystem) Name() string { return "chunk_streaming" }

func (s *ChunkStreamingSystem) Init(deps Dependencies) error {
	if deps.World == nil {
		return errNoWorld
	}
	s.world = deps.World
	s.logger = deps.Logger.Named("chunks")
	return nil
}

func (s *ChunkStreamingSystem) Tick(ctx context.Context, dt time.Duration) {
	if s.stream.add(dt) {
		loaded, unloaded, err := s.world.StreamChunks(ctx)
		if err != nil {
			s.logger.Warnw("Ошибка подгрузки чанков", "error", err)
		} else if len(loaded)+len(unloaded) > 0 {
			s.logger.Debugw("Окна игроков обновлены", "loaded", len(loaded), "unloaded", len(unloaded))
		}
	}
	if s.cleanup.add(dt) {
		if evicted := s.world.ManageChunks(ctx); evicted > 0 {
			s.logger.Debugw("Чанки вытеснены из памяти", "count", evicted)
		}
	}
}

// EntitySystem продвигает сущности и убирает старые предметы
type EntitySystem struct {
	world *world.World
}

func NewEntitySystem() *EntitySystem { return &EntitySystem{} }

func (s *EntitySystem) Name() string { return "entities" }

func (s *EntitySystem) Init(deps Dependencies) error {
	if deps.World == nil {
		return errNoWorld
	}
	s.world = deps.World
	return nil
}

func (s *EntitySystem) Tick(ctx context.Context, dt time.Duration) {
	s.world.UpdateEntities(dt.Seconds())
	s.world.CleanupItems()
}

// SpawnSystem делает попытки спауна мобов не чаще cooldown
type SpawnSystem struct {
	world    *world.World
	cooldown every
	spawned  int
}

func NewSpawnSystem(cooldown time.Duration) *SpawnSystem {
	if cooldown <= 0 {
		cooldown = DefaultSpawnCooldown
	}
	return &SpawnSystem{cooldown: every{interval: cooldown}}
}

func (s *SpawnSystem) Name() string { return "spawn" }

func (s *SpawnSystem) Init(deps Dependencies) error {
	if deps.World == nil {
		return errNoWorld
	}
	s.world = deps.World
	return nil
}

func (s *SpawnSystem) Tick(ctx context.Context, dt time.Duration) {
	if s.cooldown.add(dt) {
		s.spawned += s.world.SpawnMobs()
	}
}

// Spawned возвращает число мобов, созданных системой
func (s *SpawnSystem) Spawned() int { return s.spawned }

// AutosaveSystem сохраняет мир, когда трекер говорит, что пора. Работает и на паузе.
type AutosaveSystem struct {
	world  *world.World
	logger *zap.SugaredLogger
	check  every
	saves  int
}

func NewAutosaveSystem(check time.Duration) *AutosaveSystem {
	if check <= 0 {
		check = DefaultAutosaveCheck
	}
	return &AutosaveSystem{check: every{interval: check}}
}

func (s *AutosaveSystem) Name() string { return "autosave" }

func (s *AutosaveSystem) RunWhilePaused() bool { return true }

func (s *AutosaveSystem) Init(deps Dependencies) error {
	if deps.World == nil {
		return errNoWorld
	}
	s.world = deps.World
	s.logger = deps.Logger.Named("autosave")
	return nil
}

func (s *AutosaveSystem) Tick(ctx context.Context, dt time.Duration) {
	if !s.check.add(dt) || !s.world.AutosaveDue() {
		return
	}
	if err := s.world.Save(ctx); err != nil {
		s.logger.Errorw("Ошибка автосохранения", "error", err)
		return
	}
	s.saves++
	s.logger.Debugw("Автосохранение выполнено", "saves", s.saves)
}

// Saves возвращает число успешных автосохранений
func (s *AutosaveSystem) Saves() int { return s.saves }

// DefaultSystems возвращает стандартный набор систем мира
func DefaultSystems(cleanupInterval time.Duration) []System {
	return []System{
		NewDayNightSystem(),
		NewChunkStreamingSystem(DefaultStreamInterval, cleanupInterval),
		NewEntitySystem(),
		NewSpawnSystem(DefaultSpawnCooldown),
		NewTileEntitySystem(),
		NewAutosaveSystem(DefaultAutosaveCheck),
	}
}
