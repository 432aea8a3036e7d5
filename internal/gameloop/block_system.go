package gameloop

import (
	"context"
	"time"

	"github.com/annelo/tileworld/internal/world"
)

// TileEntitySystem обновляет динамические тайловые сущности (печи).
// Очередь обновлений с приоритетами ведет сам менеджер тайловых сущностей.
type TileEntitySystem struct {
	world   *world.World
	updated int64
}

func NewTileEntitySystem() *TileEntitySystem { return &TileEntitySystem{} }

func (b *TileEntitySystem) Name() string { return "tile_entities" }

func (b *TileEntitySystem) Init(deps Dependencies) error {
	if deps.World == nil {
		return errNoWorld
	}
	b.world = deps.World
	return nil
}

func (b *TileEntitySystem) Tick(ctx context.Context, dt time.Duration) {
	b.updated += int64(b.world.TickTileEntities())
}

// Updated возвращает число обновлений с запуска
func (b *TileEntitySystem) Updated() int64 { return b.updated }
