package gameloop

import (
	"context"
	"time"

	"github.com/annelo/tileworld/internal/world"
)

// broadcastEvery - раз в сколько тиков рассылается время (5 секунд при 20 TPS)
const broadcastEvery = 100

// DayNightSystem отвечает за ход игрового времени и освещенность.
type DayNightSystem struct {
	world *world.World
	ticks int64
}

func NewDayNightSystem() *DayNightSystem { return &DayNightSystem{} }

func (t *DayNightSystem) Name() string { return "day_night" }

func (t *DayNightSystem) Init(deps Dependencies) error {
	if deps.World == nil {
		return errNoWorld
	}
	t.world = deps.World
	return nil
}

func (t *DayNightSystem) Tick(ctx context.Context, dt time.Duration) {
	t.world.AdvanceClock(dt.Seconds())

	// Периодически оповещаем клиентов
	t.ticks++
	if t.ticks%broadcastEvery == 0 {
		t.world.BroadcastTime()
	}
}
