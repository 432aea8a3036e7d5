// Package gameloop крутит игровой цикл с фиксированным шагом и подключаемыми системами.
package gameloop

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/annelo/tileworld/internal/world"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// System описывает логику, выполняемую каждый тик цикла.
type System interface {
	// Init вызывается один раз перед запуском цикла.
	Init(deps Dependencies) error
	// Tick вызывается каждый игровой тик.
	Tick(ctx context.Context, dt time.Duration)
	// Name возвращает читаемое имя системы.
	Name() string
}

// PauseAware - система, которая сама решает, работать ли на паузе
type PauseAware interface {
	RunWhilePaused() bool
}

// Dependencies передаются системам при инициализации.
type Dependencies struct {
	World  *world.World
	Logger *zap.SugaredLogger
	// EmitWorldEvent используется системами для широковещательных событий.
	EmitWorldEvent func(event wt.WorldEvent)
}

// every считает накопленное время и срабатывает раз в interval
type every struct {
	interval time.Duration
	acc      time.Duration
}

func (e *every) add(dt time.Duration) bool {
	if e.interval <= 0 {
		return true
	}
	e.acc += dt
	if e.acc < e.interval {
		return false
	}
	e.acc -= e.interval
	if e.acc >= e.interval {
		// после долгой паузы не догоняем пропущенные срабатывания
		e.acc = 0
	}
	return true
}
