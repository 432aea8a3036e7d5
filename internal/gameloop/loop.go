package gameloop

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultTick - длительность игрового тика (20 TPS)
const DefaultTick = 50 * time.Millisecond

// maxStep ограничивает dt после зависаний, чтобы сущности не проскакивали сквозь стены
const maxStep = 250 * time.Millisecond

// Loop - главный цикл, вызывающий Tick всех зарегистрированных систем.
type Loop struct {
	systems []System
	tickDur time.Duration
	deps    Dependencies
	logger  *zap.SugaredLogger
	ticks   atomic.Uint64
	panics  atomic.Uint64
}

// NewLoop создаёт цикл с заданной длительностью тика.
// Системы, не прошедшие Init, в цикл не попадают.
func NewLoop(tick time.Duration, deps Dependencies, systems ...System) *Loop {
	if tick <= 0 {
		tick = DefaultTick
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.EmitWorldEvent == nil && deps.World != nil {
		deps.EmitWorldEvent = deps.World.Emit
	}
	l := &Loop{tickDur: tick, deps: deps, logger: deps.Logger.Named("gameloop")}
	for _, s := range systems {
		l.Add(s)
	}
	return l
}

// Add инициализирует систему и добавляет ее в цикл. Вызывать до Run.
func (l *Loop) Add(s System) bool {
	if err := s.Init(l.deps); err != nil {
		l.logger.Errorw("Ошибка инициализации системы", "system", s.Name(), "error", err)
		return false
	}
	l.systems = append(l.systems, s)
	return true
}

// Systems возвращает имена систем в порядке выполнения
func (l *Loop) Systems() []string {
	names := make([]string, len(l.systems))
	for i, s := range l.systems {
		names[i] = s.Name()
	}
	return names
}

// Ticks возвращает число выполненных тиков
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Panics возвращает число перехваченных паник систем
func (l *Loop) Panics() uint64 { return l.panics.Load() }

// Run запускает бесконечный цикл до отмены ctx.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.tickDur)
	defer ticker.Stop()

	l.logger.Infow("Игровой цикл запущен", "tick", l.tickDur, "systems", l.Systems())
	last := time.Now()
	for {
		select {
		case t := <-ticker.C:
			dt := t.Sub(last)
			last = t
			l.Step(ctx, min(dt, maxStep))
		case <-ctx.Done():
			l.logger.Infow("Игровой цикл остановлен", "ticks", l.ticks.Load())
			return
		}
	}
}

// Step выполняет один тик всех систем. На паузе работают только системы,
// которые этого просят через PauseAware.
func (l *Loop) Step(ctx context.Context, dt time.Duration) {
	paused := l.deps.World != nil && l.deps.World.State().Paused()
	for _, s := range l.systems {
		if paused {
			if pa, ok := s.(PauseAware); !ok || !pa.RunWhilePaused() {
				continue
			}
		}
		l.tickSystem(ctx, s, dt)
	}
	l.ticks.Add(1)
}

func (l *Loop) tickSystem(ctx context.Context, sys System, dt time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.logger.Errorw("Паника в системе", "system", sys.Name(), "panic", fmt.Sprint(r))
		}
	}()
	sys.Tick(ctx, dt)
}
