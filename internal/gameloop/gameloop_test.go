package gameloop_test

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/tileworld/internal/gamedata"
	"github.com/annelo/tileworld/internal/gameloop"
	"github.com/annelo/tileworld/internal/storage"
	"github.com/annelo/tileworld/internal/world"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

type countingSystem struct {
	name    string
	initErr error
	ticks   int
	total   time.Duration
	panics  bool
	paused  bool
}

func (s *countingSystem) Name() string                     { return s.name }
func (s *countingSystem) Init(gameloop.Dependencies) error { return s.initErr }
func (s *countingSystem) RunWhilePaused() bool             { return s.paused }
func (s *countingSystem) Tick(_ context.Context, dt time.Duration) {
	s.ticks++
	s.total += dt
	if s.panics {
		panic("сломалось")
	}
}

func newWorld(t *testing.T, store storage.WorldStorage) *world.World {
	t.Helper()
	cat, err := gamedata.Load()
	require.NoError(t, err)
	cfg := world.DefaultConfig()
	cfg.Seed = 42
	w, err := world.New(context.Background(), cfg, cat, store, rand.New(rand.NewSource(42)), nil)
	require.NoError(t, err)
	return w
}

func TestLoopStepRecoversPanics(t *testing.T) {
	good := &countingSystem{name: "good"}
	bad := &countingSystem{name: "bad", panics: true}
	broken := &countingSystem{name: "broken", initErr: errors.New("нет")}

	loop := gameloop.NewLoop(0, gameloop.Dependencies{}, bad, broken, good)
	assert.Equal(t, []string{"bad", "good"}, loop.Systems(), "система с ошибкой Init не попадает в цикл")

	loop.Step(context.Background(), 50*time.Millisecond)
	loop.Step(context.Background(), 50*time.Millisecond)

	assert.Equal(t, 2, good.ticks, "паника соседней системы не мешает остальным")
	assert.Equal(t, 100*time.Millisecond, good.total)
	assert.Equal(t, uint64(2), loop.Panics())
	assert.Equal(t, uint64(2), loop.Ticks())
}

func TestLoopHonoursPause(t *testing.T) {
	w := newWorld(t, nil)
	regular := &countingSystem{name: "regular"}
	always := &countingSystem{name: "always", paused: true}
	loop := gameloop.NewLoop(0, gameloop.Dependencies{World: w}, regular, always)

	require.True(t, w.State().Pause())
	loop.Step(context.Background(), time.Second)
	assert.Equal(t, 0, regular.ticks, "на паузе обычные системы стоят")
	assert.Equal(t, 1, always.ticks)

	require.True(t, w.State().Resume())
	loop.Step(context.Background(), time.Second)
	assert.Equal(t, 1, regular.ticks)
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	sys := &countingSystem{name: "s"}
	loop := gameloop.NewLoop(time.Millisecond, gameloop.Dependencies{}, sys)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return loop.Ticks() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("цикл не остановился после отмены контекста")
	}
}

func TestDayNightBroadcastsTime(t *testing.T) {
	w := newWorld(t, nil)
	loop := gameloop.NewLoop(0, gameloop.Dependencies{World: w}, gameloop.NewDayNightSystem())

	for i := 0; i < 100; i++ {
		loop.Step(context.Background(), 50*time.Millisecond)
	}
	assert.Equal(t, int64(5000), w.State().Clock().Now(), "100 тиков по 50 мс")

	var sawTime bool
	for {
		select {
		case ev := <-w.Events():
			if ev.Type == wt.EventTime {
				sawTime = true
			}
			continue
		default:
		}
		break
	}
	assert.True(t, sawTime, "на сотом тике рассылается время")
}

func TestSystemsNeedWorld(t *testing.T) {
	loop := gameloop.NewLoop(0, gameloop.Dependencies{}, gameloop.DefaultSystems(0)...)
	assert.Empty(t, loop.Systems())
}

func TestAutosaveRunsWhilePaused(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewBinaryStorage(filepath.Join(t.TempDir(), "w"), "w", 42)
	require.NoError(t, err)
	defer store.Close()

	w := newWorld(t, store)
	p, err := w.JoinPlayer(ctx, world.PlayerID("alice"), "alice")
	require.NoError(t, err)
	require.NoError(t, w.GiveItem(p.ID(), 4, 3))

	autosave := gameloop.NewAutosaveSystem(time.Second)
	entities := gameloop.NewEntitySystem()
	loop := gameloop.NewLoop(0, gameloop.Dependencies{World: w}, entities, autosave)

	require.True(t, w.State().Pause())
	loop.Step(ctx, 500*time.Millisecond)
	assert.Equal(t, 0, autosave.Saves(), "проверка раз в секунду")
	loop.Step(ctx, 500*time.Millisecond)
	assert.Equal(t, 1, autosave.Saves())
	assert.Equal(t, uint64(0), w.Tick(), "сущности на паузе не обновлялись")

	state, err := store.LoadPlayerState(ctx, p.ID())
	require.NoError(t, err)
	assert.Equal(t, [2]int{4, 3}, state.Inventory[0])
}

func TestSpawnSystemCooldown(t *testing.T) {
	w := newWorld(t, nil)
	spawn := gameloop.NewSpawnSystem(time.Hour)
	loop := gameloop.NewLoop(0, gameloop.Dependencies{World: w}, spawn)
	loop.Step(context.Background(), time.Second)
	assert.Equal(t, 0, spawn.Spawned(), "до конца перезарядки спауна нет")
}
