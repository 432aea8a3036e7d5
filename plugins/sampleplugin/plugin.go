package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/annelo/tileworld/internal/block"
	"github.com/annelo/tileworld/internal/gameloop"
	"github.com/annelo/tileworld/internal/plugin"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

const pluginName = "sampleplugin"

// SamplePluginConfig is loaded from sampleplugin.yaml next to the shared object.
type SamplePluginConfig struct {
	Greeting string `yaml:"greeting"`
	// AnnounceEvery is the chat announcement period in seconds, 0 disables it.
	AnnounceEvery int `yaml:"announce_every"`
}

// workbench counts how many times players opened it.
type workbench struct {
	block.Base
	uses atomic.Int64
}

func newWorkbench(pos wt.TilePosition, tile wt.TileID) block.TileEntity {
	w := &workbench{}
	w.Setup(pos, tile)
	return w
}

func (w *workbench) Kind() block.Kind { return "workbench" }

func (w *workbench) Snapshot() map[string]any {
	return map[string]any{"uses": w.uses.Load()}
}

func (w *workbench) OnInteract(playerID string, action string, req block.Request) (*wt.WorldEvent, error) {
	if action != block.ActionOpen {
		return nil, block.ErrUnknownAction
	}
	w.uses.Add(1)
	w.MarkChanged()
	payload := w.Snapshot()
	payload["kind"] = string(w.Kind())
	payload["action"] = action
	return &wt.WorldEvent{
		Type:     wt.EventTileEntityUpdated,
		Position: w.Position().Center(),
		PlayerID: playerID,
		Payload:  payload,
	}, nil
}

// announcer periodically broadcasts the configured greeting.
type announcer struct {
	cfg  func() *SamplePluginConfig
	emit func(wt.WorldEvent)
	acc  time.Duration
}

func (a *announcer) Name() string { return "sample_announcer" }

func (a *announcer) Init(deps gameloop.Dependencies) error {
	a.emit = deps.EmitWorldEvent
	return nil
}

func (a *announcer) Tick(ctx context.Context, dt time.Duration) {
	cfg := a.cfg()
	if cfg == nil || cfg.AnnounceEvery <= 0 || cfg.Greeting == "" {
		return
	}
	a.acc += dt
	period := time.Duration(cfg.AnnounceEvery) * time.Second
	if a.acc < period {
		return
	}
	a.acc -= period
	a.emit(wt.WorldEvent{Type: wt.EventChat, Message: cfg.Greeting})
}

// Register is invoked by PluginManager to register tile entities, systems, hooks and commands
func Register(reg plugin.PluginRegistry) {
	reg.RegisterPluginConfig(pluginName, &SamplePluginConfig{Greeting: "Привет из плагина"})
	config := func() *SamplePluginConfig {
		cfg, _ := reg.PluginConfig(pluginName).(*SamplePluginConfig)
		return cfg
	}

	reg.RegisterTileEntityFactory(wt.TileWorkbench, newWorkbench)
	reg.RegisterGameSystem(&announcer{cfg: config})

	var broken atomic.Int64
	reg.RegisterHook(plugin.HookAfterBreakTile, func(args ...interface{}) {
		if len(args) != 1 {
			return
		}
		if ev, ok := args[0].(plugin.TileEvent); ok {
			broken.Add(1)
			zap.S().Debugw("[SamplePlugin] тайл разрушен", "player", ev.PlayerID, "tile", ev.Tile.Name(), "x", ev.Position.X, "y", ev.Position.Y)
		}
	})

	reg.RegisterCommand("sampleinfo", "Show sample plugin info", func(args []string) (string, error) {
		cfg := config()
		if cfg == nil {
			return "", fmt.Errorf("config for %s is not loaded", pluginName)
		}
		return fmt.Sprintf("Greeting: %s, AnnounceEvery: %ds, tiles broken: %d\n", cfg.Greeting, cfg.AnnounceEvery, broken.Load()), nil
	})
}

// main is required for the package to link under `go build ./...`; it is unused when built with -buildmode=plugin.
func main() {}
