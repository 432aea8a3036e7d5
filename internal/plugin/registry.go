// Package plugin provides the registry that plugins and the server core use to extend the world,
// and the manager that loads Go plugins from shared object files.
package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/annelo/tileworld/internal/block"
	"github.com/annelo/tileworld/internal/gameloop"
	"github.com/annelo/tileworld/internal/world"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// ErrUnknownCommand is returned by Execute for a command nobody registered.
var ErrUnknownCommand = errors.New("неизвестная команда")

// PluginMeta holds metadata for a plugin
type PluginMeta struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Author      string `json:"author" yaml:"author"`
	Description string `json:"description" yaml:"description"`
}

// HookType defines a named event hook
type HookType string

// Hook types fired by the world and the plugin manager.
const (
	// HookAfterChunkGenerate receives *worldtypes.Chunk.
	HookAfterChunkGenerate HookType = "AfterChunkGenerate"
	// HookAfterSaveChunk receives worldtypes.ChunkPosition.
	HookAfterSaveChunk HookType = "AfterSaveChunk"
	// HookAfterPlaceTile and HookAfterBreakTile receive TileEvent.
	HookAfterPlaceTile HookType = "AfterPlaceTile"
	HookAfterBreakTile HookType = "AfterBreakTile"
	// HookPlayerDied receives the player ID.
	HookPlayerDied HookType = "PlayerDied"
	// Plugin load hooks receive the plugin path, unload hooks receive PluginMeta.
	HookBeforePluginLoad   HookType = "BeforePluginLoad"
	HookAfterPluginLoad    HookType = "AfterPluginLoad"
	HookBeforePluginUnload HookType = "BeforePluginUnload"
	HookAfterPluginUnload  HookType = "AfterPluginUnload"
)

// TileEvent is the argument of tile place/break hooks.
type TileEvent struct {
	PlayerID string
	Position wt.TilePosition
	Tile     wt.TileID
}

// HookFunc is the signature for hook handlers. args can be event-specific.
type HookFunc func(args ...interface{})

// CommandFunc is the signature for admin CLI command handlers.
type CommandFunc func(args []string) (string, error)

// CommandRegistration holds a single CLI command registration.
type CommandRegistration struct {
	// Name is the command name.
	Name string
	// Description is a brief help text for the command.
	Description string
	// Handler executes the command logic.
	Handler CommandFunc
}

// TileEntityRegistration holds a single tile entity factory registration.
type TileEntityRegistration struct {
	Tile    wt.TileID
	Factory block.Factory
}

// PluginRegistry allows registration of tile entity factories, game systems, hooks and commands.
type PluginRegistry interface {
	// RegisterTileEntityFactory registers a factory for tile entities of a given tile.
	RegisterTileEntityFactory(tile wt.TileID, factory block.Factory)
	// RegisterGameSystem registers a game loop system to be ticked every tick.
	RegisterGameSystem(sys gameloop.System)
	// TileEntityFactories returns all registered factories in registration order.
	TileEntityFactories() []TileEntityRegistration
	// GameSystems returns all registered game loop systems.
	GameSystems() []gameloop.System
	// RegisterPluginMeta registers metadata for a plugin.
	RegisterPluginMeta(meta PluginMeta)
	// PluginMetas returns all registered plugin metadata.
	PluginMetas() []PluginMeta
	// RegisterHook registers a hook handler for a given hook type.
	RegisterHook(hook HookType, fn HookFunc)
	// Hooks returns all handlers registered for a hook type.
	Hooks(hook HookType) []HookFunc
	// RegisterCommand registers an admin CLI command.
	RegisterCommand(name, description string, handler CommandFunc)
	// Commands returns all registered admin CLI commands.
	Commands() []CommandRegistration
	// MarkCore marks the boundary between core and plugin registrations.
	MarkCore()
	// ClearPlugins removes all registrations added after MarkCore.
	ClearPlugins()
	// RegisterPluginConfig registers a sample config struct for a plugin.
	RegisterPluginConfig(name string, sample interface{})
	// LoadPluginConfig loads a plugin's config YAML from the given directory into the registry.
	LoadPluginConfig(name, dir string) error
	// PluginConfig returns the loaded config object for a plugin.
	PluginConfig(name string) interface{}
}

// DefaultRegistry is the default implementation of PluginRegistry.
// It also implements world.Hooks and forwards world events to registered hook handlers.
type DefaultRegistry struct {
	factories   []TileEntityRegistration
	gameSystems []gameloop.System
	pluginMetas []PluginMeta
	commands    []CommandRegistration
	hooks       map[HookType][]HookFunc

	// configSamples maps plugin name to a sample config struct pointer.
	configSamples map[string]interface{}
	// configs maps plugin name to the loaded config object pointer.
	configs map[string]interface{}

	// mu protects all registry data structures for concurrent access.
	mu     sync.RWMutex
	logger *zap.SugaredLogger

	coreFactoryCount    int
	coreSystemCount     int
	coreCommandCount    int
	corePluginMetaCount int
	coreHooks           map[HookType][]HookFunc
}

var _ world.Hooks = (*DefaultRegistry)(nil)

// NewDefaultRegistry returns a new DefaultRegistry instance.
func NewDefaultRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		hooks:         make(map[HookType][]HookFunc),
		configSamples: make(map[string]interface{}),
		configs:       make(map[string]interface{}),
		logger:        zap.NewNop().Sugar(),
	}
}

// SetLogger sets the logger used to report failing hooks.
func (r *DefaultRegistry) SetLogger(l *zap.SugaredLogger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l != nil {
		r.logger = l
	}
}

// RegisterTileEntityFactory appends a tile entity factory to the registry.
func (r *DefaultRegistry) RegisterTileEntityFactory(tile wt.TileID, factory block.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = append(r.factories, TileEntityRegistration{Tile: tile, Factory: factory})
}

// RegisterGameSystem appends a gameloop.System to the registry.
func (r *DefaultRegistry) RegisterGameSystem(sys gameloop.System) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gameSystems = append(r.gameSystems, sys)
}

// RegisterPluginMeta appends plugin metadata to the registry.
func (r *DefaultRegistry) RegisterPluginMeta(meta PluginMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pluginMetas = append(r.pluginMetas, meta)
}

// RegisterHook appends a hook handler for a given hook type.
func (r *DefaultRegistry) RegisterHook(hook HookType, fn HookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[hook] = append(r.hooks[hook], fn)
}

// RegisterCommand appends a CLI command registration to the registry.
// A later registration with the same name shadows the earlier one.
func (r *DefaultRegistry) RegisterCommand(name, description string, handler CommandFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, CommandRegistration{Name: name, Description: description, Handler: handler})
}

// RegisterPluginConfig registers a sample config struct for a plugin in the registry.
func (r *DefaultRegistry) RegisterPluginConfig(name string, sample interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configSamples[name] = sample
	r.configs[name] = sample
}

// LoadPluginConfig loads a plugin's YAML config from dir/name.yaml into the registry.
// A missing file keeps the registered sample.
func (r *DefaultRegistry) LoadPluginConfig(name, dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sample, ok := r.configSamples[name]
	if !ok {
		return nil
	}
	t := reflect.TypeOf(sample)
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config sample for %s must be a pointer to struct", name)
	}
	path := filepath.Join(dir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	// defaults come from the sample, the file overrides them
	newPtr := reflect.New(t.Elem())
	newPtr.Elem().Set(reflect.ValueOf(sample).Elem())
	if err := yaml.Unmarshal(data, newPtr.Interface()); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	r.configs[name] = newPtr.Interface()
	return nil
}

// PluginConfig returns the loaded config object for a plugin, or default sample.
func (r *DefaultRegistry) PluginConfig(name string) interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[name]
}

// TileEntityFactories returns all registered tile entity factories.
func (r *DefaultRegistry) TileEntityFactories() []TileEntityRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TileEntityRegistration(nil), r.factories...)
}

// FactoryMap returns the factories keyed by tile; later registrations win.
func (r *DefaultRegistry) FactoryMap() map[wt.TileID]block.Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := make(map[wt.TileID]block.Factory, len(r.factories))
	for _, f := range r.factories {
		m[f.Tile] = f.Factory
	}
	return m
}

// GameSystems returns all registered game systems.
func (r *DefaultRegistry) GameSystems() []gameloop.System {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]gameloop.System(nil), r.gameSystems...)
}

// PluginMetas returns all registered plugin metadata.
func (r *DefaultRegistry) PluginMetas() []PluginMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]PluginMeta(nil), r.pluginMetas...)
}

// Hooks returns all registered hook handlers for the given hook type.
func (r *DefaultRegistry) Hooks(hook HookType) []HookFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]HookFunc(nil), r.hooks[hook]...)
}

// Commands returns all registered CLI commands sorted by name, shadowed ones omitted.
func (r *DefaultRegistry) Commands() []CommandRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName := make(map[string]CommandRegistration, len(r.commands))
	for _, c := range r.commands {
		byName[c.Name] = c
	}
	out := make([]CommandRegistration, 0, len(byName))
	for _, c := range byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Command looks up a command by name.
func (r *DefaultRegistry) Command(name string) (CommandRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.commands) - 1; i >= 0; i-- {
		if r.commands[i].Name == name {
			return r.commands[i], true
		}
	}
	return CommandRegistration{}, false
}

// Execute parses a console line and runs the matching command.
func (r *DefaultRegistry) Execute(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, ok := r.Command(strings.ToLower(fields[0]))
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
	return cmd.Handler(fields[1:])
}

// MarkCore marks the current registry state as the core, so plugin additions can be cleared later.
func (r *DefaultRegistry) MarkCore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coreFactoryCount = len(r.factories)
	r.coreSystemCount = len(r.gameSystems)
	r.coreCommandCount = len(r.commands)
	r.corePluginMetaCount = len(r.pluginMetas)
	r.coreHooks = make(map[HookType][]HookFunc, len(r.hooks))
	for k, v := range r.hooks {
		r.coreHooks[k] = append([]HookFunc{}, v...)
	}
}

// ClearPlugins removes all registrations added after the last core mark.
func (r *DefaultRegistry) ClearPlugins() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.coreFactoryCount <= len(r.factories) {
		r.factories = r.factories[:r.coreFactoryCount]
	}
	if r.coreSystemCount <= len(r.gameSystems) {
		r.gameSystems = r.gameSystems[:r.coreSystemCount]
	}
	if r.coreCommandCount <= len(r.commands) {
		r.commands = r.commands[:r.coreCommandCount]
	}
	if r.corePluginMetaCount <= len(r.pluginMetas) {
		r.pluginMetas = r.pluginMetas[:r.corePluginMetaCount]
	}
	r.hooks = make(map[HookType][]HookFunc, len(r.coreHooks))
	for k, v := range r.coreHooks {
		r.hooks[k] = append([]HookFunc{}, v...)
	}
}

// Fire calls every handler of a hook. A panicking handler is logged and skipped.
func (r *DefaultRegistry) Fire(hook HookType, args ...interface{}) {
	r.mu.RLock()
	handlers := append([]HookFunc(nil), r.hooks[hook]...)
	logger := r.logger
	r.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorw("Паника в обработчике хука", "hook", string(hook), "panic", fmt.Sprint(rec))
				}
			}()
			h(args...)
		}()
	}
}

// ChunkGenerated implements world.Hooks.
func (r *DefaultRegistry) ChunkGenerated(c *wt.Chunk) { r.Fire(HookAfterChunkGenerate, c) }

// ChunkSaved implements world.Hooks.
func (r *DefaultRegistry) ChunkSaved(pos wt.ChunkPosition) { r.Fire(HookAfterSaveChunk, pos) }

// TilePlaced implements world.Hooks.
func (r *DefaultRegistry) TilePlaced(playerID string, pos wt.TilePosition, tile wt.TileID) {
	r.Fire(HookAfterPlaceTile, TileEvent{PlayerID: playerID, Position: pos, Tile: tile})
}

// TileBroken implements world.Hooks.
func (r *DefaultRegistry) TileBroken(playerID string, pos wt.TilePosition, tile wt.TileID) {
	r.Fire(HookAfterBreakTile, TileEvent{PlayerID: playerID, Position: pos, Tile: tile})
}

// PlayerDied implements world.Hooks.
func (r *DefaultRegistry) PlayerDied(playerID string) { r.Fire(HookPlayerDied, playerID) }
