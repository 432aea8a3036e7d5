package plugin

import (
	"encoding/json"
	"expvar"
	"fmt"
	"os"
	"path/filepath"
	pluginpkg "plugin"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// PluginAPIVersion defines the current plugin API version.
const PluginAPIVersion = "1"

// RegisterSymbol is the function every plugin must export.
const RegisterSymbol = "Register"

// Metrics for plugin loading
var (
	pluginLoadCount  = expvar.NewInt("plugins_loaded")
	pluginSkipCount  = expvar.NewInt("plugins_skipped")
	pluginErrorCount = expvar.NewInt("plugins_errors")
)

// PluginManager handles loading of plugins from shared object files.
type PluginManager struct {
	// Dir is the directory where plugin .so files are located.
	Dir string
	// mu serializes Load, Unload and Reload.
	mu     sync.Mutex
	logger *zap.SugaredLogger
	loaded []string
}

// NewPluginManager creates a PluginManager for a given directory.
func NewPluginManager(dir string, logger *zap.SugaredLogger) *PluginManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PluginManager{Dir: dir, logger: logger}
}

// Loaded returns the paths of plugins loaded by the last Load.
func (pm *PluginManager) Loaded() []string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return append([]string(nil), pm.loaded...)
}

// readMeta looks for name.json, name.yaml or name.yml next to the plugin.
func (pm *PluginManager) readMeta(base string) (PluginMeta, bool) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		metaPath := filepath.Join(pm.Dir, base+ext)
		data, err := os.ReadFile(metaPath)
		if err != nil {
			continue
		}
		var meta PluginMeta
		if ext == ".json" {
			err = json.Unmarshal(data, &meta)
		} else {
			err = yaml.Unmarshal(data, &meta)
		}
		if err != nil {
			pm.logger.Warnw("Не удалось разобрать метаданные плагина", "path", metaPath, "error", err)
			continue
		}
		if meta.Name == "" {
			meta.Name = base
		}
		return meta, true
	}
	return PluginMeta{}, false
}

// Load loads all plugins in pm.Dir and invokes their Register function.
// A plugin whose metadata declares another API version is skipped.
func (pm *PluginManager) Load(reg PluginRegistry) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.loadLocked(reg)
}

func (pm *PluginManager) loadLocked(reg PluginRegistry) error {
	files, err := os.ReadDir(pm.Dir)
	if err != nil {
		pluginErrorCount.Add(1)
		return fmt.Errorf("cannot read plugin directory %s: %w", pm.Dir, err)
	}

	pm.loaded = pm.loaded[:0]
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".so" {
			continue
		}
		base := strings.TrimSuffix(f.Name(), ".so")
		pluginPath := filepath.Join(pm.Dir, f.Name())

		meta, hasMeta := pm.readMeta(base)
		if hasMeta && meta.Version != PluginAPIVersion {
			pm.logger.Warnw("Плагин пропущен: другая версия API",
				"plugin", meta.Name, "version", meta.Version, "expected", PluginAPIVersion)
			pluginSkipCount.Add(1)
			continue
		}

		for _, h := range reg.Hooks(HookBeforePluginLoad) {
			h(pluginPath)
		}
		p, err := pluginpkg.Open(pluginPath)
		if err != nil {
			pluginErrorCount.Add(1)
			return fmt.Errorf("failed to open plugin %s: %w", pluginPath, err)
		}
		sym, err := p.Lookup(RegisterSymbol)
		if err != nil {
			pluginErrorCount.Add(1)
			pm.logger.Warnw("В плагине нет функции Register", "path", pluginPath, "error", err)
			continue
		}
		registerFunc, ok := sym.(func(PluginRegistry))
		if !ok {
			pluginErrorCount.Add(1)
			pm.logger.Warnw("Неверная сигнатура Register", "path", pluginPath)
			continue
		}

		if !pm.register(reg, registerFunc, pluginPath) {
			continue
		}
		if hasMeta {
			reg.RegisterPluginMeta(meta)
		} else {
			reg.RegisterPluginMeta(PluginMeta{Name: base, Version: PluginAPIVersion})
		}
		if err := reg.LoadPluginConfig(base, pm.Dir); err != nil {
			pluginErrorCount.Add(1)
			pm.logger.Warnw("Не удалось загрузить конфигурацию плагина", "plugin", base, "error", err)
		}
		pluginLoadCount.Add(1)
		pm.loaded = append(pm.loaded, pluginPath)
		pm.logger.Infow("Плагин загружен", "plugin", base)

		for _, h := range reg.Hooks(HookAfterPluginLoad) {
			h(pluginPath)
		}
	}
	return nil
}

// register invokes the plugin registration and catches panics.
func (pm *PluginManager) register(reg PluginRegistry, fn func(PluginRegistry), path string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			pluginErrorCount.Add(1)
			pm.logger.Errorw("Паника в Register плагина", "path", path, "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	fn(reg)
	return true
}

// Unload triggers unload hooks for all loaded plugins.
// Go cannot unload shared objects, so plugin code stays mapped until the process exits.
func (pm *PluginManager) Unload(reg PluginRegistry) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.unloadLocked(reg)
}

func (pm *PluginManager) unloadLocked(reg PluginRegistry) {
	metas := reg.PluginMetas()
	for _, meta := range metas {
		for _, h := range reg.Hooks(HookBeforePluginUnload) {
			h(meta)
		}
	}
	for _, meta := range metas {
		for _, h := range reg.Hooks(HookAfterPluginUnload) {
			h(meta)
		}
	}
	pm.loaded = pm.loaded[:0]
}

// Reload unloads existing plugins, clears their registrations and loads them again.
func (pm *PluginManager) Reload(reg PluginRegistry) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.unloadLocked(reg)
	reg.ClearPlugins()
	return pm.loadLocked(reg)
}
