package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/annelo/tileworld/internal/config"
	"github.com/annelo/tileworld/internal/plugin"
	"github.com/annelo/tileworld/internal/savegame"
	"github.com/annelo/tileworld/internal/service"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// commandTimeout ограничивает команды, которые трогают хранилище
const commandTimeout = 30 * time.Second

var errNoWorld = errors.New("мир еще не загружен")

// adminConsole - встроенные команды администратора. Доступны из консоли сервера
// и операторам через RPC Command.
type adminConsole struct {
	cfg      *config.Config
	reg      *plugin.DefaultRegistry
	plugins  *plugin.PluginManager
	catalog  *savegame.Catalog
	svc      *service.WorldService
	shutdown func()
}

func usage(text string) error {
	return fmt.Errorf("использование: %s", text)
}

func (c *adminConsole) register() {
	c.reg.RegisterCommand("help", "List commands", c.help)
	c.reg.RegisterCommand("plugins", "List loaded plugins", c.listPlugins)
	c.reg.RegisterCommand("config", "Show config: config [pluginName]", c.showConfig)
	c.reg.RegisterCommand("reload", "Reload plugins", c.reload)
	c.reg.RegisterCommand("stop", "Stop server", c.stop)
	c.reg.RegisterCommand("save", "Save world", c.save)
	c.reg.RegisterCommand("export", "Export world to save.json: export <player>", c.export)
	c.reg.RegisterCommand("time", "Show world clock", c.clock)
	c.reg.RegisterCommand("skipnight", "Skip to the next morning", c.skipNight)
	c.reg.RegisterCommand("give", "Give item: give <player> <item> [count]", c.give)
	c.reg.RegisterCommand("tp", "Teleport: tp <player> <x> <y>", c.teleport)
	c.reg.RegisterCommand("spawn", "Spawn mob: spawn <mob> <x> <y>", c.spawn)
	c.reg.RegisterCommand("pause", "Pause simulation", c.pause)
	c.reg.RegisterCommand("resume", "Resume simulation", c.resume)
	c.reg.RegisterCommand("players", "List players", c.players)
	c.reg.RegisterCommand("worlds", "List saved worlds", c.worlds)
}

func (c *adminConsole) help(args []string) (string, error) {
	var sb strings.Builder
	for _, cmd := range c.reg.Commands() {
		fmt.Fprintf(&sb, "%s - %s\n", cmd.Name, cmd.Description)
	}
	return sb.String(), nil
}

func (c *adminConsole) listPlugins(args []string) (string, error) {
	metas := c.reg.PluginMetas()
	if len(metas) == 0 {
		return "No plugins loaded\n", nil
	}
	var sb strings.Builder
	for _, meta := range metas {
		fmt.Fprintf(&sb, "%s v%s by %s: %s\n", meta.Name, meta.Version, meta.Author, meta.Description)
	}
	return sb.String(), nil
}

func (c *adminConsole) showConfig(args []string) (string, error) {
	var value interface{}
	if len(args) == 0 {
		redacted := *c.cfg
		redacted.Auth.JWTSecret = "***"
		value = redacted
	} else {
		value = c.reg.PluginConfig(args[0])
		if value == nil {
			return fmt.Sprintf("No config for plugin %s\n", args[0]), nil
		}
	}
	data, err := yaml.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *adminConsole) reload(args []string) (string, error) {
	if err := c.plugins.Reload(c.reg); err != nil {
		return "", err
	}
	return fmt.Sprintf("Plugins reloaded: %s\n", strings.Join(c.plugins.Loaded(), ", ")), nil
}

func (c *adminConsole) stop(args []string) (string, error) {
	c.shutdown()
	return "Server stopping\n", nil
}

func (c *adminConsole) save(args []string) (string, error) {
	if c.svc == nil {
		return "", errNoWorld
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := c.svc.World().Save(ctx); err != nil {
		return "", err
	}
	return "World saved\n", nil
}

func (c *adminConsole) export(args []string) (string, error) {
	if c.svc == nil {
		return "", errNoWorld
	}
	if len(args) != 1 {
		return "", usage("export <player>")
	}
	w := c.svc.World()
	p, err := w.Players().ByName(args[0])
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	gs, err := w.Snapshot(ctx, p.ID())
	if err != nil {
		return "", err
	}
	if err := c.catalog.Export(w.Name(), gs); err != nil {
		return "", err
	}
	path, _ := c.catalog.SaveFile(w.Name())
	return fmt.Sprintf("Exported to %s\n", path), nil
}

func (c *adminConsole) clock(args []string) (string, error) {
	if c.svc == nil {
		return "", errNoWorld
	}
	clock := c.svc.World().State().Clock()
	phase := "day"
	if clock.IsNight() {
		phase = "night"
	}
	return fmt.Sprintf("Day %d, %s, time %d ms, shade %d\n", clock.Day(), phase, clock.DayTime(), clock.Shade()), nil
}

func (c *adminConsole) skipNight(args []string) (string, error) {
	if c.svc == nil {
		return "", errNoWorld
	}
	c.svc.World().SkipNight()
	return "Night skipped\n", nil
}

func (c *adminConsole) give(args []string) (string, error) {
	if c.svc == nil {
		return "", errNoWorld
	}
	if len(args) < 2 || len(args) > 3 {
		return "", usage("give <player> <item> [count]")
	}
	w := c.svc.World()
	p, err := w.Players().ByName(args[0])
	if err != nil {
		return "", err
	}
	item, ok := w.Catalog().ItemByName(args[1])
	if !ok {
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("неизвестный предмет %s", args[1])
		}
		item.ID = id
	}
	count := 1
	if len(args) == 3 {
		if count, err = strconv.Atoi(args[2]); err != nil || count <= 0 {
			return "", usage("give <player> <item> [count]")
		}
	}
	if err := w.GiveItem(p.ID(), item.ID, count); err != nil {
		return "", err
	}
	return fmt.Sprintf("Gave %d x %s to %s\n", count, args[1], p.Name()), nil
}

func parseVec(xs, ys string) (wt.Vec2, error) {
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return wt.Vec2{}, err
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return wt.Vec2{}, err
	}
	return wt.Vec2{X: x, Y: y}, nil
}

func (c *adminConsole) teleport(args []string) (string, error) {
	if c.svc == nil {
		return "", errNoWorld
	}
	if len(args) != 3 {
		return "", usage("tp <player> <x> <y>")
	}
	pos, err := parseVec(args[1], args[2])
	if err != nil {
		return "", usage("tp <player> <x> <y>")
	}
	w := c.svc.World()
	p, err := w.Players().ByName(args[0])
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := w.Teleport(ctx, p.ID(), pos); err != nil {
		return "", err
	}
	return fmt.Sprintf("Teleported %s to %.1f,%.1f\n", p.Name(), pos.X, pos.Y), nil
}

func (c *adminConsole) spawn(args []string) (string, error) {
	if c.svc == nil {
		return "", errNoWorld
	}
	if len(args) != 3 {
		return "", usage("spawn <mob> <x> <y>")
	}
	pos, err := parseVec(args[1], args[2])
	if err != nil {
		return "", usage("spawn <mob> <x> <y>")
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	mob, err := c.svc.World().SpawnMob(ctx, args[0], pos)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Spawned %s (%s)\n", args[0], mob.ID()), nil
}

func (c *adminConsole) pause(args []string) (string, error) {
	if c.svc == nil {
		return "", errNoWorld
	}
	if !c.svc.World().State().Pause() {
		return "Already paused\n", nil
	}
	return "Paused\n", nil
}

func (c *adminConsole) resume(args []string) (string, error) {
	if c.svc == nil {
		return "", errNoWorld
	}
	if !c.svc.World().State().Resume() {
		return "Not paused\n", nil
	}
	return "Resumed\n", nil
}

func (c *adminConsole) players(args []string) (string, error) {
	if c.svc == nil {
		return "", errNoWorld
	}
	connected := make(map[string]bool)
	for _, id := range c.svc.ConnectedPlayers() {
		connected[id] = true
	}
	players := c.svc.World().Players().All()
	if len(players) == 0 {
		return "No players online\n", nil
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Name() < players[j].Name() })

	var sb strings.Builder
	for _, p := range players {
		health, maxHealth := p.Health()
		pos := p.Position()
		state := "offline"
		if connected[p.ID()] {
			state = "online"
		}
		fmt.Fprintf(&sb, "%s (%s) at %.1f,%.1f hp %d/%d %s\n", p.Name(), p.ID(), pos.X, pos.Y, health, maxHealth, state)
	}
	return sb.String(), nil
}

func (c *adminConsole) worlds(args []string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	entries, err := c.catalog.List(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s seed %d last played %s\n", e.Name, e.Seed, e.LastPlayed.Format(time.RFC3339))
	}
	return sb.String(), nil
}
