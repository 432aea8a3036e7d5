// Package savegame ведет каталог сохраненных миров и переносимый формат save.json.
package savegame

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/annelo/tileworld/internal/inventory"
	"github.com/annelo/tileworld/internal/storage"
	"github.com/annelo/tileworld/internal/worldgen"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// SaveFileName - имя переносимого сохранения в каталоге мира
const SaveFileName = "save.json"

// Значения нового сохранения
const (
	DefaultHealth = 20
	DefaultShade  = 255
)

// ErrBadSave - сохранение повреждено
var ErrBadSave = errors.New("поврежденное сохранение")

// GameSave - переносимое сохранение мира. Позиции хранятся в пикселях.
type GameSave struct {
	WorldName     string                  `json:"world_name"`
	PlayerState   PlayerSave              `json:"player_state"`
	WorldState    WorldSave               `json:"world_state"`
	FloatingItems []FloatingItemSave      `json:"floating_items"`
	Chests        map[string][][2]int     `json:"chests"`
	Furnaces      map[string]FurnaceSave  `json:"furnaces"`
	Mobs          []MobSave               `json:"mobs"`
	Signs         map[string]string       `json:"signs"`
	Chunks        map[string][][][]string `json:"chunks"`
}

// PlayerSave - состояние игрока
type PlayerSave struct {
	Position  [2]float64 `json:"position"`
	Health    int        `json:"health"`
	MaxHealth int        `json:"max_health"`
	Inventory [][2]int   `json:"inventory"`
}

// WorldSave - состояние мира
type WorldSave struct {
	Seed       string     `json:"seed"`
	SpawnPoint [2]float64 `json:"spawn_point"`
	GlobalTime int64      `json:"global_time"`
	NightShade int        `json:"night_shade"`
}

// FloatingItemSave - предмет на земле
type FloatingItemSave struct {
	Position [2]float64 `json:"position"`
	Item     [2]int     `json:"item"`
	Age      int64      `json:"age,omitempty"`
}

// FurnaceSave - слоты печи
type FurnaceSave struct {
	Input  [2]int `json:"input"`
	Fuel   [2]int `json:"fuel"`
	Output [2]int `json:"output"`
}

// MobSave - моб
type MobSave struct {
	Mob      int        `json:"mob"`
	Position [2]float64 `json:"position"`
	Health   int        `json:"health"`
}

func toPixels(v wt.Vec2) [2]float64 {
	return [2]float64{v.X * wt.TileSize, v.Y * wt.TileSize}
}

func fromPixels(p [2]float64) wt.Vec2 {
	return wt.Vec2{X: p[0] / wt.TileSize, Y: p[1] / wt.TileSize}
}

func tileKey(t wt.TilePosition) string {
	return strconv.Itoa(int(t.X)) + "," + strconv.Itoa(int(t.Y))
}

func parseTileKey(key string) (wt.TilePosition, error) {
	// формат ключа совпадает с ключом чанка
	p, err := wt.ParseChunkKey(key)
	if err != nil {
		return wt.TilePosition{}, err
	}
	return wt.TilePosition{X: p.X, Y: p.Y}, nil
}

// SeedFromString переводит строковый сид сохранения в число.
// Нечисловые сиды хешируются FNV-64a.
func SeedFromString(s string) int64 {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}

// NewPlayerSave возвращает состояние нового игрока в точке spawn
func NewPlayerSave(spawn wt.TilePosition) PlayerSave {
	return PlayerSave{
		Position:  toPixels(spawn.Center()),
		Health:    DefaultHealth,
		MaxHealth: DefaultHealth,
		Inventory: make([][2]int, inventory.PlayerSlots),
	}
}

// Build собирает переносимое сохранение из данных хранилища. player может быть nil.
func Build(info *storage.WorldInfo, player *storage.PlayerState, snap *storage.EntitySnapshot, chunks []*wt.Chunk) *GameSave {
	gs := &GameSave{
		WorldName: info.Name,
		WorldState: WorldSave{
			Seed:       strconv.FormatInt(info.Seed, 10),
			SpawnPoint: toPixels(info.Spawn.Center()),
			GlobalTime: info.GlobalTime,
			NightShade: info.NightShade,
		},
		FloatingItems: []FloatingItemSave{},
		Chests:        make(map[string][][2]int),
		Furnaces:      make(map[string]FurnaceSave),
		Mobs:          []MobSave{},
		Signs:         make(map[string]string),
		Chunks:        make(map[string][][][]string, len(chunks)),
	}

	if player != nil {
		gs.PlayerState = PlayerSave{
			Position:  toPixels(player.Position),
			Health:    int(player.Health),
			MaxHealth: int(player.MaxHealth),
			Inventory: player.Inventory,
		}
	} else {
		gs.PlayerState = NewPlayerSave(info.Spawn)
	}

	if snap != nil {
		for _, fi := range snap.FloatingItems {
			gs.FloatingItems = append(gs.FloatingItems, FloatingItemSave{Position: toPixels(fi.Position), Item: fi.Item, Age: fi.Age})
		}
		for _, m := range snap.Mobs {
			gs.Mobs = append(gs.Mobs, MobSave{Mob: m.MobID, Position: toPixels(m.Position), Health: m.Health})
		}
		for _, c := range snap.Chests {
			gs.Chests[tileKey(c.Position)] = c.Slots
		}
		for _, f := range snap.Furnaces {
			gs.Furnaces[tileKey(f.Position)] = FurnaceSave{Input: f.Input, Fuel: f.Fuel, Output: f.Output}
		}
		for _, s := range snap.Signs {
			gs.Signs[tileKey(s.Position)] = s.Text
		}
	}

	for _, c := range chunks {
		gs.Chunks[c.Position.Key()] = c.CodeGrid()
	}
	return gs
}

// Parts - содержимое сохранения в виде данных хранилища
type Parts struct {
	Info     *storage.WorldInfo
	Player   *storage.PlayerState
	Entities *storage.EntitySnapshot
	Chunks   []*wt.Chunk
}

// Split раскладывает сохранение на данные хранилища. Игроку присваивается playerID.
func (gs *GameSave) Split(playerID string) (*Parts, error) {
	spawn := fromPixels(gs.WorldState.SpawnPoint).Tile()
	shade := gs.WorldState.NightShade
	if shade <= 0 || shade > DefaultShade {
		shade = DefaultShade
	}
	parts := &Parts{
		Info: &storage.WorldInfo{
			Name:       gs.WorldName,
			Seed:       SeedFromString(gs.WorldState.Seed),
			Version:    storage.FormatVersion,
			Spawn:      spawn,
			SpawnSet:   true,
			GlobalTime: gs.WorldState.GlobalTime,
			NightShade: shade,
		},
		Entities: storage.NewEntitySnapshot(),
	}

	if playerID != "" {
		maxHealth := gs.PlayerState.MaxHealth
		if maxHealth <= 0 {
			maxHealth = DefaultHealth
		}
		parts.Player = &storage.PlayerState{
			ID:        playerID,
			Position:  fromPixels(gs.PlayerState.Position),
			Health:    int32(gs.PlayerState.Health),
			MaxHealth: int32(maxHealth),
			Inventory: gs.PlayerState.Inventory,
			Spawn:     spawn,
		}
	}

	snap := parts.Entities
	for _, fi := range gs.FloatingItems {
		snap.FloatingItems = append(snap.FloatingItems, storage.FloatingItemRecord{
			Position: fromPixels(fi.Position), Item: fi.Item, Age: fi.Age,
		})
	}
	for _, m := range gs.Mobs {
		snap.Mobs = append(snap.Mobs, storage.MobRecord{MobID: m.Mob, Position: fromPixels(m.Position), Health: m.Health})
	}
	for key, slots := range gs.Chests {
		pos, err := parseTileKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: сундук: %v", ErrBadSave, err)
		}
		snap.Chests = append(snap.Chests, storage.ChestRecord{Position: pos, Slots: slots})
	}
	for key, f := range gs.Furnaces {
		pos, err := parseTileKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: печь: %v", ErrBadSave, err)
		}
		snap.Furnaces = append(snap.Furnaces, storage.FurnaceRecord{Position: pos, Input: f.Input, Fuel: f.Fuel, Output: f.Output})
	}
	for key, text := range gs.Signs {
		pos, err := parseTileKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: табличка: %v", ErrBadSave, err)
		}
		snap.Signs = append(snap.Signs, storage.SignRecord{Position: pos, Text: text})
	}
	sortRecords(snap)

	for key, grid := range gs.Chunks {
		pos, err := wt.ParseChunkKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadSave, err)
		}
		if len(grid) != wt.ChunkSize {
			return nil, fmt.Errorf("%w: чанк %s имеет %d строк", ErrBadSave, key, len(grid))
		}
		c := wt.NewChunk(pos)
		for y, row := range grid {
			if len(row) != wt.ChunkSize {
				return nil, fmt.Errorf("%w: чанк %s, строка %d имеет %d клеток", ErrBadSave, key, y, len(row))
			}
			for x, codes := range row {
				c.Set(x, y, wt.CellFromCodes(codes))
			}
		}
		parts.Chunks = append(parts.Chunks, c)
	}
	sort.Slice(parts.Chunks, func(i, j int) bool {
		a, b := parts.Chunks[i].Position, parts.Chunks[j].Position
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return parts, nil
}

// sortRecords упорядочивает записи тайловых сущностей, потому что карты JSON не хранят порядок
func sortRecords(snap *storage.EntitySnapshot) {
	less := func(a, b wt.TilePosition) bool {
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	}
	sort.Slice(snap.Chests, func(i, j int) bool { return less(snap.Chests[i].Position, snap.Chests[j].Position) })
	sort.Slice(snap.Furnaces, func(i, j int) bool { return less(snap.Furnaces[i].Position, snap.Furnaces[j].Position) })
	sort.Slice(snap.Signs, func(i, j int) bool { return less(snap.Signs[i].Position, snap.Signs[j].Position) })
}

// ExportJSON записывает сохранение в файл через временный файл
func ExportJSON(path string, gs *GameSave) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(gs, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка кодирования сохранения: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadJSON читает сохранение из файла
func ReadJSON(path string) (*GameSave, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var gs GameSave
	if err := json.Unmarshal(data, &gs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSave, err)
	}
	return &gs, nil
}

// ImportJSON записывает сохранение в бинарное хранилище.
// Чанки сохраняются как дельты относительно сгенерированных по сиду сохранения.
func ImportJSON(ctx context.Context, gs *GameSave, store storage.WorldStorage, playerID string) error {
	parts, err := gs.Split(playerID)
	if err != nil {
		return err
	}

	gen := worldgen.NewGenerator(parts.Info.Seed)
	for _, c := range parts.Chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		delta := storage.DiffChunks(gen.GenerateChunk(c.Position), c)
		if delta.Len() == 0 {
			continue
		}
		if err := store.SaveChunk(ctx, delta); err != nil {
			return fmt.Errorf("ошибка при импорте чанка %s: %w", c.Position, err)
		}
	}

	if parts.Player != nil {
		if err := store.SavePlayerState(ctx, parts.Player); err != nil {
			return fmt.Errorf("ошибка при импорте игрока: %w", err)
		}
	}
	if err := store.SaveEntities(ctx, parts.Entities); err != nil {
		return fmt.Errorf("ошибка при импорте сущностей: %w", err)
	}
	if err := store.SaveWorld(ctx, parts.Info); err != nil {
		return fmt.Errorf("ошибка при импорте информации о мире: %w", err)
	}
	return store.Flush(ctx)
}
