// Package gamedata загружает описания предметов, рецептов, мобов, тайлов и печи
// из встроенных JSON-файлов и проверяет их по JSON Schema.
package gamedata

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	wt "github.com/annelo/tileworld/internal/worldtypes"
)

//go:embed data/*.json
var dataFS embed.FS

//go:embed schema/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://tileworld.local/schema/"

var (
	// ErrUnknownItem - предмет не описан в каталоге
	ErrUnknownItem = errors.New("неизвестный предмет")
	// ErrUnknownRecipe - нет рецепта с таким номером
	ErrUnknownRecipe = errors.New("неизвестный рецепт")
	// ErrUnknownMob - моб не описан в каталоге
	ErrUnknownMob = errors.New("неизвестный моб")
)

// DefaultStack - размер стопки по умолчанию
const DefaultStack = 64

// ItemType - тип предмета
type ItemType string

const (
	ItemTool      ItemType = "tool"
	ItemMaterial  ItemType = "material"
	ItemPlaceable ItemType = "placeable"
	ItemWeapon    ItemType = "weapon"
	ItemSpawnEgg  ItemType = "spawn_egg"
)

// ToolKind - инструмент, которым добывается тайл
type ToolKind string

const (
	ToolAny     ToolKind = "any"
	ToolAxe     ToolKind = "axe"
	ToolPickaxe ToolKind = "pickaxe"
)

// AttackType - способ атаки моба
type AttackType string

const (
	AttackNone   AttackType = "none"
	AttackRanged AttackType = "ranged"
	AttackMelee  AttackType = "melee"
)

// ItemDefinition - описание предмета
type ItemDefinition struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Type       ItemType `json:"type"`
	MaxStack   int      `json:"max_stack"`
	Durability int      `json:"durability"`
	Places     string   `json:"places,omitempty"`
	Mob        int      `json:"mob,omitempty"`
	Tool       ToolKind `json:"tool,omitempty"`
	Tier       int      `json:"tier,omitempty"`
	Power      int      `json:"power,omitempty"`
	Damage     int      `json:"damage,omitempty"`
}

// PlacesTile возвращает тайл, который ставит предмет
func (d ItemDefinition) PlacesTile() (wt.TileID, bool) {
	if d.Type != ItemPlaceable {
		return wt.TileNone, false
	}
	return wt.TileByCode(d.Places)
}

// Recipe - рецепт крафта
type Recipe struct {
	Result            int      `json:"result"`
	Quantity          int      `json:"quantity"`
	Ingredients       [][2]int `json:"ingredients"`
	RequiresWorkbench bool     `json:"requires_workbench,omitempty"`
}

// MobDefinition - описание моба
type MobDefinition struct {
	ID           int        `json:"id"`
	Name         string     `json:"name"`
	Hostile      bool       `json:"hostile"`
	Health       int        `json:"health"`
	Damage       int        `json:"damage"`
	Speed        float64    `json:"speed"`
	Attack       AttackType `json:"attack"`
	StopDistance float64    `json:"stop_distance"`
	Drop         [2]int     `json:"drop"`
}

// TileDefinition - прочность и добыча тайла
type TileDefinition struct {
	Code   string    `json:"code"`
	Tile   wt.TileID `json:"-"`
	Health int       `json:"health"`
	Drop   [2]int    `json:"drop"`
	Tool   ToolKind  `json:"tool"`
	Tier   int       `json:"tier,omitempty"`
	// HandHarvest - сколько ударов рукой дают одну единицу добычи; 0 - рукой не добывается.
	// Сбор рукой не разрушает тайл.
	HandHarvest int `json:"hand_harvest,omitempty"`
}

type furnaceFile struct {
	Fuels []struct {
		Item   int   `json:"item"`
		BurnMS int64 `json:"burn_ms"`
	} `json:"fuels"`
	Smelting []struct {
		Input  int `json:"input"`
		Output int `json:"output"`
	} `json:"smelting"`
}

// Catalog - неизменяемый набор игровых данных
type Catalog struct {
	items       map[int]ItemDefinition
	itemsByName map[string]int
	recipes     []Recipe
	mobs        map[int]MobDefinition
	tiles       map[wt.TileID]TileDefinition
	fuels       map[int]int64
	smelting    map[int]int
}

// Load загружает встроенные игровые данные
func Load() (*Catalog, error) {
	data, err := fs.Sub(dataFS, "data")
	if err != nil {
		return nil, err
	}
	return LoadFS(data)
}

// LoadFS загружает игровые данные из fsys (items.json, recipes.json, mobs.json, tiles.json, furnace.json)
func LoadFS(fsys fs.FS) (*Catalog, error) {
	c := &Catalog{
		items:       make(map[int]ItemDefinition),
		itemsByName: make(map[string]int),
		mobs:        make(map[int]MobDefinition),
		tiles:       make(map[wt.TileID]TileDefinition),
		fuels:       make(map[int]int64),
		smelting:    make(map[int]int),
	}

	var items []ItemDefinition
	if err := loadValidated(fsys, "items", &items); err != nil {
		return nil, err
	}
	for _, it := range items {
		if _, dup := c.items[it.ID]; dup {
			return nil, fmt.Errorf("items.json: повторный id %d", it.ID)
		}
		if it.Durability == 0 {
			it.Durability = -1
		}
		c.items[it.ID] = it
		c.itemsByName[it.Name] = it.ID
	}

	if err := loadValidated(fsys, "recipes", &c.recipes); err != nil {
		return nil, err
	}

	var mobs []MobDefinition
	if err := loadValidated(fsys, "mobs", &mobs); err != nil {
		return nil, err
	}
	for _, m := range mobs {
		c.mobs[m.ID] = m
	}

	var tiles []TileDefinition
	if err := loadValidated(fsys, "tiles", &tiles); err != nil {
		return nil, err
	}
	for _, td := range tiles {
		id, ok := wt.TileByCode(td.Code)
		if !ok {
			return nil, fmt.Errorf("tiles.json: неизвестный код тайла %q", td.Code)
		}
		td.Tile = id
		c.tiles[id] = td
	}

	var furnace furnaceFile
	if err := loadValidated(fsys, "furnace", &furnace); err != nil {
		return nil, err
	}
	for _, f := range furnace.Fuels {
		c.fuels[f.Item] = f.BurnMS
	}
	for _, s := range furnace.Smelting {
		c.smelting[s.Input] = s.Output
	}

	if err := c.validateRefs(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadValidated читает name.json, проверяет его схемой name.schema.json и декодирует в out
func loadValidated(fsys fs.FS, name string, out any) error {
	raw, err := fs.ReadFile(fsys, name+".json")
	if err != nil {
		return fmt.Errorf("чтение %s.json: %w", name, err)
	}

	schemaName := name + ".schema.json"
	schemaRaw, err := schemaFS.ReadFile(path.Join("schema", schemaName))
	if err != nil {
		return fmt.Errorf("схема %s: %w", schemaName, err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := schemaBaseURL + schemaName
	if err := compiler.AddResource(url, bytes.NewReader(schemaRaw)); err != nil {
		return fmt.Errorf("схема %s: %w", schemaName, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("компиляция схемы %s: %w", schemaName, err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%s.json: %w", name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%s.json не соответствует схеме: %w", name, err)
	}
	return json.Unmarshal(raw, out)
}

// validateRefs проверяет ссылки между файлами
func (c *Catalog) validateRefs() error {
	for _, it := range c.items {
		switch it.Type {
		case ItemPlaceable:
			if _, ok := it.PlacesTile(); !ok {
				return fmt.Errorf("предмет %s ставит неизвестный тайл %q", it.Name, it.Places)
			}
		case ItemSpawnEgg:
			if _, ok := c.mobs[it.Mob]; !ok {
				return fmt.Errorf("предмет %s: %w %d", it.Name, ErrUnknownMob, it.Mob)
			}
		}
	}
	for i, r := range c.recipes {
		if _, ok := c.items[r.Result]; !ok {
			return fmt.Errorf("рецепт %d: %w %d", i, ErrUnknownItem, r.Result)
		}
		for _, ing := range r.Ingredients {
			if _, ok := c.items[ing[0]]; !ok {
				return fmt.Errorf("рецепт %d: %w %d", i, ErrUnknownItem, ing[0])
			}
		}
	}
	for _, m := range c.mobs {
		if m.Drop[0] != 0 {
			if _, ok := c.items[m.Drop[0]]; !ok {
				return fmt.Errorf("моб %s: %w %d", m.Name, ErrUnknownItem, m.Drop[0])
			}
		}
	}
	for _, td := range c.tiles {
		if td.Drop[0] != 0 {
			if _, ok := c.items[td.Drop[0]]; !ok {
				return fmt.Errorf("тайл %s: %w %d", td.Code, ErrUnknownItem, td.Drop[0])
			}
		}
	}
	for item := range c.fuels {
		if _, ok := c.items[item]; !ok {
			return fmt.Errorf("топливо: %w %d", ErrUnknownItem, item)
		}
	}
	for in, out := range c.smelting {
		if _, ok := c.items[in]; !ok {
			return fmt.Errorf("плавка: %w %d", ErrUnknownItem, in)
		}
		if _, ok := c.items[out]; !ok {
			return fmt.Errorf("плавка: %w %d", ErrUnknownItem, out)
		}
	}
	return nil
}

// Item возвращает описание предмета
func (c *Catalog) Item(id int) (ItemDefinition, bool) {
	it, ok := c.items[id]
	return it, ok
}

// ItemByName ищет предмет по имени
func (c *Catalog) ItemByName(name string) (ItemDefinition, bool) {
	id, ok := c.itemsByName[name]
	if !ok {
		return ItemDefinition{}, false
	}
	return c.items[id], true
}

// Items возвращает все предметы по возрастанию id
func (c *Catalog) Items() []ItemDefinition {
	out := make([]ItemDefinition, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MaxStack возвращает размер стопки предмета
func (c *Catalog) MaxStack(id int) int {
	if it, ok := c.items[id]; ok && it.MaxStack > 0 {
		return it.MaxStack
	}
	return DefaultStack
}

// Recipes возвращает копию списка рецептов
func (c *Catalog) Recipes() []Recipe {
	out := make([]Recipe, len(c.recipes))
	copy(out, c.recipes)
	return out
}

// Recipe возвращает рецепт по номеру
func (c *Catalog) Recipe(index int) (Recipe, error) {
	if index < 0 || index >= len(c.recipes) {
		return Recipe{}, fmt.Errorf("%w: %d", ErrUnknownRecipe, index)
	}
	return c.recipes[index], nil
}

// Mob возвращает описание моба
func (c *Catalog) Mob(id int) (MobDefinition, error) {
	m, ok := c.mobs[id]
	if !ok {
		return MobDefinition{}, fmt.Errorf("%w: %d", ErrUnknownMob, id)
	}
	return m, nil
}

// MobByName ищет моба по имени
func (c *Catalog) MobByName(name string) (MobDefinition, bool) {
	for _, m := range c.mobs {
		if m.Name == name {
			return m, true
		}
	}
	return MobDefinition{}, false
}

// MobIDs возвращает отсортированные id враждебных или мирных мобов
func (c *Catalog) MobIDs(hostile bool) []int {
	var ids []int
	for id, m := range c.mobs {
		if m.Hostile == hostile {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Tile возвращает прочность и добычу тайла
func (c *Catalog) Tile(id wt.TileID) (TileDefinition, bool) {
	td, ok := c.tiles[id]
	return td, ok
}

// FuelTime возвращает время горения топлива в миллисекундах
func (c *Catalog) FuelTime(item int) (int64, bool) {
	ms, ok := c.fuels[item]
	return ms, ok
}

// SmeltResult возвращает результат переплавки предмета
func (c *Catalog) SmeltResult(item int) (int, bool) {
	out, ok := c.smelting[item]
	return out, ok
}
