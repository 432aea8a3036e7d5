package worldtypes

// TileID - идентификатор тайла. Диапазон определяет слой.
type TileID uint8

// Слой земли
const (
	TileNone TileID = iota
	TileWater
	TileGrass
	TileDirt
	TileIce
	TileIcyGrass
	TileIcyDirt
)

// Слой покрытия (лежит поверх земли, под объектами)
const (
	TileTorch TileID = iota + 32
	TileSleepingBag
)

// Слой объектов (Layer1)
const (
	TileStone TileID = iota + 64
	TileBush
	TileIcyBush
	TileRock
	TileIcyRock
	TileIronOre
	TileDiamondOre
	TileCoalOre
	TileChest
	TileFurnace
	TileWorkbench
	TileSign
)

// Layer - слой тайла
type Layer uint8

const (
	LayerNone Layer = iota
	LayerGround
	LayerOverlay
	LayerObject
)

type tileInfo struct {
	code string
	name string
}

var tileInfos = map[TileID]tileInfo{
	TileWater:       {"00", "water"},
	TileGrass:       {"01", "grass"},
	TileDirt:        {"07", "dirt"},
	TileIce:         {"012", "ice"},
	TileIcyGrass:    {"013", "icy_grass"},
	TileIcyDirt:     {"015", "icy_dirt"},
	TileTorch:       {"025", "torch_block"},
	TileSleepingBag: {"026", "sleeping_bag"},
	TileStone:       {"1s", "stone"},
	TileBush:        {"111", "bush"},
	TileIcyBush:     {"114", "icy_bush"},
	TileRock:        {"1p", "rock"},
	TileIcyRock:     {"116", "icy_rock"},
	TileIronOre:     {"118", "iron_ore"},
	TileDiamondOre:  {"119", "diamond_ore"},
	TileCoalOre:     {"123", "coal_ore"},
	TileChest:       {"120", "chest"},
	TileFurnace:     {"117", "furnace"},
	TileWorkbench:   {"121", "workbench"},
	TileSign:        {"122", "sign"},
}

var tilesByCode = func() map[string]TileID {
	m := make(map[string]TileID, len(tileInfos))
	for id, info := range tileInfos {
		m[info.code] = id
	}
	return m
}()

var tilesByName = func() map[string]TileID {
	m := make(map[string]TileID, len(tileInfos))
	for id, info := range tileInfos {
		m[info.name] = id
	}
	return m
}()

// Layer возвращает слой тайла
func (t TileID) Layer() Layer {
	switch {
	case t == TileNone:
		return LayerNone
	case t < 32:
		return LayerGround
	case t < 64:
		return LayerOverlay
	default:
		return LayerObject
	}
}

// Code возвращает строковый код тайла переносимого формата ("01", "1s", ...)
func (t TileID) Code() string {
	return tileInfos[t].code
}

// Name возвращает имя тайла
func (t TileID) Name() string {
	if info, ok := tileInfos[t]; ok {
		return info.name
	}
	return "none"
}

func (t TileID) String() string { return t.Name() }

// Valid сообщает, известен ли тайл
func (t TileID) Valid() bool {
	_, ok := tileInfos[t]
	return ok
}

// TileByCode ищет тайл по строковому коду
func TileByCode(code string) (TileID, bool) {
	id, ok := tilesByCode[code]
	return id, ok
}

// TileByName ищет тайл по имени
func TileByName(name string) (TileID, bool) {
	id, ok := tilesByName[name]
	return id, ok
}

// Cell - содержимое одной клетки мира
type Cell struct {
	Ground  TileID `json:"ground"`
	Overlay TileID `json:"overlay,omitempty"`
	Object  TileID `json:"object,omitempty"`
	// Damage - накопленный урон объекта
	Damage uint8 `json:"damage,omitempty"`
}

// Walkable сообщает, можно ли пройти через клетку
func (c Cell) Walkable() bool {
	return c.Object == TileNone && c.Ground != TileWater && c.Ground != TileNone
}

// Solid сообщает, есть ли в клетке твердый объект
func (c Cell) Solid() bool {
	return c.Object != TileNone
}

// Top возвращает верхний тайл клетки
func (c Cell) Top() TileID {
	if c.Object != TileNone {
		return c.Object
	}
	if c.Overlay != TileNone {
		return c.Overlay
	}
	return c.Ground
}

// GroundTop возвращает то, что видно как земля: покрытие, если оно есть
func (c Cell) GroundTop() TileID {
	if c.Overlay != TileNone {
		return c.Overlay
	}
	return c.Ground
}

// Codes возвращает стек кодов клетки в переносимом формате
func (c Cell) Codes() []string {
	codes := make([]string, 0, 3)
	if c.Overlay != TileNone {
		codes = append(codes, c.Overlay.Code())
	}
	if c.Ground != TileNone {
		codes = append(codes, c.Ground.Code())
	}
	if c.Object != TileNone {
		codes = append(codes, c.Object.Code())
	}
	return codes
}

// CellFromCodes собирает клетку из стека кодов; неизвестные коды пропускаются
func CellFromCodes(codes []string) Cell {
	var c Cell
	for _, code := range codes {
		id, ok := TileByCode(code)
		if !ok {
			continue
		}
		switch id.Layer() {
		case LayerGround:
			c.Ground = id
		case LayerOverlay:
			c.Overlay = id
		case LayerObject:
			c.Object = id
		}
	}
	return c
}

// Chunk - чанк мира
type Chunk struct {
	Position ChunkPosition   `json:"position"`
	Cells    [ChunkArea]Cell `json:"cells"`
	Version  uint32          `json:"version"`
}

// NewChunk создает пустой чанк
func NewChunk(pos ChunkPosition) *Chunk {
	return &Chunk{Position: pos, Version: 1}
}

// Index возвращает индекс клетки по локальным координатам
func Index(lx, ly int) int {
	return ly*ChunkSize + lx
}

// At возвращает клетку по локальным координатам
func (c *Chunk) At(lx, ly int) Cell {
	return c.Cells[Index(lx, ly)]
}

// Set записывает клетку по локальным координатам
func (c *Chunk) Set(lx, ly int, cell Cell) {
	c.Cells[Index(lx, ly)] = cell
}

// Clone возвращает глубокую копию чанка
func (c *Chunk) Clone() *Chunk {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// CodeGrid возвращает чанк как сетку стеков кодов [y][x]
func (c *Chunk) CodeGrid() [][][]string {
	grid := make([][][]string, ChunkSize)
	for y := 0; y < ChunkSize; y++ {
		row := make([][]string, ChunkSize)
		for x := 0; x < ChunkSize; x++ {
			row[x] = c.At(x, y).Codes()
		}
		grid[y] = row
	}
	return grid
}
