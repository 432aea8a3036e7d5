// Package worldtypes содержит общие типы игрового мира: координаты, тайлы, чанки и события.
package worldtypes

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// ChunkSize - размер чанка в тайлах по каждой оси
	ChunkSize = 16
	// ChunkArea - количество тайлов в чанке
	ChunkArea = ChunkSize * ChunkSize
	// TileSize - размер тайла в пикселях (используется только в переносимом формате сохранений)
	TileSize = 32
)

// ChunkPosition - координаты чанка
type ChunkPosition struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// Key возвращает строковый ключ чанка вида "x,y"
func (p ChunkPosition) Key() string {
	return strconv.Itoa(int(p.X)) + "," + strconv.Itoa(int(p.Y))
}

func (p ChunkPosition) String() string {
	return "[" + p.Key() + "]"
}

// Distance возвращает расстояние Чебышёва между чанками
func (p ChunkPosition) Distance(o ChunkPosition) int32 {
	dx := p.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dy := p.Y - o.Y
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// Origin возвращает мировые координаты левого верхнего тайла чанка
func (p ChunkPosition) Origin() TilePosition {
	return TilePosition{X: p.X * ChunkSize, Y: p.Y * ChunkSize}
}

// ParseChunkKey разбирает ключ "x,y"
func ParseChunkKey(key string) (ChunkPosition, error) {
	parts := strings.Split(key, ",")
	if len(parts) != 2 {
		return ChunkPosition{}, fmt.Errorf("некорректный ключ чанка %q", key)
	}
	x, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return ChunkPosition{}, fmt.Errorf("некорректный ключ чанка %q: %w", key, err)
	}
	y, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 32)
	if err != nil {
		return ChunkPosition{}, fmt.Errorf("некорректный ключ чанка %q: %w", key, err)
	}
	return ChunkPosition{X: int32(x), Y: int32(y)}, nil
}

// TilePosition - мировые координаты тайла
type TilePosition struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// floorDiv делит с округлением вниз, чтобы тайл -1 попадал в чанк -1
func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Chunk возвращает чанк, которому принадлежит тайл
func (t TilePosition) Chunk() ChunkPosition {
	return ChunkPosition{X: floorDiv(t.X, ChunkSize), Y: floorDiv(t.Y, ChunkSize)}
}

// Local возвращает координаты тайла внутри чанка в диапазоне [0,16)
func (t TilePosition) Local() (int, int) {
	c := t.Chunk()
	return int(t.X - c.X*ChunkSize), int(t.Y - c.Y*ChunkSize)
}

// Center возвращает центр тайла в мировых единицах
func (t TilePosition) Center() Vec2 {
	return Vec2{X: float64(t.X) + 0.5, Y: float64(t.Y) + 0.5}
}

// WorldTile переводит локальные координаты чанка в мировые
func WorldTile(c ChunkPosition, lx, ly int) TilePosition {
	return TilePosition{X: c.X*ChunkSize + int32(lx), Y: c.Y*ChunkSize + int32(ly)}
}

// Vec2 - позиция сущности в тайловых единицах
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add складывает векторы
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Sub вычитает векторы
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

// Scale умножает вектор на число
func (v Vec2) Scale(k float64) Vec2 { return Vec2{X: v.X * k, Y: v.Y * k} }

// Len возвращает длину вектора
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// Dist возвращает расстояние до другой точки
func (v Vec2) Dist(o Vec2) float64 { return v.Sub(o).Len() }

// Normalize возвращает единичный вектор (нулевой для нулевого)
func (v Vec2) Normalize() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{X: v.X / l, Y: v.Y / l}
}

// Rotate поворачивает вектор на угол в градусах
func (v Vec2) Rotate(deg float64) Vec2 {
	r := deg * math.Pi / 180
	sin, cos := math.Sincos(r)
	return Vec2{X: v.X*cos - v.Y*sin, Y: v.X*sin + v.Y*cos}
}

// Tile возвращает тайл, в котором находится точка
func (v Vec2) Tile() TilePosition {
	return TilePosition{X: int32(math.Floor(v.X)), Y: int32(math.Floor(v.Y))}
}

// Chunk возвращает чанк, в котором находится точка
func (v Vec2) Chunk() ChunkPosition {
	return v.Tile().Chunk()
}

// ItemStack - стопка предметов
type ItemStack struct {
	ID    int `json:"id"`
	Count int `json:"count"`
}

// Empty сообщает, что стопка пуста
func (s ItemStack) Empty() bool {
	return s.ID == 0 || s.Count <= 0
}

// Pair возвращает стопку в виде пары [id, qty]
func (s ItemStack) Pair() [2]int {
	if s.Empty() {
		return [2]int{0, 0}
	}
	return [2]int{s.ID, s.Count}
}

// StackFromPair создает стопку из пары [id, qty]
func StackFromPair(p [2]int) ItemStack {
	if p[0] == 0 || p[1] <= 0 {
		return ItemStack{}
	}
	return ItemStack{ID: p[0], Count: p[1]}
}
