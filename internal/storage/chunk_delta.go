package storage

import (
	"sort"
	"time"

	util "github.com/annelo/tileworld/internal/storage/util"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// ChunkDelta - изменения чанка относительно сгенерированного по сиду
type ChunkDelta struct {
	ChunkPos     wt.ChunkPosition
	BaseVersion  uint32
	Cells        map[uint16]wt.Cell // Измененные клетки по ключу CellKey
	CreatedAt    time.Time
	LastModified time.Time
	AccessTime   time.Time // Время последнего доступа для LRU
}

// NewChunkDelta создает пустую дельту чанка
func NewChunkDelta(pos wt.ChunkPosition) *ChunkDelta {
	now := time.Now()
	return &ChunkDelta{
		ChunkPos:     pos,
		BaseVersion:  1,
		Cells:        make(map[uint16]wt.Cell),
		CreatedAt:    now,
		LastModified: now,
		AccessTime:   now,
	}
}

// SetCell записывает клетку; false, если значение не изменилось
func (d *ChunkDelta) SetCell(lx, ly int, cell wt.Cell) bool {
	key := util.CellKey(lx, ly)
	if existing, ok := d.Cells[key]; ok && existing == cell {
		return false
	}
	d.Cells[key] = cell
	d.LastModified = time.Now()
	return true
}

// ResetCell убирает изменение клетки
func (d *ChunkDelta) ResetCell(lx, ly int) bool {
	key := util.CellKey(lx, ly)
	if _, ok := d.Cells[key]; !ok {
		return false
	}
	delete(d.Cells, key)
	d.LastModified = time.Now()
	return true
}

// IsCellModified сообщает, изменена ли клетка
func (d *ChunkDelta) IsCellModified(lx, ly int) bool {
	_, ok := d.Cells[util.CellKey(lx, ly)]
	return ok
}

// Cell возвращает клетку с учетом изменений
func (d *ChunkDelta) Cell(lx, ly int, base *wt.Chunk) wt.Cell {
	if c, ok := d.Cells[util.CellKey(lx, ly)]; ok {
		return c
	}
	return base.At(lx, ly)
}

// Len возвращает число измененных клеток
func (d *ChunkDelta) Len() int {
	return len(d.Cells)
}

// Keys возвращает отсортированные ключи измененных клеток
func (d *ChunkDelta) Keys() []uint16 {
	keys := make([]uint16, 0, len(d.Cells))
	for k := range d.Cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Touch обновляет время последнего доступа
func (d *ChunkDelta) Touch() {
	d.AccessTime = time.Now()
}

// Clone возвращает независимую копию дельты
func (d *ChunkDelta) Clone() *ChunkDelta {
	cp := *d
	cp.Cells = make(map[uint16]wt.Cell, len(d.Cells))
	for k, v := range d.Cells {
		cp.Cells[k] = v
	}
	return &cp
}

// Apply накладывает дельту на базовый чанк и возвращает новый чанк
func (d *ChunkDelta) Apply(base *wt.Chunk) *wt.Chunk {
	result := base.Clone()
	for key, cell := range d.Cells {
		x, y := util.SplitCellKey(key)
		if x >= wt.ChunkSize || y >= wt.ChunkSize {
			continue
		}
		result.Set(x, y, cell)
	}
	if d.BaseVersion > result.Version {
		result.Version = d.BaseVersion
	}
	return result
}

// DiffChunks строит дельту между сгенерированным и текущим чанком
func DiffChunks(base, current *wt.Chunk) *ChunkDelta {
	d := NewChunkDelta(current.Position)
	d.BaseVersion = current.Version
	for y := 0; y < wt.ChunkSize; y++ {
		for x := 0; x < wt.ChunkSize; x++ {
			if c := current.At(x, y); c != base.At(x, y) {
				d.Cells[util.CellKey(x, y)] = c
			}
		}
	}
	return d
}
