// Package util содержит вспомогательные функции ключей хранилища.
package util

import (
	"fmt"

	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// CellKey формирует компактный ключ клетки внутри чанка (x << 8 | y).
// Старшие биты координат отсекаются маской 0xFF.
func CellKey(x, y int) uint16 {
	return uint16((x&0xFF)<<8 | (y & 0xFF))
}

// SplitCellKey раскладывает ключ клетки обратно на координаты
func SplitCellKey(key uint16) (int, int) {
	return int(key >> 8), int(key & 0xFF)
}

// ChunkKey формирует уникальный строковый ключ позиции чанка
func ChunkKey(pos wt.ChunkPosition) string {
	return fmt.Sprintf("%d:%d", pos.X, pos.Y)
}

// RegionOf возвращает координаты региона (16x16 чанков), которому принадлежит чанк
func RegionOf(pos wt.ChunkPosition) (int32, int32) {
	rx := pos.X / 16
	if pos.X < 0 && pos.X%16 != 0 {
		rx--
	}
	ry := pos.Y / 16
	if pos.Y < 0 && pos.Y%16 != 0 {
		ry--
	}
	return rx, ry
}
