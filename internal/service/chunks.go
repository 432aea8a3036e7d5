package service

import (
	"fmt"

	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// chunkMessage переводит чанк в сообщение транспорта
func chunkMessage(c *wt.Chunk) *ChunkMessage {
	return &ChunkMessage{Position: c.Position, Version: c.Version, Tiles: c.CodeGrid()}
}

// ChunkFromMessage восстанавливает чанк из сообщения; нужен клиентам
func ChunkFromMessage(m *ChunkMessage) (*wt.Chunk, error) {
	if len(m.Tiles) != wt.ChunkSize {
		return nil, fmt.Errorf("чанк %s: %d строк вместо %d", m.Position.Key(), len(m.Tiles), wt.ChunkSize)
	}
	c := wt.NewChunk(m.Position)
	c.Version = m.Version
	for y, row := range m.Tiles {
		if len(row) != wt.ChunkSize {
			return nil, fmt.Errorf("чанк %s: строка %d длины %d", m.Position.Key(), y, len(row))
		}
		for x, codes := range row {
			c.Set(x, y, wt.CellFromCodes(codes))
		}
	}
	return c, nil
}
