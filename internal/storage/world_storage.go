package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Параметры хранилища
const (
	// MaxOpenRegions - сколько файлов регионов держать открытыми одновременно
	MaxOpenRegions = 32
	// RegionCompactionInterval - период проверки регионов на компактацию
	RegionCompactionInterval = 10 * time.Minute
	// RegionCompactionGrowFactor - во сколько раз файл может превысить объем живых данных
	RegionCompactionGrowFactor = 2.0
	// MaxDeltaCacheSize - размер кеша дельт, после которого включается очистка
	MaxDeltaCacheSize = 1024
	// DeltaCacheCleanupBatch - сколько дельт удаляется за один проход очистки
	DeltaCacheCleanupBatch = 128
	// FormatVersion - версия формата хранилища
	FormatVersion = "binary-2.0.0"
)

// WorldStorage - интерфейс хранилища игрового мира
//
//go:generate go tool mockgen -destination=mocks/mock_world_storage.go -package=mocks . WorldStorage
type WorldStorage interface {
	// SaveChunk сохраняет изменения чанка относительно сгенерированного
	SaveChunk(ctx context.Context, delta *ChunkDelta) error

	// LoadChunk загружает изменения чанка.
	// Возвращает ErrChunkNotFound, если изменений нет.
	LoadChunk(ctx context.Context, pos wt.ChunkPosition) (*ChunkDelta, error)

	// DeleteChunk удаляет изменения чанка
	DeleteChunk(ctx context.Context, pos wt.ChunkPosition) error

	// ListChunks возвращает позиции всех сохраненных чанков
	ListChunks(ctx context.Context) ([]wt.ChunkPosition, error)

	// SaveWorld сохраняет общую информацию о мире
	SaveWorld(ctx context.Context, info *WorldInfo) error

	// LoadWorld загружает общую информацию о мире
	LoadWorld(ctx context.Context) (*WorldInfo, error)

	// SavePlayerState сохраняет состояние игрока
	SavePlayerState(ctx context.Context, state *PlayerState) error

	// LoadPlayerState загружает состояние игрока; ErrPlayerNotFound, если его нет
	LoadPlayerState(ctx context.Context, id string) (*PlayerState, error)

	// ListPlayers возвращает идентификаторы сохраненных игроков
	ListPlayers(ctx context.Context) ([]string, error)

	// SaveEntities сохраняет снимок сущностей мира
	SaveEntities(ctx context.Context, snap *EntitySnapshot) error

	// LoadEntities загружает снимок сущностей; пустой снимок, если его нет
	LoadEntities(ctx context.Context) (*EntitySnapshot, error)

	// Flush синхронно записывает все отложенные изменения чанков
	Flush(ctx context.Context) error

	// Close сохраняет несохраненное и освобождает ресурсы
	Close() error
}

// WorldInfo - общая информация о мире
type WorldInfo struct {
	Name       string            `json:"name"`
	Seed       int64             `json:"seed"`
	Version    string            `json:"version"`
	Spawn      wt.TilePosition   `json:"spawn"`
	SpawnSet   bool              `json:"spawn_set"`
	GlobalTime int64             `json:"global_time"`
	NightShade int               `json:"night_shade"`
	CreatedAt  int64             `json:"created_at"`
	LastSaveAt int64             `json:"last_save_at"`
	Properties map[string]string `json:"properties,omitempty"`
}

// PlayerState - сохраняемое состояние игрока
type PlayerState struct {
	ID        string
	Name      string
	Position  wt.Vec2
	Health    int32
	MaxHealth int32
	Inventory [][2]int
	Spawn     wt.TilePosition
	LastSeen  int64
}

// ErrChunkNotFound возвращается, когда чанк не найден в хранилище
type ErrChunkNotFound struct {
	X int32
	Y int32
}

func (e ErrChunkNotFound) Error() string {
	return fmt.Sprintf("чанк [%d,%d] не найден в хранилище", e.X, e.Y)
}

var (
	// ErrPlayerNotFound - состояние игрока не сохранялось
	ErrPlayerNotFound = errors.New("состояние игрока не найдено")
	// ErrWorldNotFound - нет файла информации о мире
	ErrWorldNotFound = errors.New("информация о мире не найдена")
	// ErrClosed - хранилище уже закрыто
	ErrClosed = errors.New("хранилище закрыто")
)
