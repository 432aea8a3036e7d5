package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// EntitySnapshotVersion - версия формата снимка сущностей
const EntitySnapshotVersion = 1

const entitiesFileName = "entities.json.zst"

// EntitySnapshot - снимок динамических сущностей и тайловых сущностей мира
type EntitySnapshot struct {
	Version       int                  `json:"version"`
	SavedAt       int64                `json:"saved_at"`
	Mobs          []MobRecord          `json:"mobs"`
	FloatingItems []FloatingItemRecord `json:"floating_items"`
	Chests        []ChestRecord        `json:"chests"`
	Furnaces      []FurnaceRecord      `json:"furnaces"`
	Signs         []SignRecord         `json:"signs"`
}

// MobRecord - сохраненный моб
type MobRecord struct {
	ID       string  `json:"id"`
	MobID    int     `json:"mob_id"`
	Position wt.Vec2 `json:"position"`
	Health   int     `json:"health"`
}

// FloatingItemRecord - предмет, лежащий на земле. Age - сколько он уже пролежал, мс.
type FloatingItemRecord struct {
	ID       string  `json:"id"`
	Position wt.Vec2 `json:"position"`
	Item     [2]int  `json:"item"`
	Age      int64   `json:"age"`
}

// ChestRecord - содержимое сундука
type ChestRecord struct {
	Position wt.TilePosition `json:"position"`
	Slots    [][2]int        `json:"slots"`
}

// FurnaceRecord - состояние печи. Таймеры не сохраняются.
type FurnaceRecord struct {
	Position wt.TilePosition `json:"position"`
	Input    [2]int          `json:"input"`
	Fuel     [2]int          `json:"fuel"`
	Output   [2]int          `json:"output"`
}

// SignRecord - текст таблички
type SignRecord struct {
	Position wt.TilePosition `json:"position"`
	Text     string          `json:"text"`
}

// NewEntitySnapshot создает пустой снимок текущей версии
func NewEntitySnapshot() *EntitySnapshot {
	return &EntitySnapshot{Version: EntitySnapshotVersion}
}

// Empty сообщает, что в снимке ничего нет
func (s *EntitySnapshot) Empty() bool {
	return len(s.Mobs) == 0 && len(s.FloatingItems) == 0 && len(s.Chests) == 0 &&
		len(s.Furnaces) == 0 && len(s.Signs) == 0
}

// WriteEntitySnapshot записывает снимок в zstd-сжатый JSON через временный файл
func WriteEntitySnapshot(path string, snap *EntitySnapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return err
	}
	if err := json.NewEncoder(enc).Encode(snap); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("ошибка кодирования снимка сущностей: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadEntitySnapshot читает снимок; для отсутствующего файла возвращает пустой снимок
func ReadEntitySnapshot(path string) (*EntitySnapshot, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewEntitySnapshot(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	snap := NewEntitySnapshot()
	if err := json.NewDecoder(dec).Decode(snap); err != nil {
		return nil, fmt.Errorf("ошибка чтения снимка сущностей: %w", err)
	}
	if snap.Version > EntitySnapshotVersion {
		return nil, fmt.Errorf("неподдерживаемая версия снимка сущностей: %d", snap.Version)
	}
	return snap, nil
}
