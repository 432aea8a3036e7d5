package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	util "github.com/annelo/tileworld/internal/storage/util"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

const (
	regionMagic       = "BREG"
	regionVersion     = 2
	regionHeaderSize  = 256
	regionChunkCount  = 256
	regionIndexEntry  = 16
	recordHeaderSize  = 10
	recordCellSize    = 6
	chunkRecordFormat = 2
)

var errBadRegion = errors.New("поврежден файл региона")

// RegionFile - файл региона с изменениями 16x16 чанков
type RegionFile struct {
	filename       string
	file           *os.File
	regionX        int32
	regionY        int32
	headerSize     int
	indexTableSize int
	mutex          sync.RWMutex

	// Кеш индексов для быстрого доступа
	chunkIndex map[string]chunkIndexEntry
}

// Запись в индексной таблице
type chunkIndexEntry struct {
	X           int32
	Y           int32
	Offset      uint32
	Size        uint16
	LastModTime uint16
}

// RegionFileName возвращает имя файла региона
func RegionFileName(regionX, regionY int32) string {
	return fmt.Sprintf("bchunk_%d_%d.dat", regionX, regionY)
}

// NewRegionFile создает новый файл региона или открывает существующий
func NewRegionFile(path string, regionX, regionY int32) (*RegionFile, error) {
	fullPath := filepath.Join(path, RegionFileName(regionX, regionY))

	exists := false
	if _, err := os.Stat(fullPath); err == nil {
		exists = true
	}

	file, err := os.OpenFile(fullPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	region := &RegionFile{
		filename:       fullPath,
		file:           file,
		regionX:        regionX,
		regionY:        regionY,
		headerSize:     regionHeaderSize,
		indexTableSize: regionIndexEntry * regionChunkCount,
		chunkIndex:     make(map[string]chunkIndexEntry),
	}

	if !exists {
		if err := region.initializeFile(); err != nil {
			file.Close()
			return nil, err
		}
	} else if err := region.loadIndexTable(); err != nil {
		file.Close()
		return nil, fmt.Errorf("регион %s: %w", fullPath, err)
	}

	return region, nil
}

// initializeFile пишет заголовок и пустую индексную таблицу
func (r *RegionFile) initializeFile() error {
	header := make([]byte, r.headerSize)
	copy(header[0:4], regionMagic)
	binary.LittleEndian.PutUint32(header[4:8], regionVersion)
	binary.LittleEndian.PutUint32(header[8:12], regionChunkCount)
	now := uint64(time.Now().Unix())
	binary.LittleEndian.PutUint64(header[12:20], now)
	binary.LittleEndian.PutUint64(header[20:28], now)

	if _, err := r.file.WriteAt(header, 0); err != nil {
		return err
	}

	indexTable := make([]byte, r.indexTableSize)
	for i := 0; i < regionChunkCount; i++ {
		localX := int32(i % 16)
		localY := int32(i / 16)
		offset := i * regionIndexEntry

		// Нулевые смещение и размер означают, что чанк еще не сохранен
		binary.LittleEndian.PutUint32(indexTable[offset:offset+4], uint32(r.regionX*16+localX))
		binary.LittleEndian.PutUint32(indexTable[offset+4:offset+8], uint32(r.regionY*16+localY))
	}

	if _, err := r.file.WriteAt(indexTable, int64(r.headerSize)); err != nil {
		return err
	}

	return r.file.Sync()
}

// loadIndexTable читает заголовок и индексную таблицу в память
func (r *RegionFile) loadIndexTable() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	header := make([]byte, r.headerSize)
	if _, err := r.file.ReadAt(header, 0); err != nil {
		return fmt.Errorf("%w: заголовок: %v", errBadRegion, err)
	}
	if string(header[0:4]) != regionMagic {
		return fmt.Errorf("%w: неверная сигнатура", errBadRegion)
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != regionVersion {
		return fmt.Errorf("%w: неподдерживаемая версия %d", errBadRegion, v)
	}

	indexTable := make([]byte, r.indexTableSize)
	if _, err := r.file.ReadAt(indexTable, int64(r.headerSize)); err != nil {
		return fmt.Errorf("%w: индекс: %v", errBadRegion, err)
	}

	for i := 0; i < regionChunkCount; i++ {
		offset := i * regionIndexEntry

		x := int32(binary.LittleEndian.Uint32(indexTable[offset : offset+4]))
		y := int32(binary.LittleEndian.Uint32(indexTable[offset+4 : offset+8]))
		dataOffset := binary.LittleEndian.Uint32(indexTable[offset+8 : offset+12])
		size := binary.LittleEndian.Uint16(indexTable[offset+12 : offset+14])
		lastMod := binary.LittleEndian.Uint16(indexTable[offset+14 : offset+16])

		if size > 0 {
			pos := wt.ChunkPosition{X: x, Y: y}
			r.chunkIndex[util.ChunkKey(pos)] = chunkIndexEntry{
				X:           x,
				Y:           y,
				Offset:      dataOffset,
				Size:        size,
				LastModTime: lastMod,
			}
		}
	}

	return nil
}

// HasChunk сообщает, есть ли в регионе запись чанка
func (r *RegionFile) HasChunk(pos wt.ChunkPosition) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.chunkIndex[util.ChunkKey(pos)]
	return ok
}

// Chunks возвращает позиции всех сохраненных чанков региона
func (r *RegionFile) Chunks() []wt.ChunkPosition {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]wt.ChunkPosition, 0, len(r.chunkIndex))
	for _, e := range r.chunkIndex {
		out = append(out, wt.ChunkPosition{X: e.X, Y: e.Y})
	}
	return out
}

// GetChunk читает дельту чанка из файла
func (r *RegionFile) GetChunk(pos wt.ChunkPosition) (*ChunkDelta, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, exists := r.chunkIndex[util.ChunkKey(pos)]
	if !exists || entry.Size == 0 {
		return nil, ErrChunkNotFound{X: pos.X, Y: pos.Y}
	}

	data := make([]byte, entry.Size)
	if _, err := r.file.ReadAt(data, int64(entry.Offset)); err != nil {
		return nil, err
	}

	return decodeChunkRecord(data, pos)
}

// SaveChunk записывает дельту чанка
func (r *RegionFile) SaveChunk(delta *ChunkDelta) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.saveChunkLocked(delta, uint16(time.Now().Unix()%65536))
}

func (r *RegionFile) saveChunkLocked(delta *ChunkDelta, lastMod uint16) error {
	idxOffset := r.findIndexOffset(delta.ChunkPos)
	if idxOffset < 0 {
		return fmt.Errorf("чанк %v не принадлежит региону %d:%d", delta.ChunkPos, r.regionX, r.regionY)
	}

	data := encodeChunkRecord(delta)

	var offset uint32
	key := util.ChunkKey(delta.ChunkPos)
	entry, exists := r.chunkIndex[key]

	// Перезаписываем на месте, если новая запись помещается в старую
	if exists && entry.Offset > 0 && len(data) <= int(entry.Size) {
		offset = entry.Offset
	} else {
		fileInfo, err := r.file.Stat()
		if err != nil {
			return err
		}
		offset = uint32(fileInfo.Size())
	}

	if _, err := r.file.WriteAt(data, int64(offset)); err != nil {
		return err
	}

	indexEntry := chunkIndexEntry{
		X:           delta.ChunkPos.X,
		Y:           delta.ChunkPos.Y,
		Offset:      offset,
		Size:        uint16(len(data)),
		LastModTime: lastMod,
	}
	r.chunkIndex[key] = indexEntry

	indexBytes := make([]byte, regionIndexEntry)
	binary.LittleEndian.PutUint32(indexBytes[0:4], uint32(indexEntry.X))
	binary.LittleEndian.PutUint32(indexBytes[4:8], uint32(indexEntry.Y))
	binary.LittleEndian.PutUint32(indexBytes[8:12], indexEntry.Offset)
	binary.LittleEndian.PutUint16(indexBytes[12:14], indexEntry.Size)
	binary.LittleEndian.PutUint16(indexBytes[14:16], indexEntry.LastModTime)
	if _, err := r.file.WriteAt(indexBytes, int64(r.headerSize+idxOffset)); err != nil {
		return err
	}

	updated := make([]byte, 8)
	binary.LittleEndian.PutUint64(updated, uint64(time.Now().Unix()))
	if _, err := r.file.WriteAt(updated, 20); err != nil {
		return err
	}

	return r.file.Sync()
}

// DeleteChunk убирает чанк из индекса; место освобождается при компактации
func (r *RegionFile) DeleteChunk(pos wt.ChunkPosition) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := util.ChunkKey(pos)
	if _, ok := r.chunkIndex[key]; !ok {
		return nil
	}
	delete(r.chunkIndex, key)

	idxOffset := r.findIndexOffset(pos)
	if idxOffset < 0 {
		return nil
	}
	indexBytes := make([]byte, regionIndexEntry)
	binary.LittleEndian.PutUint32(indexBytes[0:4], uint32(pos.X))
	binary.LittleEndian.PutUint32(indexBytes[4:8], uint32(pos.Y))
	if _, err := r.file.WriteAt(indexBytes, int64(r.headerSize+idxOffset)); err != nil {
		return err
	}
	return r.file.Sync()
}

// findIndexOffset возвращает смещение записи чанка в индексной таблице или -1
func (r *RegionFile) findIndexOffset(pos wt.ChunkPosition) int {
	rx, ry := util.RegionOf(pos)
	if rx != r.regionX || ry != r.regionY {
		return -1
	}

	localX := pos.X - rx*16
	localY := pos.Y - ry*16
	return int(localY*16+localX) * regionIndexEntry
}

// encodeChunkRecord сериализует дельту:
// u16 версия записи, u16 флаги, u32 версия чанка, u16 число клеток,
// затем клетки по 6 байт (x, y, земля, покрытие, объект, урон)
func encodeChunkRecord(delta *ChunkDelta) []byte {
	keys := delta.Keys()
	buf := bytes.NewBuffer(make([]byte, 0, recordHeaderSize+len(keys)*recordCellSize))

	var head [recordHeaderSize]byte
	binary.LittleEndian.PutUint16(head[0:2], chunkRecordFormat)
	binary.LittleEndian.PutUint16(head[2:4], 0)
	binary.LittleEndian.PutUint32(head[4:8], delta.BaseVersion)
	binary.LittleEndian.PutUint16(head[8:10], uint16(len(keys)))
	buf.Write(head[:])

	for _, key := range keys {
		x, y := util.SplitCellKey(key)
		c := delta.Cells[key]
		buf.Write([]byte{uint8(x), uint8(y), uint8(c.Ground), uint8(c.Overlay), uint8(c.Object), c.Damage})
	}
	return buf.Bytes()
}

// decodeChunkRecord разбирает запись чанка
func decodeChunkRecord(data []byte, pos wt.ChunkPosition) (*ChunkDelta, error) {
	if len(data) < recordHeaderSize {
		return nil, fmt.Errorf("%w: короткая запись чанка %v", errBadRegion, pos)
	}
	format := binary.LittleEndian.Uint16(data[0:2])
	if format != chunkRecordFormat {
		return nil, fmt.Errorf("%w: формат записи %d", errBadRegion, format)
	}

	delta := NewChunkDelta(pos)
	delta.BaseVersion = binary.LittleEndian.Uint32(data[4:8])
	count := int(binary.LittleEndian.Uint16(data[8:10]))

	r := bytes.NewReader(data[recordHeaderSize:])
	cell := make([]byte, recordCellSize)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, cell); err != nil {
			return nil, fmt.Errorf("%w: клетка %d чанка %v: %v", errBadRegion, i, pos, err)
		}
		delta.Cells[util.CellKey(int(cell[0]), int(cell[1]))] = wt.Cell{
			Ground:  wt.TileID(cell[2]),
			Overlay: wt.TileID(cell[3]),
			Object:  wt.TileID(cell[4]),
			Damage:  cell[5],
		}
	}
	return delta, nil
}

// Close закрывает файл региона
func (r *RegionFile) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.file.Close()
}

// Sync сбрасывает буферы файла на диск
func (r *RegionFile) Sync() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.file.Sync()
}

// NeedsCompaction сообщает, что файл вырос сильнее RegionCompactionGrowFactor
// относительно живых данных (заголовок + индекс + записи)
func (r *RegionFile) NeedsCompaction() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.needsCompactionLocked()
}

func (r *RegionFile) needsCompactionLocked() bool {
	fileInfo, err := r.file.Stat()
	if err != nil {
		return false
	}

	usedSize := int64(r.headerSize + r.indexTableSize)
	for _, entry := range r.chunkIndex {
		usedSize += int64(entry.Size)
	}

	return float64(fileInfo.Size()) > float64(usedSize)*RegionCompactionGrowFactor
}

// Compact переписывает живые записи во временный файл и атомарно подменяет им старый
func (r *RegionFile) Compact() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.needsCompactionLocked() {
		return nil
	}

	tmpPath := r.filename + ".tmp"
	_ = os.Remove(tmpPath)

	tmpFile, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("создание tmp-файла для компактации: %w", err)
	}

	tmpRegion := &RegionFile{
		filename:       tmpPath,
		file:           tmpFile,
		regionX:        r.regionX,
		regionY:        r.regionY,
		headerSize:     r.headerSize,
		indexTableSize: r.indexTableSize,
		chunkIndex:     make(map[string]chunkIndexEntry),
	}

	fail := func(err error) error {
		tmpFile.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	if err := tmpRegion.initializeFile(); err != nil {
		return fail(fmt.Errorf("инициализация tmp-файла: %w", err))
	}

	for _, entry := range r.chunkIndex {
		data := make([]byte, entry.Size)
		if _, err := r.file.ReadAt(data, int64(entry.Offset)); err != nil {
			return fail(err)
		}

		pos := wt.ChunkPosition{X: entry.X, Y: entry.Y}
		delta, err := decodeChunkRecord(data, pos)
		if err != nil {
			return fail(err)
		}

		if err := tmpRegion.saveChunkLocked(delta, entry.LastModTime); err != nil {
			return fail(err)
		}
	}

	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := r.file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Join(fmt.Errorf("закрытие региона перед подменой: %w", err), r.reopenLocked())
	}

	if err := renameFile(tmpPath, r.filename); err != nil {
		// старый файл на месте, его индекс в памяти по-прежнему верен
		_ = os.Remove(tmpPath)
		return errors.Join(fmt.Errorf("подмена файла региона: %w", err), r.reopenLocked())
	}

	r.chunkIndex = tmpRegion.chunkIndex
	if err := r.reopenLocked(); err != nil {
		return fmt.Errorf("открытие региона после компактации: %w", err)
	}
	return nil
}

// renameFile подменяется в тестах
var renameFile = os.Rename

// reopenLocked заново открывает файл региона по его пути
func (r *RegionFile) reopenLocked() error {
	f, err := os.OpenFile(r.filename, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("повторное открытие %s: %w", r.filename, err)
	}
	r.file = f
	return nil
}

// Size возвращает размер файла региона в байтах
func (r *RegionFile) Size() int64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	fi, err := r.file.Stat()
	if err != nil {
		return 0
	}
	return fi.Size()
}
