package storage

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	util "github.com/annelo/tileworld/internal/storage/util"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// RegionManager управляет открытыми файлами регионов и их LRU-кешем
type RegionManager struct {
	basePath       string
	regions        map[string]*RegionFile
	regionsMutex   sync.RWMutex
	maxOpenRegions int
	lruList        *list.List
	lruMap         map[string]*list.Element
	logger         *zap.SugaredLogger

	// Фоновый воркер компактации
	stopChan chan struct{}
	wg       sync.WaitGroup

	dirtyRegions map[string]bool // регионы, в которые идет запись
	compactions  int
}

type regionLRUItem struct {
	key        string
	lastAccess time.Time
}

// NewRegionManager создает менеджер регионов и запускает воркер компактации
func NewRegionManager(basePath string, logger *zap.SugaredLogger) *RegionManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	rm := &RegionManager{
		basePath:       basePath,
		regions:        make(map[string]*RegionFile),
		maxOpenRegions: MaxOpenRegions,
		lruList:        list.New(),
		lruMap:         make(map[string]*list.Element),
		logger:         logger,
		stopChan:       make(chan struct{}),
		dirtyRegions:   make(map[string]bool),
	}

	rm.wg.Add(1)
	go rm.compactionWorker(RegionCompactionInterval)

	return rm
}

func regionKey(rx, ry int32) string {
	return fmt.Sprintf("%d:%d", rx, ry)
}

// GetRegion возвращает регион чанка, открывая файл при необходимости
func (rm *RegionManager) GetRegion(pos wt.ChunkPosition) (*RegionFile, error) {
	rx, ry := util.RegionOf(pos)
	key := regionKey(rx, ry)

	rm.regionsMutex.Lock()
	defer rm.regionsMutex.Unlock()

	if region, ok := rm.regions[key]; ok {
		rm.touchLRU(key)
		return region, nil
	}

	if len(rm.regions) >= rm.maxOpenRegions {
		if err := rm.closeOldestRegion(); err != nil {
			return nil, fmt.Errorf("не удалось закрыть старый регион: %w", err)
		}
	}

	region, err := NewRegionFile(rm.basePath, rx, ry)
	if err != nil {
		return nil, err
	}

	rm.regions[key] = region
	rm.lruMap[key] = rm.lruList.PushFront(&regionLRUItem{key: key, lastAccess: time.Now()})
	return region, nil
}

// regionExists проверяет наличие файла региона без его создания
func (rm *RegionManager) regionExists(pos wt.ChunkPosition) bool {
	rx, ry := util.RegionOf(pos)

	rm.regionsMutex.RLock()
	_, open := rm.regions[regionKey(rx, ry)]
	rm.regionsMutex.RUnlock()
	if open {
		return true
	}

	_, err := os.Stat(filepath.Join(rm.basePath, RegionFileName(rx, ry)))
	return err == nil
}

// closeOldestRegion закрывает самый давно использованный регион, в который не идет запись.
// Вызывается под regionsMutex.
func (rm *RegionManager) closeOldestRegion() error {
	var selected *list.Element
	for e := rm.lruList.Back(); e != nil; e = e.Prev() {
		item := e.Value.(*regionLRUItem)
		if rm.dirtyRegions[item.key] {
			continue
		}
		selected = e
		break
	}

	if selected == nil {
		return nil
	}

	key := selected.Value.(*regionLRUItem).key
	region, exists := rm.regions[key]
	rm.lruList.Remove(selected)
	delete(rm.lruMap, key)
	if !exists {
		return nil
	}

	if err := region.Sync(); err != nil {
		rm.logger.Warnw("Ошибка при sync региона", "region", key, "error", err)
	}
	if err := region.Close(); err != nil {
		return err
	}
	delete(rm.regions, key)

	rm.logger.Debugw("Закрыт неиспользуемый регион", "region", key)
	return nil
}

// touchLRU переносит регион в начало LRU. Вызывается под regionsMutex.
func (rm *RegionManager) touchLRU(key string) {
	element, exists := rm.lruMap[key]
	if !exists {
		rm.lruMap[key] = rm.lruList.PushFront(&regionLRUItem{key: key, lastAccess: time.Now()})
		return
	}
	element.Value.(*regionLRUItem).lastAccess = time.Now()
	rm.lruList.MoveToFront(element)
}

// GetChunkDelta читает дельту чанка из региона
func (rm *RegionManager) GetChunkDelta(pos wt.ChunkPosition) (*ChunkDelta, error) {
	if !rm.regionExists(pos) {
		return nil, ErrChunkNotFound{X: pos.X, Y: pos.Y}
	}
	region, err := rm.GetRegion(pos)
	if err != nil {
		return nil, err
	}
	return region.GetChunk(pos)
}

// SaveChunkDelta записывает дельту чанка в регион
func (rm *RegionManager) SaveChunkDelta(delta *ChunkDelta) error {
	region, err := rm.GetRegion(delta.ChunkPos)
	if err != nil {
		return err
	}

	rx, ry := util.RegionOf(delta.ChunkPos)
	key := regionKey(rx, ry)

	rm.setDirty(key, true)
	err = region.SaveChunk(delta)
	rm.setDirty(key, false)

	return err
}

// DeleteChunkDelta удаляет чанк из региона
func (rm *RegionManager) DeleteChunkDelta(pos wt.ChunkPosition) error {
	if !rm.regionExists(pos) {
		return nil
	}
	region, err := rm.GetRegion(pos)
	if err != nil {
		return err
	}
	return region.DeleteChunk(pos)
}

// ListChunks обходит все файлы регионов и возвращает сохраненные чанки
func (rm *RegionManager) ListChunks() ([]wt.ChunkPosition, error) {
	entries, err := os.ReadDir(rm.basePath)
	if err != nil {
		return nil, err
	}

	var out []wt.ChunkPosition
	for _, e := range entries {
		var rx, ry int32
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".dat") {
			continue
		}
		if _, err := fmt.Sscanf(e.Name(), "bchunk_%d_%d.dat", &rx, &ry); err != nil {
			continue
		}
		region, err := rm.GetRegion(wt.ChunkPosition{X: rx * 16, Y: ry * 16})
		if err != nil {
			rm.logger.Warnw("Не удалось открыть регион", "file", e.Name(), "error", err)
			continue
		}
		out = append(out, region.Chunks()...)
	}
	return out, nil
}

// OpenRegions возвращает число открытых регионов
func (rm *RegionManager) OpenRegions() int {
	rm.regionsMutex.RLock()
	defer rm.regionsMutex.RUnlock()
	return len(rm.regions)
}

// Compactions возвращает число выполненных компактаций
func (rm *RegionManager) Compactions() int {
	rm.regionsMutex.RLock()
	defer rm.regionsMutex.RUnlock()
	return rm.compactions
}

// CompactAll компактирует все открытые регионы, которым это нужно
func (rm *RegionManager) CompactAll() {
	rm.regionsMutex.RLock()
	regions := make([]*RegionFile, 0, len(rm.regions))
	for _, region := range rm.regions {
		regions = append(regions, region)
	}
	rm.regionsMutex.RUnlock()

	done := 0
	for _, region := range regions {
		if !region.NeedsCompaction() {
			continue
		}
		if err := region.Compact(); err != nil {
			rm.logger.Errorw("Ошибка компактации региона", "file", region.filename, "error", err)
			continue
		}
		done++
	}

	if done > 0 {
		rm.regionsMutex.Lock()
		rm.compactions += done
		rm.regionsMutex.Unlock()
	}
}

// Close останавливает воркер и закрывает все регионы
func (rm *RegionManager) Close() error {
	close(rm.stopChan)
	rm.wg.Wait()

	rm.regionsMutex.Lock()
	defer rm.regionsMutex.Unlock()

	var lastErr error
	for key, region := range rm.regions {
		if err := region.Close(); err != nil {
			rm.logger.Errorw("Ошибка при закрытии региона", "region", key, "error", err)
			lastErr = err
		}
	}

	rm.regions = make(map[string]*RegionFile)
	rm.lruList = list.New()
	rm.lruMap = make(map[string]*list.Element)

	return lastErr
}

// compactionWorker периодически компактирует разросшиеся регионы
func (rm *RegionManager) compactionWorker(interval time.Duration) {
	defer rm.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rm.CompactAll()
		case <-rm.stopChan:
			return
		}
	}
}

func (rm *RegionManager) setDirty(key string, dirty bool) {
	rm.regionsMutex.Lock()
	defer rm.regionsMutex.Unlock()
	if dirty {
		rm.dirtyRegions[key] = true
	} else {
		delete(rm.dirtyRegions, key)
	}
}
