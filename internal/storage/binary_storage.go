package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	util "github.com/annelo/tileworld/internal/storage/util"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

const worldInfoFileName = "world_info.json"

// BinaryStorage реализует WorldStorage на файлах регионов, дельтах чанков и отдельных файлах игроков
type BinaryStorage struct {
	basePath  string     // Базовый путь для файлов хранилища
	worldInfo *WorldInfo // Информация о мире
	logger    *zap.SugaredLogger

	// Менеджер регионов для долговременного хранения
	regionManager *RegionManager

	// Кеш дельт в памяти
	deltaCache map[string]*ChunkDelta
	cacheMutex sync.RWMutex

	// "Грязные" дельты, ожидающие сохранения
	dirtyDeltas map[string]time.Time

	// Очередь фонового сохранения
	saveQueue chan wt.ChunkPosition

	stopChan chan struct{}
	wg       sync.WaitGroup

	playersPath  string
	playersMutex sync.Mutex
	entityMutex  sync.Mutex
	infoMutex    sync.Mutex

	closed    bool
	closeOnce sync.Once
}

// Option настраивает BinaryStorage
type Option func(*BinaryStorage)

// WithLogger задает логгер хранилища
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *BinaryStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewBinaryStorage открывает или создает хранилище мира в каталоге basePath
func NewBinaryStorage(basePath string, worldName string, seed int64, opts ...Option) (*BinaryStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранилища: %w", err)
	}

	regionsPath := filepath.Join(basePath, "regions")
	if err := os.MkdirAll(regionsPath, 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию регионов: %w", err)
	}

	playersPath := filepath.Join(basePath, "players")
	if err := os.MkdirAll(playersPath, 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию игроков: %w", err)
	}

	s := &BinaryStorage{
		basePath:    basePath,
		logger:      zap.NewNop().Sugar(),
		deltaCache:  make(map[string]*ChunkDelta),
		dirtyDeltas: make(map[string]time.Time),
		saveQueue:   make(chan wt.ChunkPosition, 100),
		stopChan:    make(chan struct{}),
		playersPath: playersPath,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.regionManager = NewRegionManager(regionsPath, s.logger.Named("regions"))

	info, err := s.LoadWorld(context.Background())
	switch {
	case errors.Is(err, ErrWorldNotFound):
		now := time.Now().Unix()
		info = &WorldInfo{
			Name:       worldName,
			Seed:       seed,
			Version:    FormatVersion,
			NightShade: 255,
			CreatedAt:  now,
			LastSaveAt: now,
			Properties: make(map[string]string),
		}
		if err := s.SaveWorld(context.Background(), info); err != nil {
			s.regionManager.Close()
			return nil, fmt.Errorf("ошибка при сохранении информации о мире: %w", err)
		}
	case err != nil:
		s.regionManager.Close()
		return nil, err
	}
	s.worldInfo = info

	s.wg.Add(2)
	go s.saveWorker()
	go s.cleanupWorker()

	return s, nil
}

// BasePath возвращает каталог мира
func (s *BinaryStorage) BasePath() string {
	return s.basePath
}

// SaveChunk заменяет дельту чанка и ставит ее в очередь на запись
func (s *BinaryStorage) SaveChunk(ctx context.Context, delta *ChunkDelta) error {
	if delta == nil {
		return nil
	}
	key := util.ChunkKey(delta.ChunkPos)
	cp := delta.Clone()
	cp.Touch()

	s.cacheMutex.Lock()
	if s.closed {
		s.cacheMutex.Unlock()
		return ErrClosed
	}
	s.deltaCache[key] = cp
	s.dirtyDeltas[key] = time.Now()
	s.cacheMutex.Unlock()

	s.queueForSaving(delta.ChunkPos)
	return nil
}

// LoadChunk возвращает копию дельты чанка из кеша или из региона
func (s *BinaryStorage) LoadChunk(ctx context.Context, pos wt.ChunkPosition) (*ChunkDelta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	delta, err := s.getDelta(pos)
	if err != nil {
		return nil, err
	}
	return delta.Clone(), nil
}

// DeleteChunk удаляет чанк из кеша и из файла региона
func (s *BinaryStorage) DeleteChunk(ctx context.Context, pos wt.ChunkPosition) error {
	key := util.ChunkKey(pos)

	s.cacheMutex.Lock()
	delete(s.deltaCache, key)
	delete(s.dirtyDeltas, key)
	s.cacheMutex.Unlock()

	return s.regionManager.DeleteChunkDelta(pos)
}

// ListChunks возвращает сохраненные чанки: из регионов и из несохраненного кеша
func (s *BinaryStorage) ListChunks(ctx context.Context) ([]wt.ChunkPosition, error) {
	stored, err := s.regionManager.ListChunks()
	if err != nil {
		return nil, err
	}

	seen := make(map[wt.ChunkPosition]bool, len(stored))
	out := make([]wt.ChunkPosition, 0, len(stored))
	for _, p := range stored {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	s.cacheMutex.RLock()
	for _, d := range s.deltaCache {
		if !seen[d.ChunkPos] {
			seen[d.ChunkPos] = true
			out = append(out, d.ChunkPos)
		}
	}
	s.cacheMutex.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out, nil
}

// SaveWorld сохраняет информацию о мире
func (s *BinaryStorage) SaveWorld(ctx context.Context, info *WorldInfo) error {
	s.infoMutex.Lock()
	defer s.infoMutex.Unlock()

	info.LastSaveAt = time.Now().Unix()
	if info.Version == "" {
		info.Version = FormatVersion
	}
	if err := saveJSONFile(filepath.Join(s.basePath, worldInfoFileName), info); err != nil {
		return fmt.Errorf("ошибка при сохранении информации о мире: %w", err)
	}
	s.worldInfo = info
	return nil
}

// LoadWorld загружает информацию о мире
func (s *BinaryStorage) LoadWorld(ctx context.Context) (*WorldInfo, error) {
	infoPath := filepath.Join(s.basePath, worldInfoFileName)

	var info WorldInfo
	err := loadJSONFile(infoPath, &info)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrWorldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка при загрузке информации о мире: %w", err)
	}
	return &info, nil
}

// SavePlayerState записывает состояние игрока в players/<id>.pstate
func (s *BinaryStorage) SavePlayerState(ctx context.Context, state *PlayerState) error {
	if state == nil {
		return nil
	}
	if err := validatePlayerID(state.ID); err != nil {
		return err
	}

	s.playersMutex.Lock()
	defer s.playersMutex.Unlock()

	path := filepath.Join(s.playersPath, playerFileName(state.ID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, MarshalPlayerState(state), 0o644); err != nil {
		return fmt.Errorf("ошибка записи состояния игрока %s: %w", state.ID, err)
	}
	return os.Rename(tmp, path)
}

// LoadPlayerState читает состояние игрока
func (s *BinaryStorage) LoadPlayerState(ctx context.Context, id string) (*PlayerState, error) {
	if err := validatePlayerID(id); err != nil {
		return nil, err
	}

	s.playersMutex.Lock()
	data, err := os.ReadFile(filepath.Join(s.playersPath, playerFileName(id)))
	s.playersMutex.Unlock()

	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}

	ps, err := UnmarshalPlayerState(data)
	if err != nil {
		return nil, fmt.Errorf("игрок %s: %w", id, err)
	}
	return ps, nil
}

// ListPlayers возвращает идентификаторы игроков, у которых есть сохранение
func (s *BinaryStorage) ListPlayers(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.playersPath)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".pstate") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".pstate"))
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveEntities записывает снимок сущностей
func (s *BinaryStorage) SaveEntities(ctx context.Context, snap *EntitySnapshot) error {
	if snap == nil {
		snap = NewEntitySnapshot()
	}
	snap.Version = EntitySnapshotVersion
	snap.SavedAt = time.Now().Unix()

	s.entityMutex.Lock()
	defer s.entityMutex.Unlock()
	return WriteEntitySnapshot(filepath.Join(s.basePath, entitiesFileName), snap)
}

// LoadEntities читает снимок сущностей
func (s *BinaryStorage) LoadEntities(ctx context.Context) (*EntitySnapshot, error) {
	s.entityMutex.Lock()
	defer s.entityMutex.Unlock()
	return ReadEntitySnapshot(filepath.Join(s.basePath, entitiesFileName))
}

// Flush синхронно записывает все грязные дельты в регионы
func (s *BinaryStorage) Flush(ctx context.Context) error {
	return s.saveAllDirtyDeltas(ctx)
}

// DirtyCount возвращает число несохраненных дельт
func (s *BinaryStorage) DirtyCount() int {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()
	return len(s.dirtyDeltas)
}

// CachedCount возвращает число дельт в кеше
func (s *BinaryStorage) CachedCount() int {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()
	return len(s.deltaCache)
}

// Close останавливает фоновые воркеры, сохраняет все и закрывает регионы
func (s *BinaryStorage) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()

		if err := s.saveAllDirtyDeltas(context.Background()); err != nil {
			retErr = err
		}

		s.cacheMutex.Lock()
		s.closed = true
		s.cacheMutex.Unlock()

		if s.worldInfo != nil {
			if err := s.SaveWorld(context.Background(), s.worldInfo); err != nil && retErr == nil {
				retErr = err
			}
		}

		if err := s.regionManager.Close(); err != nil && retErr == nil {
			retErr = err
		}
	})
	return retErr
}

// getDelta получает дельту чанка из кеша или хранилища
func (s *BinaryStorage) getDelta(pos wt.ChunkPosition) (*ChunkDelta, error) {
	key := util.ChunkKey(pos)

	s.cacheMutex.RLock()
	delta, exists := s.deltaCache[key]
	s.cacheMutex.RUnlock()

	if exists {
		delta.Touch()
		return delta, nil
	}

	delta, err := s.regionManager.GetChunkDelta(pos)
	if err != nil {
		return nil, err
	}

	s.cacheMutex.Lock()
	// Пока читали регион, дельту могли записать
	if cached, ok := s.deltaCache[key]; ok {
		delta = cached
	} else {
		s.deltaCache[key] = delta
	}
	s.cacheMutex.Unlock()

	delta.Touch()
	return delta, nil
}

// queueForSaving добавляет чанк в очередь на сохранение
func (s *BinaryStorage) queueForSaving(pos wt.ChunkPosition) {
	select {
	case s.saveQueue <- pos:
	default:
		// Будет сохранено при Flush или Close
		s.logger.Debugw("Очередь сохранения заполнена", "chunk", pos.Key())
	}
}

// saveWorker обрабатывает очередь сохранения
func (s *BinaryStorage) saveWorker() {
	defer s.wg.Done()
	for {
		select {
		case pos := <-s.saveQueue:
			s.saveDelta(pos)
		case <-s.stopChan:
			return
		}
	}
}

// saveDelta сохраняет дельту в региональное хранилище
func (s *BinaryStorage) saveDelta(pos wt.ChunkPosition) {
	key := util.ChunkKey(pos)

	s.cacheMutex.RLock()
	delta, exists := s.deltaCache[key]
	markedAt, dirty := s.dirtyDeltas[key]
	s.cacheMutex.RUnlock()

	if !exists || !dirty {
		return
	}

	if err := s.regionManager.SaveChunkDelta(delta); err != nil {
		s.logger.Errorw("Ошибка при сохранении дельты чанка", "chunk", pos.Key(), "error", err)
		return
	}

	s.cacheMutex.Lock()
	// Если за время записи дельту поменяли снова, она остается грязной
	if t, ok := s.dirtyDeltas[key]; ok && t.Equal(markedAt) {
		delete(s.dirtyDeltas, key)
	}
	s.cacheMutex.Unlock()
}

// saveAllDirtyDeltas сохраняет все измененные дельты
func (s *BinaryStorage) saveAllDirtyDeltas(ctx context.Context) error {
	s.cacheMutex.RLock()
	dirtyKeys := make([]string, 0, len(s.dirtyDeltas))
	for k := range s.dirtyDeltas {
		dirtyKeys = append(dirtyKeys, k)
	}
	s.cacheMutex.RUnlock()

	var firstErr error
	for _, key := range dirtyKeys {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.cacheMutex.RLock()
		delta, exists := s.deltaCache[key]
		markedAt := s.dirtyDeltas[key]
		s.cacheMutex.RUnlock()
		if !exists {
			continue
		}

		if err := s.regionManager.SaveChunkDelta(delta); err != nil {
			s.logger.Errorw("Ошибка при сохранении дельты чанка", "chunk", key, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		s.cacheMutex.Lock()
		if t, ok := s.dirtyDeltas[key]; ok && t.Equal(markedAt) {
			delete(s.dirtyDeltas, key)
		}
		s.cacheMutex.Unlock()
	}
	return firstErr
}

// cleanupWorker периодически очищает неиспользуемые дельты из кеша
func (s *BinaryStorage) cleanupWorker() {
	defer s.wg.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupUnusedDeltas()
		case <-s.stopChan:
			return
		}
	}
}

// cleanupUnusedDeltas удаляет из переполненного кеша давно не использованные чистые дельты
func (s *BinaryStorage) cleanupUnusedDeltas() {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if len(s.deltaCache) <= MaxDeltaCacheSize {
		return
	}

	type deltaWithTime struct {
		key   string
		at    time.Time
		dirty bool
	}

	deltas := make([]deltaWithTime, 0, len(s.deltaCache))
	for k, d := range s.deltaCache {
		_, isDirty := s.dirtyDeltas[k]
		deltas = append(deltas, deltaWithTime{k, d.AccessTime, isDirty})
	}

	// Грязные в конец, чтобы не удалились
	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].dirty != deltas[j].dirty {
			return !deltas[i].dirty
		}
		return deltas[i].at.Before(deltas[j].at)
	})

	removed := 0
	for _, item := range deltas {
		if removed >= DeltaCacheCleanupBatch || item.dirty {
			break
		}
		delete(s.deltaCache, item.key)
		removed++
	}

	if removed > 0 {
		s.logger.Debugw("Удалены устаревшие дельты из кеша", "count", removed)
	}
}

func validatePlayerID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("некорректный идентификатор игрока %q", id)
	}
	return nil
}

// Вспомогательные функции для работы с JSON
func saveJSONFile(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadJSONFile(path string, data interface{}) error {
	fileData, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(fileData, data)
}
