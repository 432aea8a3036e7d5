package chunkmanager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/annelo/tileworld/internal/storage"
	"github.com/annelo/tileworld/internal/worldgen"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

var (
	// ErrChunkNotLoaded - чанк отсутствует в кеше
	ErrChunkNotLoaded = errors.New("чанк не загружен")
	// ErrOccupied - в клетке уже есть объект или покрытие
	ErrOccupied = errors.New("клетка занята")
	// ErrInvalidPlacement - тайл нельзя поставить в эту клетку
	ErrInvalidPlacement = errors.New("недопустимое размещение")
	// ErrNothingToRemove - в клетке нет того, что нужно убрать
	ErrNothingToRemove = errors.New("в клетке нечего убирать")
)

// Config - параметры кеша и окна загрузки
type Config struct {
	RenderX         int32         // Радиус окна загрузки по X, в чанках
	RenderY         int32         // Радиус окна загрузки по Y, в чанках
	UnloadDistance  int32         // Расстояние, после которого чанк исключается из загруженных
	MaxCachedChunks int           // Порог, после которого начинается вытеснение
	EvictAfter      time.Duration // Минимальное время без доступа перед вытеснением
	Debug           bool          // В отладочном режиме порог удваивается
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		RenderX:         2,
		RenderY:         2,
		UnloadDistance:  8,
		MaxCachedChunks: 50,
		EvictAfter:      5 * time.Minute,
	}
}

// ChunkManager управляет чанками игрового мира: кеш, загрузка вокруг игроков, вытеснение и сохранение
type ChunkManager struct {
	mu       sync.RWMutex
	chunks   map[wt.ChunkPosition]*wt.Chunk
	loaded   map[wt.ChunkPosition]bool      // Чанки в окне загрузки игроков
	access   map[wt.ChunkPosition]time.Time // Время последнего доступа
	modified map[wt.ChunkPosition]bool      // Чанки, измененные игроками
	dirty    map[wt.ChunkPosition]bool      // Несохраненные изменения

	gen     *worldgen.Generator
	storage storage.WorldStorage
	cfg     Config
	logger  *zap.SugaredLogger
	now     func() time.Time

	onGenerate func(*wt.Chunk)
	onSave     func(wt.ChunkPosition)

	generated     int
	fromStorage   int
	evicted       int
	saved         int
	lastSaveError error
}

// Option настраивает ChunkManager
type Option func(*ChunkManager)

// WithStorage подключает хранилище
func WithStorage(s storage.WorldStorage) Option {
	return func(cm *ChunkManager) { cm.storage = s }
}

// WithLogger задает логгер
func WithLogger(l *zap.SugaredLogger) Option {
	return func(cm *ChunkManager) {
		if l != nil {
			cm.logger = l
		}
	}
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(cm *ChunkManager) { cm.now = now }
}

// WithGenerateHook вызывает fn для каждого впервые сгенерированного чанка
func WithGenerateHook(fn func(*wt.Chunk)) Option {
	return func(cm *ChunkManager) { cm.onGenerate = fn }
}

// WithSaveHook вызывает fn после записи чанка в хранилище
func WithSaveHook(fn func(wt.ChunkPosition)) Option {
	return func(cm *ChunkManager) { cm.onSave = fn }
}

// New создает менеджер чанков
func New(gen *worldgen.Generator, cfg Config, opts ...Option) *ChunkManager {
	cm := &ChunkManager{
		chunks:   make(map[wt.ChunkPosition]*wt.Chunk),
		loaded:   make(map[wt.ChunkPosition]bool),
		access:   make(map[wt.ChunkPosition]time.Time),
		modified: make(map[wt.ChunkPosition]bool),
		dirty:    make(map[wt.ChunkPosition]bool),
		gen:      gen,
		cfg:      cfg,
		logger:   zap.NewNop().Sugar(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(cm)
	}
	return cm
}

// Generator возвращает генератор мира
func (cm *ChunkManager) Generator() *worldgen.Generator {
	return cm.gen
}

// Config возвращает параметры менеджера
func (cm *ChunkManager) Config() Config {
	return cm.cfg
}

// HasStorage возвращает true, если хранилище подключено
func (cm *ChunkManager) HasStorage() bool {
	return cm.storage != nil
}

// ensure возвращает чанк из кеша, загружая или генерируя его при необходимости
func (cm *ChunkManager) ensure(ctx context.Context, pos wt.ChunkPosition) (*wt.Chunk, bool, error) {
	cm.mu.RLock()
	chunk, ok := cm.chunks[pos]
	cm.mu.RUnlock()
	if ok {
		cm.mu.Lock()
		cm.access[pos] = cm.now()
		cm.mu.Unlock()
		return chunk, false, nil
	}

	base := cm.gen.GenerateChunk(pos)
	fresh := true
	chunk = base

	if cm.storage != nil {
		delta, err := cm.storage.LoadChunk(ctx, pos)
		var notFound storage.ErrChunkNotFound
		switch {
		case err == nil:
			chunk = delta.Apply(base)
			fresh = false
		case errors.As(err, &notFound):
		default:
			return nil, false, fmt.Errorf("ошибка при загрузке чанка %v: %w", pos, err)
		}
	}

	cm.mu.Lock()
	// Пока генерировали, чанк могла создать другая горутина
	if existing, ok := cm.chunks[pos]; ok {
		cm.access[pos] = cm.now()
		cm.mu.Unlock()
		return existing, false, nil
	}
	cm.chunks[pos] = chunk
	cm.access[pos] = cm.now()
	if fresh {
		cm.generated++
	} else {
		cm.fromStorage++
	}
	cm.mu.Unlock()

	if fresh && cm.onGenerate != nil {
		cm.onGenerate(chunk.Clone())
	}
	return chunk, true, nil
}

// GetOrGenerate возвращает копию чанка: из кеша, из хранилища или сгенерированную заново
func (cm *ChunkManager) GetOrGenerate(ctx context.Context, pos wt.ChunkPosition) (*wt.Chunk, error) {
	chunk, _, err := cm.ensure(ctx, pos)
	if err != nil {
		return nil, err
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return chunk.Clone(), nil
}

// Chunk возвращает копию закешированного чанка
func (cm *ChunkManager) Chunk(pos wt.ChunkPosition) (*wt.Chunk, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	c, ok := cm.chunks[pos]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Window возвращает позиции чанков окна загрузки вокруг центра:
// [-RenderX-1, RenderX] x [-RenderY-1, RenderY]
func (cm *ChunkManager) Window(center wt.ChunkPosition) []wt.ChunkPosition {
	out := make([]wt.ChunkPosition, 0, (2*cm.cfg.RenderX+2)*(2*cm.cfg.RenderY+2))
	for y := center.Y - cm.cfg.RenderY - 1; y <= center.Y+cm.cfg.RenderY; y++ {
		for x := center.X - cm.cfg.RenderX - 1; x <= center.X+cm.cfg.RenderX; x++ {
			out = append(out, wt.ChunkPosition{X: x, Y: y})
		}
	}
	return out
}

// InWindow сообщает, попадает ли чанк в окно загрузки вокруг центра
func (cm *ChunkManager) InWindow(center, pos wt.ChunkPosition) bool {
	return pos.X >= center.X-cm.cfg.RenderX-1 && pos.X <= center.X+cm.cfg.RenderX &&
		pos.Y >= center.Y-cm.cfg.RenderY-1 && pos.Y <= center.Y+cm.cfg.RenderY
}

// ReloadAround загружает все чанки в окнах вокруг центров и выгружает загруженные чанки вне окон.
// Возвращает новые загруженные и выгруженные позиции.
func (cm *ChunkManager) ReloadAround(ctx context.Context, centers ...wt.ChunkPosition) (loaded, unloaded []wt.ChunkPosition, err error) {
	want := make(map[wt.ChunkPosition]bool)
	for _, c := range centers {
		for _, p := range cm.Window(c) {
			want[p] = true
		}
	}

	for p := range want {
		if err := ctx.Err(); err != nil {
			return loaded, unloaded, err
		}
		if _, _, err := cm.ensure(ctx, p); err != nil {
			return loaded, unloaded, err
		}
		cm.mu.Lock()
		if !cm.loaded[p] {
			cm.loaded[p] = true
			loaded = append(loaded, p)
		}
		cm.mu.Unlock()
	}

	cm.mu.Lock()
	for p := range cm.loaded {
		if !want[p] {
			delete(cm.loaded, p)
			cm.access[p] = cm.now()
			unloaded = append(unloaded, p)
		}
	}
	cm.mu.Unlock()

	sortPositions(loaded)
	sortPositions(unloaded)
	return loaded, unloaded, nil
}

// CleanupDistant исключает из загруженных чанки дальше UnloadDistance от всех центров.
// Данные чанков остаются в кеше.
func (cm *ChunkManager) CleanupDistant(centers ...wt.ChunkPosition) []wt.ChunkPosition {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var dropped []wt.ChunkPosition
	for p := range cm.loaded {
		far := true
		for _, c := range centers {
			if p.Distance(c) <= cm.cfg.UnloadDistance {
				far = false
				break
			}
		}
		if far {
			delete(cm.loaded, p)
			cm.access[p] = cm.now()
			dropped = append(dropped, p)
		}
	}
	sortPositions(dropped)
	return dropped
}

// ManageMemory вытесняет старые незагруженные и неизмененные чанки, если кеш переполнен.
// Возвращает число вытесненных чанков.
func (cm *ChunkManager) ManageMemory(ctx context.Context) int {
	limit := cm.cfg.MaxCachedChunks
	if cm.cfg.Debug {
		limit *= 2
	}

	cm.mu.RLock()
	count := len(cm.chunks)
	if count <= limit {
		cm.mu.RUnlock()
		return 0
	}

	now := cm.now()
	type candidate struct {
		pos wt.ChunkPosition
		at  time.Time
	}
	var candidates []candidate
	for p := range cm.chunks {
		if cm.loaded[p] || cm.modified[p] {
			continue
		}
		at := cm.access[p]
		if now.Sub(at) < cm.cfg.EvictAfter {
			continue
		}
		candidates = append(candidates, candidate{p, at})
	}
	cm.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].at.Before(candidates[j].at) })
	if excess := count - limit; len(candidates) > excess {
		candidates = candidates[:excess]
	}

	evicted := 0
	for _, c := range candidates {
		if cm.isDirty(c.pos) {
			if err := cm.saveChunk(ctx, c.pos); err != nil {
				cm.logger.Warnw("Не удалось сохранить чанк перед вытеснением", "chunk", c.pos.Key(), "error", err)
				continue
			}
		}
		cm.mu.Lock()
		if !cm.loaded[c.pos] && !cm.modified[c.pos] {
			delete(cm.chunks, c.pos)
			delete(cm.access, c.pos)
			evicted++
		}
		cm.mu.Unlock()
	}

	if evicted > 0 {
		cm.mu.Lock()
		cm.evicted += evicted
		cm.mu.Unlock()
		cm.logger.Debugw("Вытеснены чанки из кеша", "count", evicted)
	}
	return evicted
}

// Cell возвращает клетку по мировым координатам тайла
func (cm *ChunkManager) Cell(tile wt.TilePosition) (wt.Cell, error) {
	pos := tile.Chunk()
	lx, ly := tile.Local()

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	chunk, ok := cm.chunks[pos]
	if !ok {
		return wt.Cell{}, fmt.Errorf("%w: %v", ErrChunkNotLoaded, pos)
	}
	return chunk.At(lx, ly), nil
}

// SetCell записывает клетку и помечает чанк измененным
func (cm *ChunkManager) SetCell(tile wt.TilePosition, cell wt.Cell) error {
	return cm.update(tile, func(c *wt.Cell) error {
		*c = cell
		return nil
	})
}

// update изменяет клетку под блокировкой
func (cm *ChunkManager) update(tile wt.TilePosition, fn func(*wt.Cell) error) error {
	pos := tile.Chunk()
	lx, ly := tile.Local()

	cm.mu.Lock()
	defer cm.mu.Unlock()
	chunk, ok := cm.chunks[pos]
	if !ok {
		return fmt.Errorf("%w: %v", ErrChunkNotLoaded, pos)
	}

	cell := chunk.At(lx, ly)
	before := cell
	if err := fn(&cell); err != nil {
		return err
	}
	if cell == before {
		return nil
	}
	chunk.Set(lx, ly, cell)
	chunk.Version++
	cm.modified[pos] = true
	cm.dirty[pos] = true
	cm.access[pos] = cm.now()
	return nil
}

// PlaceObject ставит объект на клетку без объекта и не на воду
func (cm *ChunkManager) PlaceObject(tile wt.TilePosition, id wt.TileID) error {
	if id.Layer() != wt.LayerObject {
		return fmt.Errorf("%w: %s не объект", ErrInvalidPlacement, id)
	}
	return cm.update(tile, func(c *wt.Cell) error {
		if c.Object != wt.TileNone {
			return ErrOccupied
		}
		if c.Ground == wt.TileWater || c.Ground == wt.TileNone {
			return ErrInvalidPlacement
		}
		c.Object = id
		c.Damage = 0
		return nil
	})
}

// RemoveObject убирает объект и возвращает его
func (cm *ChunkManager) RemoveObject(tile wt.TilePosition) (wt.TileID, error) {
	var removed wt.TileID
	err := cm.update(tile, func(c *wt.Cell) error {
		if c.Object == wt.TileNone {
			return ErrNothingToRemove
		}
		removed = c.Object
		c.Object = wt.TileNone
		c.Damage = 0
		return nil
	})
	return removed, err
}

// PlaceOverlay кладет покрытие (факел, спальник) под будущие объекты
func (cm *ChunkManager) PlaceOverlay(tile wt.TilePosition, id wt.TileID) error {
	if id.Layer() != wt.LayerOverlay {
		return fmt.Errorf("%w: %s не покрытие", ErrInvalidPlacement, id)
	}
	return cm.update(tile, func(c *wt.Cell) error {
		if c.Object != wt.TileNone || c.Overlay != wt.TileNone {
			return ErrOccupied
		}
		if c.Ground == wt.TileWater || c.Ground == wt.TileNone {
			return ErrInvalidPlacement
		}
		c.Overlay = id
		return nil
	})
}

// RemoveOverlay убирает покрытие и возвращает его
func (cm *ChunkManager) RemoveOverlay(tile wt.TilePosition) (wt.TileID, error) {
	var removed wt.TileID
	err := cm.update(tile, func(c *wt.Cell) error {
		if c.Overlay == wt.TileNone {
			return ErrNothingToRemove
		}
		removed = c.Overlay
		c.Overlay = wt.TileNone
		return nil
	})
	return removed, err
}

// DamageObject добавляет урон объекту. Когда урон достигает health, объект убирается.
// Возвращает тайл объекта и признак разрушения.
func (cm *ChunkManager) DamageObject(tile wt.TilePosition, amount, health int) (wt.TileID, bool, error) {
	var (
		id     wt.TileID
		broken bool
	)
	err := cm.update(tile, func(c *wt.Cell) error {
		if c.Object == wt.TileNone {
			return ErrNothingToRemove
		}
		id = c.Object
		total := int(c.Damage) + amount
		if total >= health {
			c.Object = wt.TileNone
			c.Damage = 0
			broken = true
			return nil
		}
		c.Damage = uint8(total)
		return nil
	})
	return id, broken, err
}

// GroundAt возвращает то, что видно как земля: покрытие, если оно есть
func (cm *ChunkManager) GroundAt(tile wt.TilePosition) (wt.TileID, error) {
	c, err := cm.Cell(tile)
	if err != nil {
		return wt.TileNone, err
	}
	return c.GroundTop(), nil
}

// Walkable сообщает, проходима ли клетка. Незагруженные клетки непроходимы.
func (cm *ChunkManager) Walkable(tile wt.TilePosition) bool {
	c, err := cm.Cell(tile)
	return err == nil && c.Walkable()
}

// WalkGrid возвращает сетку проходимости окна загрузки [y][x] и мировые координаты ее левого верхнего тайла.
// 1 - проходимо, 0 - нет.
func (cm *ChunkManager) WalkGrid(center wt.ChunkPosition) ([][]uint8, wt.TilePosition) {
	originChunk := wt.ChunkPosition{X: center.X - cm.cfg.RenderX - 1, Y: center.Y - cm.cfg.RenderY - 1}
	origin := originChunk.Origin()
	w := int(2*cm.cfg.RenderX+2) * wt.ChunkSize
	h := int(2*cm.cfg.RenderY+2) * wt.ChunkSize

	grid := make([][]uint8, h)
	for i := range grid {
		grid[i] = make([]uint8, w)
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for cy := int32(0); cy < 2*cm.cfg.RenderY+2; cy++ {
		for cx := int32(0); cx < 2*cm.cfg.RenderX+2; cx++ {
			chunk, ok := cm.chunks[wt.ChunkPosition{X: originChunk.X + cx, Y: originChunk.Y + cy}]
			if !ok {
				continue
			}
			for ly := 0; ly < wt.ChunkSize; ly++ {
				for lx := 0; lx < wt.ChunkSize; lx++ {
					if chunk.At(lx, ly).Walkable() {
						grid[int(cy)*wt.ChunkSize+ly][int(cx)*wt.ChunkSize+lx] = 1
					}
				}
			}
		}
	}
	return grid, origin
}

// MarkDirty помечает чанк как требующий сохранения
func (cm *ChunkManager) MarkDirty(pos wt.ChunkPosition) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.chunks[pos]; ok {
		cm.dirty[pos] = true
	}
}

func (cm *ChunkManager) isDirty(pos wt.ChunkPosition) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.dirty[pos]
}

// saveChunk записывает дельту чанка относительно сгенерированного
func (cm *ChunkManager) saveChunk(ctx context.Context, pos wt.ChunkPosition) error {
	if cm.storage == nil {
		return nil
	}

	cm.mu.RLock()
	chunk, ok := cm.chunks[pos]
	if ok {
		chunk = chunk.Clone()
	}
	cm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %v", ErrChunkNotLoaded, pos)
	}

	delta := storage.DiffChunks(cm.gen.GenerateChunk(pos), chunk)
	if err := cm.storage.SaveChunk(ctx, delta); err != nil {
		return err
	}

	cm.mu.Lock()
	// Чанк могли изменить во время записи
	if current, ok := cm.chunks[pos]; ok && current.Version == chunk.Version {
		delete(cm.dirty, pos)
	}
	cm.saved++
	cm.mu.Unlock()

	if cm.onSave != nil {
		cm.onSave(pos)
	}
	return nil
}

// SaveDirty сохраняет все измененные чанки. Возвращает число сохраненных.
func (cm *ChunkManager) SaveDirty(ctx context.Context) (int, error) {
	if cm.storage == nil {
		return 0, nil
	}

	cm.mu.RLock()
	positions := make([]wt.ChunkPosition, 0, len(cm.dirty))
	for p := range cm.dirty {
		positions = append(positions, p)
	}
	cm.mu.RUnlock()
	sortPositions(positions)

	saved := 0
	var firstErr error
	for _, p := range positions {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		if err := cm.saveChunk(ctx, p); err != nil {
			cm.logger.Errorw("Ошибка при сохранении чанка", "chunk", p.Key(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		saved++
	}

	cm.mu.Lock()
	cm.lastSaveError = firstErr
	cm.mu.Unlock()
	return saved, firstErr
}

// StartPeriodicSaving периодически сохраняет измененные чанки до отмены контекста
func (cm *ChunkManager) StartPeriodicSaving(ctx context.Context, interval time.Duration) {
	if cm.storage == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n, err := cm.SaveDirty(ctx); err == nil && n > 0 {
					cm.logger.Debugw("Периодическое сохранение чанков", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StartCleanupRoutine периодически исключает дальние чанки и вытесняет старые из кеша.
// centers возвращает текущие чанки игроков.
func (cm *ChunkManager) StartCleanupRoutine(ctx context.Context, interval time.Duration, centers func() []wt.ChunkPosition) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if cs := centers(); len(cs) > 0 {
					cm.CleanupDistant(cs...)
				}
				cm.ManageMemory(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// LoadedChunks возвращает загруженные чанки
func (cm *ChunkManager) LoadedChunks() []wt.ChunkPosition {
	cm.mu.RLock()
	out := make([]wt.ChunkPosition, 0, len(cm.loaded))
	for p := range cm.loaded {
		out = append(out, p)
	}
	cm.mu.RUnlock()
	sortPositions(out)
	return out
}

// ModifiedChunks возвращает все измененные игроками чанки, включая выгруженные из окна
func (cm *ChunkManager) ModifiedChunks() []wt.ChunkPosition {
	cm.mu.RLock()
	out := make([]wt.ChunkPosition, 0, len(cm.modified))
	for p := range cm.modified {
		out = append(out, p)
	}
	cm.mu.RUnlock()
	sortPositions(out)
	return out
}

// IsLoaded сообщает, находится ли чанк в окне загрузки
func (cm *ChunkManager) IsLoaded(pos wt.ChunkPosition) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.loaded[pos]
}

// IsModified сообщает, менялся ли чанк игроками
func (cm *ChunkManager) IsModified(pos wt.ChunkPosition) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.modified[pos]
}

// CachedCount возвращает число чанков в кеше
func (cm *ChunkManager) CachedCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.chunks)
}

// Stats возвращает статистику менеджера и кешей шума
func (cm *ChunkManager) Stats() map[string]interface{} {
	cm.mu.RLock()
	stats := map[string]interface{}{
		"cached":       len(cm.chunks),
		"loaded":       len(cm.loaded),
		"modified":     len(cm.modified),
		"dirty":        len(cm.dirty),
		"generated":    cm.generated,
		"from_storage": cm.fromStorage,
		"evicted":      cm.evicted,
		"saved":        cm.saved,
	}
	if cm.lastSaveError != nil {
		stats["last_save_error"] = cm.lastSaveError.Error()
	}
	cm.mu.RUnlock()

	stats["noise"] = cm.gen.Noise().GetCacheStats()
	return stats
}

func sortPositions(ps []wt.ChunkPosition) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Y != ps[j].Y {
			return ps[i].Y < ps[j].Y
		}
		return ps[i].X < ps[j].X
	})
}
