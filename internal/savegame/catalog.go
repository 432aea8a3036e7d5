package savegame

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/annelo/tileworld/internal/storage"
	"github.com/annelo/tileworld/internal/worldgen"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// CatalogFileName - индекс миров в корне каталога
const CatalogFileName = "catalog.db"

// BackupSuffix - суффикс резервной копии save.json
const BackupSuffix = ".backup"

// spawnSearchRadius - радиус поиска точки появления в чанках
const spawnSearchRadius = 16

var (
	ErrInvalidName = errors.New("недопустимое имя мира")
	ErrWorldExists = errors.New("мир уже существует")
	ErrNoSuchWorld = errors.New("мир не найден")
)

// Entry - запись каталога
type Entry struct {
	Name       string    `json:"name"`
	Seed       int64     `json:"seed"`
	CreatedAt  time.Time `json:"created_at"`
	LastPlayed time.Time `json:"last_played"`
}

// Catalog - каталог миров в корневой директории
type Catalog struct {
	root   string
	db     *sql.DB
	mu     sync.Mutex
	now    func() time.Time
	logger *zap.SugaredLogger
}

// CatalogOption - опция каталога
type CatalogOption func(*Catalog)

// WithLogger задает логгер
func WithLogger(logger *zap.SugaredLogger) CatalogOption {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) CatalogOption {
	return func(c *Catalog) {
		c.now = now
	}
}

// Open открывает каталог в root и применяет миграции индекса
func Open(root string, opts ...CatalogOption) (*Catalog, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог сохранений: %w", err)
	}
	c := &Catalog{
		root:   root,
		now:    time.Now,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}

	dbPath := filepath.Join(root, CatalogFileName)
	if err := runMigrations(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть индекс каталога: %w", err)
	}
	db.SetMaxOpenConns(1)
	c.db = db
	return c, nil
}

// runMigrations применяет встроенные миграции. Драйвер миграций закрывает свое соединение сам.
func runMigrations(dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("не удалось открыть индекс каталога: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("ошибка драйвера миграций: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("ошибка источника миграций: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("ошибка создания миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}
	return nil
}

// Close закрывает индекс
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Root возвращает корневую директорию каталога
func (c *Catalog) Root() string {
	return c.root
}

// ValidateName проверяет имя мира
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: пустое имя", ErrInvalidName)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, os.PathSeparator):
		return fmt.Errorf("%w: %q содержит разделитель пути", ErrInvalidName, name)
	case strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q содержит \"..\"", ErrInvalidName, name)
	}
	return nil
}

// Path возвращает директорию мира
func (c *Catalog) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(c.root, name), nil
}

// SaveFile возвращает путь к save.json мира
func (c *Catalog) SaveFile(name string) (string, error) {
	dir, err := c.Path(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SaveFileName), nil
}

// Exists сообщает, есть ли мир на диске
func (c *Catalog) Exists(name string) bool {
	dir, err := c.Path(name)
	if err != nil {
		return false
	}
	st, err := os.Stat(dir)
	return err == nil && st.IsDir()
}

// List возвращает миры, начиная с последнего запущенного.
// Директории с сохранениями, которых нет в индексе, добавляются в него.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.discover(ctx); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT name, seed, created_at, last_played FROM worlds ORDER BY last_played DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                   Entry
			created, lastPlayed int64
		)
		if err := rows.Scan(&e.Name, &e.Seed, &created, &lastPlayed); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(created)
		e.LastPlayed = time.UnixMilli(lastPlayed)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// discover индексирует директории миров и убирает из индекса удаленные вручную
func (c *Catalog) discover(ctx context.Context) error {
	dirs, err := os.ReadDir(c.root)
	if err != nil {
		return fmt.Errorf("ошибка чтения каталога сохранений: %w", err)
	}

	known := make(map[string]bool)
	rows, err := c.db.QueryContext(ctx, `SELECT name FROM worlds`)
	if err != nil {
		return fmt.Errorf("ошибка чтения каталога: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		known[name] = false
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range dirs {
		if !d.IsDir() || ValidateName(d.Name()) != nil {
			continue
		}
		if _, ok := known[d.Name()]; ok {
			known[d.Name()] = true
			continue
		}
		seed, ok := probeSeed(filepath.Join(c.root, d.Name()))
		if !ok {
			continue
		}
		modified := c.now()
		if info, err := d.Info(); err == nil {
			modified = info.ModTime()
		}
		if err := c.insert(ctx, d.Name(), seed, modified); err != nil {
			return err
		}
		c.logger.Infow("Найден мир вне каталога", "world", d.Name(), "seed", seed)
	}

	for name, present := range known {
		if present {
			continue
		}
		if _, err := c.db.ExecContext(ctx, `DELETE FROM worlds WHERE name = ?`, name); err != nil {
			return err
		}
		c.logger.Infow("Мир исчез с диска, запись удалена", "world", name)
	}
	return nil
}

// probeSeed читает сид из любого известного файла мира
func probeSeed(dir string) (int64, bool) {
	if data, err := os.ReadFile(filepath.Join(dir, "world_info.json")); err == nil {
		var info storage.WorldInfo
		if json.Unmarshal(data, &info) == nil {
			return info.Seed, true
		}
	}
	if gs, err := ReadJSON(filepath.Join(dir, SaveFileName)); err == nil {
		return SeedFromString(gs.WorldState.Seed), true
	}
	if data, err := os.ReadFile(filepath.Join(dir, LegacyFileName)); err == nil {
		if gs, err := ParseLegacyLevel(data); err == nil {
			return SeedFromString(gs.WorldState.Seed), true
		}
	}
	return 0, false
}

func (c *Catalog) insert(ctx context.Context, name string, seed int64, at time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO worlds (name, seed, created_at, last_played) VALUES (?, ?, ?, ?)`,
		name, seed, at.UnixMilli(), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("ошибка записи в каталог: %w", err)
	}
	return nil
}

// Get возвращает запись мира
func (c *Catalog) Get(ctx context.Context, name string) (Entry, error) {
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}
	var (
		e                   Entry
		created, lastPlayed int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT name, seed, created_at, last_played FROM worlds WHERE name = ?`, name).
		Scan(&e.Name, &e.Seed, &created, &lastPlayed)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNoSuchWorld, name)
	}
	if err != nil {
		return Entry{}, err
	}
	e.CreatedAt = time.UnixMilli(created)
	e.LastPlayed = time.UnixMilli(lastPlayed)
	return e, nil
}

// Create создает новый мир: ищет точку появления, пишет world_info и начальный save.json
func (c *Catalog) Create(ctx context.Context, name string, seed int64) (Entry, error) {
	dir, err := c.Path(name)
	if err != nil {
		return Entry{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(dir); err == nil {
		return Entry{}, fmt.Errorf("%w: %s", ErrWorldExists, name)
	}

	spawn, err := worldgen.NewGenerator(seed).FindSpawn(ctx, spawnSearchRadius)
	if err != nil {
		return Entry{}, fmt.Errorf("ошибка поиска точки появления: %w", err)
	}

	store, err := storage.NewBinaryStorage(dir, name, seed, storage.WithLogger(c.logger.Named("storage")))
	if err != nil {
		return Entry{}, err
	}
	info, err := store.LoadWorld(ctx)
	if err != nil {
		store.Close()
		return Entry{}, err
	}
	info.Spawn = spawn
	info.SpawnSet = true
	if err := store.SaveWorld(ctx, info); err != nil {
		store.Close()
		return Entry{}, err
	}
	if err := store.Close(); err != nil {
		return Entry{}, err
	}

	gs := Build(info, nil, storage.NewEntitySnapshot(), nil)
	if err := ExportJSON(filepath.Join(dir, SaveFileName), gs); err != nil {
		return Entry{}, err
	}

	now := c.now()
	if err := c.insert(ctx, name, seed, now); err != nil {
		return Entry{}, err
	}
	c.logger.Infow("Создан мир", "world", name, "seed", seed, "spawn", spawn)
	return Entry{Name: name, Seed: seed, CreatedAt: time.UnixMilli(now.UnixMilli()), LastPlayed: time.UnixMilli(now.UnixMilli())}, nil
}

// Delete удаляет директорию мира и запись каталога
func (c *Catalog) Delete(ctx context.Context, name string) error {
	dir, err := c.Path(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM worlds WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if _, statErr := os.Stat(dir); statErr != nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchWorld, name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("ошибка удаления мира: %w", err)
	}
	c.logger.Infow("Мир удален", "world", name)
	return nil
}

// Touch отмечает время последнего запуска мира
func (c *Catalog) Touch(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx, `UPDATE worlds SET last_played = ? WHERE name = ?`, c.now().UnixMilli(), name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchWorld, name)
	}
	return nil
}

// Backup копирует save.json мира в save.json.backup
func (c *Catalog) Backup(name string) error {
	path, err := c.SaveFile(name)
	if err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("нечего копировать: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(path + BackupSuffix)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// OpenStorage открывает бинарное хранилище мира, создавая запись каталога при необходимости.
// Мир, у которого есть только save.json или level.save, сначала импортируется.
func (c *Catalog) OpenStorage(ctx context.Context, name string, seed int64) (*storage.BinaryStorage, error) {
	dir, err := c.Path(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.Get(ctx, name)
	switch {
	case err == nil:
		seed = entry.Seed
	case errors.Is(err, ErrNoSuchWorld):
		if probed, ok := probeSeed(dir); ok {
			seed = probed
		}
		if err := c.insert(ctx, name, seed, c.now()); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	_, infoErr := os.Stat(filepath.Join(dir, "world_info.json"))
	pending, err := c.pendingImport(dir)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewBinaryStorage(dir, name, seed, storage.WithLogger(c.logger.Named("storage")))
	if err != nil {
		return nil, err
	}
	if infoErr != nil && pending != nil {
		if pending.WorldName == "" {
			pending.WorldName = name
		}
		if err := ImportJSON(ctx, pending, store, ""); err != nil {
			store.Close()
			return nil, fmt.Errorf("ошибка импорта сохранения: %w", err)
		}
		c.logger.Infow("Сохранение импортировано в бинарное хранилище", "world", name)
	}
	if _, err := c.db.ExecContext(ctx, `UPDATE worlds SET last_played = ? WHERE name = ?`, c.now().UnixMilli(), name); err != nil {
		c.logger.Warnw("Не удалось обновить время запуска", "world", name, "error", err)
	}
	return store, nil
}

// pendingImport возвращает переносимое сохранение директории, если оно есть
func (c *Catalog) pendingImport(dir string) (*GameSave, error) {
	gs, err := ReadJSON(filepath.Join(dir, SaveFileName))
	if err == nil {
		return gs, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, LegacyFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseLegacyLevel(data)
}

// Export записывает снимок мира в его save.json
func (c *Catalog) Export(name string, gs *GameSave) error {
	path, err := c.SaveFile(name)
	if err != nil {
		return err
	}
	return ExportJSON(path, gs)
}
