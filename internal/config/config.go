// Package config собирает настройки сервера из значений по умолчанию, YAML-файла и переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annelo/tileworld/internal/world"
)

// EnvPrefix - префикс переменных окружения
const EnvPrefix = "TILEWORLD_"

// Config - настройки сервера
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	World    WorldConfig    `yaml:"world"`
	Storage  StorageConfig  `yaml:"storage"`
	Gameplay GameplayConfig `yaml:"gameplay"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	HTTPAddr        string        `yaml:"http_addr"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	PluginDir       string        `yaml:"plugin_dir"`
	// CORSOrigins - разрешенные источники для HTTP API
	CORSOrigins []string `yaml:"cors_origins"`
	Debug       bool     `yaml:"debug"`
}

type WorldConfig struct {
	Name string `yaml:"name"`
	// Seed - сид нового мира; 0 означает случайный
	Seed            int64 `yaml:"seed"`
	RenderX         int32 `yaml:"render_x"`
	RenderY         int32 `yaml:"render_y"`
	UnloadDistance  int32 `yaml:"unload_distance"`
	MaxCachedChunks int   `yaml:"max_cached_chunks"`
}

type StorageConfig struct {
	// SavesDir - корень каталога миров
	SavesDir         string        `yaml:"saves_dir"`
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
}

// GameplayConfig - игровые константы
type GameplayConfig struct {
	DayLength           int64   `yaml:"day_length_ms"`
	MinNightShade       int     `yaml:"min_night_shade"`
	PlayerHealth        int     `yaml:"player_health"`
	WalkSpeed           float64 `yaml:"walk_speed"`
	MobWalkSpeed        float64 `yaml:"mob_walk_speed"`
	MaxHostileMobs      int     `yaml:"max_hostile_mobs"`
	MaxFriendlyMobs     int     `yaml:"max_friendly_mobs"`
	MaxFloatingItems    int     `yaml:"max_floating_items"`
	ItemDespawnTime     int64   `yaml:"item_despawn_ms"`
	ItemCleanupInterval int64   `yaml:"item_cleanup_ms"`
	SmeltTime           int64   `yaml:"smelt_time_ms"`
	Reach               float64 `yaml:"reach"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// Development включает читаемый консольный формат
	Development  bool   `yaml:"development"`
	LogToFile    bool   `yaml:"log_to_file"`
	FilePath     string `yaml:"file_path"`
	MaxLogSizeMB int    `yaml:"max_log_size_mb"`
	MaxBackups   int    `yaml:"max_backups"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	OperatorNames []string      `yaml:"operator_names"`
}

// Default возвращает настройки по умолчанию
func Default() *Config {
	wc := world.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:            50051,
			HTTPAddr:        ":8080",
			TickInterval:    50 * time.Millisecond,
			ShutdownTimeout: 10 * time.Second,
			PluginDir:       "./plugins",
			CORSOrigins:     []string{"*"},
		},
		World: WorldConfig{
			Name:            "default",
			RenderX:         wc.Chunks.RenderX,
			RenderY:         wc.Chunks.RenderY,
			UnloadDistance:  wc.Chunks.UnloadDistance,
			MaxCachedChunks: wc.Chunks.MaxCachedChunks,
		},
		Storage: StorageConfig{
			SavesDir:         "./saves",
			AutosaveInterval: time.Duration(wc.Clock.SaveDelay) * time.Millisecond,
			CleanupInterval:  60 * time.Second,
		},
		Gameplay: GameplayConfig{
			DayLength:           wc.Clock.DayLength,
			MinNightShade:       wc.Clock.MinNightShade,
			PlayerHealth:        wc.PlayerHealth,
			WalkSpeed:           wc.Entity.WalkSpeed,
			MobWalkSpeed:        wc.Entity.MobWalkSpeed,
			MaxHostileMobs:      wc.Entity.MaxHostileMobs,
			MaxFriendlyMobs:     wc.Entity.MaxFriendlyMobs,
			MaxFloatingItems:    wc.Entity.MaxFloatingItems,
			ItemDespawnTime:     wc.Entity.ItemDespawnTime,
			ItemCleanupInterval: wc.ItemCleanupInterval,
			SmeltTime:           wc.SmeltTime.Milliseconds(),
			Reach:               wc.Reach,
		},
		Logging: LoggingConfig{
			Level:        "info",
			FilePath:     "logs/server.log",
			MaxLogSizeMB: 10,
			MaxBackups:   3,
		},
		Auth: AuthConfig{
			JWTSecret: "change-me",
			TokenTTL:  24 * time.Hour,
		},
	}
}

// Load собирает настройки: значения по умолчанию, затем файл (если путь задан), затем окружение
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile накладывает на настройки YAML-файл. Незаданные поля не меняются.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("не удалось прочитать конфигурацию %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("не удалось разобрать конфигурацию %s: %w", path, err)
	}
	return nil
}

// ApplyEnv накладывает переменные окружения TILEWORLD_*
func (c *Config) ApplyEnv() {
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Server.HTTPAddr = getEnvStr("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.TickInterval = getEnvDuration("TICK_INTERVAL", c.Server.TickInterval)
	c.Server.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.PluginDir = getEnvStr("PLUGIN_DIR", c.Server.PluginDir)
	c.Server.CORSOrigins = getEnvList("CORS_ORIGINS", c.Server.CORSOrigins)
	c.Server.Debug = getEnvBool("DEBUG", c.Server.Debug)

	c.World.Name = getEnvStr("WORLD", c.World.Name)
	c.World.Seed = getEnvInt64("SEED", c.World.Seed)
	c.World.MaxCachedChunks = getEnvInt("MAX_CACHED_CHUNKS", c.World.MaxCachedChunks)

	c.Storage.SavesDir = getEnvStr("SAVES_DIR", c.Storage.SavesDir)
	c.Storage.AutosaveInterval = getEnvDuration("AUTOSAVE_INTERVAL", c.Storage.AutosaveInterval)
	c.Storage.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", c.Storage.CleanupInterval)

	c.Logging.Level = getEnvStr("LOG_LEVEL", c.Logging.Level)
	c.Logging.Development = getEnvBool("LOG_DEVELOPMENT", c.Logging.Development)
	c.Logging.LogToFile = getEnvBool("LOG_TO_FILE", c.Logging.LogToFile)
	c.Logging.FilePath = getEnvStr("LOG_FILE", c.Logging.FilePath)

	c.Auth.JWTSecret = getEnvStr("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = getEnvDuration("TOKEN_TTL", c.Auth.TokenTTL)
	c.Auth.OperatorNames = getEnvList("OPERATORS", c.Auth.OperatorNames)
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("некорректный порт %d", c.Server.Port))
	}
	if c.Server.TickInterval <= 0 {
		errs = append(errs, errors.New("интервал тика должен быть положительным"))
	}
	if c.World.Name == "" {
		errs = append(errs, errors.New("не задано имя мира"))
	}
	if c.World.RenderX < 1 || c.World.RenderY < 1 {
		errs = append(errs, errors.New("радиус загрузки должен быть не меньше 1"))
	}
	if c.World.UnloadDistance <= c.World.RenderX || c.World.UnloadDistance <= c.World.RenderY {
		errs = append(errs, errors.New("дистанция выгрузки должна превышать радиус загрузки"))
	}
	if c.World.MaxCachedChunks <= 0 {
		errs = append(errs, errors.New("размер кеша чанков должен быть положительным"))
	}
	if c.Storage.SavesDir == "" {
		errs = append(errs, errors.New("не задан каталог сохранений"))
	}
	if c.Storage.AutosaveInterval <= 0 {
		errs = append(errs, errors.New("интервал автосохранения должен быть положительным"))
	}
	if c.Gameplay.DayLength <= 0 {
		errs = append(errs, errors.New("длина суток должна быть положительной"))
	}
	if c.Gameplay.MinNightShade < 0 || c.Gameplay.MinNightShade > 255 {
		errs = append(errs, fmt.Errorf("минимальная освещенность %d вне диапазона 0..255", c.Gameplay.MinNightShade))
	}
	if c.Gameplay.PlayerHealth <= 0 {
		errs = append(errs, errors.New("здоровье игрока должно быть положительным"))
	}
	if c.Logging.LogToFile && c.Logging.FilePath == "" {
		errs = append(errs, errors.New("не задан файл журнала"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("не задан секрет JWT"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("время жизни токена должно быть положительным"))
	}
	return errors.Join(errs...)
}

// WorldConfig переводит настройки в параметры мира
func (c *Config) WorldConfig(seed int64) world.Config {
	wc := world.DefaultConfig()
	wc.Name = c.World.Name
	wc.Seed = seed
	wc.Chunks.RenderX = c.World.RenderX
	wc.Chunks.RenderY = c.World.RenderY
	wc.Chunks.UnloadDistance = c.World.UnloadDistance
	wc.Chunks.MaxCachedChunks = c.World.MaxCachedChunks
	wc.Chunks.Debug = c.Server.Debug
	wc.Clock.DayLength = c.Gameplay.DayLength
	wc.Clock.MinNightShade = c.Gameplay.MinNightShade
	wc.Clock.SaveDelay = c.Storage.AutosaveInterval.Milliseconds()
	wc.PlayerHealth = c.Gameplay.PlayerHealth
	wc.Entity.WalkSpeed = c.Gameplay.WalkSpeed
	wc.Entity.MobWalkSpeed = c.Gameplay.MobWalkSpeed
	wc.Entity.MaxHostileMobs = c.Gameplay.MaxHostileMobs
	wc.Entity.MaxFriendlyMobs = c.Gameplay.MaxFriendlyMobs
	wc.Entity.MaxFloatingItems = c.Gameplay.MaxFloatingItems
	wc.Entity.ItemDespawnTime = c.Gameplay.ItemDespawnTime
	wc.ItemCleanupInterval = c.Gameplay.ItemCleanupInterval
	wc.SmeltTime = time.Duration(c.Gameplay.SmeltTime) * time.Millisecond
	wc.Reach = c.Gameplay.Reach
	return wc
}

// IsOperator сообщает, может ли игрок выполнять консольные команды
func (c *Config) IsOperator(name string) bool {
	for _, op := range c.Auth.OperatorNames {
		if strings.EqualFold(op, name) {
			return true
		}
	}
	return false
}

func getEnvStr(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
