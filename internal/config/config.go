package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Режимы работы сервера
const (
	ModeSingleplayer = "singleplayer"
	ModeMultiplayer  = "multiplayer"
)

// Config корневая структура конфигурации приложения.
// Читается один раз при старте и дальше передается компонентам по ссылке.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Ticks   TickConfig    `yaml:"ticks"`
	World   WorldConfig   `yaml:"world"`
	Auth    AuthConfig    `yaml:"auth"`
}

type ServerConfig struct {
	Port       int           `yaml:"port"`
	MaxPlayers int           `yaml:"max_players"`
	Mode       string        `yaml:"mode"`
	Name       string        `yaml:"name"`
	MOTD       string        `yaml:"motd"`
	AdminAddr  string        `yaml:"admin_addr"` // пустая строка отключает HTTP
	Liveness   time.Duration `yaml:"liveness_timeout"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	DBDir   string `yaml:"db_dir"`
	Game    string `yaml:"game"`
}

type LoggingConfig struct {
	ToFile bool   `yaml:"to_file"`
	Level  string `yaml:"level"`
	Dir    string `yaml:"dir"`
}

// TickConfig периоды фоновых задач сетевого цикла в реальном времени
type TickConfig struct {
	PollTimeout      time.Duration `yaml:"poll_timeout"`
	PhysicsBroadcast time.Duration `yaml:"physics_broadcast"`
	DirtyBroadcast   time.Duration `yaml:"dirty_broadcast"`
	Cleanup          time.Duration `yaml:"cleanup"`
	Physics          time.Duration `yaml:"physics"`
}

type WorldConfig struct {
	CacheChunks    int     `yaml:"cache_chunks"`    // сколько чанков держать в памяти
	MemoryPressure float64 `yaml:"memory_pressure"` // % занятой памяти хоста, после которого кэш ужимается вдвое
}

type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret"` // base64; пустая строка: сгенерировать при старте
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       15556,
			MaxPlayers: 10,
			Mode:       ModeMultiplayer,
			Name:       "Hexa server",
			MOTD:       "Be excellent to eachother.",
			AdminAddr:  "",
			Liveness:   30 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: "data",
			DBDir:   defaultDBDir(),
			Game:    "defaultgame",
		},
		Logging: LoggingConfig{
			ToFile: true,
			Level:  "info",
			Dir:    "logs",
		},
		Ticks: TickConfig{
			PollTimeout:      time.Millisecond,
			PhysicsBroadcast: 100 * time.Millisecond,
			DirtyBroadcast:   450 * time.Millisecond,
			Cleanup:          time.Minute,
			Physics:          50 * time.Millisecond,
		},
		World: WorldConfig{
			CacheChunks:    4096,
			MemoryPressure: 90,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
	}
}

func defaultDBDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "voxel-server", "db")
	}
	return "db"
}

// Load читает YAML файл поверх значений по умолчанию.
// Если path == "", пытается прочитать путь из ENV VOXEL_CONFIG; без файла возвращает дефолты.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
		}
	}

	cfg.Server.Port = getPortWithEnvFallback(cfg.Server.Port, "VOXEL_PORT", 15556)
	if dir := os.Getenv("VOXEL_DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if dir := os.Getenv("VOXEL_DB_DIR"); dir != "" {
		cfg.Storage.DBDir = dir
	}

	return cfg, nil
}

// getPortWithEnvFallback возвращает порт с приоритетом: env -> config -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	if configPort > 0 {
		return configPort
	}

	return defaultPort
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("некорректный порт %d", c.Server.Port))
	}
	if c.Server.MaxPlayers <= 0 {
		errs = append(errs, fmt.Errorf("max_players должен быть > 0"))
	}
	if c.Server.Mode != ModeSingleplayer && c.Server.Mode != ModeMultiplayer {
		errs = append(errs, fmt.Errorf("неизвестный режим %q", c.Server.Mode))
	}
	if c.Storage.Game == "" {
		errs = append(errs, errors.New("не задано имя игры"))
	}
	if c.Ticks.PhysicsBroadcast <= 0 || c.Ticks.DirtyBroadcast <= 0 || c.Ticks.Cleanup <= 0 || c.Ticks.Physics <= 0 {
		errs = append(errs, errors.New("периоды тиков должны быть положительными"))
	}
	if c.World.CacheChunks <= 0 {
		errs = append(errs, errors.New("cache_chunks должен быть > 0"))
	}

	return errors.Join(errs...)
}

// GameDir возвращает каталог с данными выбранной игры
func (c *Config) GameDir() string {
	return filepath.Join(c.Storage.DataDir, "games", c.Storage.Game)
}

// WorldDBDir возвращает каталог базы данных мира выбранной игры
func (c *Config) WorldDBDir() string {
	return filepath.Join(c.Storage.DBDir, c.Storage.Game)
}
