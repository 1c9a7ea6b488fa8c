package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/voxphys/internal/logging"
	"github.com/annel0/voxphys/internal/physics"
	"github.com/annel0/voxphys/internal/storage"
	"github.com/annel0/voxphys/internal/world"
)

// Config корневая структура конфигурации приложения.
// Отсутствующие в файле поля получают значения из Default.
type Config struct {
	Physics    physics.Config   `yaml:"physics"`
	World      WorldConfig      `yaml:"world"`
	Simulation SimulationConfig `yaml:"simulation"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type WorldConfig struct {
	Mode             string  `yaml:"mode"` // perlin | flat
	Seed             int64   `yaml:"seed"`
	LargeSize        float64 `yaml:"large_size"`
	SmallSize        float64 `yaml:"small_size"`
	OctaveSize       float64 `yaml:"octave_size"`
	OctaveWeight     float64 `yaml:"octave_weight"`
	HeightScale      float64 `yaml:"height_scale"`
	Center           float64 `yaml:"center"`
	AutoSaveInterval int     `yaml:"autosave_seconds"`
}

type SimulationConfig struct {
	TickRate         int `yaml:"tick_rate"`         // Тиков в секунду
	Workers          int `yaml:"workers"`           // Горутин на физическую фазу, 0 - по числу CPU
	StreamRadius     int `yaml:"stream_radius"`     // Запас в тайлах вокруг сущности при подгрузке
	SnapshotInterval int `yaml:"snapshot_seconds"` // Период сохранения снимков сущностей
	NPCCount         int `yaml:"npc_count"`        // Блуждающие сущности при старте
}

type ServerConfig struct {
	RESTPort int    `yaml:"rest_port"`
	GinMode  string `yaml:"gin_mode"`
}

type StorageConfig struct {
	DataPath string               `yaml:"data_path"` // Пусто - мир хранится в памяти
	Redis    *storage.RedisConfig `yaml:"redis"`     // nil - снимки сущностей в памяти
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LoggingConfig struct {
	Dir          string `yaml:"dir"`
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	gen := world.DefaultGeneratorSettings(42)
	return &Config{
		Physics: physics.DefaultConfig(),
		World: WorldConfig{
			Mode:             string(gen.Mode),
			Seed:             gen.Seed,
			LargeSize:        gen.LargeSize,
			SmallSize:        gen.SmallSize,
			OctaveSize:       gen.OctaveSize,
			OctaveWeight:     gen.OctaveWeight,
			HeightScale:      gen.HeightScale,
			Center:           gen.Center,
			AutoSaveInterval: 300,
		},
		Simulation: SimulationConfig{
			TickRate:         30,
			StreamRadius:     2,
			SnapshotInterval: 30,
		},
		Server: ServerConfig{
			GinMode: "release",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "voxphys",
		},
		Logging: LoggingConfig{
			ConsoleLevel: "info",
			FileLevel:    "debug",
		},
	}
}

// GeneratorSettings возвращает параметры генератора мира
func (w WorldConfig) GeneratorSettings() world.GeneratorSettings {
	return world.GeneratorSettings{
		Mode:         world.GeneratorMode(w.Mode),
		Seed:         w.Seed,
		LargeSize:    w.LargeSize,
		SmallSize:    w.SmallSize,
		OctaveSize:   w.OctaveSize,
		OctaveWeight: w.OctaveWeight,
		HeightScale:  w.HeightScale,
		Center:       w.Center,
	}
}

// AutoSave возвращает период автосохранения мира
func (w WorldConfig) AutoSave() time.Duration {
	return time.Duration(w.AutoSaveInterval) * time.Second
}

// TickInterval возвращает длительность одного тика
func (s SimulationConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(s.TickRate)
}

// Snapshot возвращает период сохранения снимков сущностей
func (s SimulationConfig) Snapshot() time.Duration {
	return time.Duration(s.SnapshotInterval) * time.Second
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "VOXPHYS_REST_PORT", 8088)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// Options возвращает параметры логгера по умолчанию
func (l LoggingConfig) Options() (logging.Options, error) {
	console, err := logging.ParseLevel(l.ConsoleLevel)
	if err != nil {
		return logging.Options{}, err
	}
	file, err := logging.ParseLevel(l.FileLevel)
	if err != nil {
		return logging.Options{}, err
	}
	return logging.Options{Dir: l.Dir, ConsoleLevel: console, FileLevel: file}, nil
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	var errs []error

	p := c.Physics
	if p.Gravity < 0 || p.MoveForce < 0 || p.MaxMoveSpeed < 0 || p.JumpImpulse < 0 {
		errs = append(errs, errors.New("physics: параметры не могут быть отрицательными"))
	}
	if p.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("physics: max_iterations должен быть положительным: %d", p.MaxIterations))
	}
	if p.GroundNormalZ <= 0 || p.GroundNormalZ > 1 {
		errs = append(errs, fmt.Errorf("physics: ground_normal_z вне (0, 1]: %v", p.GroundNormalZ))
	}

	if err := c.World.GeneratorSettings().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("world: %w", err))
	}

	s := c.Simulation
	if s.TickRate <= 0 || s.TickRate > 1000 {
		errs = append(errs, fmt.Errorf("simulation: tick_rate вне (0, 1000]: %d", s.TickRate))
	}
	if s.Workers < 0 || s.StreamRadius < 0 || s.NPCCount < 0 {
		errs = append(errs, errors.New("simulation: workers, stream_radius и npc_count не могут быть отрицательными"))
	}

	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("server: неизвестный gin_mode %q", c.Server.GinMode))
	}

	if _, err := c.Logging.Options(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	return errors.Join(errs...)
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать путь из ENV VOXPHYS_CONFIG,
// а без него возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VOXPHYS_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан - использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация %s: %w", path, err)
	}

	return cfg, nil
}
