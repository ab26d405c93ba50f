package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"voxelflight/internal/terrain"
	"voxelflight/internal/world"
)

// Duration wraps time.Duration so configuration files can use human readable
// strings such as "16ms" while numeric nanosecond values still decode.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected scalar, got node kind %d", node.Kind)
	}
	if node.ShortTag() == "!!null" || node.Value == "" {
		*d = 0
		return nil
	}
	if node.ShortTag() == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("duration: decode int: %w", err)
		}
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config captures every externally supplied constant of a voxelflight run.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Player  PlayerConfig  `yaml:"player"`
	World   WorldConfig   `yaml:"world"`
	Input   InputConfig   `yaml:"input"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddress   string   `yaml:"listen_address"`
	HTTPPort        int      `yaml:"http_port"`
	TickRate        Duration `yaml:"tick_rate"`         // e.g. "16ms" for 60 Hz
	StateStreamRate Duration `yaml:"state_stream_rate"` // how often sockets receive state
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type PlayerConfig struct {
	FlyingSpeed   float64    `yaml:"flying_speed"`   // blocks per second
	SightSpeed    float64    `yaml:"sight_speed"`    // degrees per mouse unit
	SightInverted bool       `yaml:"sight_inverted"` // inverts vertical look
	Spawn         [3]float64 `yaml:"spawn"`
}

type WorldConfig struct {
	HalfExtent       int           `yaml:"half_extent"`
	Step             int           `yaml:"step"`
	HillCount        int           `yaml:"hill_count"`
	HillInset        int           `yaml:"hill_inset"`
	HillHeight       terrain.Range `yaml:"hill_height"`
	HillHalfWidth    terrain.Range `yaml:"hill_half_width"`
	Taper            int           `yaml:"taper"`
	SpawnClearRadius int           `yaml:"spawn_clear_radius"`
	Ground           string        `yaml:"ground"`
	Rock             string        `yaml:"rock"`
	Palette          []string      `yaml:"palette"`
	// Seed feeds the random source. Zero picks a time based seed.
	Seed int64 `yaml:"seed"`
}

type InputConfig struct {
	EventsPerSecond float64 `yaml:"events_per_second"`
	Burst           int     `yaml:"burst"`
	ReadLimitBytes  int64   `yaml:"read_limit_bytes"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty disables the rotating file sink
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads a YAML configuration file on top of the defaults. A missing file
// yields an error wrapping os.ErrNotExist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	params := terrain.DefaultParams()
	palette := make([]string, 0, len(params.Palette))
	for _, block := range params.Palette {
		palette = append(palette, block.String())
	}
	return &Config{
		Server: ServerConfig{
			ListenAddress:   "127.0.0.1",
			HTTPPort:        28090,
			TickRate:        Duration(time.Second / 60),
			StateStreamRate: Duration(50 * time.Millisecond),
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Player: PlayerConfig{
			FlyingSpeed:   15,
			SightSpeed:    0.15,
			SightInverted: true,
		},
		World: WorldConfig{
			HalfExtent:       params.HalfExtent,
			Step:             params.Step,
			HillCount:        params.HillCount,
			HillInset:        params.HillInset,
			HillHeight:       params.HillHeight,
			HillHalfWidth:    params.HillHalfWidth,
			Taper:            params.Taper,
			SpawnClearRadius: params.SpawnClearRadius,
			Ground:           params.Ground.String(),
			Rock:             params.Rock.String(),
			Palette:          palette,
		},
		Input: InputConfig{
			EventsPerSecond: 240,
			Burst:           64,
			ReadLimitBytes:  4096,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return errors.New("server.http_port must be between 1 and 65535")
	}
	if c.Server.TickRate <= 0 {
		return errors.New("server.tick_rate must be positive")
	}
	if c.Server.StateStreamRate <= 0 {
		return errors.New("server.state_stream_rate must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if c.Player.FlyingSpeed <= 0 {
		return errors.New("player.flying_speed must be positive")
	}
	if c.Player.SightSpeed <= 0 {
		return errors.New("player.sight_speed must be positive")
	}
	if c.Input.EventsPerSecond <= 0 || c.Input.Burst <= 0 {
		return errors.New("input rate limit must be positive")
	}
	if c.Input.ReadLimitBytes <= 0 {
		return errors.New("input.read_limit_bytes must be positive")
	}
	if _, err := c.TerrainParams(); err != nil {
		return fmt.Errorf("world: %w", err)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// TerrainParams converts the world section into generator parameters.
func (c *Config) TerrainParams() (terrain.Params, error) {
	ground, err := world.ParseBlockType(c.World.Ground)
	if err != nil {
		return terrain.Params{}, fmt.Errorf("ground: %w", err)
	}
	rock, err := world.ParseBlockType(c.World.Rock)
	if err != nil {
		return terrain.Params{}, fmt.Errorf("rock: %w", err)
	}
	palette := make([]world.BlockType, 0, len(c.World.Palette))
	for i, name := range c.World.Palette {
		block, err := world.ParseBlockType(name)
		if err != nil {
			return terrain.Params{}, fmt.Errorf("palette[%d]: %w", i, err)
		}
		palette = append(palette, block)
	}
	params := terrain.Params{
		HalfExtent:       c.World.HalfExtent,
		Step:             c.World.Step,
		HillCount:        c.World.HillCount,
		HillInset:        c.World.HillInset,
		HillHeight:       c.World.HillHeight,
		HillHalfWidth:    c.World.HillHalfWidth,
		Taper:            c.World.Taper,
		SpawnClearRadius: c.World.SpawnClearRadius,
		Ground:           ground,
		Rock:             rock,
		Palette:          palette,
	}
	if err := params.Validate(); err != nil {
		return terrain.Params{}, err
	}
	return params, nil
}

// Address returns the host:port the HTTP server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.ListenAddress, c.Server.HTTPPort)
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// WriteDefault writes the default configuration to the provided path.
func WriteDefault(path string) error {
	data, err := Default().Marshal()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
