// Package config loads hexserver settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/talgya/hexterrain/internal/wire"
	"github.com/talgya/hexterrain/internal/world"
)

// Environment overrides.
const (
	EnvAdminKey  = "HEXTERRAIN_ADMIN_KEY"
	EnvRandomOrg = "RANDOM_ORG_API_KEY"
	EnvDB        = "HEXTERRAIN_DB"
	EnvPort      = "HEXTERRAIN_PORT"
	EnvLogLevel  = "HEXTERRAIN_LOG_LEVEL"
)

type Config struct {
	Port         int    `yaml:"port"`
	DBPath       string `yaml:"db_path"`
	AdminKey     string `yaml:"admin_key"`
	RandomOrgKey string `yaml:"random_org_api_key"`
	LogLevel     string `yaml:"log_level"`

	Generation world.GenConfig `yaml:"generation"`
	MaxRadius  int             `yaml:"max_radius"` // largest radius a client may request

	Lights []Light      `yaml:"lights"`
	Skybox SkyboxConfig `yaml:"skybox"`

	RotateEvery time.Duration `yaml:"rotate_every"` // 0 disables rotation
	Compress    bool          `yaml:"compress"`     // zstd map frames by default
	KeepMaps    int           `yaml:"keep_maps"`    // archive size, 0 keeps everything

	WS        WSConfig        `yaml:"ws"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Light is a directional light; Direction is the way the light travels.
type Light struct {
	Direction [3]float32 `yaml:"direction"`
}

// SkyboxConfig names the face image files. Empty entries send no data.
// With no files set, a GradientSize sky is generated instead.
type SkyboxConfig struct {
	GradientSize int `yaml:"gradient_size"`

	PosX string `yaml:"px"`
	NegX string `yaml:"nx"`
	PosY string `yaml:"py"`
	NegY string `yaml:"ny"`
	PosZ string `yaml:"pz"`
	NegZ string `yaml:"nz"`
}

// Paths returns the files in cube-map slot order.
func (s SkyboxConfig) Paths() [wire.SkyboxFaces]string {
	return [wire.SkyboxFaces]string{s.PosX, s.NegX, s.PosY, s.NegY, s.PosZ, s.NegZ}
}

// Configured reports whether any face file is set.
func (s SkyboxConfig) Configured() bool {
	for _, p := range s.Paths() {
		if p != "" {
			return true
		}
	}
	return false
}

type WSConfig struct {
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	SendQueue       int           `yaml:"send_queue"`
}

type RateLimitConfig struct {
	GenerateMax    int           `yaml:"generate_max"`
	GenerateWindow time.Duration `yaml:"generate_window"`
}

// Default returns a configuration that serves a radius-24 diffusion map.
func Default() Config {
	return Config{
		Port:       8080,
		DBPath:     "data/hexterrain.db",
		LogLevel:   "info",
		Generation: world.DefaultGenConfig(),
		MaxRadius:  64,
		Lights: []Light{
			{Direction: [3]float32{-0.5, -1, -0.3}},
		},
		Skybox:   SkyboxConfig{GradientSize: 64},
		Compress: true,
		KeepMaps: 100,
		WS: WSConfig{
			MaxMessageBytes: 4 << 10,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			SendQueue:       8,
		},
		RateLimit: RateLimitConfig{
			GenerateMax:    10,
			GenerateWindow: time.Minute,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path uses defaults only.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return c, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := c.ApplyEnv(os.Getenv); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvAdminKey); v != "" {
		c.AdminKey = v
	}
	if v := getenv(EnvRandomOrg); v != "" {
		c.RandomOrgKey = v
	}
	if v := getenv(EnvDB); v != "" {
		c.DBPath = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvPort); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Port = p
	}
	return nil
}

// Validate checks ranges and cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Generation.Radius < 0 {
		errs = append(errs, fmt.Errorf("generation.radius %d is negative", c.Generation.Radius))
	}
	if c.MaxRadius < c.Generation.Radius {
		errs = append(errs, fmt.Errorf("max_radius %d below generation.radius %d", c.MaxRadius, c.Generation.Radius))
	}
	switch c.Generation.Mode {
	case world.ModeDiffusion, world.ModeSimplex:
	default:
		errs = append(errs, fmt.Errorf("generation.mode %q unknown", c.Generation.Mode))
	}
	for i, l := range c.Lights {
		if l.Direction == [3]float32{} {
			errs = append(errs, fmt.Errorf("lights[%d] has a zero direction", i))
		}
	}
	if c.Skybox.GradientSize < 0 {
		errs = append(errs, fmt.Errorf("skybox.gradient_size %d is negative", c.Skybox.GradientSize))
	}
	if c.RotateEvery < 0 {
		errs = append(errs, errors.New("rotate_every is negative"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LightSources converts the configured lights to wire form.
func (c Config) LightSources() []wire.LightSource {
	out := make([]wire.LightSource, len(c.Lights))
	for i, l := range c.Lights {
		out[i] = wire.Directional(mgl32.Vec3(l.Direction).Normalize())
	}
	return out
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
