// Package config loads pilot.yaml and the optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	World  WorldConfig  `yaml:"world"`
	Model  ModelConfig  `yaml:"model"`
	Pilot  PilotConfig  `yaml:"pilot"`
	Convo  ConvoConfig  `yaml:"convo"`
	Audit  AuditConfig  `yaml:"audit"`
	Status StatusConfig `yaml:"status"`
	Log    LogConfig    `yaml:"log"`
}

type WorldConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Path     string `yaml:"path"`
	Username string `yaml:"username"`
}

type ModelConfig struct {
	Endpoint        string        `yaml:"endpoint"` // default: https://bedrock-runtime.<region>.amazonaws.com
	Region          string        `yaml:"region"`
	ModelID         string        `yaml:"model_id"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Temperature     float64       `yaml:"temperature"`
	StopSequences   []string      `yaml:"stop_sequences"`
	Timeout         time.Duration `yaml:"timeout"`
}

type PilotConfig struct {
	MaxResponseAge time.Duration `yaml:"max_response_age"`
	ChatPerSecond  float64       `yaml:"chat_per_second"`
	ChatBurst      int           `yaml:"chat_burst"`
	QueueSize      int           `yaml:"queue_size"`
}

type ConvoConfig struct {
	Backend      string `yaml:"backend"` // dir | sqlite | bolt
	Dir          string `yaml:"dir"`
	DBPath       string `yaml:"db_path"`
	MaxExchanges int    `yaml:"max_exchanges"`
}

type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type StatusConfig struct {
	Listen string `yaml:"listen"` // empty disables the status server
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Defaults() Config {
	return Config{
		World: WorldConfig{
			Host:     "localhost",
			Port:     8080,
			Path:     "/v1/ws",
			Username: "pilot",
		},
		Model: ModelConfig{
			Region:          "us-east-1",
			ModelID:         "anthropic.claude-v2",
			MaxOutputTokens: 500,
			Temperature:     0.5,
			StopSequences:   []string{"\n\nHuman:"},
			Timeout:         30 * time.Second,
		},
		Pilot: PilotConfig{
			MaxResponseAge: 60 * time.Second,
			ChatPerSecond:  1,
			ChatBurst:      3,
			QueueSize:      64,
		},
		Convo: ConvoConfig{
			Backend:      "dir",
			Dir:          "./context",
			DBPath:       "./data/contexts.db",
			MaxExchanges: 10,
		},
		Audit: AuditConfig{
			Enabled: true,
			Dir:     "./data/audit",
		},
		Status: StatusConfig{
			Listen: "127.0.0.1:8091",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a yaml config on top of Defaults. An empty path yields the defaults.
// The result is normalized but not validated; callers apply their overrides
// first and then call Validate.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) Normalize() {
	c.World.Host = strings.TrimSpace(c.World.Host)
	c.World.Username = strings.TrimSpace(c.World.Username)
	if c.World.Path == "" {
		c.World.Path = "/v1/ws"
	}
	if !strings.HasPrefix(c.World.Path, "/") {
		c.World.Path = "/" + c.World.Path
	}
	c.Model.Endpoint = strings.TrimRight(strings.TrimSpace(c.Model.Endpoint), "/")
	if c.Model.Endpoint == "" && c.Model.Region != "" {
		c.Model.Endpoint = "https://bedrock-runtime." + c.Model.Region + ".amazonaws.com"
	}
	c.Convo.Backend = strings.ToLower(strings.TrimSpace(c.Convo.Backend))
	if c.Convo.Backend == "" {
		c.Convo.Backend = "dir"
	}
	if c.Pilot.QueueSize <= 0 {
		c.Pilot.QueueSize = 64
	}
	if c.Pilot.ChatBurst <= 0 {
		c.Pilot.ChatBurst = 1
	}
}

func (c *Config) Validate() error {
	if c.World.Host == "" {
		return errors.New("world.host cannot be empty")
	}
	if c.World.Port <= 0 || c.World.Port > 65535 {
		return fmt.Errorf("world.port out of range: %d", c.World.Port)
	}
	if c.World.Username == "" {
		return errors.New("world.username cannot be empty")
	}
	if c.Model.ModelID == "" {
		return errors.New("model.model_id cannot be empty")
	}
	if c.Model.Region == "" {
		return errors.New("model.region cannot be empty")
	}
	if c.Model.MaxOutputTokens <= 0 {
		return errors.New("model.max_output_tokens must be > 0")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be in [0,1]: %v", c.Model.Temperature)
	}
	if c.Model.Timeout <= 0 {
		return errors.New("model.timeout must be > 0")
	}
	switch c.Convo.Backend {
	case "dir":
		if c.Convo.Dir == "" {
			return errors.New("convo.dir cannot be empty")
		}
	case "sqlite", "bolt":
		if c.Convo.DBPath == "" {
			return errors.New("convo.db_path cannot be empty")
		}
	default:
		return fmt.Errorf("unknown convo.backend: %s", c.Convo.Backend)
	}
	if c.Audit.Enabled && c.Audit.Dir == "" {
		return errors.New("audit.dir cannot be empty when audit is enabled")
	}
	return nil
}

// WorldURL is the websocket URL of the world server.
func (c Config) WorldURL() string {
	return "ws://" + net.JoinHostPort(c.World.Host, strconv.Itoa(c.World.Port)) + c.World.Path
}

// LoadEnv populates the process environment from a .env file. Existing
// variables win. A missing default .env is not an error.
func LoadEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	return godotenv.Load(path)
}
