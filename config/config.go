package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v8"
)

const (
	BackendRemBG   = "rembg"
	BackendComfyUI = "comfyui"
)

type Config struct {
	// Backend selects the background remover: "rembg" or "comfyui".
	Backend  string        `env:"WHITEBG_BACKEND" envDefault:"rembg"`
	Endpoint string        `env:"WHITEBG_ENDPOINT" envDefault:"http://127.0.0.1:7000"`
	Model    string        `env:"WHITEBG_MODEL" envDefault:"u2net"`
	Timeout  time.Duration `env:"WHITEBG_TIMEOUT" envDefault:"2m"`

	// PollInterval and WorkflowPath only apply to the comfyui backend.
	PollInterval time.Duration `env:"WHITEBG_POLL_INTERVAL" envDefault:"500ms"`
	WorkflowPath string        `env:"WHITEBG_COMFYUI_WORKFLOW"`

	LogLevel string `env:"WHITEBG_LOG_LEVEL" envDefault:"warn"`
}

func New() (*Config, error) {
	conf := &Config{}
	if err := env.Parse(conf); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return conf, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRemBG, BackendComfyUI:
	default:
		return fmt.Errorf("invalid configuration: unknown backend %q", c.Backend)
	}
	if c.Endpoint == "" {
		return fmt.Errorf("invalid configuration: empty endpoint")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid configuration: timeout must be positive")
	}
	if c.Backend == BackendComfyUI && c.PollInterval <= 0 {
		return fmt.Errorf("invalid configuration: poll interval must be positive")
	}

	return nil
}
