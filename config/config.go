package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/negsched/core/factory"
	"github.com/kilianp07/negsched/core/metrics"
	"github.com/kilianp07/negsched/core/model"
	"github.com/kilianp07/negsched/infra/mqtt"
)

// EnvPrefix marks environment variables overriding file values. A double
// underscore separates nesting levels: NS_SOLVER__K=3 sets solver.k.
const EnvPrefix = "NS_"

type Config struct {
	Solver   SolverConfig         `json:"solver"`
	Policy   model.LeverPolicy    `json:"policy"`
	Airports AirportsConfig       `json:"airports"`
	Metrics  metrics.Config       `json:"metrics"`
	MQTT     mqtt.Config          `json:"mqtt"`
	RunLog   factory.ModuleConfig `json:"runlog"`
	Logging  LoggingConfig        `json:"logging"`
	API      APIConfig            `json:"api"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	var cfg Config
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// finish applies defaults and validates every section.
func (c *Config) finish() error {
	c.Solver.SetDefaults()
	c.Logging.SetDefaults()
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	p, err := model.NewLeverPolicy(c.Policy)
	if err != nil {
		return err
	}
	c.Policy = p
	if c.MQTT.Broker != "" {
		c.MQTT.SetDefaults()
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}
	return nil
}
