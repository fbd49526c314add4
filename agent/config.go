package agent

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TrainingConfig groups the outer-loop parameters.
type TrainingConfig struct {
	EpisodesPerIteration int    `yaml:"episodes_per_iteration"`
	Workers              int    `yaml:"workers"`
	SaveInterval         int    `yaml:"save_interval"` // checkpoint every N iterations
	CheckpointDir        string `yaml:"checkpoint_dir"`
}

// Config is the full agent configuration. Construct with DefaultConfig
// and override from a YAML file or CLI flags; there is no ambient
// global configuration state.
type Config struct {
	Seed     int64          `yaml:"seed"`
	Env      EnvConfig      `yaml:"environment"`
	Network  NetworkConfig  `yaml:"network"`
	PPO      PPOConfig      `yaml:"ppo"`
	Training TrainingConfig `yaml:"training"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Seed:    42,
		Env:     DefaultEnvConfig(),
		Network: DefaultNetworkConfig(),
		PPO:     DefaultPPOConfig(),
		Training: TrainingConfig{
			EpisodesPerIteration: 32,
			Workers:              4,
			SaveInterval:         25,
			CheckpointDir:        "checkpoints",
		},
	}
}

// LoadConfig reads a YAML config file over the defaults. Unknown keys
// are rejected so a typo never silently falls back to a default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
