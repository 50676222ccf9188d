package main

import (
	"github.com/danmuck/avlgate/internal/config"
)

// resolveConfig builds the runtime config: defaults, then the TOML file,
// then the environment. Registry endpoint and credential must be present.
func resolveConfig(path string, lookup func(string) (string, bool)) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	cfg.ApplyEnv(lookup)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if err := cfg.RequireRegistry(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
