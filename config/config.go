package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds process configuration. Values come from an optional YAML file
// with environment variables taking precedence, so containerized deploys can
// skip the file entirely.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	DatabaseURL string `yaml:"database_url"`
	JWTSecret   string `yaml:"jwt_secret"`
}

const defaultListenAddr = ":8080"

// Load reads configuration from path (if non-empty) and overlays environment
// variables. DATABASE_URL and JWT_SECRET are required one way or the other.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddr: defaultListenAddr}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if cfg.ListenAddr == "" {
			cfg.ListenAddr = defaultListenAddr
		}
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: database_url is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: jwt_secret is required")
	}
	return cfg, nil
}
