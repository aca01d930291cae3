package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Progress struct {
		StaleAfter string `yaml:"stale_after"`
		Timeout    string `yaml:"timeout"`
		Retries    *int   `yaml:"retries"`
		Backoff    string `yaml:"backoff"`
	} `yaml:"progress"`
	Generation struct {
		Provider      string `yaml:"provider"`
		Model         string `yaml:"model"`
		APIKey        string `yaml:"api_key"`
		BaseURL       string `yaml:"base_url"`
		RatePerMinute int    `yaml:"rate_per_minute"`
	} `yaml:"generation"`
	Storage struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		Secure    bool   `yaml:"secure"`
	} `yaml:"storage"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Tracing struct {
		Endpoint    string `yaml:"endpoint"`
		ServiceName string `yaml:"service_name"`
	} `yaml:"tracing"`
}

// Load reads YAML config from path. Provider API keys left empty fall back
// to OPENAI_API_KEY or GEMINI_API_KEY.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "openai"
	}
	if cfg.Generation.APIKey != "" {
		return
	}
	switch cfg.Generation.Provider {
	case "openai":
		cfg.Generation.APIKey = os.Getenv("OPENAI_API_KEY")
	case "gemini":
		cfg.Generation.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// IntOr returns *v, or fallback when the key was absent.
func IntOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
