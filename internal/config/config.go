package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	AuthURL               string `yaml:"authURL"`
	AuthCredential        string `yaml:"authCredential"`
	AuthScope             string `yaml:"authScope"`
	TLSInsecureSkipVerify bool   `yaml:"tlsInsecureSkipVerify"`

	LLMBaseURL string `yaml:"llmBaseURL"`
	LLMModel   string `yaml:"llmModel"`

	ParserURL string `yaml:"parserURL"`

	FormDataFile string `yaml:"formDataFile"`
	DatabaseURL  string `yaml:"databaseURL"`

	SkipCount     int      `yaml:"skipCount"`
	IgnoredFields []string `yaml:"ignoredFields"`

	FixedSubchapters []string `yaml:"fixedSubchapters"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RateLimit     int    `yaml:"rateLimit"`
	RateWindowSec int    `yaml:"rateWindowSec"`

	WebhookSecret  string   `yaml:"webhookSecret"`
	WebhookIssuers []string `yaml:"webhookIssuers"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	// SkipCount defaults to 1 so an absent key keeps the header row rule;
	// yaml only overwrites fields that appear in the file.
	cfg := FileConfig{SkipCount: 1}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("BOOKMENTOR_AUTH_CREDENTIAL"); v != "" {
		cfg.AuthCredential = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("BOOKMENTOR_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("BOOKMENTOR_WEBHOOK_SECRET"); v != "" {
		cfg.WebhookSecret = v
	}
	if v := os.Getenv("BOOKMENTOR_SKIP_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SkipCount = n
		}
	}
	if v := os.Getenv("BOOKMENTOR_IGNORED_FIELDS"); v != "" {
		cfg.IgnoredFields = splitCSV(v)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.AuthURL == "" {
		return errors.New("config: authURL is required (set in config.yaml)")
	}
	if cfg.AuthCredential == "" {
		return errors.New("config: authCredential is required (set in config.yaml or BOOKMENTOR_AUTH_CREDENTIAL)")
	}
	if cfg.AuthScope == "" {
		return errors.New("config: authScope is required (set in config.yaml)")
	}
	if cfg.LLMBaseURL == "" {
		return errors.New("config: llmBaseURL is required (set in config.yaml)")
	}
	if cfg.LLMModel == "" {
		return errors.New("config: llmModel is required (set in config.yaml)")
	}
	if cfg.ParserURL == "" {
		return errors.New("config: parserURL is required (set in config.yaml)")
	}
	if cfg.FormDataFile == "" && cfg.DatabaseURL == "" {
		return errors.New("config: formDataFile or databaseURL is required (set in config.yaml)")
	}
	if cfg.RedisAddr != "" && cfg.RateLimit <= 0 {
		return errors.New("config: rateLimit must be positive when redisAddr is set")
	}
	if cfg.RedisAddr != "" && cfg.RateWindowSec <= 0 {
		return errors.New("config: rateWindowSec must be positive when redisAddr is set")
	}
	if cfg.WebhookSecret != "" && len(cfg.WebhookIssuers) == 0 {
		return errors.New("config: webhookIssuers is required when webhookSecret is set")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
