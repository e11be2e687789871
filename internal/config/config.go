package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/david/market-ledger/internal/logging"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "LEDGER"

// Baseline overrides the reading of an externally sourced health metric.
type Baseline struct {
	Score float64 `mapstructure:"score" validate:"gte=0,lte=10"`
	Trend string  `mapstructure:"trend" validate:"oneof=up down stable"`
}

type RunConfig struct {
	Output      string   `mapstructure:"output" validate:"required"`
	Only        []string `mapstructure:"only"`
	News        bool     `mapstructure:"news"`
	Concurrency int      `mapstructure:"concurrency" validate:"min=1,max=32"`
	Registry    string   `mapstructure:"registry"`
	Metrics     string   `mapstructure:"metrics"`
	Feeds       string   `mapstructure:"feeds"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr" validate:"required"`
	AdminSecret string `mapstructure:"admin_secret"`
}

// Config is the runtime configuration of the ledger binary. Domain tables
// (jurisdictions, metrics, feeds) live in their own YAML files; this only
// points at overrides for them.
type Config struct {
	Logging   logging.Config      `mapstructure:"logging"`
	Run       RunConfig           `mapstructure:"run"`
	Database  DatabaseConfig      `mapstructure:"database"`
	Server    ServerConfig        `mapstructure:"server"`
	Baselines map[string]Baseline `mapstructure:"baselines" validate:"dive"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_file", "")
	v.SetDefault("run.output", "data/necmis_data.json")
	v.SetDefault("run.only", []string{})
	v.SetDefault("run.news", true)
	v.SetDefault("run.concurrency", 4)
	v.SetDefault("run.registry", "")
	v.SetDefault("run.metrics", "")
	v.SetDefault("run.feeds", "")
	v.SetDefault("database.url", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.admin_secret", "")
}

// Load reads the optional YAML file at path and applies LEDGER_* environment
// overrides, e.g. LEDGER_RUN_CONCURRENCY=8. DATABASE_URL and ADMIN_SECRET are
// honored without the prefix.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("bind database url: %w", err)
	}
	if err := v.BindEnv("server.admin_secret", EnvPrefix+"_SERVER_ADMIN_SECRET", "ADMIN_SECRET"); err != nil {
		return nil, fmt.Errorf("bind admin secret: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
