// Package config loads the engine configuration from a YAML file with
// CLEARANCE_-prefixed environment overrides.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const envPrefix = "CLEARANCE_"

type Config struct {
	Log struct {
		Level  string `koanf:"level" validate:"oneof=debug info warn error"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"log"`

	HTTP struct {
		Port         int           `koanf:"port" validate:"min=1,max=65535"`
		ReadTimeout  time.Duration `koanf:"readtimeout"`
		WriteTimeout time.Duration `koanf:"writetimeout"`
		IdleTimeout  time.Duration `koanf:"idletimeout"`
	} `koanf:"http"`

	DB struct {
		Path string `koanf:"path" validate:"required"`
	} `koanf:"db"`

	Source struct {
		BaseURL string `koanf:"baseurl" validate:"required,url"`
		Token   string `koanf:"token" validate:"required"`

		// RefreshInterval enables periodic background refreshes when
		// positive; zero means refresh only on demand.
		RefreshInterval time.Duration `koanf:"refreshinterval"`
	} `koanf:"source"`
}

func defaults(cfg *Config) {
	cfg.Log.Level = "info"
	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 10 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 60 * time.Second
	cfg.DB.Path = "clearance.db"
}

// Load reads the YAML file at path (skipped when the file does not
// exist), applies CLEARANCE_* environment overrides, and validates
// the result. CLEARANCE_SOURCE_TOKEN overrides source.token, and so
// on.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	defaults(cfg)

	k := koanf.New(".")
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, errors.Wrapf(err, "read config %s", path)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(key, envPrefix)
		key = strings.ReplaceAll(strings.ToLower(key), "_", ".")
		return key, value
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env overrides")
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: false}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}
