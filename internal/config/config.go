// Package config loads rxfn settings from a YAML file, RXFN_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/rxfn/internal/engine"
	"github.com/roach88/rxfn/internal/regex"
)

// EnvPrefix prefixes every environment variable, e.g. RXFN_ENGINE or
// RXFN_LOG_LEVEL.
const EnvPrefix = "RXFN"

// FileName is the config file searched for when none is given.
const FileName = "rxfn"

// Config holds every setting of the CLI and the runtime it builds.
type Config struct {
	Engine        string        `mapstructure:"engine"`
	MatchTimeout  time.Duration `mapstructure:"match_timeout"`
	DB            string        `mapstructure:"db"`
	Log           LogConfig     `mapstructure:"log"`
	OnError       string        `mapstructure:"on_error"`
	KeepRevisions int           `mapstructure:"keep_revisions"`

	// File is the config file that was read, empty if none was found.
	File string `mapstructure:"-"`
}

// LogConfig selects the logger built by logging.New.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() *Config {
	return &Config{
		Engine:  regex.DefaultEngine,
		DB:      "rxfn.db",
		Log:     LogConfig{Level: "info", Format: "console"},
		OnError: string(engine.PolicyDrop),
	}
}

// FlagKeys maps command-line flag names to config keys. Flags missing
// from the flag set passed to Load are skipped.
var FlagKeys = map[string]string{
	"engine":         "engine",
	"match-timeout":  "match_timeout",
	"db":             "db",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"on-error":       "on_error",
	"keep-revisions": "keep_revisions",
}

// Load reads the configuration. file names an explicit config file; when
// empty, rxfn.yaml is looked up in ".", "$HOME/.rxfn" and "/etc/rxfn" and
// a missing file is not an error. flags may be nil.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	def := DefaultConfig()
	v.SetDefault("engine", def.Engine)
	v.SetDefault("match_timeout", def.MatchTimeout)
	v.SetDefault("db", def.DB)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("on_error", def.OnError)
	v.SetDefault("keep_revisions", def.KeepRevisions)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.rxfn")
		v.AddConfigPath("/etc/rxfn")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %q: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values viper cannot check by type alone.
func (c *Config) Validate() error {
	if _, err := regex.LookupEngine(c.Engine); err != nil {
		return fmt.Errorf("config engine: %w", err)
	}
	if _, err := engine.ParseErrorPolicy(c.OnError); err != nil {
		return fmt.Errorf("config on_error: %w", err)
	}
	if c.MatchTimeout < 0 {
		return fmt.Errorf("config match_timeout: must not be negative, got %s", c.MatchTimeout)
	}
	if c.KeepRevisions < 0 {
		return fmt.Errorf("config keep_revisions: must not be negative, got %d", c.KeepRevisions)
	}
	return nil
}

// MatcherEngine returns the configured engine. A match timeout only
// applies to regexp2, the one engine that backtracks.
func (c *Config) MatcherEngine() (regex.Engine, error) {
	if c.Engine == "regexp2" && c.MatchTimeout > 0 {
		return regex.NewRegexp2Engine(c.MatchTimeout), nil
	}
	return regex.LookupEngine(c.Engine)
}

// ErrorPolicy returns the parsed on_error setting.
func (c *Config) ErrorPolicy() engine.ErrorPolicy {
	p, err := engine.ParseErrorPolicy(c.OnError)
	if err != nil {
		return engine.PolicyDrop
	}
	return p
}
