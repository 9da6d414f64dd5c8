package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hupe1980/vecdir/codec"
)

// Settings is the resolved CLI configuration.
type Settings struct {
	Dir         string `mapstructure:"dir"`
	Backend     string `mapstructure:"backend"`
	Compression string `mapstructure:"compression"`
	LogLevel    string `mapstructure:"log-level"`
	CacheSize   int64  `mapstructure:"cache-size"`
	JSON        bool   `mapstructure:"json"`
}

func addGlobalFlags(f *pflag.FlagSet) {
	f.String("config", "", "config file (default is ./vecdir.yaml)")
	f.String("dir", "./data", "database directory")
	f.String("backend", "local", "storage backend: local, badger or bolt")
	f.String("compression", "none", "payload compression for saved collections: none, lz4 or zstd")
	f.String("log-level", "warn", "log level: debug, info, warn or error")
	f.Int64("cache-size", 0, "bytes of collection blobs to cache in memory")
	f.Bool("json", false, "output as JSON")
}

func loadConfig(v *viper.Viper) error {
	v.SetEnvPrefix(appName)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(appName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func settings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	if _, err := codec.Parse(s.Compression); err != nil {
		return Settings{}, err
	}
	if _, err := parseLevel(s.LogLevel); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
