package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings are operator-level tool settings, as opposed to the
// per-project deployment configuration in the .env file. They come from
// an optional compose-deploy.yaml plus COMPOSE_DEPLOY_* environment
// overrides.
type Settings struct {
	Log     LogSettings     `mapstructure:"log"`
	SSH     SSHSettings     `mapstructure:"ssh"`
	History HistorySettings `mapstructure:"history"`
}

// LogSettings holds logging configuration.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SSHSettings holds SSH client configuration.
type SSHSettings struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// HistorySettings holds the release history store configuration.
type HistorySettings struct {
	Path string `mapstructure:"path"`
}

// LoadSettings loads tool settings from file and environment.
func LoadSettings(configPath string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("ssh.connect_timeout", "30s")
	v.SetDefault("history.path", ".compose-deploy.db")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only a present-but-broken file is fatal; absence means defaults.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
			}
		}
	}

	v.SetEnvPrefix("COMPOSE_DEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return &s, nil
}

type settingsKey struct{}

// WithSettings stores settings on a context for subcommands.
func WithSettings(ctx context.Context, s *Settings) context.Context {
	return context.WithValue(ctx, settingsKey{}, s)
}

// SettingsFrom returns the settings stored on ctx, or defaults when
// none are present (tests construct commands without the root).
func SettingsFrom(ctx context.Context) *Settings {
	if s, ok := ctx.Value(settingsKey{}).(*Settings); ok {
		return s
	}
	s, _ := LoadSettings("")
	return s
}
