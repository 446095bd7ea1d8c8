package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Surfin.System.Logging
}

// Module provides *Config and the pieces derived from it.
var Module = fx.Options(
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
	fx.Provide(NewConfigProvider),
	fx.Provide(NewLoggingConfigProvider),
)
