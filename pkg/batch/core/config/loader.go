package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/serialization"
)

const moduleName = "config"

// CronParser parses the six-field (seconds first) expressions used by the schedule trigger.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	Expander       EnvironmentExpander
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// LoadConfig builds the configuration in this order: defaults from NewConfig, the .env file,
// the embedded YAML with ${VAR} placeholders expanded, and finally environment variables
// named after the yaml path (SURFIN_BATCH_CHUNK_SIZE overrides surfin.batch.chunk_size).
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath == "" {
		envFilePath = os.Getenv("ENV_FILE_PATH")
	}
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}
	expanded, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment variables in config", err, false, false)
	}

	cfg := NewConfig()
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}
	cfg.EmbeddedConfig = embeddedConfig

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	if err := Validate(cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "invalid configuration", err, false, false)
	}
	return cfg, nil
}

// NewConfigProvider is the fx provider of *Config. It also applies the log level and the
// masked parameter keys, which are process-wide.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(params.EnvFilePath, params.EmbeddedConfig, params.Expander)
	if err != nil {
		return nil, err
	}
	logger.SetLogLevel(cfg.Surfin.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Surfin.System.Logging.Level)
	serialization.SetMaskedParameterKeys(cfg.Surfin.Security.MaskedParameterKeys)
	return cfg, nil
}

// Validate checks the values that would otherwise fail late, at the first run.
func Validate(cfg *Config) error {
	s := cfg.Surfin
	if s.Batch.ChunkSize < 1 {
		return fmt.Errorf("surfin.batch.chunk_size must be >= 1, got %d", s.Batch.ChunkSize)
	}
	if s.Batch.ConcurrencyLimit < 1 {
		return fmt.Errorf("surfin.batch.concurrency_limit must be >= 1, got %d", s.Batch.ConcurrencyLimit)
	}
	if _, err := time.LoadLocation(s.System.Timezone); err != nil {
		return fmt.Errorf("surfin.system.timezone '%s' is invalid: %w", s.System.Timezone, err)
	}
	switch s.Infrastructure.JobRepositoryType {
	case JobRepositoryTypeSQL, JobRepositoryTypeInMemory:
	default:
		return fmt.Errorf("surfin.infrastructure.job_repository_type '%s' is unknown", s.Infrastructure.JobRepositoryType)
	}
	switch s.Metrics.Backend {
	case MetricsBackendPrometheus, MetricsBackendOTel, MetricsBackendNone:
	default:
		return fmt.Errorf("surfin.metrics.backend '%s' is unknown", s.Metrics.Backend)
	}
	switch s.Tracing.Exporter {
	case TraceExporterNone, TraceExporterOTLPGRPC, TraceExporterOTLPHTTP:
	default:
		return fmt.Errorf("surfin.tracing.exporter '%s' is unknown", s.Tracing.Exporter)
	}
	if s.Trigger.Schedule.Enabled {
		if _, err := CronParser.Parse(s.Trigger.Schedule.Cron); err != nil {
			return fmt.Errorf("surfin.trigger.schedule.cron '%s' is invalid: %w", s.Trigger.Schedule.Cron, err)
		}
	}
	return nil
}

// loadStructFromEnv recursively loads values into a struct from environment variables
// whose names are the upper-cased yaml path joined with underscores.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch field.Kind() {
		case reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case reflect.Map:
			// Adapter blocks are free-form; use ${VAR} placeholders in the YAML for them.
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets field from its string representation.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}
