// Package config holds the application configuration: defaults, the embedded YAML document,
// .env files and environment variable overrides.
package config

// EmbeddedConfig holds the content of the configuration file, typically embedded by main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// Job repository implementations.
const (
	JobRepositoryTypeSQL      = "sql"
	JobRepositoryTypeInMemory = "inmemory"
)

// Metrics backends.
const (
	MetricsBackendPrometheus = "prometheus"
	MetricsBackendOTel       = "otel"
	MetricsBackendNone       = "none"
)

// Trace exporters.
const (
	TraceExporterNone     = "none"
	TraceExporterOTLPGRPC = "otlpgrpc"
	TraceExporterOTLPHTTP = "otlphttp"
)

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedParameterKeys lists JobParameters keys whose values are masked in logs.
	MaskedParameterKeys []string `yaml:"masked_parameter_keys"`
}

// BatchConfig holds settings of the chunk engine.
type BatchConfig struct {
	// ChunkSize is the number of items read, transformed and written per transaction.
	ChunkSize int `yaml:"chunk_size"`
	// ConcurrencyLimit bounds how many item transforms run at the same time within a step.
	ConcurrencyLimit int `yaml:"concurrency_limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
	// SQLLevel is the level of the GORM logger ("SILENT", "ERROR", "WARN", "INFO").
	SQLLevel string `yaml:"sql_level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo"). The scheduler fires in it.
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// InfrastructureConfig holds logical dependency settings for infrastructure components.
type InfrastructureConfig struct {
	// JobRepositoryDBRef is the name of the database connection used by the job repository.
	JobRepositoryDBRef string `yaml:"job_repository_db_ref"`
	// JobRepositoryType selects the job repository: "sql" or "inmemory".
	JobRepositoryType string `yaml:"job_repository_type"`
	// AutoMigrate creates the metadata and customer tables at startup when they are missing.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// MetricsConfig selects the MetricRecorder backend.
type MetricsConfig struct {
	Backend string `yaml:"backend"`
	// Path is where the Prometheus handler is mounted on the HTTP trigger server.
	Path string `yaml:"path"`
	// Endpoint is the OTLP collector endpoint for the otel backend.
	Endpoint string `yaml:"endpoint"`
	// Protocol is "grpc" or "http" for the otel backend.
	Protocol string `yaml:"protocol"`
	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`
	// ExportIntervalSeconds is the periodic reader interval of the otel backend.
	ExportIntervalSeconds int `yaml:"export_interval_seconds"`
}

// TracingConfig selects the Tracer backend.
type TracingConfig struct {
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// HTTPTriggerConfig configures the HTTP trigger server.
type HTTPTriggerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	// ImportJobName is launched by the import endpoints.
	ImportJobName string `yaml:"import_job_name"`
	// ExportJobName is launched by the export endpoint.
	ExportJobName          string `yaml:"export_job_name"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// ScheduleTriggerConfig configures the cron trigger.
type ScheduleTriggerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Cron is a six-field expression, seconds first.
	Cron    string `yaml:"cron"`
	JobName string `yaml:"job_name"`
}

// TriggerConfig groups the ways a run can be started.
type TriggerConfig struct {
	HTTP     HTTPTriggerConfig     `yaml:"http"`
	Schedule ScheduleTriggerConfig `yaml:"schedule"`
}

// SurfinConfig holds all configuration under the "surfin" top-level key.
type SurfinConfig struct {
	Batch          BatchConfig          `yaml:"batch"`
	System         SystemConfig         `yaml:"system"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Security       SecurityConfig       `yaml:"security"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Tracing        TracingConfig        `yaml:"tracing"`
	Trigger        TriggerConfig        `yaml:"trigger"`
	// AdapterConfigs holds the named database connections, decoded per connection by the providers.
	AdapterConfigs map[string]interface{} `yaml:"database"`
	// StorageConfigs holds the named storage connections.
	StorageConfigs map[string]interface{} `yaml:"storage"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Surfin SurfinConfig `yaml:"surfin"`
	// Jobs holds job-specific settings keyed by job name. Each job decodes its own block.
	Jobs map[string]interface{} `yaml:"jobs"`
	// EmbeddedConfig holds the raw document the configuration was loaded from.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a Config populated with default values.
func NewConfig() *Config {
	return &Config{
		Surfin: SurfinConfig{
			Batch: BatchConfig{
				ChunkSize:        10,
				ConcurrencyLimit: 10,
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: string(LogLevelInfo), SQLLevel: string(LogLevelSilent)},
			},
			Infrastructure: InfrastructureConfig{
				JobRepositoryDBRef: "metadata",
				JobRepositoryType:  JobRepositoryTypeSQL,
				AutoMigrate:        true,
			},
			Security: SecurityConfig{
				MaskedParameterKeys: []string{"password", "api_key", "secret"},
			},
			Metrics: MetricsConfig{
				Backend:               MetricsBackendPrometheus,
				Path:                  "/metrics",
				Protocol:              "grpc",
				ExportIntervalSeconds: 15,
			},
			Tracing: TracingConfig{
				Exporter:    TraceExporterNone,
				ServiceName: "customer-batch",
				SampleRatio: 1.0,
			},
			Trigger: TriggerConfig{
				HTTP: HTTPTriggerConfig{
					Enabled:                true,
					Address:                ":8080",
					ImportJobName:          "importCustomerJob",
					ExportJobName:          "exportCustomerJob",
					ShutdownTimeoutSeconds: 10,
				},
				Schedule: ScheduleTriggerConfig{
					Enabled: true,
					Cron:    "0 0 0 * * *",
					JobName: "exportCustomerJob",
				},
			},
			AdapterConfigs: map[string]interface{}{},
			StorageConfigs: map[string]interface{}{},
		},
		Jobs: map[string]interface{}{},
	}
}

// JobSettings returns the raw settings block of jobName, or nil.
func (c *Config) JobSettings(jobName string) map[string]interface{} {
	raw, ok := c.Jobs[jobName]
	if !ok {
		return nil
	}
	m, _ := raw.(map[string]interface{})
	return m
}
