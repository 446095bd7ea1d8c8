// Package config defines the settings of one named database connection.
package config

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string `yaml:"type"` // "postgres", "mysql" or "sqlite".
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"` // Database name, or the file / DSN for sqlite.
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema,omitempty"` // search_path for PostgreSQL.
	Sslmode  string `yaml:"sslmode"`
	// Params are appended to the DSN (e.g. parseTime for mysql, _busy_timeout for sqlite).
	Params map[string]string `yaml:"params,omitempty"`
	Pool   PoolConfig        `yaml:"pool"`
}
