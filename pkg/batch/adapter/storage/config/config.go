// Package config defines the settings of one named storage connection.
package config

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // "local", "gcs" or "s3".
	BucketName      string `yaml:"bucket_name"`      // Default bucket when a caller passes none.
	CredentialsFile string `yaml:"credentials_file"` // Service account key for GCS.
	BaseDir         string `yaml:"base_dir"`         // Root directory for local storage.
	Endpoint        string `yaml:"endpoint"`         // S3 endpoint host[:port].
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
}
