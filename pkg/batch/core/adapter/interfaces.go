// Package adapter declares what every external resource connection (database, storage) shares.
package adapter

// ResourceConnection is a named connection to an external resource.
type ResourceConnection interface {
	// Close closes the resource connection.
	Close() error
	// Type returns the type of the resource (e.g., "sqlite", "gcs").
	Type() string
	// Name returns the connection name from the configuration (e.g., "metadata", "workload").
	Name() string
}
