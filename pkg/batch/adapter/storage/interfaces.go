// Package storage defines the object storage abstraction the flat-file reader and writer use.
// Backends (local file system, GCS, S3-compatible) are selected per named connection.
package storage

import (
	"context"
	"io"

	coreAdapter "github.com/tigerroll/customer-batch/pkg/batch/core/adapter"
)

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload streams data into bucket/objectName, replacing any existing object.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens bucket/objectName for reading. The caller closes the reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject deletes bucket/objectName. A missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named storage connection.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor
}

// StorageProvider opens and caches connections of one storage type.
type StorageProvider interface {
	GetConnection(name string) (StorageConnection, error)
	CloseAll() error
	Type() string
}

// StorageConnectionResolver returns the connection configured under a name.
type StorageConnectionResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// StorageProviderGroup is the fx value group all StorageProvider implementations join.
const StorageProviderGroup = "storage_providers"
