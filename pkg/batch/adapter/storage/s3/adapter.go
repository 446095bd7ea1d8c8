// Package s3 implements storage connections for S3-compatible object stores such as MinIO.
package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// ProviderType is the storage type handled by this package.
const ProviderType = "s3"

type s3Adapter struct {
	client *minio.Client
	cfg    storageConfig.StorageConfig
	name   string
}

var _ storageAdapter.StorageConnection = (*s3Adapter)(nil)

// NewS3Adapter creates a minio client for cfg.Endpoint with static V4 credentials.
func NewS3Adapter(ctx context.Context, cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 storage adapter '%s': endpoint must be specified", name)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 storage adapter '%s': failed to create client: %w", name, err)
	}
	return &s3Adapter{client: client, cfg: cfg, name: name}, nil
}

// Close is a no-op; minio clients hold no resources beyond the shared HTTP transport.
func (a *s3Adapter) Close() error { return nil }

func (a *s3Adapter) Type() string { return ProviderType }

func (a *s3Adapter) Name() string { return a.name }

func (a *s3Adapter) bucketName(bucket string) string {
	if bucket == "" {
		return a.cfg.BucketName
	}
	return bucket
}

// Upload streams with an unknown size; minio switches to multipart upload.
func (a *s3Adapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	info, err := a.client.PutObject(ctx, a.bucketName(bucket), objectName, data, -1,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload s3 object '%s': %w", objectName, err)
	}
	logger.Debugf("Uploaded s3 object '%s' (%d bytes, storage '%s').", objectName, info.Size, a.name)
	return nil
}

func (a *s3Adapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	obj, err := a.client.GetObject(ctx, a.bucketName(bucket), objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open s3 object '%s': %w", objectName, err)
	}
	// GetObject is lazy; Stat surfaces a missing object here rather than on the first Read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("failed to open s3 object '%s': %w", objectName, err)
	}
	return obj, nil
}

func (a *s3Adapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for object := range a.client.ListObjects(ctx, a.bucketName(bucket), minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return fmt.Errorf("failed to list s3 objects under '%s': %w", prefix, object.Err)
		}
		if err := fn(object.Key); err != nil {
			return err
		}
	}
	return nil
}

func (a *s3Adapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	if err := a.client.RemoveObject(ctx, a.bucketName(bucket), objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete s3 object '%s': %w", objectName, err)
	}
	return nil
}

// NewProvider creates the S3 StorageProvider.
func NewProvider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return storageAdapter.NewBaseProvider(cfg, ProviderType, NewS3Adapter)
}

// Module joins the S3 provider to the storage_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"`+storageAdapter.StorageProviderGroup+`"`),
	),
)
