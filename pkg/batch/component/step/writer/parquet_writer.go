package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/xitongsys/parquet-go/parquet"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	"github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/core/tx"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// ParquetItemWriterConfig holds the configuration for ParquetItemWriter.
type ParquetItemWriterConfig struct {
	// StorageRef is the name of the storage connection to use.
	StorageRef string `mapstructure:"storageRef"`
	Bucket     string `mapstructure:"bucket"`
	// OutputBaseDir is the directory within the bucket that receives the part files.
	OutputBaseDir string `mapstructure:"outputBaseDir"`
	// CompressionType is SNAPPY (default), GZIP or NONE.
	CompressionType string `mapstructure:"compressionType"`
}

// DecodeParquetItemWriterConfig decodes properties into a config with defaults applied.
func DecodeParquetItemWriterConfig(properties map[string]interface{}) (ParquetItemWriterConfig, error) {
	var cfg ParquetItemWriterConfig
	if err := mapstructure.Decode(properties, &cfg); err != nil {
		return cfg, exception.NewBatchError("writer", "Failed to decode ParquetItemWriter properties", err, false, false)
	}
	if cfg.StorageRef == "" || cfg.OutputBaseDir == "" {
		return cfg, exception.NewBatchErrorf("writer", "ParquetItemWriter requires 'storageRef' and 'outputBaseDir' properties")
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	if _, err := compressionCodec(cfg.CompressionType); err != nil {
		return cfg, exception.NewBatchError("writer", "Invalid ParquetItemWriter compressionType", err, false, false)
	}
	return cfg, nil
}

// ParquetItemWriter writes every chunk as its own Parquet file, OutputBaseDir/part-NNNNN.parquet.
// The part counter is kept under "<name>.partCount", so a restarted step overwrites the file of
// a chunk that did not commit instead of appending a duplicate.
type ParquetItemWriter[T any] struct {
	name          string
	cfg           ParquetItemWriterConfig
	resolver      storage.StorageConnectionResolver
	itemPrototype *T

	conn      storage.StorageConnection
	codec     parquet.CompressionCodec
	partCount int
}

// NewParquetItemWriter creates a new ParquetItemWriter. itemPrototype supplies the schema
// through the parquet struct tags of T.
func NewParquetItemWriter[T any](name string, cfg ParquetItemWriterConfig, resolver storage.StorageConnectionResolver, itemPrototype *T) *ParquetItemWriter[T] {
	return &ParquetItemWriter[T]{name: name, cfg: cfg, resolver: resolver, itemPrototype: itemPrototype}
}

func (w *ParquetItemWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := w.resolver.ResolveStorageConnection(ctx, w.cfg.StorageRef)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("Failed to resolve storage connection '%s' for ParquetItemWriter '%s'", w.cfg.StorageRef, w.name), err, false, false)
	}
	codec, err := compressionCodec(w.cfg.CompressionType)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("Invalid compression type for ParquetItemWriter '%s'", w.name), err, false, false)
	}
	w.conn, w.codec = conn, codec
	w.partCount, _ = ec.GetInt(w.name + ".partCount")
	logger.Infof("ParquetItemWriter '%s' opened. Target storage: %s, Base directory: %s, next part: %d", w.name, w.cfg.StorageRef, w.cfg.OutputBaseDir, w.partCount)
	return nil
}

// Write encodes items into one Parquet file and uploads it.
func (w *ParquetItemWriter[T]) Write(ctx context.Context, _ tx.Tx, items []T) (err error) {
	if len(items) == 0 {
		return nil
	}
	if w.conn == nil {
		return exception.NewBatchErrorf("writer", "ParquetItemWriter '%s': writer not opened", w.name)
	}
	buf := new(bytes.Buffer)
	pw, err := pqwriter.NewParquetWriterFromWriter(buf, w.itemPrototype, 1)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("Failed to create Parquet writer in ParquetItemWriter '%s'", w.name), err, false, false)
	}
	pw.CompressionType = w.codec
	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("Failed to encode item in ParquetItemWriter '%s'", w.name), err, false, false)
		}
	}

	// The library panics on some schema mismatches.
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("ParquetItemWriter '%s': Recovered from panic during WriteStop: %v", w.name, r)
			err = exception.NewBatchErrorf("writer", "Parquet writer panicked in ParquetItemWriter '%s': %v", w.name, r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("Failed to finish Parquet file in ParquetItemWriter '%s'", w.name), err, false, false)
	}

	object := path.Join(w.cfg.OutputBaseDir, fmt.Sprintf("part-%05d.parquet", w.partCount))
	if err := w.conn.Upload(ctx, w.cfg.Bucket, object, buf, "application/octet-stream"); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("Failed to upload '%s' in ParquetItemWriter '%s'", object, w.name), err, false, true)
	}
	logger.Debugf("ParquetItemWriter '%s': uploaded %d items to %s.", w.name, len(items), object)
	w.partCount++
	return nil
}

func (w *ParquetItemWriter[T]) Close(ctx context.Context) error {
	w.conn = nil
	return nil
}

func (w *ParquetItemWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(w.name+".partCount", w.partCount)
	return ec, nil
}

func compressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

var _ port.ItemWriter[any] = (*ParquetItemWriter[any])(nil)
