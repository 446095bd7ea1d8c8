// Package reader provides the item readers of chunk steps: a delimited flat file read
// through a storage connection and a keyset-paged database table.
package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/mitchellh/mapstructure"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	"github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// FieldSetMapper maps the tokens of one line to an item.
type FieldSetMapper[T any] func(tokens []string) (T, error)

// FlatFileItemReaderConfig holds the configuration for FlatFileItemReader.
type FlatFileItemReaderConfig struct {
	// StorageRef is the name of the storage connection to read from.
	StorageRef string `mapstructure:"storageRef"`
	// Bucket overrides the bucket of the storage connection.
	Bucket string `mapstructure:"bucket"`
	// Object is the object (file) name within the bucket.
	Object string `mapstructure:"object"`
	// Delimiter separates the fields of a line. Defaults to ",".
	Delimiter string `mapstructure:"delimiter"`
	// LinesToSkip is the number of leading lines (the header) to discard. Defaults to 1.
	LinesToSkip *int `mapstructure:"linesToSkip"`
	// Strict rejects lines whose token count differs from FieldCount.
	Strict bool `mapstructure:"strict"`
	// FieldCount is the expected number of tokens per line.
	FieldCount int `mapstructure:"fieldCount"`
}

// DecodeFlatFileItemReaderConfig decodes properties into a config with defaults applied.
func DecodeFlatFileItemReaderConfig(properties map[string]interface{}) (FlatFileItemReaderConfig, error) {
	var cfg FlatFileItemReaderConfig
	if err := mapstructure.Decode(properties, &cfg); err != nil {
		return cfg, exception.NewBatchError("reader", "Failed to decode FlatFileItemReader properties", err, false, false)
	}
	if cfg.Delimiter == "" {
		cfg.Delimiter = ","
	}
	if cfg.LinesToSkip == nil {
		one := 1
		cfg.LinesToSkip = &one
	}
	if cfg.StorageRef == "" || cfg.Object == "" {
		return cfg, exception.NewBatchErrorf("reader", "FlatFileItemReader requires 'storageRef' and 'object' properties")
	}
	if len([]rune(cfg.Delimiter)) != 1 {
		return cfg, exception.NewBatchErrorf("reader", "FlatFileItemReader delimiter must be a single character, got %q", cfg.Delimiter)
	}
	return cfg, nil
}

// FlatFileItemReader reads delimited lines from an object in a storage connection.
// The number of items read is kept in the ExecutionContext under "<name>.readCount";
// a restarted reader skips that many lines after the header.
type FlatFileItemReader[T any] struct {
	name     string
	cfg      FlatFileItemReaderConfig
	resolver storage.StorageConnectionResolver
	mapper   FieldSetMapper[T]

	body      io.ReadCloser
	csv       *csv.Reader
	readCount int
}

// NewFlatFileItemReader creates a new FlatFileItemReader.
func NewFlatFileItemReader[T any](name string, cfg FlatFileItemReaderConfig, resolver storage.StorageConnectionResolver, mapper FieldSetMapper[T]) *FlatFileItemReader[T] {
	return &FlatFileItemReader[T]{name: name, cfg: cfg, resolver: resolver, mapper: mapper}
}

func (r *FlatFileItemReader[T]) readCountKey() string {
	return r.name + ".readCount"
}

// Open downloads the object, skips the header and, on restart, the lines already read.
func (r *FlatFileItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := r.resolver.ResolveStorageConnection(ctx, r.cfg.StorageRef)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("Failed to resolve storage connection '%s' for FlatFileItemReader '%s'", r.cfg.StorageRef, r.name), err, false, false)
	}
	body, err := conn.Download(ctx, r.cfg.Bucket, r.cfg.Object)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("Failed to open '%s' for FlatFileItemReader '%s'", r.cfg.Object, r.name), err, false, true)
	}
	r.body = body
	r.csv = csv.NewReader(body)
	r.csv.Comma = []rune(r.cfg.Delimiter)[0]
	r.csv.FieldsPerRecord = -1
	r.csv.LazyQuotes = true

	for i := 0; i < *r.cfg.LinesToSkip; i++ {
		if _, err := r.csv.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return exception.NewBatchError("reader", fmt.Sprintf("Failed to skip header of '%s'", r.cfg.Object), err, false, false)
		}
	}

	r.readCount = 0
	restored, _ := ec.GetInt(r.readCountKey())
	for r.readCount < restored {
		if _, err := r.csv.Read(); err != nil {
			return exception.NewBatchError("reader", fmt.Sprintf("FlatFileItemReader '%s': failed to skip to restart position %d (at %d)", r.name, restored, r.readCount), err, false, false)
		}
		r.readCount++
	}
	if restored > 0 {
		logger.Infof("FlatFileItemReader '%s': Resuming '%s' after %d lines.", r.name, r.cfg.Object, restored)
	} else {
		logger.Infof("FlatFileItemReader '%s': Reading '%s' from storage '%s'.", r.name, r.cfg.Object, r.cfg.StorageRef)
	}
	return nil
}

// Read returns the next line mapped to an item, or port.ErrNoMoreItems.
func (r *FlatFileItemReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.csv == nil {
		return zero, exception.NewBatchErrorf("reader", "FlatFileItemReader '%s': reader not opened", r.name)
	}
	tokens, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return zero, port.ErrNoMoreItems
	}
	line, _ := r.csv.FieldPos(0)
	if err != nil {
		return zero, exception.NewBatchError("reader", fmt.Sprintf("Malformed line %d in '%s'", line, r.cfg.Object), err, false, false)
	}
	if r.cfg.Strict && r.cfg.FieldCount > 0 && len(tokens) != r.cfg.FieldCount {
		return zero, exception.NewBatchErrorf("reader", "Line %d in '%s' has %d fields, expected %d", line, r.cfg.Object, len(tokens), r.cfg.FieldCount)
	}
	item, err := r.mapper(tokens)
	if err != nil {
		return zero, exception.NewBatchError("reader", fmt.Sprintf("Failed to map line %d in '%s'", line, r.cfg.Object), err, false, false)
	}
	r.readCount++
	return item, nil
}

// Close releases the download stream.
func (r *FlatFileItemReader[T]) Close(ctx context.Context) error {
	r.csv = nil
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("Failed to close '%s'", r.cfg.Object), err, false, false)
	}
	return nil
}

// GetExecutionContext returns the read position.
func (r *FlatFileItemReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(r.readCountKey(), r.readCount)
	return ec, nil
}

var _ port.ItemReader[any] = (*FlatFileItemReader[any])(nil)
