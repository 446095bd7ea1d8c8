// Package writer provides the item writers of chunk steps.
package writer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	"github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/core/tx"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// LineAggregator renders an item as the fields of one line.
type LineAggregator[T any] func(item T) []string

// FlatFileItemWriterConfig holds the configuration for FlatFileItemWriter.
type FlatFileItemWriterConfig struct {
	// StorageRef is the name of the storage connection to write to.
	StorageRef string `mapstructure:"storageRef"`
	Bucket     string `mapstructure:"bucket"`
	// Object is the object (file) name within the bucket.
	Object string `mapstructure:"object"`
	// Delimiter separates the fields of a line. Defaults to ",".
	Delimiter string `mapstructure:"delimiter"`
	// WriteHeader emits the header line first. Defaults to true.
	WriteHeader *bool `mapstructure:"writeHeader"`
}

// DecodeFlatFileItemWriterConfig decodes properties into a config with defaults applied.
func DecodeFlatFileItemWriterConfig(properties map[string]interface{}) (FlatFileItemWriterConfig, error) {
	var cfg FlatFileItemWriterConfig
	if err := mapstructure.Decode(properties, &cfg); err != nil {
		return cfg, exception.NewBatchError("writer", "Failed to decode FlatFileItemWriter properties", err, false, false)
	}
	if cfg.Delimiter == "" {
		cfg.Delimiter = ","
	}
	if cfg.WriteHeader == nil {
		yes := true
		cfg.WriteHeader = &yes
	}
	if cfg.StorageRef == "" || cfg.Object == "" {
		return cfg, exception.NewBatchErrorf("writer", "FlatFileItemWriter requires 'storageRef' and 'object' properties")
	}
	if len([]rune(cfg.Delimiter)) != 1 {
		return cfg, exception.NewBatchErrorf("writer", "FlatFileItemWriter delimiter must be a single character, got %q", cfg.Delimiter)
	}
	return cfg, nil
}

// FlatFileItemWriter streams delimited lines into an object of a storage connection.
// Lines are flushed at the end of every Write; the object is complete once Close returns.
// The number of lines written is kept under "<name>.writeCount". A restarted writer keeps
// the header and that many lines of the existing object and drops the rest, which may
// belong to a chunk that never committed.
type FlatFileItemWriter[T any] struct {
	name       string
	cfg        FlatFileItemWriterConfig
	resolver   storage.StorageConnectionResolver
	header     []string
	aggregator LineAggregator[T]

	pipe       *io.PipeWriter
	csv        *csv.Writer
	uploadDone chan error
	writeCount int
}

// NewFlatFileItemWriter creates a new FlatFileItemWriter. header is written first when the config asks for it.
func NewFlatFileItemWriter[T any](name string, cfg FlatFileItemWriterConfig, resolver storage.StorageConnectionResolver, header []string, aggregator LineAggregator[T]) *FlatFileItemWriter[T] {
	return &FlatFileItemWriter[T]{name: name, cfg: cfg, resolver: resolver, header: header, aggregator: aggregator}
}

func (w *FlatFileItemWriter[T]) writeCountKey() string {
	return w.name + ".writeCount"
}

// Open starts the upload and writes the header, or on restart the committed prefix of the previous object.
func (w *FlatFileItemWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := w.resolver.ResolveStorageConnection(ctx, w.cfg.StorageRef)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("Failed to resolve storage connection '%s' for FlatFileItemWriter '%s'", w.cfg.StorageRef, w.name), err, false, false)
	}

	restored, _ := ec.GetInt(w.writeCountKey())
	var prefix [][]string
	if restored > 0 {
		if prefix, err = w.committedPrefix(ctx, conn, restored); err != nil {
			return err
		}
		logger.Infof("FlatFileItemWriter '%s': Resuming '%s' after %d lines.", w.name, w.cfg.Object, restored)
	} else if *w.cfg.WriteHeader && len(w.header) > 0 {
		prefix = [][]string{w.header}
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	uploadCtx := context.WithoutCancel(ctx)
	go func() {
		err := conn.Upload(uploadCtx, w.cfg.Bucket, w.cfg.Object, pr, "text/csv")
		pr.CloseWithError(err)
		done <- err
	}()

	w.pipe, w.uploadDone = pw, done
	w.csv = csv.NewWriter(pw)
	w.csv.Comma = []rune(w.cfg.Delimiter)[0]
	w.writeCount = restored
	if err := w.csv.WriteAll(prefix); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("Failed to start '%s'", w.cfg.Object), err, false, true)
	}
	logger.Infof("FlatFileItemWriter '%s': Writing '%s' to storage '%s'.", w.name, w.cfg.Object, w.cfg.StorageRef)
	return nil
}

// committedPrefix reads the header and the first n lines of the existing object.
func (w *FlatFileItemWriter[T]) committedPrefix(ctx context.Context, conn storage.StorageConnection, n int) ([][]string, error) {
	body, err := conn.Download(ctx, w.cfg.Bucket, w.cfg.Object)
	if err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("FlatFileItemWriter '%s': cannot restart, '%s' is unreadable", w.name, w.cfg.Object), err, false, false)
	}
	defer body.Close()

	r := csv.NewReader(body)
	r.Comma = []rune(w.cfg.Delimiter)[0]
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	want := n
	if *w.cfg.WriteHeader && len(w.header) > 0 {
		want++
	}
	lines := make([][]string, 0, want)
	for len(lines) < want {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil, exception.NewBatchErrorf("writer", "FlatFileItemWriter '%s': '%s' has %d lines, checkpoint expects %d", w.name, w.cfg.Object, len(lines), want)
		}
		if err != nil {
			return nil, exception.NewBatchError("writer", fmt.Sprintf("FlatFileItemWriter '%s': failed to read '%s'", w.name, w.cfg.Object), err, false, false)
		}
		lines = append(lines, rec)
	}
	return lines, nil
}

// Write appends one line per item and flushes them to the upload stream.
// The storage object is not transactional, so tx is not used.
func (w *FlatFileItemWriter[T]) Write(ctx context.Context, _ tx.Tx, items []T) error {
	if w.csv == nil {
		return exception.NewBatchErrorf("writer", "FlatFileItemWriter '%s': writer not opened", w.name)
	}
	for _, item := range items {
		if err := w.csv.Write(w.aggregator(item)); err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("Failed to write line to '%s'", w.cfg.Object), err, false, true)
		}
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("Failed to flush '%s'", w.cfg.Object), err, false, true)
	}
	w.writeCount += len(items)
	return nil
}

// Close ends the stream and waits for the upload to finish.
func (w *FlatFileItemWriter[T]) Close(ctx context.Context) error {
	if w.pipe == nil {
		return nil
	}
	var result error
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := w.pipe.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := <-w.uploadDone; err != nil {
		result = multierror.Append(result, exception.NewBatchError("writer", fmt.Sprintf("Failed to upload '%s' to storage '%s'", w.cfg.Object, w.cfg.StorageRef), err, false, true))
	} else {
		logger.Infof("FlatFileItemWriter '%s': Uploaded '%s' (%d lines).", w.name, w.cfg.Object, w.writeCount)
	}
	w.pipe, w.csv, w.uploadDone = nil, nil, nil
	return result
}

// GetExecutionContext returns the number of lines written.
func (w *FlatFileItemWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(w.writeCountKey(), w.writeCount)
	return ec, nil
}

var _ port.ItemWriter[any] = (*FlatFileItemWriter[any])(nil)
