package app

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/internal/customer"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	compitem "github.com/tigerroll/customer-batch/pkg/batch/component/item"
	"github.com/tigerroll/customer-batch/pkg/batch/component/step/reader"
	"github.com/tigerroll/customer-batch/pkg/batch/component/step/writer"
	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/customer-batch/pkg/batch/core/job"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	tx "github.com/tigerroll/customer-batch/pkg/batch/core/tx"
	stepitem "github.com/tigerroll/customer-batch/pkg/batch/engine/step/item"
	"github.com/tigerroll/customer-batch/pkg/batch/infrastructure/migration"
	"github.com/tigerroll/customer-batch/pkg/batch/listener"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

const (
	ImportCustomerJobName  = "importCustomerJob"
	ImportCustomerStepName = "importCustomerStep"
	ExportCustomerJobName  = "exportCustomerJob"
	ExportCustomerStepName = "exportCustomerStep"

	// DefaultWorkloadDB is the database connection holding the customer table.
	DefaultWorkloadDB = "workload"

	ExportFormatCSV     = "csv"
	ExportFormatParquet = "parquet"
)

// ImportCustomerSettings is the jobs.importCustomerJob block.
type ImportCustomerSettings struct {
	Database string `yaml:"database"`
	// Reader holds the FlatFileItemReader properties (storageRef, bucket, object, delimiter...).
	Reader map[string]interface{} `yaml:"reader"`
}

// ExportCustomerSettings is the jobs.exportCustomerJob block.
type ExportCustomerSettings struct {
	Database string `yaml:"database"`
	// Format is "csv" (default) or "parquet".
	Format   string `yaml:"format"`
	PageSize int    `yaml:"page_size"`
	// Header disables the CSV header line when false.
	Header *bool                  `yaml:"header"`
	Writer map[string]interface{} `yaml:"writer"`
	// Parquet holds the ParquetItemWriter properties used when Format is "parquet".
	Parquet map[string]interface{} `yaml:"parquet"`
}

// withDefaults returns props with defaults filled in for the keys it does not set.
func withDefaults(props map[string]interface{}, defaults map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props)+len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range props {
		out[k] = v
	}
	return out
}

// LoadImportCustomerSettings decodes jobs.importCustomerJob.
func LoadImportCustomerSettings(cfg *config.Config) (ImportCustomerSettings, error) {
	var s ImportCustomerSettings
	if err := configbinder.BindProperties(cfg.JobSettings(ImportCustomerJobName), &s); err != nil {
		return s, err
	}
	if s.Database == "" {
		s.Database = DefaultWorkloadDB
	}
	s.Reader = withDefaults(s.Reader, map[string]interface{}{"storageRef": "local", "object": "customers.csv"})
	return s, nil
}

// LoadExportCustomerSettings decodes jobs.exportCustomerJob.
func LoadExportCustomerSettings(cfg *config.Config) (ExportCustomerSettings, error) {
	var s ExportCustomerSettings
	if err := configbinder.BindProperties(cfg.JobSettings(ExportCustomerJobName), &s); err != nil {
		return s, err
	}
	if s.Database == "" {
		s.Database = DefaultWorkloadDB
	}
	if s.Format == "" {
		s.Format = ExportFormatCSV
	}
	if s.PageSize < 1 {
		s.PageSize = cfg.Surfin.Batch.ChunkSize
	}
	s.Writer = withDefaults(s.Writer, map[string]interface{}{"storageRef": "local", "object": "export.csv"})
	if s.Header != nil {
		s.Writer["writeHeader"] = *s.Header
	}
	s.Parquet = withDefaults(s.Parquet, map[string]interface{}{"storageRef": "local", "outputBaseDir": "export"})
	return s, nil
}

// JobParams are the dependencies shared by the job definitions.
type JobParams struct {
	fx.In
	Cfg             *config.Config
	Repo            repository.JobRepository
	DBResolver      database.DBConnectionResolver
	StorageResolver storage.StorageConnectionResolver
	TxFactory       tx.TransactionManagerFactory
	Listeners       listener.Listeners
	MetricRecorder  metrics.MetricRecorder
	Tracer          metrics.Tracer
}

func newChunkStep[I, O any](p JobParams, name string, r port.ItemReader[I], proc port.ItemProcessor[I, O], w port.ItemWriter[O], txManager tx.TransactionManager) *stepitem.ChunkStep[I, O] {
	batch := p.Cfg.Surfin.Batch
	step := stepitem.NewChunkStep(name, r, proc, w, batch.ChunkSize, p.Repo, txManager, stepitem.NewSimpleAsyncTaskExecutor(batch.ConcurrencyLimit))
	step.SetStepListeners(p.Listeners.Step)
	step.SetChunkListeners(p.Listeners.Chunk)
	step.SetMetricRecorder(p.MetricRecorder)
	step.SetTracer(p.Tracer)
	return step
}

// NewImportCustomerJob builds importCustomerJob: customer CSV -> pass-through -> customer table.
func NewImportCustomerJob(p JobParams) (port.Job, error) {
	s, err := LoadImportCustomerSettings(p.Cfg)
	if err != nil {
		return nil, fmt.Errorf("job '%s': %w", ImportCustomerJobName, err)
	}
	readerCfg, err := reader.DecodeFlatFileItemReaderConfig(s.Reader)
	if err != nil {
		return nil, fmt.Errorf("job '%s': %w", ImportCustomerJobName, err)
	}

	step := newChunkStep[customer.Customer, customer.Customer](p, ImportCustomerStepName,
		reader.NewFlatFileItemReader[customer.Customer]("customerFileReader", readerCfg, p.StorageResolver, customer.MapFieldSet),
		compitem.NewPassThroughItemProcessor[customer.Customer](),
		writer.NewSQLUpsertItemWriter[customer.Customer]("customerTableWriter", customer.Customer{}.TableName(), []string{customer.KeyColumn}, customer.UpdateColumns),
		p.TxFactory.NewTransactionManager(s.Database),
	)
	logger.Debugf("Job '%s' defined: %s/%v -> %s.%s.", ImportCustomerJobName, readerCfg.StorageRef, readerCfg.Object, s.Database, customer.Customer{}.TableName())
	return job.NewSimpleJob(ImportCustomerJobName, []port.Step{step}, p.Repo, p.Listeners.Job, p.Tracer), nil
}

// NewExportCustomerJob builds exportCustomerJob: customer table in key order -> pass-through -> CSV or Parquet.
// The step has no transactional resource; the writers make their output durable themselves.
func NewExportCustomerJob(p JobParams) (port.Job, error) {
	s, err := LoadExportCustomerSettings(p.Cfg)
	if err != nil {
		return nil, fmt.Errorf("job '%s': %w", ExportCustomerJobName, err)
	}

	var w port.ItemWriter[customer.Customer]
	switch s.Format {
	case ExportFormatCSV:
		wc, err := writer.DecodeFlatFileItemWriterConfig(s.Writer)
		if err != nil {
			return nil, fmt.Errorf("job '%s': %w", ExportCustomerJobName, err)
		}
		w = writer.NewFlatFileItemWriter[customer.Customer]("customerFileWriter", wc, p.StorageResolver, customer.Fields, customer.AggregateLine)
	case ExportFormatParquet:
		pc, err := writer.DecodeParquetItemWriterConfig(s.Parquet)
		if err != nil {
			return nil, fmt.Errorf("job '%s': %w", ExportCustomerJobName, err)
		}
		w = writer.NewParquetItemWriter[customer.Customer]("customerParquetWriter", pc, p.StorageResolver, new(customer.Customer))
	default:
		return nil, fmt.Errorf("job '%s': unknown export format '%s'", ExportCustomerJobName, s.Format)
	}

	step := newChunkStep[customer.Customer, customer.Customer](p, ExportCustomerStepName,
		reader.NewSQLPagingItemReader[customer.Customer]("customerTableReader", p.DBResolver, s.Database, customer.Customer{}.TableName(), customer.KeyColumn, s.PageSize),
		compitem.NewPassThroughItemProcessor[customer.Customer](),
		w,
		nil,
	)
	return job.NewSimpleJob(ExportCustomerJobName, []port.Step{step}, p.Repo, p.Listeners.Job, p.Tracer), nil
}

// NewCustomerMigrationTarget creates the customer table on the import job's database.
func NewCustomerMigrationTarget(cfg *config.Config) (migration.Target, error) {
	s, err := LoadImportCustomerSettings(cfg)
	if err != nil {
		return migration.Target{}, err
	}
	return customer.NewMigrationTarget(s.Database), nil
}
