package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	usecase "github.com/tigerroll/customer-batch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

func TestLoadImportCustomerSettings_Defaults(t *testing.T) {
	s, err := LoadImportCustomerSettings(config.NewConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkloadDB, s.Database)
	assert.Equal(t, "local", s.Reader["storageRef"])
	assert.Equal(t, "customers.csv", s.Reader["object"])
}

func TestLoadExportCustomerSettings_Overrides(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Jobs[ExportCustomerJobName] = map[string]interface{}{
		"database":  "warehouse",
		"format":    "parquet",
		"page_size": "50",
		"header":    false,
		"writer":    map[string]interface{}{"object": "out/customers.csv"},
	}

	s, err := LoadExportCustomerSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, "warehouse", s.Database)
	assert.Equal(t, ExportFormatParquet, s.Format)
	assert.Equal(t, 50, s.PageSize)
	assert.Equal(t, "out/customers.csv", s.Writer["object"])
	assert.Equal(t, "local", s.Writer["storageRef"])
	assert.Equal(t, false, s.Writer["writeHeader"])
	assert.Equal(t, "export", s.Parquet["outputBaseDir"])

	cfg.Jobs[ExportCustomerJobName] = map[string]interface{}{}
	s, err = LoadExportCustomerSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, ExportFormatCSV, s.Format)
	assert.Equal(t, cfg.Surfin.Batch.ChunkSize, s.PageSize)
}

const appYAML = `
surfin:
  system:
    logging:
      level: WARN
  trigger:
    http:
      enabled: false
    schedule:
      enabled: false
  database:
    metadata:
      type: sqlite
      database: %[1]s/metadata.db
    workload:
      type: sqlite
      database: %[1]s/workload.db
  storage:
    local:
      type: local
      base_dir: %[1]s/files
jobs:
  exportCustomerJob:
    format: %[2]s
`

func startApp(t *testing.T, dir, format string) usecase.JobOperator {
	t.Helper()
	var op usecase.JobOperator
	app := fxtest.New(t,
		fx.Supply(config.EmbeddedConfig(fmt.Sprintf(appYAML, dir, format))),
		Module,
		fx.Populate(&op),
	)
	app.RequireStart()
	t.Cleanup(app.RequireStop)
	return op
}

func writeCustomers(t *testing.T, dir string, n int) []string {
	t.Helper()
	lines := []string{"id,firstName,lastName,email,gender,contactNo,country,dob"}
	for i := 1; i <= n; i++ {
		lines = append(lines, fmt.Sprintf("%04d,First%d,Last%d,c%d@example.com,F,555-%04d,JP,1990-01-%02d", i, i, i, i, i, i%28+1))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "files"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "files", "customers.csv"), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return lines
}

func launchParams(startAt int64) model.JobParameters {
	p := model.NewJobParameters()
	p.Put("startAt", startAt)
	return p
}

func TestApplication_ImportThenExport(t *testing.T) {
	dir := t.TempDir()
	lines := writeCustomers(t, dir, 25)
	op := startApp(t, dir, ExportFormatCSV)
	ctx := context.Background()

	assert.Equal(t, []string{ExportCustomerJobName, ImportCustomerJobName}, op.JobNames())

	imported, err := op.Start(ctx, ImportCustomerJobName, launchParams(1))
	require.NoError(t, err)
	require.Equal(t, model.BatchStatusCompleted, imported.Status, imported.Failures)
	require.Len(t, imported.StepExecutions, 1)
	assert.Equal(t, 25, imported.StepExecutions[0].ReadCount)
	assert.Equal(t, 25, imported.StepExecutions[0].WriteCount)
	assert.Equal(t, 3, imported.StepExecutions[0].CommitCount)

	_, err = op.Start(ctx, ImportCustomerJobName, launchParams(1))
	assert.ErrorIs(t, err, usecase.ErrJobAlreadyComplete)

	// importing the same file again upserts in place
	again, err := op.Start(ctx, ImportCustomerJobName, launchParams(2))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, again.Status)

	exported, err := op.Start(ctx, ExportCustomerJobName, launchParams(3))
	require.NoError(t, err)
	require.Equal(t, model.BatchStatusCompleted, exported.Status, exported.Failures)
	assert.Equal(t, 25, exported.StepExecutions[0].WriteCount)

	out, err := os.ReadFile(filepath.Join(dir, "files", "export.csv"))
	require.NoError(t, err)
	assert.Equal(t, lines, strings.Split(strings.TrimRight(string(out), "\n"), "\n"))

	found, err := op.GetExecution(ctx, exported.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, found.Status)
	assert.Len(t, found.StepExecutions, 1)
}

func TestApplication_ParquetExport(t *testing.T) {
	dir := t.TempDir()
	writeCustomers(t, dir, 12)
	op := startApp(t, dir, ExportFormatParquet)
	ctx := context.Background()

	imported, err := op.Start(ctx, ImportCustomerJobName, launchParams(1))
	require.NoError(t, err)
	require.Equal(t, model.BatchStatusCompleted, imported.Status, imported.Failures)

	exported, err := op.Start(ctx, ExportCustomerJobName, launchParams(2))
	require.NoError(t, err)
	require.Equal(t, model.BatchStatusCompleted, exported.Status, exported.Failures)

	parts, err := filepath.Glob(filepath.Join(dir, "files", "export", "part-*.parquet"))
	require.NoError(t, err)
	assert.Len(t, parts, 2)
}

func TestApplication_MissingInputFails(t *testing.T) {
	dir := t.TempDir()
	op := startApp(t, dir, ExportFormatCSV)

	je, err := op.Start(context.Background(), ImportCustomerJobName, launchParams(1))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.NotEmpty(t, je.Failures)
}
