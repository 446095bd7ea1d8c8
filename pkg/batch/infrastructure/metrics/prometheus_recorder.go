package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Job Metrics
	jobDurationSeconds *prometheus.HistogramVec
	jobStatusCounter   *prometheus.CounterVec
	launchRejected     *prometheus.CounterVec

	// Step Metrics
	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	stepReadCount       *prometheus.CounterVec
	stepProcessCount    *prometheus.CounterVec
	stepWriteCount      *prometheus.CounterVec
	stepCommitCount     *prometheus.CounterVec
	stepRollbackCount   *prometheus.CounterVec

	operationDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a PrometheusRecorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration of batch job executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "status", "exit_status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_job_status_total",
			Help: "Total number of batch job executions by final status.",
		}, []string{"job_name", "status"}),
		launchRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_job_launch_rejected_total",
			Help: "Total number of launches refused before execution.",
		}, []string{"job_name", "reason"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_duration_seconds",
			Help:    "Duration of batch step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status", "exit_status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_status_total",
			Help: "Total number of batch step executions by final status.",
		}, []string{"job_name", "step_name", "status"}),
		stepReadCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_read_total",
			Help: "Total items read by step.",
		}, []string{"job_name", "step_name"}),
		stepProcessCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_process_total",
			Help: "Total items transformed by step.",
		}, []string{"job_name", "step_name"}),
		stepWriteCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_write_total",
			Help: "Total items written by step.",
		}, []string{"job_name", "step_name"}),
		stepCommitCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_commit_total",
			Help: "Total chunk commits by step.",
		}, []string{"job_name", "step_name"}),
		stepRollbackCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_rollback_total",
			Help: "Total failed chunks by step and error kind.",
		}, []string{"job_name", "step_name", "kind"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_operation_duration_seconds",
			Help:    "Duration of named batch operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name", "step_name"}),
	}

	registry.MustRegister(
		r.jobDurationSeconds,
		r.jobStatusCounter,
		r.launchRejected,
		r.stepDurationSeconds,
		r.stepStatusCounter,
		r.stepReadCount,
		r.stepProcessCount,
		r.stepWriteCount,
		r.stepCommitCount,
		r.stepRollbackCount,
		r.operationDuration,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordJobStart records the start of a JobExecution.
func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	logger.Debugf("Metrics: Job '%s' started.", execution.JobName)
}

// RecordJobEnd records the final status and duration of a JobExecution.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.jobStatusCounter.WithLabelValues(execution.JobName, execution.Status.String()).Inc()
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	r.jobDurationSeconds.WithLabelValues(
		execution.JobName,
		execution.Status.String(),
		execution.ExitStatus.String(),
	).Observe(duration)
	logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", execution.JobName, duration)
}

// RecordStepStart records the start of a StepExecution.
func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	logger.Debugf("Metrics: Step '%s' started.", execution.StepName)
}

// RecordStepEnd records the final status and duration of a StepExecution.
// Item counters are incremented per chunk, not here.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	jobName := stepJobName(execution)
	r.stepStatusCounter.WithLabelValues(jobName, execution.StepName, execution.Status.String()).Inc()
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	r.stepDurationSeconds.WithLabelValues(
		jobName,
		execution.StepName,
		execution.Status.String(),
		execution.ExitStatus.String(),
	).Observe(duration)
	logger.Debugf("Metrics: Step '%s' ended. Duration: %.3fs", execution.StepName, duration)
}

func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.stepReadCount.WithLabelValues(jobNameFromContext(ctx), stepName).Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemProcess(ctx context.Context, stepName string, count int) {
	r.stepProcessCount.WithLabelValues(jobNameFromContext(ctx), stepName).Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.stepWriteCount.WithLabelValues(jobNameFromContext(ctx), stepName).Add(float64(count))
}

func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.stepCommitCount.WithLabelValues(jobNameFromContext(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordChunkRollback(ctx context.Context, stepName string, kind string) {
	r.stepRollbackCount.WithLabelValues(jobNameFromContext(ctx), stepName, kind).Inc()
}

func (r *PrometheusRecorder) RecordLaunchRejected(ctx context.Context, jobName string, reason string) {
	r.launchRejected.WithLabelValues(jobName, reason).Inc()
}

// RecordDuration observes duration under the "name" and "step_name" labels. Other tags are ignored.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDuration.WithLabelValues(name, tags["step_name"]).Observe(duration.Seconds())
}

func stepJobName(se *model.StepExecution) string {
	if se != nil && se.JobExecution != nil {
		return se.JobExecution.JobName
	}
	return "unknown"
}

func jobNameFromContext(ctx context.Context) string {
	return stepJobName(port.GetStepExecutionFromContext(ctx))
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
