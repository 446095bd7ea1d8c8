package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

func finishedStep(t *testing.T) (*model.JobExecution, *model.StepExecution) {
	t.Helper()
	je := model.NewJobExecution("instance", "importCustomerJob", model.NewJobParameters())
	se := model.NewStepExecution(model.NewID(), je, "importCustomerStep")
	je.AddStepExecution(se)
	se.MarkAsStarted()
	se.MarkAsCompleted()
	je.MarkAsStarted()
	je.MarkAsCompleted()
	return je, se
}

func TestPrometheusRecorder_CountsChunkActivity(t *testing.T) {
	r := NewPrometheusRecorder()
	je, se := finishedStep(t)
	ctx := port.GetContextWithStepExecution(context.Background(), se)

	r.RecordItemRead(ctx, se.StepName, 10)
	r.RecordItemRead(ctx, se.StepName, 5)
	r.RecordItemWrite(ctx, se.StepName, 15)
	r.RecordChunkCommit(ctx, se.StepName, 10)
	r.RecordChunkCommit(ctx, se.StepName, 5)
	r.RecordChunkRollback(ctx, se.StepName, "SinkWriteError")
	r.RecordStepEnd(ctx, se)
	r.RecordJobEnd(ctx, je)
	r.RecordLaunchRejected(ctx, je.JobName, "already_running")

	assert.Equal(t, 15.0, testutil.ToFloat64(r.stepReadCount.WithLabelValues("importCustomerJob", "importCustomerStep")))
	assert.Equal(t, 15.0, testutil.ToFloat64(r.stepWriteCount.WithLabelValues("importCustomerJob", "importCustomerStep")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.stepCommitCount.WithLabelValues("importCustomerJob", "importCustomerStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepRollbackCount.WithLabelValues("importCustomerJob", "importCustomerStep", "SinkWriteError")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobStatusCounter.WithLabelValues("importCustomerJob", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.launchRejected.WithLabelValues("importCustomerJob", "already_running")))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "batch_step_commit_total"))
}

func TestPrometheusRecorder_UnknownJobWithoutStepInContext(t *testing.T) {
	r := NewPrometheusRecorder()
	r.RecordItemRead(context.Background(), "s", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepReadCount.WithLabelValues("unknown", "s")))
}

func TestOpenTelemetryRecorder_ExportsCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewOpenTelemetryRecorder(provider)
	require.NoError(t, err)

	je, se := finishedStep(t)
	ctx := port.GetContextWithStepExecution(context.Background(), se)
	r.RecordItemWrite(ctx, se.StepName, 10)
	r.RecordItemWrite(ctx, se.StepName, 5)
	r.RecordJobEnd(ctx, je)
	r.RecordDuration(ctx, "chunk_write", 20*time.Millisecond, map[string]string{"step_name": se.StepName})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name == "batch.items.written" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Len(t, sum.DataPoints, 1)
				assert.Equal(t, int64(15), sum.DataPoints[0].Value)
			}
		}
	}
	assert.True(t, found["batch.items.written"])
	assert.True(t, found["batch.job.duration"])
	assert.True(t, found["batch.operation.duration"])
}

func TestOpenTelemetryTracer_RecordsJobAndStepSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := NewOpenTelemetryTracer(provider)

	je := model.NewJobExecution("instance", "exportCustomerJob", model.NewJobParameters())
	se := model.NewStepExecution(model.NewID(), je, "exportCustomerStep")

	ctx, endJob := tracer.StartJobSpan(context.Background(), je)
	stepCtx, endStep := tracer.StartStepSpan(ctx, se)
	tracer.RecordEvent(stepCtx, "chunk_committed", map[string]interface{}{"chunk": 1, "items": 10})
	tracer.RecordError(stepCtx, "chunk_step", errors.New("sink down"))
	se.MarkAsFailed(errors.New("sink down"))
	endStep()
	je.MarkAsFailed(errors.New("sink down"))
	endJob()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "step exportCustomerStep", spans[0].Name())
	assert.Equal(t, "job exportCustomerJob", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Len(t, spans[0].Events(), 2) // the event and the recorded error
}
