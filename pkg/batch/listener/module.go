// Package listener collects the execution listeners contributed by its sub-packages.
package listener

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-batch/pkg/batch/listener/logging"
	"github.com/tigerroll/customer-batch/pkg/batch/listener/metrics"
)

// Value groups listeners join.
const (
	JobListenerGroup   = "job_listeners"
	StepListenerGroup  = "step_listeners"
	ChunkListenerGroup = "chunk_listeners"
)

// Listeners gathers every registered listener. Job definitions attach them to their jobs and steps.
type Listeners struct {
	fx.In
	Job   []port.JobExecutionListener  `group:"job_listeners"`
	Step  []port.StepExecutionListener `group:"step_listeners"`
	Chunk []port.ChunkListener         `group:"chunk_listeners"`
}

// Module registers the logging and metrics listeners.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(logging.NewLoggingJobListener, fx.ResultTags(`group:"`+JobListenerGroup+`"`)),
		fx.Annotate(logging.NewLoggingStepListener, fx.ResultTags(`group:"`+StepListenerGroup+`"`)),
		fx.Annotate(logging.NewLoggingChunkListener, fx.ResultTags(`group:"`+ChunkListenerGroup+`"`)),
		fx.Annotate(metrics.NewMetricsJobListener, fx.ResultTags(`group:"`+JobListenerGroup+`"`)),
		fx.Annotate(metrics.NewMetricsStepListener, fx.ResultTags(`group:"`+StepListenerGroup+`"`)),
		fx.Annotate(metrics.NewMetricsChunkListener, fx.ResultTags(`group:"`+ChunkListenerGroup+`"`)),
	),
)
