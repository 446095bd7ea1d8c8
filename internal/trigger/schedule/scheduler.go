// Package schedule is the cron trigger: it launches one job on a six-field cron
// expression (seconds first) evaluated in the configured timezone.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	usecase "github.com/tigerroll/customer-batch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/core/support/incrementer"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// TimeParameter is the JobParameters key a scheduled launch sets to the firing time.
const TimeParameter = "time"

// Scheduler fires a job launch on a cron schedule.
type Scheduler struct {
	cron        *cron.Cron
	entryID     cron.EntryID
	operator    usecase.JobOperator
	jobName     string
	incrementer port.JobParametersIncrementer
}

// NewScheduler parses sc.Cron and registers the launch of sc.JobName. Overlapping
// firings are skipped while a previous launch is still running.
func NewScheduler(sc config.ScheduleTriggerConfig, timezone string, operator usecase.JobOperator) (*Scheduler, error) {
	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone '%s': %w", timezone, err)
		}
		loc = l
	}

	cl := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(config.CronParser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		operator:    operator,
		jobName:     sc.JobName,
		incrementer: incrementer.NewDateTimeIncrementer(TimeParameter, incrementer.DefaultDateTimeLayout, loc),
	}
	id, err := s.cron.AddFunc(sc.Cron, s.Fire)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression '%s': %w", sc.Cron, err)
	}
	s.entryID = id
	return s, nil
}

// Fire launches the job once. Refusals and failures are logged, never propagated.
func (s *Scheduler) Fire() {
	params := s.incrementer.GetNext(model.NewJobParameters())
	logger.Infof("Schedule trigger: Launching job '%s'.", s.jobName)

	je, err := s.operator.Start(context.Background(), s.jobName, params)
	if err != nil {
		logger.Errorf("Schedule trigger: launch of '%s' refused: %v", s.jobName, err)
		return
	}
	if je.Status != model.BatchStatusCompleted {
		logger.Errorf("Schedule trigger: Job '%s' (Execution ID: %s) ended %s: %v", je.JobName, je.ID, je.Status, je.Failures)
		return
	}
	logger.Infof("Schedule trigger: Job '%s' (Execution ID: %s) completed.", je.JobName, je.ID)
}

// Next returns the first firing time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.cron.Entry(s.entryID).Schedule.Next(t)
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Infof("Schedule trigger: Job '%s' scheduled, next run at %s.", s.jobName, s.Next(time.Now()).Format(time.RFC3339))
}

// Stop stops firing and waits for a running launch until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's own messages to the batch logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debugf("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}

// SchedulerParams are the dependencies of the schedule trigger.
type SchedulerParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Cfg       *config.Config
	Operator  usecase.JobOperator
}

// NewLifecycleScheduler builds the Scheduler and starts it with the application.
// It returns nil when the trigger is disabled.
func NewLifecycleScheduler(p SchedulerParams) (*Scheduler, error) {
	sc := p.Cfg.Surfin.Trigger.Schedule
	if !sc.Enabled {
		logger.Infof("Schedule trigger: Disabled.")
		return nil, nil
	}
	s, err := NewScheduler(sc, p.Cfg.Surfin.System.Timezone, p.Operator)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: s.Stop,
	})
	return s, nil
}

// Module starts the schedule trigger when surfin.trigger.schedule.enabled is set.
var Module = fx.Options(
	fx.Provide(NewLifecycleScheduler),
	fx.Invoke(func(*Scheduler) {}),
)
