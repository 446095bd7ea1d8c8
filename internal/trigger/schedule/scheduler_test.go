package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	usecase "github.com/tigerroll/customer-batch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	incrementer "github.com/tigerroll/customer-batch/pkg/batch/core/support/incrementer"
)

type recordingOperator struct {
	usecase.JobOperator
	mu     sync.Mutex
	err    error
	status model.JobStatus
	jobs   []string
	params []model.JobParameters
}

func (o *recordingOperator) Start(_ context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs = append(o.jobs, jobName)
	o.params = append(o.params, params)
	if o.err != nil {
		return nil, o.err
	}
	je := model.NewJobExecution("instance-1", jobName, params)
	je.Status = o.status
	return je, nil
}

func defaultSchedule() config.ScheduleTriggerConfig {
	return config.NewConfig().Surfin.Trigger.Schedule
}

func TestScheduler_DefaultsToMidnightExport(t *testing.T) {
	s, err := NewScheduler(defaultSchedule(), "Asia/Tokyo", &recordingOperator{})
	require.NoError(t, err)

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	next := s.Next(time.Date(2024, 1, 1, 13, 30, 0, 0, tokyo))
	assert.True(t, next.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, tokyo)), "got %s", next)
	assert.Equal(t, "exportCustomerJob", s.jobName)
}

func TestScheduler_FireLaunchesWithTimeParameter(t *testing.T) {
	op := &recordingOperator{status: model.BatchStatusCompleted}
	s, err := NewScheduler(defaultSchedule(), "UTC", op)
	require.NoError(t, err)

	s.Fire()

	require.Len(t, op.jobs, 1)
	assert.Equal(t, "exportCustomerJob", op.jobs[0])
	v, ok := op.params[0].GetString(TimeParameter)
	require.True(t, ok)
	_, err = time.Parse(incrementer.DefaultDateTimeLayout, v)
	assert.NoError(t, err)
}

func TestScheduler_FireSwallowsErrors(t *testing.T) {
	for _, op := range []*recordingOperator{
		{err: usecase.ErrJobAlreadyRunning},
		{err: errors.New("repository down")},
		{status: model.BatchStatusFailed},
	} {
		s, err := NewScheduler(defaultSchedule(), "", op)
		require.NoError(t, err)
		assert.NotPanics(t, s.Fire)
		assert.Len(t, op.jobs, 1)
	}
}

func TestScheduler_RejectsBadConfig(t *testing.T) {
	sc := defaultSchedule()
	sc.Cron = "0 0 * *"
	_, err := NewScheduler(sc, "UTC", &recordingOperator{})
	assert.ErrorContains(t, err, "invalid cron expression")

	_, err = NewScheduler(defaultSchedule(), "Mars/Olympus", &recordingOperator{})
	assert.ErrorContains(t, err, "invalid timezone")
}

func TestScheduler_StartStop(t *testing.T) {
	sc := defaultSchedule()
	sc.Cron = "* * * * * *"
	op := &recordingOperator{status: model.BatchStatusCompleted}
	s, err := NewScheduler(sc, "UTC", op)
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool {
		op.mu.Lock()
		defer op.mu.Unlock()
		return len(op.jobs) > 0
	}, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
