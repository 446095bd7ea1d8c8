// Package incrementer derives unique JobParameters for each triggered run.
package incrementer

import (
	"fmt"
	"time"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// DefaultDateTimeLayout renders times to the millisecond, like "2024-01-01 00:00:00.123".
const DefaultDateTimeLayout = "2006-01-02 15:04:05.000"

// TimestampIncrementer puts the current Unix milliseconds (int64) under its name.
type TimestampIncrementer struct {
	name string
	now  func() time.Time
}

// NewTimestampIncrementer creates a new instance of TimestampIncrementer.
func NewTimestampIncrementer(name string) *TimestampIncrementer {
	return &TimestampIncrementer{name: name, now: time.Now}
}

// GetNext copies params and sets the timestamp parameter.
func (i *TimestampIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	next := copyParameters(params)
	timestamp := i.now().UnixMilli()
	next.Put(i.name, timestamp)
	logger.Debugf("JobParametersIncrementer '%s': Setting '%s' to %d.", i.name, i.name, timestamp)
	return next
}

// String returns the string representation of TimestampIncrementer.
func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[name=%s]", i.name)
}

// DateTimeIncrementer puts the current time, formatted with layout in loc, under its name.
type DateTimeIncrementer struct {
	name   string
	layout string
	loc    *time.Location
	now    func() time.Time
}

// NewDateTimeIncrementer creates a DateTimeIncrementer. An empty layout falls back to
// DefaultDateTimeLayout and a nil location to UTC.
func NewDateTimeIncrementer(name, layout string, loc *time.Location) *DateTimeIncrementer {
	if layout == "" {
		layout = DefaultDateTimeLayout
	}
	if loc == nil {
		loc = time.UTC
	}
	return &DateTimeIncrementer{name: name, layout: layout, loc: loc, now: time.Now}
}

// GetNext copies params and sets the formatted time parameter.
func (i *DateTimeIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	next := copyParameters(params)
	value := i.now().In(i.loc).Format(i.layout)
	next.Put(i.name, value)
	logger.Debugf("JobParametersIncrementer '%s': Setting '%s' to %s.", i.name, i.name, value)
	return next
}

// String returns the string representation of DateTimeIncrementer.
func (i *DateTimeIncrementer) String() string {
	return fmt.Sprintf("DateTimeIncrementer[name=%s, layout=%s]", i.name, i.layout)
}

func copyParameters(params model.JobParameters) model.JobParameters {
	next := model.NewJobParameters()
	for k, v := range params.Params {
		next.Put(k, v)
	}
	return next
}

var (
	_ port.JobParametersIncrementer = (*TimestampIncrementer)(nil)
	_ port.JobParametersIncrementer = (*DateTimeIncrementer)(nil)
)
