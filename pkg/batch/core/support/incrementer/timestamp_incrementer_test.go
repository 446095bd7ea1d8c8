package incrementer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

func TestTimestampIncrementer_PutsMillis(t *testing.T) {
	inc := NewTimestampIncrementer("startAt")
	inc.now = func() time.Time { return time.UnixMilli(1700000000123) }

	in := model.NewJobParameters()
	in.Put("source", "customers.csv")
	out := inc.GetNext(in)

	v, ok := out.GetInt64("startAt")
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000123), v)
	assert.Equal(t, "customers.csv", out.Get("source"))
	assert.Nil(t, in.Get("startAt"), "input parameters must not be modified")
}

func TestTimestampIncrementer_RunsAreDistinct(t *testing.T) {
	inc := NewTimestampIncrementer("startAt")
	tick := int64(0)
	inc.now = func() time.Time { tick++; return time.UnixMilli(tick) }

	a := inc.GetNext(model.NewJobParameters())
	b := inc.GetNext(model.NewJobParameters())
	assert.False(t, a.Equal(b))
}

func TestDateTimeIncrementer_Format(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	inc := NewDateTimeIncrementer("time", "", tokyo)
	inc.now = func() time.Time { return time.Date(2024, 1, 1, 15, 0, 0, 7_000_000, time.UTC) }

	out := inc.GetNext(model.NewJobParameters())
	v, ok := out.GetString("time")
	assert.True(t, ok)
	assert.Equal(t, "2024-01-02 00:00:00.007", v)
	assert.Equal(t, "DateTimeIncrementer[name=time, layout=2006-01-02 15:04:05.000]", inc.String())
}
