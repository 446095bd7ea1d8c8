package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx/fxevent"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	prev := GetLogLevel()
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		level.Store(int32(prev))
	})
	return buf
}

func TestSetLogLevel_FiltersBelowLevel(t *testing.T) {
	buf := captureOutput(t)

	SetLogLevel("warn")
	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warnf("warn %d", 3)
	Errorf("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "[WARN] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")
}

func TestSetLogLevel_UnknownFallsBackToInfo(t *testing.T) {
	buf := captureOutput(t)

	SetLogLevel("verbose")
	assert.Equal(t, LevelInfo, GetLogLevel())
	assert.Contains(t, buf.String(), "Unknown log level 'verbose'")
}

func TestFatalf_Exits(t *testing.T) {
	buf := captureOutput(t)
	code := -1
	exitFn = func(c int) { code = c }
	t.Cleanup(func() { exitFn = os.Exit })

	Fatalf("boom")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "[FATAL] boom")
}

func TestFxLoggerAdapter_LogsStartedAndFailures(t *testing.T) {
	buf := captureOutput(t)
	SetLogLevel("INFO")

	adapter := NewFxLoggerAdapter()
	adapter.LogEvent(&fxevent.Started{})
	adapter.LogEvent(&fxevent.OnStartExecuted{FunctionName: "app.startHTTP.func1", Err: assert.AnError})

	out := buf.String()
	assert.Contains(t, out, "Application started.")
	assert.Contains(t, out, "OnStart hook failed: app.startHTTP")
}
