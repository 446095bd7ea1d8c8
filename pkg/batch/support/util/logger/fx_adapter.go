package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter routes uber fx container events into this package's logger.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter creates a new FxLoggerAdapter.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent implements fxevent.Logger.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		Debugf("OnStart hook executing: %s", trimFuncSuffix(e.FunctionName))
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			Errorf("OnStart hook failed: %s (%s): %v", trimFuncSuffix(e.FunctionName), e.Runtime, e.Err)
			return
		}
		Debugf("OnStart hook executed: %s (%s)", trimFuncSuffix(e.FunctionName), e.Runtime)
	case *fxevent.OnStopExecuting:
		Debugf("OnStop hook executing: %s", trimFuncSuffix(e.FunctionName))
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			Errorf("OnStop hook failed: %s: %v", trimFuncSuffix(e.FunctionName), e.Err)
			return
		}
		Debugf("OnStop hook executed: %s (%s)", trimFuncSuffix(e.FunctionName), e.Runtime)
	case *fxevent.Supplied:
		if e.Err != nil {
			Errorf("Supply failed for %s: %v", e.TypeName, e.Err)
			return
		}
		Debugf("Supplied: %s", e.TypeName)
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("Provide failed in %s: %v", e.ConstructorName, e.Err)
			return
		}
		for _, name := range e.OutputTypeNames {
			Debugf("Provided: %s", name)
		}
	case *fxevent.Invoking:
		Debugf("Invoking: %s", trimFuncSuffix(e.FunctionName))
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("Invoke failed: %s: %v", e.FunctionName, e.Err)
		}
	case *fxevent.Stopping:
		Infof("Received %s, stopping application.", strings.ToUpper(e.Signal.String()))
	case *fxevent.Stopped:
		if e.Err != nil {
			Errorf("Stop failed: %v", e.Err)
		}
	case *fxevent.RollingBack:
		Errorf("Start failed, rolling back: %v", e.StartErr)
	case *fxevent.RolledBack:
		if e.Err != nil {
			Errorf("Rollback failed: %v", e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("Start failed: %v", e.Err)
			return
		}
		Infof("Application started.")
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			Errorf("Custom fx logger initialization failed: %v", e.Err)
		}
	}
}

// trimFuncSuffix drops the ".funcN" suffix fx reports for closures so hook
// names point at the constructor that registered them.
func trimFuncSuffix(name string) string {
	if idx := strings.LastIndex(name, ".func"); idx != -1 {
		return name[:idx]
	}
	return name
}
