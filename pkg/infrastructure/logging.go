// Package infrastructure provides reusable infrastructure components for Go applications.
package infrastructure

import (
	"strings"

	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLoggerAdapter adapts a zap.SugaredLogger to the fxevent.Logger
// interface so the dependency injection framework logs through Zap.
type FxLoggerAdapter struct {
	logger *zap.SugaredLogger
}

// NewFxLoggerAdapter creates a new Fx logger adapter backed by the given logger.
func NewFxLoggerAdapter(logger *zap.Logger) fxevent.Logger {
	return &FxLoggerAdapter{logger: logger.Sugar()}
}

// LogEvent implements fxevent.Logger. Routine graph events log at debug;
// anything carrying an error logs at error level.
func (p *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		p.logger.Debugf("HOOK OnStart executing: %s", e.FunctionName)
	case *fxevent.OnStartExecuted:
		p.hookResult("OnStart", e.FunctionName, e.Err)
	case *fxevent.OnStopExecuting:
		p.logger.Debugf("HOOK OnStop executing: %s", e.FunctionName)
	case *fxevent.OnStopExecuted:
		p.hookResult("OnStop", e.FunctionName, e.Err)
	case *fxevent.Supplied:
		p.logger.Debugf("SUPPLY: %s", e.TypeName)
	case *fxevent.Provided:
		if e.Err != nil {
			p.logger.Errorf("PROVIDE failed: %v", e.Err)
		} else {
			p.logger.Debugf("PROVIDE: %s", strings.Join(e.OutputTypeNames, ", "))
		}
	case *fxevent.Invoking:
		p.logger.Debugf("INVOKE: %s", e.FunctionName)
	case *fxevent.Invoked:
		if e.Err != nil {
			p.logger.Errorf("INVOKE failed: %s, error: %v", e.FunctionName, e.Err)
		}
	case *fxevent.Stopping:
		p.logger.Infof("STOPPING: %s", e.Signal)
	case *fxevent.Stopped:
		p.simpleResult("STOPPED", e.Err)
	case *fxevent.RollingBack:
		p.logger.Errorf("ROLLING BACK: %v", e.StartErr)
	case *fxevent.RolledBack:
		p.simpleResult("ROLLED BACK", e.Err)
	case *fxevent.Started:
		p.simpleResult("STARTED", e.Err)
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			p.logger.Errorf("LOGGER INITIALIZED with error: %v", e.Err)
		} else {
			p.logger.Debugf("LOGGER INITIALIZED: %s", e.ConstructorName)
		}
	default:
		p.logger.Debugf("UNKNOWN Fx event: %T", event)
	}
}

func (p *FxLoggerAdapter) hookResult(hook, function string, err error) {
	if err != nil {
		p.logger.Errorf("HOOK %s failed: %s, error: %v", hook, function, err)
	} else {
		p.logger.Debugf("HOOK %s executed: %s", hook, function)
	}
}

func (p *FxLoggerAdapter) simpleResult(action string, err error) {
	if err != nil {
		p.logger.Errorf("%s with error: %v", action, err)
	} else {
		p.logger.Info(action)
	}
}
