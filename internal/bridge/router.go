package bridge

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/protocol"
	"github.com/GriffinCanCode/sandbox-bridge/internal/domain/execution"
	"github.com/GriffinCanCode/sandbox-bridge/internal/sandbox"
)

// Drop reasons
const (
	DropStaleSource = "stale-source"
	DropMalformed   = "malformed"
	DropUnexpected  = "unexpected"
)

// uncaughtPrefix matches how browsers label errors that escaped user code
const uncaughtPrefix = "Uncaught Error: "

// route handles one inbound envelope. Runs on the loop.
func (s *Supervisor) route(src sandbox.Realm, raw []byte) {
	if s.realm == nil || src != s.realm {
		s.drop(DropStaleSource, zap.String("realm_id", src.ID()))
		return
	}

	env, err := protocol.Decode(raw)
	if err != nil {
		s.drop(DropMalformed, zap.Error(err))
		return
	}
	if env.Type().Direction() != protocol.ToHost {
		s.drop(DropUnexpected, zap.String("type", string(env.Type())))
		return
	}
	s.metrics.RecordEnvelope("in", string(env.Type()))

	switch e := env.(type) {
	case protocol.Console:
		s.onConsole(e)
	case protocol.UncaughtError:
		s.onUncaught(e)
	case protocol.ExecutionFinished:
		s.onFinished(e)
	case protocol.TimerCreate:
		s.timers.Create(e)
		s.metrics.SetTimersActive(s.timers.Len())
	case protocol.TimerClear:
		s.timers.Clear(e)
		s.metrics.SetTimersActive(s.timers.Len())
	case protocol.DialogRequest:
		s.onDialog(e)
	default:
		s.drop(DropUnexpected, zap.String("type", string(env.Type())))
	}
}

func (s *Supervisor) drop(reason string, fields ...zap.Field) {
	s.dropped[reason]++
	s.metrics.RecordDrop(reason)
	s.logger.Debug("Envelope dropped", append(fields, zap.String("reason", reason))...)
}

func (s *Supervisor) onConsole(e protocol.Console) {
	var msg execution.Message
	switch e.Subtype {
	case protocol.SubtypeWarn:
		msg = execution.Warn(e.Text)
	case protocol.SubtypeError:
		msg = execution.Error(e.Text, e.Stack)
	case protocol.SubtypeDir:
		msg = execution.Dir(e.Data)
	case protocol.SubtypeTable:
		msg = execution.Table(e.Data)
	case protocol.SubtypeTime:
		msg = execution.Time(e.Label, e.Duration)
	default:
		msg = execution.Log(e.Text)
	}
	s.appendTo(string(e.ExecutionID), msg)
}

func (s *Supervisor) onUncaught(e protocol.UncaughtError) {
	runID := string(e.ExecutionID)
	if runID == "" {
		runID, _ = s.registry.Last()
	}

	msg := execution.Error(uncaughtPrefix+e.Message, e.Stack)
	msg.Uncaught = true
	msg.Source = e.Source
	msg.Line = e.Line
	msg.Col = e.Col
	s.appendTo(runID, msg)
}

func (s *Supervisor) onFinished(e protocol.ExecutionFinished) {
	runID := string(e.ExecutionID)
	s.watchdog.Disarm(runID)
	s.registry.MarkFinished(runID)

	if started, ok := s.running[runID]; ok {
		delete(s.running, runID)
		s.metrics.RecordRunFinished(time.Since(started))
	}
}

func (s *Supervisor) onDialog(e protocol.DialogRequest) {
	runID := string(e.ExecutionID)
	if runID == "" {
		runID, _ = s.registry.Last()
	}

	if _, err := s.dialogs.Request(e, runID); err != nil {
		s.logger.Warn("Dialog request refused", zap.String("run_id", runID), zap.Error(err))
	}
	s.metrics.SetDialogsPending(s.dialogs.Len())
}

func (s *Supervisor) appendTo(runID string, msg execution.Message) {
	if !s.registry.Append(runID, msg) {
		s.logger.Debug("Message for unknown run ignored",
			zap.String("run_id", runID),
			zap.String("kind", string(msg.Kind)))
	}
}
