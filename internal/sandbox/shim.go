package sandbox

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/protocol"
)

// setupGlobals scrubs host-ish globals and installs the shim that turns
// console, timer and dialog calls into envelopes
func (r *Runtime) setupGlobals() error {
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	// Captured before user code can replace JSON.stringify
	stringify, ok := goja.AssertFunction(r.vm.Get("JSON").ToObject(r.vm).Get("stringify"))
	if !ok {
		return fmt.Errorf("JSON.stringify is not callable")
	}
	r.stringify = stringify

	console := r.vm.NewObject()
	methods := map[string]func(goja.FunctionCall) goja.Value{
		"log":     r.consoleText(protocol.SubtypeLog),
		"info":    r.consoleText(protocol.SubtypeLog),
		"debug":   r.consoleText(protocol.SubtypeLog),
		"warn":    r.consoleText(protocol.SubtypeWarn),
		"error":   r.consoleError,
		"dir":     r.consoleDir,
		"table":   r.consoleTable,
		"time":    r.consoleTime,
		"timeEnd": r.consoleTimeEnd,
	}
	for name, fn := range methods {
		if err := console.Set(name, fn); err != nil {
			return err
		}
	}

	globals := map[string]interface{}{
		"console":       console,
		"setTimeout":    r.setTimer(protocol.TimerTimeout),
		"setInterval":   r.setTimer(protocol.TimerInterval),
		"clearTimeout":  r.clearTimer(protocol.TimerTimeout),
		"clearInterval": r.clearTimer(protocol.TimerInterval),
		"alert":         r.alert,
		"prompt":        r.prompt,
		"confirm":       r.confirm,
	}
	for name, v := range globals {
		if err := r.vm.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Console
// ============================================================================

func (r *Runtime) consoleText(sub protocol.Subtype) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		r.emit(protocol.Console{
			Subtype:     sub,
			Text:        r.format(call.Arguments),
			ExecutionID: r.executionID,
		})
		return goja.Undefined()
	}
}

func (r *Runtime) consoleError(call goja.FunctionCall) goja.Value {
	msg := protocol.Console{
		Subtype:     protocol.SubtypeError,
		Text:        r.format(call.Arguments),
		ExecutionID: r.executionID,
	}
	if obj, ok := call.Argument(0).(*goja.Object); ok && obj.ClassName() == "Error" {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			msg.Stack = stack.String()
		}
	}
	r.emit(msg)
	return goja.Undefined()
}

// consoleDir sends the serialized object as a JSON string
func (r *Runtime) consoleDir(call goja.FunctionCall) goja.Value {
	text, ok := r.toJSON(call.Argument(0))
	if !ok {
		text = call.Argument(0).String()
	}
	data, err := sonic.Marshal(text)
	if err != nil {
		return goja.Undefined()
	}
	r.emit(protocol.Console{
		Subtype:     protocol.SubtypeDir,
		Data:        data,
		ExecutionID: r.executionID,
	})
	return goja.Undefined()
}

// consoleTable sends the array or object itself as JSON
func (r *Runtime) consoleTable(call goja.FunctionCall) goja.Value {
	text, ok := r.toJSON(call.Argument(0))
	if !ok {
		text = "null"
	}
	r.emit(protocol.Console{
		Subtype:     protocol.SubtypeTable,
		Data:        json.RawMessage(text),
		ExecutionID: r.executionID,
	})
	return goja.Undefined()
}

func timerLabel(call goja.FunctionCall) string {
	arg := call.Argument(0)
	if goja.IsUndefined(arg) {
		return "default"
	}
	return arg.String()
}

func (r *Runtime) consoleTime(call goja.FunctionCall) goja.Value {
	r.labels[timerLabel(call)] = time.Now()
	return goja.Undefined()
}

func (r *Runtime) consoleTimeEnd(call goja.FunctionCall) goja.Value {
	label := timerLabel(call)
	start, ok := r.labels[label]
	if !ok {
		r.emit(protocol.Console{
			Subtype:     protocol.SubtypeWarn,
			Text:        fmt.Sprintf("Timer '%s' does not exist", label),
			ExecutionID: r.executionID,
		})
		return goja.Undefined()
	}
	delete(r.labels, label)

	ms := float64(time.Since(start).Microseconds()) / 1000
	r.emit(protocol.Console{
		Subtype:     protocol.SubtypeTime,
		Label:       label,
		Duration:    ms,
		ExecutionID: r.executionID,
	})
	return goja.Undefined()
}

// format renders console arguments the way a browser console line reads:
// strings verbatim, errors and functions via String(), other objects as JSON
func (r *Runtime) format(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, r.formatValue(arg))
	}
	return strings.Join(parts, " ")
}

func (r *Runtime) formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	switch obj.ClassName() {
	case "Error", "Function":
		return v.String()
	}
	if text, ok := r.toJSON(v); ok {
		return text
	}
	return v.String()
}

func (r *Runtime) toJSON(v goja.Value) (string, bool) {
	out, err := r.stringify(goja.Undefined(), v)
	if err != nil || out == nil || goja.IsUndefined(out) {
		return "", false
	}
	return out.String(), true
}

// ============================================================================
// Timers
// ============================================================================

func (r *Runtime) setTimer(kind protocol.TimerKind) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return r.vm.ToValue(0)
		}

		delay := call.Argument(1).ToFloat()
		if math.IsNaN(delay) || math.IsInf(delay, 0) || delay < 0 {
			delay = 0
		}

		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}

		r.nextTimer++
		tempID := protocol.CorrelationID(strconv.FormatInt(r.nextTimer, 10))
		r.timers[tempID] = &callback{
			fn:          fn,
			args:        args,
			kind:        kind,
			executionID: r.executionID,
		}

		r.emit(protocol.TimerCreate{TimerType: kind, Delay: delay, TempID: tempID})
		return r.vm.ToValue(r.nextTimer)
	}
}

func (r *Runtime) clearTimer(kind protocol.TimerKind) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if goja.IsUndefined(arg) || goja.IsNull(arg) {
			return goja.Undefined()
		}

		timerID := protocol.CorrelationID(arg.String())
		if cb, ok := r.timers[timerID]; ok && cb.kind == kind {
			delete(r.timers, timerID)
		}
		r.emit(protocol.TimerClear{TimerType: kind, TimerID: timerID})
		return goja.Undefined()
	}
}

// ============================================================================
// Dialogs
// ============================================================================

func (r *Runtime) dialogText(call goja.FunctionCall) string {
	arg := call.Argument(0)
	if goja.IsUndefined(arg) {
		return ""
	}
	return arg.String()
}

func (r *Runtime) alert(call goja.FunctionCall) goja.Value {
	r.ask(protocol.DialogRequest{Mode: protocol.ModeAlert, Text: r.dialogText(call)})
	return goja.Undefined()
}

func (r *Runtime) prompt(call goja.FunctionCall) goja.Value {
	req := protocol.DialogRequest{Mode: protocol.ModePrompt, Text: r.dialogText(call)}
	if def := call.Argument(1); !goja.IsUndefined(def) && !goja.IsNull(def) {
		s := def.String()
		req.DefaultValue = &s
	}

	resp, ok := r.ask(req)
	if !ok || resp.Value == nil {
		return goja.Null()
	}
	return r.vm.ToValue(*resp.Value)
}

func (r *Runtime) confirm(call goja.FunctionCall) goja.Value {
	resp, ok := r.ask(protocol.DialogRequest{Mode: protocol.ModeConfirm, Text: r.dialogText(call)})
	return r.vm.ToValue(ok && resp.Confirmed)
}

// ask emits a dialog request and suspends the script until the matching
// response arrives. Other envelopes received meanwhile are replayed afterwards.
func (r *Runtime) ask(req protocol.DialogRequest) (protocol.DialogResponse, bool) {
	r.nextDialog++
	req.RequestID = protocol.CorrelationID(strconv.FormatInt(r.nextDialog, 10))
	req.ExecutionID = r.executionID
	r.emit(req)

	var deferred [][]byte
	defer func() { r.requeue(deferred) }()

	for {
		msg, ok := r.next()
		if !ok {
			return protocol.DialogResponse{}, false
		}
		env, err := protocol.Decode(msg)
		if err != nil {
			continue
		}
		if resp, ok := env.(protocol.DialogResponse); ok {
			if resp.Mode == req.Mode && resp.RequestID == req.RequestID {
				return resp, true
			}
			continue
		}
		deferred = append(deferred, msg)
	}
}

// ============================================================================
// Uncaught errors
// ============================================================================

var positionPattern = regexp.MustCompile(`at (?:[^\s(]+ \()?([^\s():]+):(\d+):(\d+)`)

// reportError turns a script failure into an uncaught-error envelope
func (r *Runtime) reportError(executionID protocol.CorrelationID, err error) {
	env := protocol.UncaughtError{
		ExecutionID: executionID,
		Message:     err.Error(),
	}

	if ex, ok := err.(*goja.Exception); ok {
		env.Stack = ex.String()
		if obj, ok := ex.Value().(*goja.Object); ok {
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				env.Message = msg.String()
			}
		} else if v := ex.Value(); v != nil {
			env.Message = v.String()
		}
	}

	if m := positionPattern.FindStringSubmatch(env.Stack); m != nil {
		env.Source = m[1]
		env.Line, _ = strconv.Atoi(m[2])
		env.Col, _ = strconv.Atoi(m[3])
	}

	r.emit(env)
}
