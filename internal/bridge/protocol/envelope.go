package protocol

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// Type is the envelope discriminator carried in the "type" field
type Type string

const (
	// host -> realm
	TypeExecute         Type = "execute"
	TypeTimerFire       Type = "sandbox-timer-fire"
	TypeAlertResponse   Type = "sandbox-alert-response"
	TypePromptResponse  Type = "sandbox-prompt-response"
	TypeConfirmResponse Type = "sandbox-confirm-response"

	// realm -> host
	TypeConsole           Type = "console"
	TypeUncaughtError     Type = "uncaught-error"
	TypeExecutionFinished Type = "execution-finished"
	TypeTimerCreate       Type = "sandbox-timer-create"
	TypeTimerClear        Type = "sandbox-timer-clear"
	TypeAlert             Type = "sandbox-alert"
	TypePrompt            Type = "sandbox-prompt"
	TypeConfirm           Type = "sandbox-confirm"
)

// Direction tells which side of the boundary may emit an envelope type
type Direction int

const (
	ToRealm Direction = iota
	ToHost
)

// Direction reports who is allowed to send this envelope type
func (t Type) Direction() Direction {
	switch t {
	case TypeExecute, TypeTimerFire, TypeAlertResponse, TypePromptResponse, TypeConfirmResponse:
		return ToRealm
	default:
		return ToHost
	}
}

// Subtype selects the console method that produced a console envelope
type Subtype string

const (
	SubtypeLog   Subtype = "log"
	SubtypeWarn  Subtype = "warn"
	SubtypeError Subtype = "error"
	SubtypeDir   Subtype = "dir"
	SubtypeTable Subtype = "table"
	SubtypeTime  Subtype = "time"
)

func (s Subtype) valid() bool {
	switch s {
	case SubtypeLog, SubtypeWarn, SubtypeError, SubtypeDir, SubtypeTable, SubtypeTime:
		return true
	}
	return false
}

// TimerKind distinguishes one-shot and repeating timers
type TimerKind string

const (
	TimerTimeout  TimerKind = "timeout"
	TimerInterval TimerKind = "interval"
)

func (k TimerKind) valid() bool {
	return k == TimerTimeout || k == TimerInterval
}

// DialogMode is the blocking dialog flavour requested by the realm
type DialogMode string

const (
	ModeAlert   DialogMode = "alert"
	ModePrompt  DialogMode = "prompt"
	ModeConfirm DialogMode = "confirm"
)

// CorrelationID is an id issued by one side and echoed by the other.
// The realm may encode it as a JSON string or number; both decode to the same text.
type CorrelationID string

// UnmarshalJSON accepts strings, numbers and null
func (c *CorrelationID) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	switch {
	case text == "null" || text == "":
		*c = ""
		return nil
	case strings.HasPrefix(text, `"`):
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = CorrelationID(s)
		return nil
	default:
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return err
		}
		*c = CorrelationID(text)
		return nil
	}
}

func (c CorrelationID) String() string { return string(c) }

// Envelope is the closed set of messages that cross the realm boundary.
// Only types declared in this package implement it.
type Envelope interface {
	Type() Type
	envelope()
}

// Execute carries user source into the realm
type Execute struct {
	Code        string        `json:"code"`
	ExecutionID CorrelationID `json:"executionId"`
}

// Console is one intercepted console.* call
type Console struct {
	Subtype     Subtype         `json:"subtype"`
	Text        string          `json:"text,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Label       string          `json:"label,omitempty"`
	Duration    float64         `json:"duration,omitempty"`
	ExecutionID CorrelationID   `json:"executionId"`
	Stack       string          `json:"stack,omitempty"`
}

// UncaughtError reports an exception that escaped user code.
// Source, Line and Col are optional positional hints.
type UncaughtError struct {
	ExecutionID CorrelationID `json:"executionId,omitempty"`
	Message     string        `json:"message"`
	Stack       string        `json:"stack,omitempty"`
	Source      string        `json:"source,omitempty"`
	Line        int           `json:"lineno,omitempty"`
	Col         int           `json:"colno,omitempty"`
}

// ExecutionFinished signals that the synchronous part of a run returned
type ExecutionFinished struct {
	ExecutionID CorrelationID `json:"executionId"`
}

// TimerCreate asks the host to own a real timer for a realm tempId
type TimerCreate struct {
	TimerType TimerKind     `json:"timerType"`
	Delay     float64       `json:"delay"`
	TempID    CorrelationID `json:"tempId"`
}

// TimerFire tells the realm a virtual timer elapsed
type TimerFire struct {
	TempID CorrelationID `json:"tempId"`
}

// TimerClear cancels a virtual timer
type TimerClear struct {
	TimerType TimerKind     `json:"timerType"`
	TimerID   CorrelationID `json:"timerId"`
}

// DialogRequest is sandbox-alert, sandbox-prompt or sandbox-confirm.
// RequestID is the realm's alertId/promptId/confirmId; an alert without one
// does not block the realm and never receives a response.
type DialogRequest struct {
	Mode         DialogMode
	Text         string
	DefaultValue *string
	RequestID    CorrelationID
	ExecutionID  CorrelationID
}

// DialogResponse resolves a blocking dialog inside the realm.
// Value is the prompt result (nil on cancel); Confirmed is the confirm result.
type DialogResponse struct {
	Mode        DialogMode
	RequestID   CorrelationID
	Value       *string
	Confirmed   bool
	ExecutionID CorrelationID
}

func (Execute) Type() Type           { return TypeExecute }
func (Console) Type() Type           { return TypeConsole }
func (UncaughtError) Type() Type     { return TypeUncaughtError }
func (ExecutionFinished) Type() Type { return TypeExecutionFinished }
func (TimerCreate) Type() Type       { return TypeTimerCreate }
func (TimerFire) Type() Type         { return TypeTimerFire }
func (TimerClear) Type() Type        { return TypeTimerClear }

func (d DialogRequest) Type() Type {
	switch d.Mode {
	case ModePrompt:
		return TypePrompt
	case ModeConfirm:
		return TypeConfirm
	default:
		return TypeAlert
	}
}

func (d DialogResponse) Type() Type {
	switch d.Mode {
	case ModePrompt:
		return TypePromptResponse
	case ModeConfirm:
		return TypeConfirmResponse
	default:
		return TypeAlertResponse
	}
}

func (Execute) envelope()           {}
func (Console) envelope()           {}
func (UncaughtError) envelope()     {}
func (ExecutionFinished) envelope() {}
func (TimerCreate) envelope()       {}
func (TimerFire) envelope()         {}
func (TimerClear) envelope()        {}
func (DialogRequest) envelope()     {}
func (DialogResponse) envelope()    {}
