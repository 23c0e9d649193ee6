package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	ErrMalformed    = errors.New("malformed envelope")
	ErrUnknownType  = errors.New("unknown envelope type")
	ErrMissingField = errors.New("missing required field")
)

// wire is the union of every field any envelope may carry
type wire struct {
	Type         Type            `json:"type"`
	Code         *string         `json:"code"`
	ExecutionID  CorrelationID   `json:"executionId"`
	Subtype      Subtype         `json:"subtype"`
	Text         *string         `json:"text"`
	Data         json.RawMessage `json:"data"`
	Label        string          `json:"label"`
	Duration     float64         `json:"duration"`
	Stack        string          `json:"stack"`
	Message      *string         `json:"message"`
	Source       string          `json:"source"`
	Line         int             `json:"lineno"`
	Col          int             `json:"colno"`
	TimerType    TimerKind       `json:"timerType"`
	Delay        float64         `json:"delay"`
	TempID       CorrelationID   `json:"tempId"`
	TimerID      CorrelationID   `json:"timerId"`
	DefaultValue *string         `json:"defaultValue"`
	AlertID      CorrelationID   `json:"alertId"`
	PromptID     CorrelationID   `json:"promptId"`
	ConfirmID    CorrelationID   `json:"confirmId"`
	Result       json.RawMessage `json:"result"`
}

func missing(t Type, field string) error {
	return fmt.Errorf("%w: %s.%s", ErrMissingField, t, field)
}

// Decode parses one envelope. Unknown types and missing required fields are errors;
// unknown extra fields are ignored.
func Decode(raw []byte) (Envelope, error) {
	var w wire
	if err := sonic.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch w.Type {
	case TypeExecute:
		if w.Code == nil {
			return nil, missing(w.Type, "code")
		}
		if w.ExecutionID == "" {
			return nil, missing(w.Type, "executionId")
		}
		return Execute{Code: *w.Code, ExecutionID: w.ExecutionID}, nil

	case TypeConsole:
		if !w.Subtype.valid() {
			return nil, missing(w.Type, "subtype")
		}
		if w.ExecutionID == "" {
			return nil, missing(w.Type, "executionId")
		}
		c := Console{
			Subtype:     w.Subtype,
			Data:        w.Data,
			Label:       w.Label,
			Duration:    w.Duration,
			ExecutionID: w.ExecutionID,
			Stack:       w.Stack,
		}
		if w.Text != nil {
			c.Text = *w.Text
		}
		return c, nil

	case TypeUncaughtError:
		if w.Message == nil {
			return nil, missing(w.Type, "message")
		}
		return UncaughtError{
			ExecutionID: w.ExecutionID,
			Message:     *w.Message,
			Stack:       w.Stack,
			Source:      w.Source,
			Line:        w.Line,
			Col:         w.Col,
		}, nil

	case TypeExecutionFinished:
		if w.ExecutionID == "" {
			return nil, missing(w.Type, "executionId")
		}
		return ExecutionFinished{ExecutionID: w.ExecutionID}, nil

	case TypeTimerCreate:
		if !w.TimerType.valid() {
			return nil, missing(w.Type, "timerType")
		}
		if w.TempID == "" {
			return nil, missing(w.Type, "tempId")
		}
		return TimerCreate{TimerType: w.TimerType, Delay: w.Delay, TempID: w.TempID}, nil

	case TypeTimerFire:
		if w.TempID == "" {
			return nil, missing(w.Type, "tempId")
		}
		return TimerFire{TempID: w.TempID}, nil

	case TypeTimerClear:
		if !w.TimerType.valid() {
			return nil, missing(w.Type, "timerType")
		}
		if w.TimerID == "" {
			return nil, missing(w.Type, "timerId")
		}
		return TimerClear{TimerType: w.TimerType, TimerID: w.TimerID}, nil

	case TypeAlert, TypePrompt, TypeConfirm:
		return decodeDialogRequest(w)

	case TypeAlertResponse, TypePromptResponse, TypeConfirmResponse:
		return decodeDialogResponse(w)

	case "":
		return nil, missing("envelope", "type")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
}

func dialogFields(w wire) (DialogMode, CorrelationID, string) {
	switch w.Type {
	case TypePrompt, TypePromptResponse:
		return ModePrompt, w.PromptID, "promptId"
	case TypeConfirm, TypeConfirmResponse:
		return ModeConfirm, w.ConfirmID, "confirmId"
	default:
		return ModeAlert, w.AlertID, "alertId"
	}
}

func decodeDialogRequest(w wire) (Envelope, error) {
	mode, ref, field := dialogFields(w)
	if mode != ModeAlert && ref == "" {
		return nil, missing(w.Type, field)
	}

	req := DialogRequest{
		Mode:         mode,
		DefaultValue: w.DefaultValue,
		RequestID:    ref,
		ExecutionID:  w.ExecutionID,
	}
	if w.Text != nil {
		req.Text = *w.Text
	}
	return req, nil
}

func decodeDialogResponse(w wire) (Envelope, error) {
	mode, ref, field := dialogFields(w)
	if ref == "" {
		return nil, missing(w.Type, field)
	}

	resp := DialogResponse{Mode: mode, RequestID: ref, ExecutionID: w.ExecutionID}
	switch mode {
	case ModePrompt:
		if len(w.Result) > 0 && string(w.Result) != "null" {
			var s string
			if err := sonic.Unmarshal(w.Result, &s); err != nil {
				return nil, fmt.Errorf("%w: %s.result: %v", ErrMalformed, w.Type, err)
			}
			resp.Value = &s
		}
	case ModeConfirm:
		if len(w.Result) > 0 && string(w.Result) != "null" {
			if err := sonic.Unmarshal(w.Result, &resp.Confirmed); err != nil {
				return nil, fmt.Errorf("%w: %s.result: %v", ErrMalformed, w.Type, err)
			}
		}
	}
	return resp, nil
}

// Encode serializes an envelope with its "type" discriminator
func Encode(env Envelope) ([]byte, error) {
	switch e := env.(type) {
	case Execute:
		return sonic.Marshal(struct {
			Type Type `json:"type"`
			Execute
		}{e.Type(), e})
	case Console:
		return sonic.Marshal(struct {
			Type Type `json:"type"`
			Console
		}{e.Type(), e})
	case UncaughtError:
		return sonic.Marshal(struct {
			Type Type `json:"type"`
			UncaughtError
		}{e.Type(), e})
	case ExecutionFinished:
		return sonic.Marshal(struct {
			Type Type `json:"type"`
			ExecutionFinished
		}{e.Type(), e})
	case TimerCreate:
		return sonic.Marshal(struct {
			Type Type `json:"type"`
			TimerCreate
		}{e.Type(), e})
	case TimerFire:
		return sonic.Marshal(struct {
			Type Type `json:"type"`
			TimerFire
		}{e.Type(), e})
	case TimerClear:
		return sonic.Marshal(struct {
			Type Type `json:"type"`
			TimerClear
		}{e.Type(), e})
	case DialogRequest:
		out := map[string]interface{}{
			"type": e.Type(),
			"text": e.Text,
		}
		if e.DefaultValue != nil {
			out["defaultValue"] = *e.DefaultValue
		}
		if e.RequestID != "" {
			out[dialogIDField(e.Mode)] = e.RequestID
		}
		if e.ExecutionID != "" {
			out["executionId"] = e.ExecutionID
		}
		return sonic.Marshal(out)
	case DialogResponse:
		out := map[string]interface{}{
			"type":                e.Type(),
			dialogIDField(e.Mode): e.RequestID,
		}
		switch e.Mode {
		case ModePrompt:
			if e.Value != nil {
				out["result"] = *e.Value
			} else {
				out["result"] = nil
			}
		case ModeConfirm:
			out["result"] = e.Confirmed
		default:
			out["result"] = true
		}
		if e.ExecutionID != "" {
			out["executionId"] = e.ExecutionID
		}
		return sonic.Marshal(out)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, env)
	}
}

func dialogIDField(mode DialogMode) string {
	switch mode {
	case ModePrompt:
		return "promptId"
	case ModeConfirm:
		return "confirmId"
	default:
		return "alertId"
	}
}
