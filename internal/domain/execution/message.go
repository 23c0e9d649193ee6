package execution

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind is the console method a message was captured from
type Kind string

const (
	KindLog   Kind = "log"
	KindWarn  Kind = "warn"
	KindError Kind = "error"
	KindDir   Kind = "dir"
	KindTable Kind = "table"
	KindTime  Kind = "time"
)

// Message is one captured console entry. Immutable once appended.
//
// Which fields are meaningful depends on Kind:
//   - log, warn: Text
//   - error: Text, optional Stack/Source/Line/Col; Uncaught marks realm-level failures
//   - dir: Data holds a JSON string with the serialized object
//   - table: Data holds the array or object as JSON
//   - time: Label and Duration (milliseconds)
type Message struct {
	Kind     Kind            `json:"type"`
	Text     string          `json:"text,omitempty"`
	Stack    string          `json:"stack,omitempty"`
	Source   string          `json:"source,omitempty"`
	Line     int             `json:"line,omitempty"`
	Col      int             `json:"col,omitempty"`
	Uncaught bool            `json:"uncaught,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Label    string          `json:"label,omitempty"`
	Duration float64         `json:"duration,omitempty"`
	At       time.Time       `json:"at"`
}

// Log creates a log message
func Log(text string) Message {
	return Message{Kind: KindLog, Text: text, At: time.Now()}
}

// Warn creates a warn message
func Warn(text string) Message {
	return Message{Kind: KindWarn, Text: text, At: time.Now()}
}

// Error creates an error message
func Error(text, stack string) Message {
	return Message{Kind: KindError, Text: text, Stack: stack, At: time.Now()}
}

// Dir creates a dir message around a serialized payload
func Dir(data json.RawMessage) Message {
	return Message{Kind: KindDir, Data: data, At: time.Now()}
}

// Table creates a table message
func Table(data json.RawMessage) Message {
	return Message{Kind: KindTable, Data: data, At: time.Now()}
}

// Time creates a console.time result
func Time(label string, duration float64) Message {
	return Message{Kind: KindTime, Label: label, Duration: duration, At: time.Now()}
}

// String renders the message as a single console line
func (m Message) String() string {
	switch m.Kind {
	case KindTime:
		return fmt.Sprintf("Timer %s: %sms", m.Label, strconv.FormatFloat(m.Duration, 'f', -1, 64))
	case KindDir, KindTable:
		return string(m.Data)
	default:
		return m.Text
	}
}
