// Package protocol defines the envelopes exchanged with the isolated realm.
//
// Every message that crosses the realm boundary is a JSON object with a "type"
// discriminator. Decode turns raw bytes into one member of the closed Envelope
// set; Encode does the reverse. Both directions share one codec so the host
// and the realm shim cannot drift apart.
//
// Realm -> host:
//   - console, uncaught-error, execution-finished
//   - sandbox-timer-create, sandbox-timer-clear
//   - sandbox-alert, sandbox-prompt, sandbox-confirm
//
// Host -> realm:
//   - execute
//   - sandbox-timer-fire
//   - sandbox-alert-response, sandbox-prompt-response, sandbox-confirm-response
//
// Correlation ids (executionId, tempId, timerId, promptId, ...) are accepted as
// JSON strings or numbers.
//
// Example Usage:
//
//	env, err := protocol.Decode(raw)
//	if err != nil {
//		return // malformed, drop it
//	}
//	switch e := env.(type) {
//	case protocol.Console:
//		...
//	}
package protocol
