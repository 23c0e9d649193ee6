// Package ws provides the /stream WebSocket.
//
// Every connection receives registry change events (run-started, message,
// run-finished, run-timed-out, run-abandoned, cleared, mode-changed) and dialog events
// (dialog-open, dialog-dismiss) through the Hub.
//
// Message Types (Client → Server):
//   - run: {code} start a run
//   - resolve: {id, value?, confirmed?} answer the presented dialog
//   - clear: empty the registry
//   - ping: keep-alive
//
// Example Usage:
//
//	hub := ws.NewHub(logger, metrics)
//	events, cancel := registry.Subscribe()
//	go hub.Forward(ctx, events)
//	router.GET("/stream", ws.NewHandler(hub, supervisor, logger).HandleConnection)
package ws
