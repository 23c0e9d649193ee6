// Package http provides the REST API for the sandbox bridge using Gin.
//
// Endpoints:
//   - Health: / and /health
//   - Runs: POST /runs, GET /runs, GET /runs/:id
//   - Console: GET /console?mode=, DELETE /console, PUT /console/mode,
//     POST /console/mode/toggle
//   - Dialogs: GET /dialogs, GET /dialogs/current, POST /dialogs/:id/resolve
//   - Sandbox: POST /sandbox/recycle, GET /sandbox/status, GET /stats
//
// Errors are JSON {"error": "..."}: unknown dialog 404, dialog not
// presented 409, invalid input or mode 400, bridge closed or realm missing
// 503.
//
// Example Usage:
//
//	handlers := http.NewHandlers(supervisor, registry, metrics, logger)
//	handlers.Register(router)
package http
