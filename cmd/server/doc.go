// Package main is the entry point for the sandbox bridge server.
//
// The server runs untrusted JavaScript in an isolated goja realm and exposes
// the captured console output, timers and dialogs over HTTP and WebSocket.
//
// Configuration:
//   - Defaults, then CONFIG_FILE (YAML/TOML), then environment variables
//   - CLI flags override all of them
//
// Usage:
//
//	./server -port 8000
//	./server -dev -config sandbox.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
