// Package server wires the sandbox bridge into a runnable HTTP service.
//
// Server Lifecycle:
//  1. Load configuration (defaults, CONFIG_FILE, environment)
//  2. Initialize logger (production JSON or development console)
//  3. Build the realm pool, registry and supervisor
//  4. Forward registry events to the WebSocket hub
//  5. Setup middleware (recovery, request id, logging, metrics, CORS, rate limit)
//  6. Register routes, serve with gzip
//  7. Graceful shutdown: HTTP, event forwarding, supervisor, pool
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
