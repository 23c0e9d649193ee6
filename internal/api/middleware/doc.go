// Package middleware holds the gin middleware shared by the HTTP and
// WebSocket surfaces: CORS, per-IP rate limiting, request ids and request
// logging.
package middleware
