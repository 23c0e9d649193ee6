// Package utils provides request validation and source fingerprinting
// shared by the HTTP and WebSocket surfaces.
package utils
