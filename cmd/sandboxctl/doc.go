// Package main is sandboxctl, a command line client for a running bridge
// server.
//
// Usage:
//
//	sandboxctl run 'examples/**/*.js'
//	sandboxctl -addr http://localhost:9000 console -mode lastOnly
//	sandboxctl resolve dlg_01H... Ada
//	sandboxctl resolve -cancel dlg_01H...
//
// SANDBOX_ADDR sets the default server address.
package main
