// Package config provides 12-factor configuration for the sandbox bridge.
//
// Values start from Default, are overlaid by an optional YAML or TOML file
// named in CONFIG_FILE, and finally by environment variables.
//
// Configuration Sections:
//   - Server: HTTP listener (PORT, HOST)
//   - Sandbox: watchdog budget, realm call stack, spare realms, dialog queue
//     bound, initial display mode (SANDBOX_*)
//   - Logging: LOG_LEVEL, LOG_DEV
//   - RateLimit: RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg.Addr(), cfg.Sandbox.WatchdogTimeout.Std())
package config
