/*
Package bridge supervises the isolated realm on behalf of the host.

A Supervisor runs a single loop goroutine that owns the current realm, the
timer proxy, the dialog queue and the watchdog. Public methods submit a
closure to the loop and wait; the realm sink, host timers and the watchdog
post closures without waiting.

Inbound envelopes go through route:

  - messages from anything but the current realm are dropped (stale-source)
  - undecodable messages are dropped (malformed)
  - host-to-realm types arriving from the realm are dropped (unexpected)
  - console, uncaught-error and execution-finished update the registry
  - timer create/clear go to the timer proxy
  - alert/prompt/confirm go to the dialog manager

When the watchdog expires the run gets a timeout error and the realm is
recycled: the handle is unset first, then timers are reset, dialogs
discarded, the old realm closed, and a replacement acquired through a
circuit breaker.

	sup := bridge.New(bridge.DefaultOptions(), pool, registry, hub, logger, metrics)
	defer sup.Close()
	runID, err := sup.RunCode(ctx, `console.log("hi")`)
*/
package bridge
