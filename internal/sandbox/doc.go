/*
Package sandbox provides the isolated script realm.

A Runtime is a goja VM that lives on its own goroutine and is reachable only
through encoded envelopes: the host Posts bytes in, the realm hands bytes out
to a Sink. No Go values cross the boundary.

# Shim

Inside the realm the usual browser-ish globals are replaced:

  - console.log/info/debug/warn/error/dir/table/time/timeEnd emit console envelopes
  - setTimeout/setInterval ask the host for a timer by tempId and run the
    callback when sandbox-timer-fire comes back
  - alert/prompt/confirm emit a dialog request and suspend the script until
    the matching response arrives

require, process, module and exports are removed.

# Lifecycle

Realms are single-use. Close interrupts the VM, which is the only way to stop
a script that never yields. Pool keeps spare realms warm so the host can swap
in a replacement quickly.

	pool, _ := sandbox.NewPool(sandbox.DefaultConfig(), 1, logger)
	realm, _ := pool.Acquire(ctx)
	realm.Start(func(src sandbox.Realm, msg []byte) { ... })
	realm.Post(msg)
*/
package sandbox
