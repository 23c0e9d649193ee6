/*
Package resilience provides a circuit breaker.

The bridge guards realm acquisition with it: if building replacement realms
keeps failing, recycling stops hammering the pool and the bridge reports the
breaker as open until the timeout elapses and a trial acquisition succeeds.

	breaker := resilience.New("realm-acquire", resilience.Settings{
		Timeout: 10 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	realm, err := resilience.Do(breaker, func() (sandbox.Realm, error) {
		return pool.Acquire(ctx)
	})

States:

	Closed --[ReadyToTrip]-> Open --[Timeout]-> Half-Open --[MaxRequests successes]-> Closed
	                                               |
	                                           [failure] -> Open
*/
package resilience
