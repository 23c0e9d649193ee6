/*
Package client is the HTTP client used by sandboxctl to drive a running
bridge server.

Requests go through resty on a pooled transport, a token bucket and a
circuit breaker. Server errors and transport failures count against the
breaker; 4xx answers come back as *APIError without tripping it.

	c := client.New("http://localhost:8000", client.DefaultOptions())
	run, err := c.Run(ctx, "console.log(1+1)")
*/
package client
