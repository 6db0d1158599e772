// Package metrics defines the counter/timing sink shared by the rate limiter,
// protocol client, catalog and invoker. Implementations must be safe for
// concurrent emission.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
