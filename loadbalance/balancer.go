// Package loadbalance provides strategies for choosing among multiple
// registered broker frontends.
//
// This selection is client-side only: it picks which broker a client dials.
// Distribution of requests across workers behind a broker is the broker's
// own concern.
//
// Two strategies are implemented:
//   - RoundRobin:      equal-capacity frontends
//   - WeightedRandom:  heterogeneous frontends (different capacity)
package loadbalance

import "pkgoracle/registry"

// Balancer is the interface for load balancing strategies.
// Pick is called before dialing and must be goroutine-safe.
type Balancer interface {
	// Pick selects one instance from the available list.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
