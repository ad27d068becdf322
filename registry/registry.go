package registry

// Well-known service names. Brokers advertise their client-facing frontend
// under FrontendService so clients can discover where to send requests;
// workers advertise their identity under WorkerService for operator
// visibility only; dispatch never consults it.
const (
	FrontendService = "oracle-front"
	WorkerService   = "oracle-worker"
)

// ServiceInstance describes one advertised endpoint. For workers, Addr holds
// the worker identity string rather than a dialable address.
type ServiceInstance struct {
	Addr    string
	Weight  int // Weight for load balancing
	Version string
}

type Registry interface {
	Register(serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(serviceName string, addr string) error
	Discover(serviceName string) ([]ServiceInstance, error)
	Watch(serviceName string) <-chan []ServiceInstance
}
