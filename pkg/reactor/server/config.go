package server

// Config configures a Server. Every field has a usable default: New fills
// in any zero-valued field, so a partially specified (or zero) Config works,
// and DefaultConfig returns the defaults explicitly, the way shockwave's
// server Config works.
type Config struct {
	// Port is the TCP port the listening socket binds to.
	Port int

	// Dispatches is how many epoll reactor goroutines run concurrently,
	// each owning a disjoint subset of accepted connections.
	Dispatches int

	// Workers is the size of the shared handler-invoking worker pool.
	Workers int
}

// DefaultConfig returns a Config with the server's standard defaults: port
// 8080, 2 dispatch reactors, a 6-worker pool.
func DefaultConfig() Config {
	return Config{
		Port:       8080,
		Dispatches: 2,
		Workers:    6,
	}
}

// withDefaults fills in any zero-valued field with its default, the way
// shockwave's NewBaseServer patches a partially-specified Config before use.
func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Dispatches <= 0 {
		c.Dispatches = 2
	}
	if c.Workers <= 0 {
		c.Workers = 6
	}
	return c
}
