package broker

import "sync"

// Handle is a mutex-guarded holder for the current Broker. The connectivity
// watchdog swaps in a freshly built client on reconnection while the control
// loop may be reading; Get and Swap make the exchange atomic so no caller
// observes a partially replaced client.
type Handle struct {
	mu     sync.RWMutex
	broker Broker
}

// NewHandle returns a Handle holding the given broker.
func NewHandle(b Broker) *Handle {
	return &Handle{broker: b}
}

// Get returns the current broker. Callers must not cache the result across
// cycles; re-fetch at each use so reconnection takes effect.
func (h *Handle) Get() Broker {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.broker
}

// Swap installs a new broker and returns the previous one.
func (h *Handle) Swap(b Broker) Broker {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.broker
	h.broker = b
	return old
}
