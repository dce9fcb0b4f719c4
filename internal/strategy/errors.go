package strategy

import "errors"

// Failure taxonomy. Every engine operation isolates its own failures; the
// control loop branches on these kinds rather than on message text.
var (
	// ErrTransport reports a network or auth failure reaching the gateway.
	// The operation returns empty-handed and the caller proceeds to the
	// next cycle.
	ErrTransport = errors.New("gateway transport failure")

	// ErrDataUnavailable reports an expected strike, expiry, or contract
	// missing from market data. Only the affected leg aborts.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrReconnectExhausted is fatal: the watchdog ran out of reconnection
	// attempts and the control loop must halt.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)
