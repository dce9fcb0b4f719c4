package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nileshsurve/dalal_condor/internal/broker"
	"github.com/nileshsurve/dalal_condor/internal/config"
	"github.com/nileshsurve/dalal_condor/internal/retry"
	"github.com/nileshsurve/dalal_condor/internal/strategy"
)

// GatewayFactory builds and authenticates a fresh gateway session.
type GatewayFactory func(ctx context.Context) (broker.Broker, error)

// Watchdog probes gateway connectivity and rebuilds the session when it
// drops. Reconnection swaps the handle atomically, so in-flight cycles keep
// their old gateway and the next cycle picks up the new one.
type Watchdog struct {
	cfg     *config.Config
	handle  *broker.Handle
	factory GatewayFactory
	logger  *log.Logger
	probe   func(ctx context.Context, gw broker.Broker) error

	mu                sync.Mutex
	connected         bool
	lastProbeAt       time.Time
	lastProbeError    string
	lastReconnectAt   time.Time
	reconnectAttempts int
}

// ConnectionStatus is a point-in-time snapshot of gateway connectivity.
type ConnectionStatus struct {
	Connected         bool
	LastProbeAt       time.Time
	LastProbeError    string
	LastReconnectAt   time.Time
	ReconnectAttempts int
}

func NewWatchdog(cfg *config.Config, handle *broker.Handle, factory GatewayFactory, logger *log.Logger) *Watchdog {
	if logger == nil {
		logger = log.Default()
	}
	return &Watchdog{
		cfg:       cfg,
		handle:    handle,
		factory:   factory,
		logger:    logger,
		connected: true,
		probe: func(ctx context.Context, gw broker.Broker) error {
			_, err := gw.FundsSummary(ctx)
			return err
		},
	}
}

// Status reports the last probe outcome and reconnect history.
func (w *Watchdog) Status() ConnectionStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ConnectionStatus{
		Connected:         w.connected,
		LastProbeAt:       w.lastProbeAt,
		LastProbeError:    w.lastProbeError,
		LastReconnectAt:   w.lastReconnectAt,
		ReconnectAttempts: w.reconnectAttempts,
	}
}

func (w *Watchdog) recordProbe(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastProbeAt = time.Now()
	if err != nil {
		w.connected = false
		w.lastProbeError = err.Error()
		return
	}
	w.connected = true
	w.lastProbeError = ""
}

// Run probes on the configured interval until ctx is done. A failed probe
// triggers reconnection; exhausting the attempt budget is fatal.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.ProbeInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := w.probe(ctx, w.handle.Get())
			w.recordProbe(err)
			if err == nil {
				continue
			}
			w.logger.Printf("connectivity probe failed: %v", err)
			if err := w.Reconnect(ctx); err != nil {
				return err
			}
		}
	}
}

// Reconnect rebuilds the gateway session with bounded, backed-off attempts
// and swaps it into the handle. Returns ErrReconnectExhausted when the
// attempt budget is spent.
func (w *Watchdog) Reconnect(ctx context.Context) error {
	w.logger.Printf("reconnecting, up to %d attempts", w.cfg.Reconnect.MaxAttempts)

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:    w.cfg.Reconnect.MaxAttempts,
		InitialBackoff: w.cfg.RetryDelay(),
		MaxBackoff:     4 * w.cfg.RetryDelay(),
	}, w.logger, "gateway reconnect", func(ctx context.Context) error {
		w.mu.Lock()
		w.reconnectAttempts++
		w.mu.Unlock()

		gw, err := w.factory(ctx)
		if err != nil {
			return err
		}
		if err := w.probe(ctx, gw); err != nil {
			return fmt.Errorf("post-reconnect probe: %w", err)
		}
		w.handle.Swap(broker.NewCircuitBreakerBroker(gw))
		w.logger.Println("gateway session reestablished")
		return nil
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.connected = false
		w.lastProbeError = err.Error()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", strategy.ErrReconnectExhausted, err)
	}
	w.connected = true
	w.lastProbeError = ""
	w.lastReconnectAt = time.Now()
	return nil
}
