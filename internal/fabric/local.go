package fabric

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// LocalBus is an in-process Bus. Envelopes are dispatched to handlers
// on fresh goroutines, preserving the asynchronous contract of the
// MQTT fabric without a broker. Used for single-binary deployments
// and as the test double.
type LocalBus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	closed   bool
	handlers map[string]Handler
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus(logger *slog.Logger) *LocalBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBus{
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Send dispatches the envelope to the handler subscribed at the
// destination address. Sending to an address with no subscriber is an
// error — on a real broker the message would vanish silently, but
// in-process we can tell the caller immediately.
func (b *LocalBus) Send(ctx context.Context, to string, env Envelope) error {
	b.mu.RLock()
	closed := b.closed
	h := b.handlers[to]
	b.mu.RUnlock()

	if closed {
		return fmt.Errorf("fabric bus closed")
	}
	if h == nil {
		return fmt.Errorf("no agent subscribed at %q", to)
	}

	b.logger.Debug("fabric envelope sent",
		"to", to, "kind", env.Kind, "from", env.From)

	go h(context.WithoutCancel(ctx), env)
	return nil
}

// Subscribe registers a handler for addr.
func (b *LocalBus) Subscribe(_ context.Context, addr string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("fabric bus closed")
	}
	b.handlers[addr] = h
	return nil
}

// Close marks the bus closed. Subsequent sends fail; envelopes already
// dispatched run to completion.
func (b *LocalBus) Close(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
