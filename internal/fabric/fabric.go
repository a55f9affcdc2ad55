// Package fabric provides the message-passing substrate between agents.
//
// Every agent owns an address; sending to an address is fire-and-forget
// and delivery is asynchronous. The MQTT implementation maps addresses
// to per-agent inbox topics on a shared broker; the local implementation
// wires agents together inside one process, which is also what the
// tests use.
package fabric

import (
	"context"
	"encoding/json"
	"fmt"
)

// Envelope wraps a message payload with its kind and the sender's
// address, so a receiver knows where to direct a reply. MQTT does not
// carry a sender identity, hence the explicit From field.
type Envelope struct {
	Kind string          `json:"kind"`
	From string          `json:"from"`
	Body json.RawMessage `json:"body"`
}

// NewEnvelope marshals body and wraps it in an Envelope.
func NewEnvelope(kind, from string, body any) (Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s body: %w", kind, err)
	}
	return Envelope{Kind: kind, From: from, Body: raw}, nil
}

// Handler is called for each envelope delivered to a subscribed
// address. Implementations must be safe for concurrent use; the bus
// may dispatch multiple envelopes at once.
type Handler func(ctx context.Context, env Envelope)

// Bus is the send/receive channel between agents, keyed by address.
type Bus interface {
	// Send delivers an envelope to the agent at the given address.
	// It returns once the fabric has accepted the envelope; there is
	// no acknowledgement of delivery.
	Send(ctx context.Context, to string, env Envelope) error

	// Subscribe registers a handler for envelopes addressed to addr.
	// One handler per address; a second Subscribe for the same
	// address replaces the first.
	Subscribe(ctx context.Context, addr string, h Handler) error

	// Close shuts the bus down. Pending dispatches may be dropped.
	Close(ctx context.Context) error
}
