package fabric

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/filmguide-ai/filmguide/internal/config"
)

// MQTTBus implements Bus over an MQTT v5 broker. Each agent address
// maps to an inbox topic <prefix>/agents/<addr>/inbox; subscriptions
// are restored automatically on every (re-)connect.
type MQTTBus struct {
	cfg      config.FabricConfig
	clientID string
	logger   *slog.Logger
	cm       *autopaho.ConnectionManager

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewMQTTBus creates an MQTTBus but does not connect. clientID names
// this process on the broker (one bus per agent process). Call
// [MQTTBus.Start] to establish the connection.
func NewMQTTBus(cfg config.FabricConfig, clientID string, logger *slog.Logger) *MQTTBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTBus{
		cfg:      cfg,
		clientID: clientID,
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Start connects to the broker and keeps the connection alive until
// ctx is cancelled. Registered subscriptions are (re-)established on
// every connection-up event, so Subscribe may be called before Start.
func (b *MQTTBus) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(b.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse fabric broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   b.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("fabric connected to broker", "broker", b.cfg.Broker)
			b.resubscribe(ctx, cm)
			b.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			b.logger.Warn("fabric connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: b.clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				b.onPublishReceived,
			},
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("fabric connect: %w", err)
	}
	b.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background; sends fail until
		// the broker comes up.
		b.logger.Warn("fabric initial connection timed out, will retry in background", "error", err)
	}

	return nil
}

// Send publishes the envelope to the destination's inbox topic at QoS 1.
func (b *MQTTBus) Send(ctx context.Context, to string, env Envelope) error {
	if b.cm == nil {
		return fmt.Errorf("fabric bus not started")
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if _, err := b.cm.Publish(ctx, &paho.Publish{
		Topic:   b.inboxTopic(to),
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", to, err)
	}

	b.logger.Debug("fabric envelope sent",
		"to", to, "kind", env.Kind, "from", env.From)
	return nil
}

// Subscribe registers a handler for addr's inbox. When the bus is
// already connected the subscription is established immediately;
// otherwise it is picked up by the next connection-up event.
func (b *MQTTBus) Subscribe(ctx context.Context, addr string, h Handler) error {
	b.mu.Lock()
	b.handlers[addr] = h
	b.mu.Unlock()

	if b.cm == nil {
		return nil
	}

	if _, err := b.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: b.inboxTopic(addr), QoS: 1},
		},
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", addr, err)
	}
	return nil
}

// Close publishes an offline availability message and disconnects.
func (b *MQTTBus) Close(ctx context.Context) error {
	if b.cm == nil {
		return nil
	}
	b.publishAvailability(ctx, b.cm, "offline")
	return b.cm.Disconnect(ctx)
}

func (b *MQTTBus) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	addr, ok := b.addrFromTopic(pr.Packet.Topic)
	if !ok {
		return false, nil
	}

	b.mu.RLock()
	h := b.handlers[addr]
	b.mu.RUnlock()
	if h == nil {
		return false, nil
	}

	var env Envelope
	if err := json.Unmarshal(pr.Packet.Payload, &env); err != nil {
		b.logger.Warn("fabric dropped malformed envelope",
			"addr", addr, "error", err)
		return true, nil
	}

	// Dispatch off the packet-reader goroutine so a slow handler
	// (completion call, gateway resolution) cannot stall the client.
	go h(context.Background(), env)
	return true, nil
}

func (b *MQTTBus) resubscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	b.mu.RLock()
	addrs := make([]string, 0, len(b.handlers))
	for addr := range b.handlers {
		addrs = append(addrs, addr)
	}
	b.mu.RUnlock()

	for _, addr := range addrs {
		if _, err := cm.Subscribe(ctx, &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{
				{Topic: b.inboxTopic(addr), QoS: 1},
			},
		}); err != nil {
			b.logger.Warn("fabric resubscribe failed", "addr", addr, "error", err)
		} else {
			b.logger.Debug("fabric subscribed", "addr", addr)
		}
	}
}

func (b *MQTTBus) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   b.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		b.logger.Warn("fabric availability publish failed",
			"status", status, "error", err)
	}
}

// --- Topic helpers ---

func (b *MQTTBus) inboxTopic(addr string) string {
	return b.cfg.TopicPrefix + "/agents/" + addr + "/inbox"
}

func (b *MQTTBus) availabilityTopic() string {
	return b.cfg.TopicPrefix + "/agents/" + b.clientID + "/availability"
}

// addrFromTopic extracts the agent address from an inbox topic,
// returning false for topics outside the fabric namespace.
func (b *MQTTBus) addrFromTopic(topic string) (string, bool) {
	prefix := b.cfg.TopicPrefix + "/agents/"
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, "/inbox") {
		return "", false
	}
	addr := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), "/inbox")
	if addr == "" || strings.Contains(addr, "/") {
		return "", false
	}
	return addr, true
}
