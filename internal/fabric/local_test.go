package fabric

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/filmguide-ai/filmguide/internal/config"
)

func testFabricConfig() config.FabricConfig {
	return config.FabricConfig{
		Mode:        "mqtt",
		Broker:      "tcp://localhost:1883",
		TopicPrefix: "filmguide",
	}
}

func TestLocalBus_RoundTrip(t *testing.T) {
	bus := NewLocalBus(slog.Default())
	got := make(chan Envelope, 1)

	err := bus.Subscribe(context.Background(), "movie-recommender", func(_ context.Context, env Envelope) {
		got <- env
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	env, err := NewEnvelope("message", "backend", map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if err := bus.Send(context.Background(), "movie-recommender", env); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case received := <-got:
		if received.Kind != "message" {
			t.Errorf("Kind = %q, want message", received.Kind)
		}
		if received.From != "backend" {
			t.Errorf("From = %q, want backend", received.From)
		}
		var body map[string]string
		if err := json.Unmarshal(received.Body, &body); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		if body["text"] != "hi" {
			t.Errorf("body text = %q, want hi", body["text"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}

func TestLocalBus_SendToUnknownAddress(t *testing.T) {
	bus := NewLocalBus(slog.Default())
	env, _ := NewEnvelope("message", "backend", map[string]string{})

	if err := bus.Send(context.Background(), "nobody", env); err == nil {
		t.Error("expected error sending to unsubscribed address")
	}
}

func TestLocalBus_SecondSubscribeReplacesFirst(t *testing.T) {
	bus := NewLocalBus(slog.Default())
	first := make(chan Envelope, 1)
	second := make(chan Envelope, 1)

	ctx := context.Background()
	bus.Subscribe(ctx, "addr", func(_ context.Context, env Envelope) { first <- env })
	bus.Subscribe(ctx, "addr", func(_ context.Context, env Envelope) { second <- env })

	env, _ := NewEnvelope("message", "backend", map[string]string{})
	if err := bus.Send(ctx, "addr", env); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-second:
	case <-first:
		t.Error("envelope delivered to replaced handler")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}

func TestLocalBus_Close(t *testing.T) {
	bus := NewLocalBus(slog.Default())
	ctx := context.Background()

	bus.Subscribe(ctx, "addr", func(_ context.Context, _ Envelope) {})
	if err := bus.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	env, _ := NewEnvelope("message", "backend", map[string]string{})
	if err := bus.Send(ctx, "addr", env); err == nil {
		t.Error("expected error sending on closed bus")
	}
	if err := bus.Subscribe(ctx, "other", func(_ context.Context, _ Envelope) {}); err == nil {
		t.Error("expected error subscribing on closed bus")
	}
}

func TestMQTTBus_AddrFromTopic(t *testing.T) {
	bus := NewMQTTBus(testFabricConfig(), "backend", slog.Default())

	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{topic: "filmguide/agents/movie-recommender/inbox", want: "movie-recommender", wantOK: true},
		{topic: "filmguide/agents/backend/inbox", want: "backend", wantOK: true},
		{topic: "filmguide/agents/backend/availability", wantOK: false},
		{topic: "other/agents/backend/inbox", wantOK: false},
		{topic: "filmguide/agents//inbox", wantOK: false},
		{topic: "filmguide/agents/a/b/inbox", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := bus.addrFromTopic(tt.topic)
			if ok != tt.wantOK {
				t.Fatalf("addrFromTopic(%q) ok = %v, want %v", tt.topic, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("addrFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}

func TestMQTTBus_SendBeforeStart(t *testing.T) {
	bus := NewMQTTBus(testFabricConfig(), "backend", slog.Default())
	env, _ := NewEnvelope("message", "backend", map[string]string{})

	if err := bus.Send(context.Background(), "movie-recommender", env); err == nil {
		t.Error("expected error sending before Start")
	}
}
