// Package responder implements the responder agents: message-handling
// units that turn a user query plus the movie catalog into a
// natural-language reply via an external completion call.
//
// Both deployed agents (movie recommendation, trailer lookup) share
// this one implementation; a Profile supplies what differs between
// them — address, persona prompt, dataset rendering, secret.
package responder

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/filmguide-ai/filmguide/internal/dataset"
	"github.com/filmguide-ai/filmguide/internal/fabric"
	"github.com/filmguide-ai/filmguide/internal/llm"
	"github.com/filmguide-ai/filmguide/internal/wire"
)

// accessDeniedReply is the fixed reply for a bad security key. No
// completion call is made in that case.
const accessDeniedReply = "Sorry, I encountered an error: Access denied. Security key not valid."

// errorReplyPrefix converts any upstream failure into a user-visible
// reply; errors are never silently dropped.
const errorReplyPrefix = "Sorry, I encountered an error: "

// PromptFunc builds the completion prompt for a user's (possibly
// history-augmented) text.
type PromptFunc func(catalog *dataset.Catalog, userText string) string

// Profile is the per-deployment configuration of a responder agent.
type Profile struct {
	// Name labels the agent in logs ("movie", "trailer").
	Name string
	// Address is the agent's fabric address.
	Address string
	// SecurityKey is the shared secret inbound messages must carry.
	SecurityKey string
	// Prompt builds the completion prompt.
	Prompt PromptFunc
}

// Agent receives request messages, validates them, calls the
// completion client, and replies to the originating address.
type Agent struct {
	profile Profile
	catalog *dataset.Catalog
	client  llm.Client
	bus     fabric.Bus
	logger  *slog.Logger
}

// New creates a responder agent. Call [Agent.Start] to subscribe it on
// the fabric.
func New(profile Profile, catalog *dataset.Catalog, client llm.Client, bus fabric.Bus, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		profile: profile,
		catalog: catalog,
		client:  client,
		bus:     bus,
		logger:  logger.With("agent", profile.Name, "addr", profile.Address),
	}
}

// Start subscribes the agent to its fabric address.
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("responder agent ready", "movies", a.catalog.Len())
	return a.bus.Subscribe(ctx, a.profile.Address, a.handleEnvelope)
}

// handleEnvelope processes one inbound fabric envelope. Every request
// message yields exactly one reply to the sender; anything else is
// logged and dropped.
func (a *Agent) handleEnvelope(ctx context.Context, env fabric.Envelope) {
	if env.Kind != wire.KindMessage {
		a.logger.Debug("ignoring envelope", "kind", env.Kind, "from", env.From)
		return
	}

	var msg wire.Message
	if err := json.Unmarshal(env.Body, &msg); err != nil {
		a.logger.Warn("dropped malformed message", "from", env.From, "error", err)
		return
	}

	a.logger.Info("message received", "from", env.From, "user_id", msg.UserID)

	resp := a.Respond(ctx, msg)

	reply, err := fabric.NewEnvelope(wire.KindChatResponse, a.profile.Address, resp)
	if err != nil {
		a.logger.Error("encode reply", "user_id", msg.UserID, "error", err)
		return
	}
	if err := a.bus.Send(ctx, env.From, reply); err != nil {
		a.logger.Error("send reply", "to", env.From, "user_id", msg.UserID, "error", err)
		return
	}
	a.logger.Info("reply sent", "to", env.From, "user_id", msg.UserID)
}

// Respond runs the validate → prompt → complete sequence and always
// returns a well-formed response: upstream failures and auth failures
// come back as error-text replies, never as dropped messages. The
// same path serves both fabric messages and the out-of-band /search
// endpoint.
func (a *Agent) Respond(ctx context.Context, msg wire.Message) wire.ChatResponse {
	resp := wire.ChatResponse{
		UserID:    msg.UserID,
		SessionID: msg.SessionID,
	}

	if msg.SecurityKey != a.profile.SecurityKey {
		a.logger.Warn("access denied", "user_id", msg.UserID)
		resp.Text = accessDeniedReply
		return resp
	}

	prompt := a.profile.Prompt(a.catalog, msg.Text)

	start := time.Now()
	completion, err := a.client.Complete(ctx, prompt)
	if err != nil {
		a.logger.Error("completion failed", "user_id", msg.UserID, "error", err)
		resp.Text = errorReplyPrefix + err.Error()
		return resp
	}

	a.logger.Info("completion generated",
		"user_id", msg.UserID,
		"duration", time.Since(start).Truncate(time.Millisecond).String(),
	)
	resp.Text = completion
	return resp
}
