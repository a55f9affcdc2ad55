// Package gateway bridges the synchronous HTTP surface onto the
// asynchronous agent fabric. Each inbound chat request gets a
// correlation token, a pending-table entry, and a routed fabric
// message; the matching reply (or a timeout) releases the waiting
// caller.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/filmguide-ai/filmguide/internal/audit"
	"github.com/filmguide-ai/filmguide/internal/config"
	"github.com/filmguide-ai/filmguide/internal/convo"
	"github.com/filmguide-ai/filmguide/internal/fabric"
	"github.com/filmguide-ai/filmguide/internal/router"
	"github.com/filmguide-ai/filmguide/internal/wire"
)

// timeoutReply is returned when no responder answers within the reply
// window.
const timeoutReply = "The movie agent is taking too long. Please try again."

// errorSessionID marks replies produced by a gateway-internal failure
// rather than a responder exchange.
const errorSessionID = "error"

// Result is the outcome of one chat exchange, timeout and error
// replies included.
type Result struct {
	Reply     string `json:"reply"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// pendingRequest is one in-flight exchange awaiting its reply.
type pendingRequest struct {
	userID    string
	createdAt time.Time
	done      chan wire.ChatResponse
}

// Gateway correlates chat requests with fabric replies. The pending
// table is keyed by session token; replies carrying no token fall back
// to the newest pending request for the same user.
type Gateway struct {
	bus          fabric.Bus
	router       *router.Router
	convo        *convo.Store
	audit        *audit.Store // nil disables the exchange log
	logger       *slog.Logger
	address      string
	securityKey  string
	replyTimeout time.Duration
	historyDepth int

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// New creates a gateway. The audit store may be nil. Call
// [Gateway.Start] to subscribe it to its fabric address.
func New(cfg config.BackendConfig, bus fabric.Bus, rtr *router.Router, store *convo.Store, auditStore *audit.Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.ReplyTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 5
	}
	return &Gateway{
		bus:          bus,
		router:       rtr,
		convo:        store,
		audit:        auditStore,
		logger:       logger.With("component", "gateway"),
		address:      cfg.Address,
		securityKey:  cfg.SecurityKey,
		replyTimeout: timeout,
		historyDepth: depth,
	}
}

// Start subscribes the gateway's reply handler on the fabric.
func (g *Gateway) Start(ctx context.Context) error {
	return g.bus.Subscribe(ctx, g.address, g.HandleReply)
}

// HandleRequest runs one chat exchange end to end: fold history into
// the prompt, record the user turn, send the routed fabric message,
// and wait for the correlated reply. It always returns a well-formed
// Result; timeouts and internal failures become reply text.
func (g *Gateway) HandleRequest(ctx context.Context, userID, text string) Result {
	start := time.Now()

	history, err := g.convo.History(userID, g.historyDepth)
	if err != nil {
		return g.internalError(userID, text, "load history", err)
	}

	augmented := augmentPrompt(history, text)

	if err := g.convo.Append(userID, convo.RoleUser, text); err != nil {
		return g.internalError(userID, text, "record user turn", err)
	}

	sessionID := newSessionID()
	pend := &pendingRequest{
		userID:    userID,
		createdAt: time.Now(),
		done:      make(chan wire.ChatResponse, 1),
	}
	g.mu.Lock()
	if g.pending == nil {
		g.pending = make(map[string]*pendingRequest)
	}
	g.pending[sessionID] = pend
	g.mu.Unlock()
	defer g.unregister(sessionID)

	// Routing looks at the user's raw words, not the augmented prompt,
	// so history text cannot flip the destination.
	dest := g.router.Destination(text)

	env, err := fabric.NewEnvelope(wire.KindMessage, g.address, wire.Message{
		Text:        augmented,
		UserID:      userID,
		SecurityKey: g.securityKey,
		SessionID:   sessionID,
	})
	if err != nil {
		return g.internalError(userID, text, "encode request", err)
	}
	if err := g.bus.Send(ctx, dest, env); err != nil {
		return g.internalError(userID, text, "send to "+dest, err)
	}

	g.logger.Info("request dispatched",
		"session_id", sessionID, "user_id", userID, "agent", dest)

	select {
	case resp := <-pend.done:
		if err := g.convo.Append(userID, convo.RoleAssistant, resp.Text); err != nil {
			g.logger.Error("record assistant turn",
				"session_id", sessionID, "user_id", userID, "error", err)
		}
		g.record(audit.Exchange{
			SessionID: sessionID,
			UserID:    userID,
			Agent:     dest,
			Question:  text,
			Reply:     resp.Text,
			Status:    audit.StatusOK,
			LatencyMS: time.Since(start).Milliseconds(),
		})
		g.logger.Info("reply delivered",
			"session_id", sessionID, "user_id", userID,
			"duration", time.Since(start).Truncate(time.Millisecond).String())
		return Result{Reply: resp.Text, UserID: userID, SessionID: sessionID}

	case <-time.After(g.replyTimeout):
		g.logger.Warn("reply timed out",
			"session_id", sessionID, "user_id", userID, "agent", dest)
		g.record(audit.Exchange{
			SessionID: sessionID,
			UserID:    userID,
			Agent:     dest,
			Question:  text,
			Reply:     timeoutReply,
			Status:    audit.StatusTimeout,
			LatencyMS: time.Since(start).Milliseconds(),
		})
		return Result{Reply: timeoutReply, UserID: userID, SessionID: sessionID}

	case <-ctx.Done():
		return g.internalError(userID, text, "wait for reply", ctx.Err())
	}
}

// HandleReply resolves an inbound fabric envelope against the pending
// table. Replies with no match are logged and dropped.
func (g *Gateway) HandleReply(ctx context.Context, env fabric.Envelope) {
	if env.Kind != wire.KindChatResponse {
		g.logger.Debug("ignoring envelope", "kind", env.Kind, "from", env.From)
		return
	}

	var resp wire.ChatResponse
	if err := json.Unmarshal(env.Body, &resp); err != nil {
		g.logger.Warn("dropped malformed reply", "from", env.From, "error", err)
		return
	}

	pend, sessionID := g.resolve(resp)
	if pend == nil {
		g.logger.Warn("no pending request found",
			"session_id", resp.SessionID, "user_id", resp.UserID, "from", env.From)
		return
	}

	select {
	case pend.done <- resp:
	default:
		// A reply already landed for this token.
		g.logger.Debug("duplicate reply dropped", "session_id", sessionID)
	}
}

// resolve takes the pending entry a reply belongs to out of the table.
// Token match wins; a tokenless reply claims the newest pending
// request for the same user.
func (g *Gateway) resolve(resp wire.ChatResponse) (*pendingRequest, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if resp.SessionID != "" {
		if pend, ok := g.pending[resp.SessionID]; ok {
			delete(g.pending, resp.SessionID)
			return pend, resp.SessionID
		}
		return nil, ""
	}

	var (
		newest   *pendingRequest
		newestID string
	)
	for id, pend := range g.pending {
		if pend.userID != resp.UserID {
			continue
		}
		if newest == nil || pend.createdAt.After(newest.createdAt) {
			newest = pend
			newestID = id
		}
	}
	if newest != nil {
		delete(g.pending, newestID)
	}
	return newest, newestID
}

func (g *Gateway) unregister(sessionID string) {
	g.mu.Lock()
	delete(g.pending, sessionID)
	g.mu.Unlock()
}

func (g *Gateway) internalError(userID, question, op string, err error) Result {
	g.logger.Error("chat request failed", "user_id", userID, "op", op, "error", err)
	reply := fmt.Sprintf("Sorry, I encountered an error: %v", err)
	g.record(audit.Exchange{
		SessionID: errorSessionID,
		UserID:    userID,
		Question:  question,
		Reply:     reply,
		Status:    audit.StatusError,
	})
	return Result{Reply: reply, UserID: userID, SessionID: errorSessionID}
}

func (g *Gateway) record(e audit.Exchange) {
	if g.audit == nil {
		return
	}
	if err := g.audit.Record(e); err != nil {
		g.logger.Error("record exchange", "session_id", e.SessionID, "error", err)
	}
}

// newSessionID returns a short correlation token. Eight hex characters
// of a UUID are plenty for the table of concurrently pending requests.
func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// augmentPrompt prefixes the user's text with their recent
// conversation turns so follow-up questions resolve against what was
// already said.
func augmentPrompt(history []convo.Entry, text string) string {
	if len(history) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, e := range history {
		b.WriteString(e.Role)
		b.WriteString(": ")
		b.WriteString(e.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nNew question: ")
	b.WriteString(text)
	return b.String()
}
