// Package wire defines the agent-to-agent messaging surface.
//
// Two message kinds travel over the fabric: a request to a responder
// agent and its reply back to the originating address. The session ID
// rides along both legs so the gateway can correlate a reply with the
// exact request that produced it, even when a user has several
// requests in flight.
package wire

// Envelope kinds.
const (
	KindMessage      = "message"
	KindChatResponse = "chat_response"
)

// Message is a request delivered to a responder agent.
type Message struct {
	Text        string `json:"text"`
	UserID      string `json:"user_id"`
	SecurityKey string `json:"security_key"`
	SessionID   string `json:"session_id,omitempty"`
}

// ChatResponse is a responder agent's reply to the originating address.
type ChatResponse struct {
	Text      string `json:"text"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}
