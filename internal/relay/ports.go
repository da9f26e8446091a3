package relay

import (
	"context"
	"time"
)

type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
)

// ChatEvent is one row of the message log. Rows are immutable once written.
type ChatEvent struct {
	ID                int64     `json:"id"`
	Sender            Sender    `json:"sender"`
	Message           string    `json:"message"`
	SessionID         string    `json:"session_id"`
	ExternalChatID    *string   `json:"external_chat_id,omitempty"`
	ExternalMessageID *int64    `json:"external_message_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Log is append-only persistence. Latest* methods return (nil, nil) when
// nothing matches and never return rows with an empty session id.
type Log interface {
	Append(ctx context.Context, ev *ChatEvent) error
	LatestByExternalChatID(ctx context.Context, chatID string) (*ChatEvent, error)
	LatestByExternalMessageID(ctx context.Context, chatID string, messageID int64) (*ChatEvent, error)
	LatestBySender(ctx context.Context, sender Sender) (*ChatEvent, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]ChatEvent, error)
}

// Delivery is what the bot network reports back for an accepted message.
type Delivery struct {
	ChatID    string
	MessageID int64
}

// Sink is the bot network's message-send API.
type Sink interface {
	Send(ctx context.Context, destination string, text string) (*Delivery, error)
}

// Deduper claims inbound update ids. Claim reports false for a key that was
// already claimed.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// Limiter throttles outbound requests per caller identity.
type Limiter interface {
	Allow(ctx context.Context, identifier string) (bool, error)
}

// Publisher fans appended events out to live subscribers.
type Publisher interface {
	PublishChatEvent(sessionID string, data []byte) error
}

// Service runs both relay flows plus the read side used by the website.
type Service interface {
	Handle(ctx context.Context, env Envelope) Result
	HandleOutbound(ctx context.Context, req OutboundRequest) Result
	HandleInbound(ctx context.Context, upd InboundUpdate) Result
	History(ctx context.Context, sessionID string, limit int) ([]ChatEvent, error)
}

// Result is an HTTP status plus the JSON body to write.
type Result struct {
	Status int
	Body   any
}
