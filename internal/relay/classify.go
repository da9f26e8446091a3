package relay

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
)

type Kind int

const (
	KindUnrecognized Kind = iota
	KindOutbound
	KindInbound
)

func (k Kind) String() string {
	switch k {
	case KindOutbound:
		return "outbound"
	case KindInbound:
		return "inbound"
	default:
		return "unrecognized"
	}
}

// OutboundRequest is a visitor message posted by the website.
type OutboundRequest struct {
	Message   string
	SessionID string
}

// InboundUpdate is an operator message delivered by the bot network webhook.
// HasText is false for content-free updates (pings, stickers, joins).
type InboundUpdate struct {
	UpdateID         int64
	ChatID           string
	MessageID        int64
	ReplyToMessageID int64
	Text             string
	HasText          bool
}

// Envelope is the decoded request: exactly one of Outbound/Inbound is
// meaningful, selected by Kind.
type Envelope struct {
	Kind     Kind
	Outbound OutboundRequest
	Inbound  InboundUpdate
}

// chat id locations seen across bot API versions
var chatIDPaths = []string{"chat.id", "chat_id"}

// Classify decodes an untrusted request body once. A string "message" is the
// website; an object "message" carrying a chat id or text is the bot network
// (a text-only update keeps an empty ChatID and relies on the recent visitor
// fallback); everything else, including empty or broken JSON, is
// unrecognized.
func Classify(body []byte) Envelope {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return Envelope{}
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return Envelope{}
	}

	msg := root.Get("message")
	switch {
	case msg.Type == gjson.String:
		return Envelope{
			Kind:     KindOutbound,
			Outbound: OutboundRequest{
				Message:   msg.Str,
				SessionID: scalar(root.Get("session_id")),
			},
		}

	case msg.IsObject():
		upd := InboundUpdate{
			UpdateID:         root.Get("update_id").Int(),
			ChatID:           chatIdentifier(msg),
			MessageID:        msg.Get("message_id").Int(),
			ReplyToMessageID: msg.Get("reply_to_message.message_id").Int(),
		}
		if text := msg.Get("text"); text.Type == gjson.String {
			upd.Text = text.Str
			upd.HasText = true
		}
		if upd.ChatID == "" && !upd.HasText {
			return Envelope{}
		}
		return Envelope{Kind: KindInbound, Inbound: upd}
	}

	return Envelope{}
}

func chatIdentifier(msg gjson.Result) string {
	for _, path := range chatIDPaths {
		if id := scalar(msg.Get(path)); id != "" {
			return id
		}
	}
	return ""
}

// scalar canonicalizes a JSON string or number to its text form.
func scalar(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.Str)
	case gjson.Number:
		return v.Raw
	default:
		return ""
	}
}
