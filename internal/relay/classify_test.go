package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Envelope
	}{
		{
			name: "website message",
			body: `{"message":"hi"}`,
			want: Envelope{Kind: KindOutbound, Outbound: OutboundRequest{Message: "hi"}},
		},
		{
			name: "website message with session",
			body: `{"message":"hi","session_id":" s1 "}`,
			want: Envelope{Kind: KindOutbound, Outbound: OutboundRequest{Message: "hi", SessionID: "s1"}},
		},
		{
			name: "numeric session id",
			body: `{"message":"hi","session_id":17}`,
			want: Envelope{Kind: KindOutbound, Outbound: OutboundRequest{Message: "hi", SessionID: "17"}},
		},
		{
			name: "empty website message is still outbound",
			body: `{"message":""}`,
			want: Envelope{Kind: KindOutbound},
		},
		{
			name: "nested chat id",
			body: `{"message":{"chat":{"id":42},"text":"hi"}}`,
			want: Envelope{Kind: KindInbound, Inbound: InboundUpdate{ChatID: "42", Text: "hi", HasText: true}},
		},
		{
			name: "flattened chat id",
			body: `{"message":{"chat_id":"42","text":"hi"}}`,
			want: Envelope{Kind: KindInbound, Inbound: InboundUpdate{ChatID: "42", Text: "hi", HasText: true}},
		},
		{
			name: "negative group chat id",
			body: `{"message":{"chat":{"id":-1001234567890},"text":"hi"}}`,
			want: Envelope{Kind: KindInbound, Inbound: InboundUpdate{ChatID: "-1001234567890", Text: "hi", HasText: true}},
		},
		{
			name: "full telegram update",
			body: `{"update_id":900,"message":{"message_id":12,"chat":{"id":42,"type":"private"},"text":"answer","reply_to_message":{"message_id":7,"text":"q"}}}`,
			want: Envelope{Kind: KindInbound, Inbound: InboundUpdate{
				UpdateID:         900,
				ChatID:           "42",
				MessageID:        12,
				ReplyToMessageID: 7,
				Text:             "answer",
				HasText:          true,
			}},
		},
		{
			name: "inbound without text",
			body: `{"message":{"chat":{"id":42},"sticker":{}}}`,
			want: Envelope{Kind: KindInbound, Inbound: InboundUpdate{ChatID: "42"}},
		},
		{
			name: "inbound with non-string text",
			body: `{"message":{"chat":{"id":42},"text":5}}`,
			want: Envelope{Kind: KindInbound, Inbound: InboundUpdate{ChatID: "42"}},
		},
		{name: "empty object", body: `{}`},
		{name: "empty body", body: ``},
		{name: "whitespace body", body: "  \n"},
		{name: "broken json", body: `{"message":`},
		{name: "array", body: `[{"message":"hi"}]`},
		{name: "string", body: `"hi"`},
		{
			name: "text without chat id",
			body: `{"update_id":5,"message":{"text":"hi"}}`,
			want: Envelope{Kind: KindInbound, Inbound: InboundUpdate{UpdateID: 5, Text: "hi", HasText: true}},
		},
		{
			name: "empty chat id with text",
			body: `{"message":{"chat":{"id":""},"text":"hi"}}`,
			want: Envelope{Kind: KindInbound, Inbound: InboundUpdate{Text: "hi", HasText: true}},
		},
		{name: "message object without chat or text", body: `{"message":{"sticker":{}}}`},
		{name: "empty chat id without text", body: `{"message":{"chat":{"id":""}}}`},
		{name: "non-string text without chat", body: `{"message":{"text":5}}`},
		{name: "numeric message", body: `{"message":5}`},
		{name: "null message", body: `{"message":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify([]byte(tt.body)))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "outbound", KindOutbound.String())
	assert.Equal(t, "inbound", KindInbound.String())
	assert.Equal(t, "unrecognized", KindUnrecognized.String())
}

func TestValidateMessage(t *testing.T) {
	assert.NoError(t, ValidateMessage("hello"))
	assert.NoError(t, ValidateMessage("ж"))

	assert.ErrorIs(t, ValidateMessage(""), ErrEmptyMessage)
	assert.ErrorIs(t, ValidateMessage(" \t\n"), ErrEmptyMessage)

	long := make([]rune, MaxTextChars)
	for i := range long {
		long[i] = 'я'
	}
	assert.NoError(t, ValidateMessage(string(long)))
	assert.ErrorIs(t, ValidateMessage(string(long)+"a"), ErrMessageTooLong)
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(ErrEmptyMessage))
	assert.True(t, IsValidation(ErrMessageTooLong))
	assert.False(t, IsValidation(&UpstreamRejected{Details: "x"}))
	assert.False(t, IsValidation(nil))
}
