package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToken = "123456:" + strings.Repeat("A", 35)

// fakeBotAPI records sendMessage calls and answers with reply.
type fakeBotAPI struct {
	mu       sync.Mutex
	paths    []string
	requests []map[string]any
	reply    string
	status   int
	delay    time.Duration
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var params map[string]any
	_ = json.Unmarshal(body, &params)

	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.requests = append(f.requests, params)
	reply, status, delay := f.reply, f.status, f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(reply))
}

func newTestOutbound(t *testing.T, api *fakeBotAPI, timeout time.Duration) *TelegramOutbound {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	tg, err := NewTelegramOutbound(TelegramConfig{Token: testToken, APIServer: srv.URL + "/", Timeout: timeout})
	require.NoError(t, err)
	return tg
}

func TestTelegramOutbound_Send(t *testing.T) {
	api := &fakeBotAPI{reply: `{"ok":true,"result":{"message_id":77,"date":0,"chat":{"id":42,"type":"private"}}}`}
	tg := newTestOutbound(t, api, time.Second)

	delivery, err := tg.Send(context.Background(), "42", `<b>hi</b> & bye`)
	require.NoError(t, err)
	assert.Equal(t, &Delivery{ChatID: "42", MessageID: 77}, delivery)

	require.Len(t, api.requests, 1)
	assert.Equal(t, "/bot"+testToken+"/sendMessage", api.paths[0])

	params := api.requests[0]
	assert.EqualValues(t, 42, params["chat_id"])
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt; &amp; bye", params["text"])
	assert.Equal(t, "HTML", params["parse_mode"])
	assert.Equal(t, map[string]any{"is_disabled": true}, params["link_preview_options"])
}

func TestTelegramOutbound_SendToUsername(t *testing.T) {
	api := &fakeBotAPI{reply: `{"ok":true,"result":{"message_id":5,"date":0,"chat":{"id":-100777,"type":"channel"}}}`}
	tg := newTestOutbound(t, api, time.Second)

	delivery, err := tg.Send(context.Background(), "support_channel", "hi")
	require.NoError(t, err)
	assert.Equal(t, "-100777", delivery.ChatID)

	require.Len(t, api.requests, 1)
	assert.Equal(t, "@support_channel", api.requests[0]["chat_id"])
}

func TestTelegramOutbound_Rejected(t *testing.T) {
	api := &fakeBotAPI{
		status: http.StatusBadRequest,
		reply:  `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`,
	}
	tg := newTestOutbound(t, api, time.Second)

	_, err := tg.Send(context.Background(), "42", "hi")

	var rejected *UpstreamRejected
	require.True(t, errors.As(err, &rejected), "got %v", err)
	assert.Equal(t, "Bad Request: chat not found", rejected.Details)
	assert.False(t, IsValidation(err))
}

func TestTelegramOutbound_Timeout(t *testing.T) {
	api := &fakeBotAPI{
		delay: 300 * time.Millisecond,
		reply: `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`,
	}
	tg := newTestOutbound(t, api, 50*time.Millisecond)

	_, err := tg.Send(context.Background(), "42", "hi")

	var rejected *UpstreamRejected
	require.True(t, errors.As(err, &rejected), "got %v", err)
	assert.NotEmpty(t, rejected.Details)
	// single attempt, no retry
	assert.Len(t, api.requests, 1)
}

func TestTelegramOutbound_EmptyText(t *testing.T) {
	api := &fakeBotAPI{}
	tg := newTestOutbound(t, api, time.Second)

	_, err := tg.Send(context.Background(), "42", "  ")

	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, api.requests)
}

func TestNewTelegramOutbound_MissingToken(t *testing.T) {
	_, err := NewTelegramOutbound(TelegramConfig{Token: " "})

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{"TELEGRAM_BOT_TOKEN"}, cfgErr.Missing)
}

func TestTelegramOutbound_SetWebhook(t *testing.T) {
	api := &fakeBotAPI{reply: `{"ok":true,"result":true}`}
	tg := newTestOutbound(t, api, time.Second)

	require.NoError(t, tg.SetWebhook(context.Background(), "https://example.com/api/telegram", "s3cret"))

	require.Len(t, api.requests, 1)
	assert.Equal(t, "/bot"+testToken+"/setWebhook", api.paths[0])
	assert.Equal(t, "https://example.com/api/telegram", api.requests[0]["url"])
	assert.Equal(t, "s3cret", api.requests[0]["secret_token"])
	assert.Equal(t, []any{"message"}, api.requests[0]["allowed_updates"])
}

func TestChatRef(t *testing.T) {
	assert.Equal(t, int64(42), chatRef("42").ID)
	assert.Equal(t, int64(-1001234), chatRef(" -1001234 ").ID)
	assert.Equal(t, "@news", chatRef("news").Username)
	assert.Equal(t, "@news", chatRef("@news").Username)
}
