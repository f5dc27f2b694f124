package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sneakyguy/reddit-mentions-bot/internal/models"
	"github.com/sneakyguy/reddit-mentions-bot/internal/retry"
)

func newTestDispatcher(t *testing.T, handler http.HandlerFunc) *TelegramDispatcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	d := NewTelegramDispatcher("bot-token", retry.Immediate(retry.Dispatcher()))
	d.apiBase = srv.URL
	return d
}

func TestTelegramDispatcher_Send(t *testing.T) {
	var got sendMessagePayload
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botbot-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	ok := d.Send(context.Background(), "12345", "<b>hello</b>")
	assert.True(t, ok)
	assert.Equal(t, "12345", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.True(t, got.DisableWebPagePreview)
}

func TestTelegramDispatcher_SendRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	assert.True(t, d.Send(context.Background(), "12345", "msg"))
	assert.Equal(t, 3, attempts)
}

func TestTelegramDispatcher_SendGivesUpAfterRetries(t *testing.T) {
	attempts := 0
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	})

	assert.False(t, d.Send(context.Background(), "12345", "msg"))
	assert.Equal(t, 3, attempts)
}

func TestTelegramDispatcher_SendWithoutToken(t *testing.T) {
	d := NewTelegramDispatcher("", retry.None())
	assert.False(t, d.Send(context.Background(), "12345", "msg"))
}

func TestTelegramDispatcher_SendWithoutChatID(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	assert.False(t, d.Send(context.Background(), "", "msg"))
}

func TestFormatMentionAlert(t *testing.T) {
	post := models.Post{
		Title:      "Best <coffee> maker & grinder?",
		Selftext:   strings.Repeat("x", 250),
		Author:     "brewfan",
		URL:        "https://reddit.com/r/brewing/comments/abc/",
		CreatedUTC: 1700000000,
	}

	msg := FormatMentionAlert("BrewCo", "brewing", []string{"coffee maker"}, post)

	assert.Contains(t, msg, "<code>BrewCo</code>")
	assert.Contains(t, msg, "r/brewing")
	assert.Contains(t, msg, "coffee maker")
	assert.Contains(t, msg, "u/brewfan")
	// Angle brackets and ampersands are stripped from the title.
	assert.Contains(t, msg, "Best coffee maker  grinder?")
	// Long previews are truncated.
	assert.Contains(t, msg, strings.Repeat("x", 200)+"...")
	assert.NotContains(t, msg, strings.Repeat("x", 201))
}

func TestFormatMentionAlert_Defaults(t *testing.T) {
	msg := FormatMentionAlert("BrewCo", "brewing", nil, models.Post{Title: "t"})
	assert.Contains(t, msg, "N/A")
	assert.Contains(t, msg, "u/unknown")
	assert.Contains(t, msg, "No text")
}
