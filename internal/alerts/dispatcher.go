// Package alerts delivers realtime mention notifications through the
// Telegram bot API.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/sneakyguy/reddit-mentions-bot/internal/models"
	"github.com/sneakyguy/reddit-mentions-bot/internal/retry"
)

// Dispatcher sends formatted alert messages to a chat target.
type Dispatcher interface {
	Send(ctx context.Context, chatID, text string) bool
}

// TelegramDispatcher posts messages via the Telegram sendMessage API,
// retrying transient failures. Send never returns an error: alert
// failure is non-fatal to stream processing and the triggering post is
// not re-delivered.
type TelegramDispatcher struct {
	botToken string
	client   *resty.Client
	policy   retry.Policy

	apiBase string
}

var _ Dispatcher = (*TelegramDispatcher)(nil)

type sendMessagePayload struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// NewTelegramDispatcher creates a dispatcher with the given retry
// policy. Pass retry.Dispatcher() in production.
func NewTelegramDispatcher(botToken string, policy retry.Policy) *TelegramDispatcher {
	return &TelegramDispatcher{
		botToken: botToken,
		client:   resty.New().SetTimeout(30 * time.Second),
		policy:   policy,
		apiBase:  "https://api.telegram.org",
	}
}

// Enabled reports whether a bot token is configured.
func (d *TelegramDispatcher) Enabled() bool {
	return d.botToken != ""
}

// Send delivers text to chatID as HTML-formatted message. It reports
// whether delivery succeeded; failures are logged, never raised.
func (d *TelegramDispatcher) Send(ctx context.Context, chatID, text string) bool {
	if !d.Enabled() {
		logrus.Error("Missing Telegram bot token, dropping alert")
		return false
	}
	if chatID == "" {
		logrus.Error("No Telegram chat ID configured, dropping alert")
		return false
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", d.apiBase, d.botToken)
	payload := sendMessagePayload{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}

	err := d.policy.Do(ctx, nil, func() error {
		resp, err := d.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Post(url)

		if err != nil {
			return fmt.Errorf("sending telegram message: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
		}
		return nil
	})

	if err != nil {
		logrus.Errorf("Failed to send Telegram alert to chat %s: %v", chatID, err)
		return false
	}

	logrus.Infof("Telegram alert sent to chat %s", chatID)
	return true
}

// FormatMentionAlert builds the HTML alert message for a matched post.
func FormatMentionAlert(brandName, subreddit string, matched []string, post models.Post) string {
	keywords := "N/A"
	if len(matched) > 0 {
		keywords = strings.Join(matched, ", ")
	}

	author := post.Author
	if author == "" {
		author = "unknown"
	}

	preview := post.Selftext
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	if preview == "" {
		preview = "No text"
	}

	return fmt.Sprintf(
		"🚨 <b>Reddit Brand Alert</b> 🚨\n"+
			"<b>Brand:</b> <code>%s</code>\n"+
			"<b>Subreddit:</b> <code>r/%s</code>\n"+
			"<b>Matched Keyword(s):</b> <code>%s</code>\n\n"+
			"<b>Post:</b> <a href='%s'>%s</a>\n"+
			"<b>Author:</b> <code>u/%s</code>\n"+
			"<b>Posted:</b> %s\n\n"+
			"<b>Preview:</b> %s\n",
		brandName, subreddit, keywords,
		post.URL, escapeHTML(post.Title),
		author,
		post.CreatedAt().Format("2006-01-02 15:04 UTC"),
		escapeHTML(preview),
	)
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "")
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	return s
}
