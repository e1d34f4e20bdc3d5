package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// TelegramNotifier sends alerts to a chat through the Telegram Bot API.
// Info alerts are delivered silently.
type TelegramNotifier struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
	log     *slog.Logger
}

type telegramMessage struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

// NewTelegramNotifier creates a notifier for the bot token and chat id.
func NewTelegramNotifier(token, chatID string, log *slog.Logger) *TelegramNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &TelegramNotifier{
		apiBase: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With(slog.String("component", "notify"), slog.String("channel", "telegram")),
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(telegramMessage{
		ChatID:              t.chatID,
		Text:                telegramText(alert.stamped()),
		ParseMode:           "MarkdownV2",
		DisableNotification: alert.Level == AlertInfo,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}
	// The token is part of the path; keep it out of returned errors.
	if err := postJSON(ctx, t.client, t.apiBase+"/bot"+t.token+"/sendMessage", body); err != nil {
		return fmt.Errorf("telegram: %s", strings.ReplaceAll(err.Error(), t.token, "***"))
	}
	t.log.Debug("alert sent", append([]any{slog.String("title", alert.Title)}, alert.attrs()...)...)
	return nil
}

// telegramText lays an alert out as a bold header, the message, and a
// monospace line with the order and position.
func telegramText(a Alert) string {
	var b strings.Builder
	b.WriteString("*")
	b.WriteString(escapeMarkdown("[" + string(a.Level) + "] " + a.Title))
	b.WriteString("*\n")
	if a.Message != "" {
		b.WriteString(escapeMarkdown(a.Message))
		b.WriteString("\n")
	}
	line := fmt.Sprintf("position %d", a.Position)
	if a.OrderID != 0 {
		line = fmt.Sprintf("order %d %s | %s", a.OrderID, a.Side, line)
	}
	b.WriteString("`")
	b.WriteString(codeSpan.Replace(line))
	b.WriteString("`\n")
	b.WriteString(escapeMarkdown(a.At.Format(time.RFC3339)))
	return b.String()
}

var codeSpan = strings.NewReplacer(`\`, `\\`, "`", "\\`")

var markdownV2 = strings.NewReplacer(
	`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`, "=", `\=`,
	"|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// escapeMarkdown escapes the characters MarkdownV2 reserves outside code spans.
func escapeMarkdown(s string) string {
	return markdownV2.Replace(s)
}
