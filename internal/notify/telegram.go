package notify

import (
	"context"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender messages one chat through the Bot API.
type TelegramSender struct {
	baseURL string
	token   string
	chatID  string
}

func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{baseURL: telegramAPI, token: token, chatID: chatID}
}

// Send posts plain text. Order ids and symbols often contain characters
// Markdown would mangle, so no parse mode is set.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, httpClient, t.Name(), t.baseURL+"/bot"+t.token+"/sendMessage", map[string]string{
		"chat_id": t.chatID,
		"text":    title + "\n" + message,
	})
}

func (t *TelegramSender) Name() string { return "telegram" }
