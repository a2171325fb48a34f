package notifier

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/go-telegram/bot"

	"github.com/shoplens/tiksync/pkg/logger"
)

// Notifier delivers NEED_RECONNECT alerts to the ops Telegram channel so a
// human can re-trigger the OAuth flow for the flagged store. Delivery is
// strictly best effort and never blocks or fails a sync.
type Notifier struct {
	logger *logger.Logger

	bot    *bot.Bot
	chatID string
}

// New builds a Telegram-backed notifier. With an empty token or chat id it
// degrades to a logging-only notifier.
func New(token, chatID string, logger *logger.Logger) (*Notifier, error) {
	n := &Notifier{logger: logger, chatID: chatID}
	if token == "" || chatID == "" {
		logger.Warn("Telegram notifier not configured, reconnect alerts will only be logged")
		return n, nil
	}

	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %s", err)
	}
	n.bot = b
	return n, nil
}

// NotifyReconnect sends an alert that the store's TikTok account needs to
// be reconnected.
func (n *Notifier) NotifyReconnect(storeCode, reason string) {
	message := fmt.Sprintf("Store %s needs TikTok reconnection: %s", storeCode, reason)
	n.logger.Warn("Reconnect alert ", "store ", storeCode, " reason ", reason)
	if n.bot == nil {
		return
	}
	go n.safeCall(func() {
		_, err := n.bot.SendMessage(context.Background(), &bot.SendMessageParams{
			ChatID: n.chatID,
			Text:   message,
		})
		if err != nil {
			n.logger.Error("Failed to send telegram alert ", "error ", err)
		}
	}, "telegramReconnectAlert")
}

// safeCall runs a function with panic recovery
func (n *Notifier) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}
