// Package notify sends fatal-failure alerts via Telegram, grounded on the
// teacher's internal/services/telegram package but rebuilt as an injected
// struct instead of package-level bot globals.
package notify

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/telebot.v3"
)

// Notifier sends operator alerts for the pipeline's two fatal error classes:
// quote source authentication failure and result sink summary-row failure.
// A Notifier built without a token has no bot: Alert then only logs the
// message at warn level (when a logger is set), matching the teacher's own
// demo/prod environment gate. Methods must not be called on a nil Notifier.
type Notifier struct {
	bot    *telebot.Bot
	chatID int64
	log    *zap.Logger
}

// New builds a Notifier. If token is empty, Alert sends nothing and only
// logs a warning — local and CI runs never need a live bot.
func New(token string, chatID int64, log *zap.Logger) (*Notifier, error) {
	if token == "" {
		return &Notifier{log: log}, nil
	}
	bot, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: chatID, log: log}, nil
}

// Alert sends msg to the configured chat. Send failures are logged, never
// returned — a notification failure must not mask the original fatal error
// that triggered it.
func (n *Notifier) Alert(msg string) {
	if n.bot == nil {
		if n.log != nil {
			n.log.Warn("telegram not configured, dropping alert", zap.String("message", msg))
		}
		return
	}
	if _, err := n.bot.Send(telebot.ChatID(n.chatID), msg); err != nil && n.log != nil {
		n.log.Error("failed to send telegram alert", zap.Error(err))
	}
}

// AuthFailure reports a quote source authentication failure, fatal at
// startup per the error table.
func (n *Notifier) AuthFailure(err error) {
	n.Alert(fmt.Sprintf("screener: quote source authentication failed: %v", err))
}

// SinkFailure reports a run-summary persistence failure — the run's output
// for that rule is unrecoverable once this happens.
func (n *Notifier) SinkFailure(rule string, err error) {
	n.Alert(fmt.Sprintf("screener: failed to save run summary for rule %q: %v", rule, err))
}
