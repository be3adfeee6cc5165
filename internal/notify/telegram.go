// Package notify delivers text reports to a Telegram chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"fintrack/internal/log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLen is Telegram's limit on the text of one message.
const maxMessageLen = 4096

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts messages to a single chat.
type Telegram struct {
	bot    Sender
	chatID int64
	logger *log.Logger
}

// NewTelegram logs the bot in with token.
func NewTelegram(token string, chatID int64, logger *log.Logger) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("missing telegram bot token")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = false
	n := NewTelegramWithSender(bot, chatID, logger)
	n.logger.Info("Telegram bot ready", "bot", bot.Self.UserName)
	return n, nil
}

// NewTelegramWithSender builds a notifier over an existing sender.
func NewTelegramWithSender(bot Sender, chatID int64, logger *log.Logger) *Telegram {
	if logger == nil {
		logger = log.Discard()
	}
	return &Telegram{bot: bot, chatID: chatID, logger: logger.WithComponent(log.ComponentNotify)}
}

// Notify sends text, split over several messages when it is too long for one.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := split(text, maxMessageLen)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, part)); err != nil {
			return fmt.Errorf("send message %d/%d: %w", i+1, len(parts), err)
		}
	}
	t.logger.InfoContext(ctx, "Sent notification", "chat_id", t.chatID, "messages", len(parts))
	return nil
}

// split cuts text into chunks of at most limit bytes, preferring line breaks
// and never splitting a UTF-8 sequence.
func split(text string, limit int) []string {
	var out []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		out = append(out, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
