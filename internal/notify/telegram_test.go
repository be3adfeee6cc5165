package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if b.err != nil {
		return tgbotapi.Message{}, b.err
	}
	b.sent = append(b.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func TestNotifySendsToChat(t *testing.T) {
	bot := &fakeBot{}
	n := NewTelegramWithSender(bot, 42, nil)

	require.NoError(t, n.Notify(context.Background(), "Bills due until 2025-06-18"))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Equal(t, "Bills due until 2025-06-18", bot.sent[0].Text)
}

func TestNotifySkipsBlankText(t *testing.T) {
	bot := &fakeBot{}
	require.NoError(t, NewTelegramWithSender(bot, 42, nil).Notify(context.Background(), "  \n"))
	assert.Empty(t, bot.sent)
}

func TestNotifySplitsLongText(t *testing.T) {
	bot := &fakeBot{}
	line := strings.Repeat("x", 99) + "\n"
	text := strings.Repeat(line, 100)

	require.NoError(t, NewTelegramWithSender(bot, 42, nil).Notify(context.Background(), text))
	require.Len(t, bot.sent, 3)
	texts := make([]string, 0, len(bot.sent))
	for _, m := range bot.sent {
		assert.LessOrEqual(t, len(m.Text), maxMessageLen)
		texts = append(texts, m.Text)
	}
	assert.Equal(t, strings.TrimSuffix(text, "\n"), strings.Join(texts, "\n"))
}

func TestNotifyWrapsSendError(t *testing.T) {
	bot := &fakeBot{err: errors.New("Forbidden: bot was blocked by the user")}
	err := NewTelegramWithSender(bot, 42, nil).Notify(context.Background(), "hi")
	assert.ErrorContains(t, err, "send message 1/1")
}

func TestSplitKeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("€", 10)
	parts := split(text, 7)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 7)
		assert.True(t, strings.HasPrefix(p, "€"))
	}
	assert.Equal(t, text, strings.Join(parts, ""))
}

func TestNewTelegramRequiresToken(t *testing.T) {
	_, err := NewTelegram(" ", 1, nil)
	assert.ErrorContains(t, err, "missing telegram bot token")
}
