package publisher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"
)

// TelegramSender is the part of *tele.Bot used to deliver messages.
type TelegramSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// channelName addresses a public channel by its @username.
type channelName string

func (c channelName) Recipient() string { return string(c) }

// TelegramChat delivers chat digests to a Telegram chat or channel.
type TelegramChat struct {
	sender TelegramSender
}

func NewTelegramChat(sender TelegramSender) *TelegramChat {
	return &TelegramChat{sender: sender}
}

// Send posts text to channelID, a numeric chat id or an @channel name.
// Markdown is disabled so templated asterisks arrive literally.
func (t *TelegramChat) Send(ctx context.Context, channelID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var to tele.Recipient
	if id, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		to = tele.ChatID(id)
	} else {
		to = channelName(channelID)
	}

	_, err := t.sender.Send(to, text, tele.NoPreview)
	if err == nil {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &RateLimitError{Platform: "telegram", RetryAfter: time.Duration(flood.RetryAfter) * time.Second, Err: err}
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) {
		return &RateLimitError{Platform: "telegram", RetryAfter: time.Duration(floodPtr.RetryAfter) * time.Second, Err: err}
	}
	return fmt.Errorf("telegram send: %w", err)
}
