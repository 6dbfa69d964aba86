// Package notify delivers verification codes and other account messages.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

const PurposeVerification = "verification"

// Message is one outbound notification.
type Message struct {
	ID        string    `json:"id"`
	Channel   Channel   `json:"channel"`
	Recipient string    `json:"recipient"`
	Purpose   string    `json:"purpose"`
	Code      string    `json:"code,omitempty"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.Recipient) == "" {
		return errors.New("notification recipient required")
	}
	switch m.Channel {
	case ChannelSMS, ChannelEmail:
	default:
		return fmt.Errorf("unknown notification channel %q", m.Channel)
	}
	return nil
}

// Notifier hands a message off for delivery. Implementations return once the
// message is accepted, not when it reaches the recipient.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Sender performs the actual delivery.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log and delivers nothing.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, msg Message) error {
	return logMessage(ctx, n.Logger, "notification", msg)
}

// LogSender is the Sender counterpart of LogNotifier.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	return logMessage(ctx, s.Logger, "notification_sent", msg)
}

func logMessage(ctx context.Context, logger *slog.Logger, event string, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, event,
		"channel", string(msg.Channel),
		"recipient", msg.Recipient,
		"purpose", msg.Purpose,
		"code", msg.Code,
	)
	return nil
}

func encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode notification: %w", err)
	}
	return msg, msg.Validate()
}
