package mailer

import (
	"context"
	"time"

	"github.com/timmy/marketplace/internal/config"
	"github.com/timmy/marketplace/internal/logger"
)

// Message is a plain-text email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, msg *Message) (SendResult, error)
}

// NewSender returns an SMTP sender when mail is enabled, otherwise a sender that only logs.
func NewSender(cfg *config.MailConfig) Sender {
	if !cfg.Enabled {
		return &LogSender{}
	}
	return NewSMTPSender(&SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
	})
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct{}

func (s *LogSender) Send(ctx context.Context, msg *Message) (SendResult, error) {
	logger.FromContext(ctx).WithFields(logger.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("Mail disabled, message not sent")
	return SendResult{SentAt: time.Now()}, nil
}
