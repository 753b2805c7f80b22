// Package transport holds the provider-facing senders, one per channel.
package transport

import (
	"context"
	"fmt"
	"net/smtp"

	contracts "notifyhub/contracts/mq"
	"notifyhub/internal/config"
	"notifyhub/internal/model"
	"notifyhub/internal/profile"
)

type Email struct {
	cfg       config.SMTPConfig
	directory profile.Directory
	send      func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmail(cfg config.SMTPConfig, directory profile.Directory) *Email {
	return &Email{
		cfg:       cfg,
		directory: directory,
		send:      smtp.SendMail,
	}
}

func (e *Email) Channel() model.Channel { return model.ChannelEmail }

func (e *Email) Resolve(ctx context.Context, userID string) (string, error) {
	return e.directory.Email(ctx, userID)
}

func (e *Email) Send(_ context.Context, destination string, msg contracts.NotificationMessage) error {
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)

	body := fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		destination, e.cfg.From, msg.Content.Header, msg.Content.Message)

	if err := e.send(addr, auth, e.cfg.From, []string{destination}, []byte(body)); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}
