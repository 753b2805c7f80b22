package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	contracts "notifyhub/contracts/mq"
	"notifyhub/internal/config"
	"notifyhub/internal/model"
	"notifyhub/internal/profile"
)

// pushPayload is the gateway's message envelope, FCM legacy shape.
type pushPayload struct {
	To           string           `json:"to"`
	Notification pushNotification `json:"notification"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Image string `json:"image,omitempty"`
}

type Push struct {
	cfg       config.PushConfig
	directory profile.Directory
	http      *http.Client
}

func NewPush(cfg config.PushConfig, directory profile.Directory) *Push {
	return &Push{
		cfg:       cfg,
		directory: directory,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *Push) Channel() model.Channel { return model.ChannelPush }

func (p *Push) Resolve(ctx context.Context, userID string) (string, error) {
	return p.directory.FCMToken(ctx, userID)
}

func (p *Push) Send(ctx context.Context, destination string, msg contracts.NotificationMessage) error {
	payload := pushPayload{
		To: destination,
		Notification: pushNotification{
			Title: msg.Content.Header,
			Body:  msg.Content.Message,
			Image: msg.Content.ImageURL,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+p.cfg.ServerKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("push gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}
