// Package profile looks up contact details on the external user-profile
// service.
package profile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notifyhub/internal/model"
)

// Directory resolves the destination a channel delivers to.
type Directory interface {
	Email(ctx context.Context, userID string) (string, error)
	PhoneNumber(ctx context.Context, userID string) (string, error)
	FCMToken(ctx context.Context, userID string) (string, error)
}

// Client queries the profile service's bare-value endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Email(ctx context.Context, userID string) (string, error) {
	return c.lookup(ctx, userID, "email")
}

func (c *Client) PhoneNumber(ctx context.Context, userID string) (string, error) {
	return c.lookup(ctx, userID, "phoneNumber")
}

func (c *Client) FCMToken(ctx context.Context, userID string) (string, error) {
	return c.lookup(ctx, userID, "fcmToken")
}

func (c *Client) lookup(ctx context.Context, userID, attribute string) (string, error) {
	url := fmt.Sprintf("%s/users/%s/%s", c.baseURL, userID, attribute)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build profile request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("profile lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s/%s", model.ErrProfileNotFound, userID, attribute)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("profile service returned %d for %s/%s", resp.StatusCode, userID, attribute)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read profile response: %w", err)
	}

	value := strings.TrimSpace(string(body))
	if value == "" {
		return "", fmt.Errorf("%w: %s/%s", model.ErrProfileNotFound, userID, attribute)
	}
	return value, nil
}
