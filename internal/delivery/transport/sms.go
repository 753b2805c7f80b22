package transport

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	contracts "notifyhub/contracts/mq"
	"notifyhub/internal/config"
	"notifyhub/internal/model"
	"notifyhub/internal/profile"
)

// messageCreator matches the slice of the Twilio API client the sender
// uses, so tests can stub it.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type SMS struct {
	api       messageCreator
	from      string
	directory profile.Directory
}

func NewSMS(cfg config.TwilioConfig, directory profile.Directory) *SMS {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &SMS{
		api:       client.Api,
		from:      cfg.From,
		directory: directory,
	}
}

func (s *SMS) Channel() model.Channel { return model.ChannelSMS }

func (s *SMS) Resolve(ctx context.Context, userID string) (string, error) {
	return s.directory.PhoneNumber(ctx, userID)
}

func (s *SMS) Send(_ context.Context, destination string, msg contracts.NotificationMessage) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(destination)
	params.SetFrom(s.from)
	params.SetBody(msg.Content.Message)

	if _, err := s.api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send failed: %w", err)
	}
	return nil
}
