package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	contracts "notifyhub/contracts/mq"
	"notifyhub/internal/model"
)

type fakeIntentStore struct {
	created []model.Intent
	err     error
}

func (s *fakeIntentStore) Create(_ context.Context, n *model.Intent) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	n.ID = int64(len(s.created) + 1)
	s.created = append(s.created, *n)
	return n.ID, nil
}

type fakePublisher struct {
	published []struct {
		topic   string
		payload any
	}
	err error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, struct {
		topic   string
		payload any
	}{topic, payload})
	return nil
}

type fakePreferenceStore struct {
	prefs map[string]*model.Preference
}

func (s *fakePreferenceStore) Get(_ context.Context, userID string) (*model.Preference, error) {
	p, ok := s.prefs[userID]
	if !ok {
		return nil, model.ErrPreferencesNotFound
	}
	return p, nil
}

func testTopics() map[model.Channel]string {
	return map[model.Channel]string{
		model.ChannelEmail: "email-topic",
		model.ChannelSMS:   "sms-topic",
		model.ChannelPush:  "push-topic",
	}
}

func newTestRouter(intents *fakeIntentStore, prefs *fakePreferenceStore, pub *fakePublisher) *Router {
	return New(intents, prefs, pub, testTopics(), zap.NewNop())
}

func TestSendToChannelImmediate(t *testing.T) {
	intents := &fakeIntentStore{}
	pub := &fakePublisher{}
	r := newTestRouter(intents, nil, pub)

	req := model.SendRequest{
		UserID:   "u1",
		Content:  model.Content{Header: "hi", Message: "hello"},
		Channel:  model.ChannelEmail,
		Priority: model.PriorityHigh,
	}
	require.NoError(t, r.SendToChannel(context.Background(), req))

	require.Len(t, intents.created, 1)
	assert.Equal(t, model.StatusPending, intents.created[0].Status)
	assert.False(t, intents.created[0].ScheduledTime.IsZero())

	require.Len(t, pub.published, 1)
	assert.Equal(t, "email-topic", pub.published[0].topic)
	msg, ok := pub.published[0].payload.(contracts.NotificationMessage)
	require.True(t, ok)
	assert.Equal(t, "u1", msg.UserID)
	assert.Equal(t, model.ChannelEmail, msg.Channel)
	assert.Equal(t, model.PriorityHigh, msg.Priority)
}

func TestSendToChannelScheduledSkipsPublish(t *testing.T) {
	intents := &fakeIntentStore{}
	pub := &fakePublisher{}
	r := newTestRouter(intents, nil, pub)

	at := time.Now().Add(time.Hour)
	req := model.SendRequest{
		UserID:        "u1",
		Channel:       model.ChannelSMS,
		ScheduledTime: &at,
	}
	require.NoError(t, r.SendToChannel(context.Background(), req))

	require.Len(t, intents.created, 1)
	assert.True(t, intents.created[0].ScheduledTime.Equal(at))
	assert.Empty(t, pub.published, "scheduled sends must not publish")
}

func TestSendToChannelUnsupportedChannel(t *testing.T) {
	intents := &fakeIntentStore{}
	r := newTestRouter(intents, nil, &fakePublisher{})

	err := r.SendToChannel(context.Background(), model.SendRequest{
		UserID:  "u1",
		Channel: model.Channel("CARRIER_PIGEON"),
	})
	require.ErrorIs(t, err, model.ErrUnsupportedChannel)
	assert.Empty(t, intents.created, "nothing persisted for an unsupported channel")
}

func TestSendToChannelPersistFailureAborts(t *testing.T) {
	intents := &fakeIntentStore{err: errors.New("db down")}
	pub := &fakePublisher{}
	r := newTestRouter(intents, nil, pub)

	err := r.SendToChannel(context.Background(), model.SendRequest{
		UserID:  "u1",
		Channel: model.ChannelEmail,
	})
	require.Error(t, err)
	assert.Empty(t, pub.published)
}

func TestSendToChannelPublishFailureSwallowed(t *testing.T) {
	intents := &fakeIntentStore{}
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	r := newTestRouter(intents, nil, pub)

	err := r.SendToChannel(context.Background(), model.SendRequest{
		UserID:  "u1",
		Channel: model.ChannelPush,
	})
	require.NoError(t, err, "publish failure is best-effort")
	assert.Len(t, intents.created, 1, "pending row survives the failed publish")
}

func TestDispatchPublishesWithoutPersisting(t *testing.T) {
	intents := &fakeIntentStore{}
	pub := &fakePublisher{}
	r := newTestRouter(intents, nil, pub)

	n := &model.Intent{
		ID:       42,
		UserID:   "u1",
		Content:  model.Content{Header: "h", Message: "m"},
		Channel:  model.ChannelSMS,
		Status:   model.StatusProcessing,
		Priority: model.PriorityHigh,
	}
	require.NoError(t, r.Dispatch(context.Background(), n))

	assert.Empty(t, intents.created, "dispatch must not create a new row")
	require.Len(t, pub.published, 1)
	assert.Equal(t, "sms-topic", pub.published[0].topic)
	msg, ok := pub.published[0].payload.(contracts.NotificationMessage)
	require.True(t, ok)
	assert.Equal(t, "u1", msg.UserID)
	assert.Equal(t, model.PriorityHigh, msg.Priority)
}

func TestDispatchSurfacesPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	r := newTestRouter(&fakeIntentStore{}, nil, pub)

	err := r.Dispatch(context.Background(), &model.Intent{ID: 1, Channel: model.ChannelEmail})
	require.Error(t, err, "the scheduler must see the failure and keep the row")
}

func TestSendToAllChannelsFansOut(t *testing.T) {
	intents := &fakeIntentStore{}
	pub := &fakePublisher{}
	prefs := &fakePreferenceStore{prefs: map[string]*model.Preference{
		"u1": {UserID: "u1", Channels: []model.Channel{model.ChannelEmail, model.ChannelPush}},
	}}
	r := newTestRouter(intents, prefs, pub)

	require.NoError(t, r.SendToAllChannels(context.Background(), model.SendRequest{
		UserID:   "u1",
		Content:  model.Content{Header: "h", Message: "m"},
		Priority: model.PriorityMedium,
	}))

	require.Len(t, intents.created, 2)
	assert.Equal(t, model.ChannelEmail, intents.created[0].Channel)
	assert.Equal(t, model.ChannelPush, intents.created[1].Channel)
	require.Len(t, pub.published, 2)
	assert.Equal(t, "email-topic", pub.published[0].topic)
	assert.Equal(t, "push-topic", pub.published[1].topic)
}

func TestSendToAllChannelsNoPreferences(t *testing.T) {
	r := newTestRouter(&fakeIntentStore{}, &fakePreferenceStore{prefs: map[string]*model.Preference{}}, &fakePublisher{})

	err := r.SendToAllChannels(context.Background(), model.SendRequest{UserID: "nobody"})
	require.ErrorIs(t, err, model.ErrPreferencesNotFound)
}

func TestSendToAllChannelsScheduledIsSkipped(t *testing.T) {
	intents := &fakeIntentStore{}
	prefs := &fakePreferenceStore{prefs: map[string]*model.Preference{
		"u1": {UserID: "u1", Channels: model.DefaultChannels()},
	}}
	r := newTestRouter(intents, prefs, &fakePublisher{})

	at := time.Now().Add(time.Hour)
	require.NoError(t, r.SendToAllChannels(context.Background(), model.SendRequest{
		UserID:        "u1",
		ScheduledTime: &at,
	}))
	assert.Empty(t, intents.created, "scheduled fan-out is skipped")
}
