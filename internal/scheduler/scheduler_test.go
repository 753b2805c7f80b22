package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/internal/router"
)

type fakeStore struct {
	due          []model.Intent
	claimed      map[int64]bool
	claimErr     map[int64]error
	rescheduled  map[int64]time.Time
	deleted      []int64
	reclaimCalls int
}

func newFakeStore(due ...model.Intent) *fakeStore {
	return &fakeStore{
		due:         due,
		claimed:     make(map[int64]bool),
		claimErr:    make(map[int64]error),
		rescheduled: make(map[int64]time.Time),
	}
}

func (s *fakeStore) FindDue(_ context.Context, _ time.Time, _ int) ([]model.Intent, error) {
	return s.due, nil
}

func (s *fakeStore) Claim(_ context.Context, id int64) (bool, error) {
	if err := s.claimErr[id]; err != nil {
		return false, err
	}
	if s.claimed[id] {
		return false, nil
	}
	s.claimed[id] = true
	return true, nil
}

func (s *fakeStore) Reschedule(_ context.Context, id int64, next time.Time) error {
	s.rescheduled[id] = next
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id int64) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) Reclaim(_ context.Context, _ time.Time, _ time.Duration) (int64, error) {
	s.reclaimCalls++
	return 0, nil
}

type fakeDispatcher struct {
	dispatched []model.Intent
	err        error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, n *model.Intent) error {
	if f.err != nil {
		return f.err
	}
	f.dispatched = append(f.dispatched, *n)
	return nil
}

func dueIntent(id int64, recurring bool, pattern model.RecurrencePattern) model.Intent {
	return model.Intent{
		ID:            id,
		UserID:        "u1",
		Content:       model.Content{Header: "h", Message: "m"},
		Channel:       model.ChannelEmail,
		Status:        model.StatusPending,
		Priority:      model.PriorityMedium,
		ScheduledTime: time.Now().Add(-time.Minute),
		Recurring:     recurring,
		Pattern:       pattern,
	}
}

func newTestScheduler(store DueStore, dispatcher Dispatcher) *Scheduler {
	return New(store, dispatcher, time.Minute, 100, 0, zap.NewNop())
}

func TestSweepDispatchesAndDeletesOneTime(t *testing.T) {
	store := newFakeStore(dueIntent(1, false, ""))
	dispatcher := &fakeDispatcher{}

	newTestScheduler(store, dispatcher).Sweep(context.Background())

	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, int64(1), dispatcher.dispatched[0].ID)
	assert.Equal(t, []int64{1}, store.deleted)
	assert.Empty(t, store.rescheduled)
}

func TestSweepReschedulesRecurring(t *testing.T) {
	n := dueIntent(2, true, model.RecurDaily)
	store := newFakeStore(n)
	dispatcher := &fakeDispatcher{}

	newTestScheduler(store, dispatcher).Sweep(context.Background())

	require.Len(t, dispatcher.dispatched, 1)
	next, ok := store.rescheduled[2]
	require.True(t, ok)
	assert.True(t, next.Equal(n.ScheduledTime.AddDate(0, 0, 1)))
	assert.Empty(t, store.deleted)
}

func TestSweepClaimIsWonOnce(t *testing.T) {
	store := newFakeStore(dueIntent(3, false, ""))
	dispatcher := &fakeDispatcher{}
	s := newTestScheduler(store, dispatcher)

	s.Sweep(context.Background())
	s.Sweep(context.Background())

	assert.Len(t, dispatcher.dispatched, 1, "a claimed row must not be dispatched twice")
}

func TestSweepSkipsNotYetDue(t *testing.T) {
	future := dueIntent(8, false, "")
	future.ScheduledTime = time.Now().Add(time.Hour)
	store := newFakeStore(future)
	dispatcher := &fakeDispatcher{}

	newTestScheduler(store, dispatcher).Sweep(context.Background())

	assert.Empty(t, dispatcher.dispatched)
	assert.Empty(t, store.claimed, "a not-yet-due row must not be claimed")
}

func TestSweepIsolatesItemFailures(t *testing.T) {
	store := newFakeStore(
		dueIntent(4, false, ""),
		dueIntent(5, false, ""),
		dueIntent(6, false, ""),
	)
	store.claimErr[5] = errors.New("deadlock")
	dispatcher := &fakeDispatcher{}

	newTestScheduler(store, dispatcher).Sweep(context.Background())

	assert.Len(t, dispatcher.dispatched, 2, "one bad row must not abort the sweep")
	assert.ElementsMatch(t, []int64{4, 6}, store.deleted)
}

func TestSweepFailedDispatchKeepsRow(t *testing.T) {
	store := newFakeStore(dueIntent(7, false, ""))
	dispatcher := &fakeDispatcher{err: errors.New("broker down")}

	newTestScheduler(store, dispatcher).Sweep(context.Background())

	assert.Empty(t, store.deleted, "a failed dispatch must not retire the row")
	assert.Empty(t, store.rescheduled)
}

func TestSweepReclaimOnlyWhenConfigured(t *testing.T) {
	store := newFakeStore()

	New(store, &fakeDispatcher{}, time.Minute, 100, 0, zap.NewNop()).Sweep(context.Background())
	assert.Zero(t, store.reclaimCalls)

	New(store, &fakeDispatcher{}, time.Minute, 100, 10*time.Minute, zap.NewNop()).Sweep(context.Background())
	assert.Equal(t, 1, store.reclaimCalls)
}

func TestNextOccurrencePatterns(t *testing.T) {
	base := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, base.AddDate(0, 0, 1), model.NextOccurrence(base, model.RecurDaily))
	assert.Equal(t, base.AddDate(0, 0, 7), model.NextOccurrence(base, model.RecurWeekly))
	assert.Equal(t, base.AddDate(0, 1, 0), model.NextOccurrence(base, model.RecurMonthly))
	assert.Equal(t, base, model.NextOccurrence(base, "YEARLY"), "unknown patterns advance nothing")
}

// memoryStore backs both the router and the scheduler, so a sweep dispatch
// runs against the same rows the router writes.
type memoryStore struct {
	rows   map[int64]*model.Intent
	nextID int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[int64]*model.Intent)}
}

func (s *memoryStore) Create(_ context.Context, n *model.Intent) (int64, error) {
	s.nextID++
	n.ID = s.nextID
	clone := *n
	s.rows[n.ID] = &clone
	return n.ID, nil
}

func (s *memoryStore) FindDue(_ context.Context, now time.Time, _ int) ([]model.Intent, error) {
	var due []model.Intent
	for _, n := range s.rows {
		if n.Due(now) {
			due = append(due, *n)
		}
	}
	return due, nil
}

func (s *memoryStore) Claim(_ context.Context, id int64) (bool, error) {
	n, ok := s.rows[id]
	if !ok || n.Status != model.StatusPending {
		return false, nil
	}
	n.Status = model.StatusProcessing
	return true, nil
}

func (s *memoryStore) Reschedule(_ context.Context, id int64, next time.Time) error {
	n, ok := s.rows[id]
	if !ok {
		return model.ErrNotFound
	}
	n.Status = model.StatusPending
	n.ScheduledTime = next
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id int64) error {
	if _, ok := s.rows[id]; !ok {
		return model.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *memoryStore) Reclaim(context.Context, time.Time, time.Duration) (int64, error) {
	return 0, nil
}

type countingPublisher struct {
	published int
}

func (p *countingPublisher) Publish(context.Context, string, any) error {
	p.published++
	return nil
}

func TestOneTimeScheduledIntentIsDispatchedExactlyOnce(t *testing.T) {
	store := newMemoryStore()
	pub := &countingPublisher{}
	topics := map[model.Channel]string{model.ChannelEmail: "email-topic"}
	fanout := router.New(store, nil, pub, topics, zap.NewNop())

	at := time.Now().Add(-time.Minute)
	require.NoError(t, fanout.SendToChannel(context.Background(), model.SendRequest{
		UserID:        "u1",
		Content:       model.Content{Header: "h", Message: "m"},
		Channel:       model.ChannelEmail,
		ScheduledTime: &at,
	}))
	require.Len(t, store.rows, 1)
	assert.Zero(t, pub.published, "a scheduled send must not publish on intake")

	s := New(store, fanout, time.Minute, 100, 0, zap.NewNop())
	s.Sweep(context.Background())
	s.Sweep(context.Background())
	s.Sweep(context.Background())

	assert.Equal(t, 1, pub.published, "repeated sweeps must not republish a retired intent")
	assert.Empty(t, store.rows, "a delivered one-time intent leaves no row behind")
}

func TestRecurringScheduledIntentStaysSingleRow(t *testing.T) {
	store := newMemoryStore()
	pub := &countingPublisher{}
	topics := map[model.Channel]string{model.ChannelEmail: "email-topic"}
	fanout := router.New(store, nil, pub, topics, zap.NewNop())

	at := time.Now().Add(-time.Minute)
	store.Create(context.Background(), &model.Intent{
		UserID:        "u1",
		Content:       model.Content{Header: "h", Message: "m"},
		Channel:       model.ChannelEmail,
		Status:        model.StatusPending,
		ScheduledTime: at,
		Recurring:     true,
		Pattern:       model.RecurDaily,
	})

	s := New(store, fanout, time.Minute, 100, 0, zap.NewNop())
	s.Sweep(context.Background())
	s.Sweep(context.Background())

	assert.Equal(t, 1, pub.published, "the advanced occurrence is not yet due")
	require.Len(t, store.rows, 1, "recurrence advances the row, never clones it")
	row := store.rows[1]
	assert.Equal(t, model.StatusPending, row.Status)
	assert.True(t, row.ScheduledTime.Equal(at.AddDate(0, 0, 1)))
}
