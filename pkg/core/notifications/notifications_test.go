package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/session"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

type mockBackend struct {
	mu       sync.Mutex
	items    []model.NotificationItem
	failMark map[string]bool
	fetchErr error
	marked   []string
	fetches  int
}

func (m *mockBackend) Notifications(ctx context.Context) ([]model.NotificationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return append([]model.NotificationItem(nil), m.items...), nil
}

func (m *mockBackend) UnreadCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return 0, m.fetchErr
	}
	n := 0
	for _, it := range m.items {
		if !it.Read {
			n++
		}
	}
	return n, nil
}

func (m *mockBackend) MarkNotificationRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = append(m.marked, id)
	if m.failMark[id] {
		return errors.New("boom")
	}
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].Read = true
		}
	}
	return nil
}

func (m *mockBackend) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

func backendWith(ids ...string) *mockBackend {
	m := &mockBackend{failMark: make(map[string]bool)}
	base := time.Date(2027, 1, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range ids {
		m.items = append(m.items, model.NotificationItem{ID: id, Title: "t" + id, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	return m
}

func TestFetch_MergesItemsAndCount(t *testing.T) {
	c := NewCenter(backendWith("1", "2"), zap.NewNop())

	state, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, state.Unread)
	require.Len(t, state.Items, 2)
	assert.Equal(t, "2", state.Items[0].ID, "newest first")
}

func TestFetch_FailureKeepsPreviousState(t *testing.T) {
	backend := backendWith("1")
	c := NewCenter(backend, zap.NewNop())
	_, err := c.Fetch(context.Background())
	require.NoError(t, err)

	backend.fetchErr = errors.New("offline")
	state, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, state.Unread)
	assert.Len(t, state.Items, 1)
}

func TestMarkRead_TwiceNeverGoesBelowZero(t *testing.T) {
	c := NewCenter(backendWith("1"), zap.NewNop())
	_, err := c.Fetch(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.MarkRead(context.Background(), "1"))
	require.NoError(t, c.MarkRead(context.Background(), "1"))

	state := c.State()
	assert.Equal(t, 0, state.Unread)
	assert.True(t, state.Items[0].Read)
}

func TestMarkRead_BackendFailureLeavesItemUnread(t *testing.T) {
	backend := backendWith("1")
	backend.failMark["1"] = true
	c := NewCenter(backend, zap.NewNop())
	_, err := c.Fetch(context.Background())
	require.NoError(t, err)

	require.Error(t, c.MarkRead(context.Background(), "1"))
	assert.Equal(t, 1, c.State().Unread)
}

func TestMarkAllRead_BestEffort(t *testing.T) {
	backend := backendWith("1", "2", "3")
	backend.failMark["2"] = true
	c := NewCenter(backend, zap.NewNop())
	_, err := c.Fetch(context.Background())
	require.NoError(t, err)
	c.AddLocal("Enrolled", "You are enrolled", "")

	err = c.MarkAllRead(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notification 2")

	state := c.State()
	assert.Equal(t, 0, state.Unread)
	assert.Empty(t, state.UnreadItems())
	assert.ElementsMatch(t, []string{"1", "2", "3"}, backend.marked)

	// the next fetch restores the item the backend still has unread
	state, err = c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, state.Unread)
}

func TestAddLocal_SurvivesFetchUntilRead(t *testing.T) {
	c := NewCenter(backendWith(), zap.NewNop())
	item := c.AddLocal("Volunteer assigned", "Ana joined Beach", "")

	state, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, state.Unread)
	require.Len(t, state.Items, 1)
	assert.True(t, state.Items[0].Local)

	require.NoError(t, c.MarkRead(context.Background(), item.ID))
	require.NoError(t, c.MarkRead(context.Background(), item.ID))
	assert.Equal(t, 0, c.State().Unread)
}

func TestPoller_FetchesImmediatelyAndOnInterval(t *testing.T) {
	backend := backendWith("1")
	p := NewPoller(NewCenter(backend, zap.NewNop()), 10*time.Millisecond, zap.NewNop())

	p.Start(context.Background())
	require.Eventually(t, func() bool { return backend.fetchCount() >= 3 }, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.False(t, p.Running())
	time.Sleep(30 * time.Millisecond)
	stopped := backend.fetchCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, backend.fetchCount())
}

type sessionBackend struct{}

func (sessionBackend) Login(ctx context.Context, creds model.Credentials) (model.LoginResult, error) {
	return model.LoginResult{Token: "tok"}, nil
}

func (sessionBackend) Register(ctx context.Context, req model.RegisterRequest) error {
	return nil
}

func (sessionBackend) Profile(ctx context.Context, token string) (model.Profile, error) {
	return model.Profile{ID: "1", Email: "ana@example.org"}, nil
}

func TestPoller_FollowSession(t *testing.T) {
	ctx := context.Background()
	store := session.New(db.NewMemoryStore(), sessionBackend{}, zap.NewNop())
	defer store.Close()

	backend := backendWith("1")
	center := NewCenter(backend, zap.NewNop())
	p := NewPoller(center, time.Hour, zap.NewNop())
	detach := p.FollowSession(ctx, store)
	defer detach()

	assert.False(t, p.Running())

	_, err := store.Login(ctx, model.Credentials{Email: "ana@example.org", Password: "secret1"})
	require.NoError(t, err)
	assert.True(t, p.Running())
	require.Eventually(t, func() bool { return center.State().Unread == 1 }, time.Second, 5*time.Millisecond)

	store.Logout(ctx)
	assert.False(t, p.Running())
	assert.Equal(t, 0, center.State().Unread)
}
