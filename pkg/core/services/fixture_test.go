package services

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/volunteer-portal/pkg/clients/apiclient"
	"github.com/jakechorley/volunteer-portal/pkg/core/ics"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/devserver"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// backendFixture runs the development backend over httptest
type backendFixture struct {
	backend *devserver.Server
	url     string
}

func newBackend(t *testing.T) *backendFixture {
	t.Helper()
	backend := devserver.New(devserver.Config{}, nil)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	return &backendFixture{backend: backend, url: srv.URL + "/api/v1"}
}

// clientFor returns a gateway client authenticated as the user
func (f *backendFixture) clientFor(t *testing.T, userID string) *apiclient.Client {
	t.Helper()
	token, _, err := f.backend.IssueToken(userID)
	require.NoError(t, err)
	return apiclient.NewClient(f.url, apiclient.TokenFunc(func() string { return token }))
}

func (f *backendFixture) seedActivity(capacity int) string {
	return f.backend.SeedActivity(model.Activity{
		Name:        "Beach clean up",
		Description: "Collect plastic along the shore",
		Date:        time.Now().Add(96 * time.Hour).UTC().Truncate(time.Second),
		Location:    "Pier 4",
		City:        "Cadiz",
		Capacity:    capacity,
	})
}

// recordingNotifier implements Notifier
type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *recordingNotifier) AddLocal(title, message, link string) model.NotificationItem {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	return model.NotificationItem{Title: title, Message: message, Local: true}
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.titles...)
}

// recordingSink implements ics.Sink
type recordingSink struct {
	mu     sync.Mutex
	events []ics.Event
	err    error
}

func (s *recordingSink) Name() string {
	return "recording"
}

func (s *recordingSink) Deliver(ctx context.Context, event ics.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

// countingConfirmer implements Confirmer with a fixed answer
type countingConfirmer struct {
	answer bool
	asked  int
}

func (c *countingConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	c.asked++
	return c.answer, nil
}
