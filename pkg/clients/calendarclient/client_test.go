package calendarclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/jakechorley/volunteer-portal/pkg/core/ics"
)

func TestDeliver_ImportsEventByUID(t *testing.T) {
	var gotPath string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"id": "evt1"})
	}))
	defer srv.Close()

	client, err := NewClientWithOptions(context.Background(), "",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	assert.Equal(t, "google-calendar", client.Name())

	start := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	err = client.Deliver(context.Background(), ics.Event{
		UID:      "activity-42@volunteer-portal",
		Title:    "Beach clean up",
		Location: "Pier 4, Cadiz",
		Start:    start,
		End:      start.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(gotPath, "/calendars/primary/events/import"), gotPath)
	assert.Equal(t, "activity-42@volunteer-portal", got["iCalUID"])
	assert.Equal(t, "Beach clean up", got["summary"])
	assert.Equal(t, "2025-05-10T09:00:00Z", got["start"].(map[string]any)["dateTime"])
	assert.Nil(t, got["recurrence"])
}

func TestDeliver_RecurringReminder(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{"id": "evt2"})
	}))
	defer srv.Close()

	client, err := NewClientWithOptions(context.Background(), "team",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	err = client.Deliver(context.Background(), ics.Event{
		UID:   "reminder-42@volunteer-portal",
		Title: "Check for free places",
		Start: start,
		End:   start.Add(15 * time.Minute),
		RRule: "FREQ=DAILY;UNTIL=20250510T090000Z",
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"RRULE:FREQ=DAILY;UNTIL=20250510T090000Z"}, got["recurrence"])
	assert.Equal(t, "UTC", got["start"].(map[string]any)["timeZone"])
}

func TestDeliver_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewClientWithOptions(context.Background(), "",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	err = client.Deliver(context.Background(), ics.Event{UID: "x", Start: time.Now(), End: time.Now()})
	assert.ErrorContains(t, err, "failed to import calendar event")
}
