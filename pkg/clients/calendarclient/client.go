package calendarclient

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/jakechorley/volunteer-portal/pkg/core/ics"
)

// Client delivers enrollment events to a Google Calendar
type Client struct {
	service    *calendar.Service
	calendarID string
}

// NewClient creates a Calendar client authorized by ts
func NewClient(ctx context.Context, ts oauth2.TokenSource, calendarID string) (*Client, error) {
	return NewClientWithOptions(ctx, calendarID, option.WithTokenSource(ts))
}

// NewClientWithOptions creates a Calendar client from raw API options
func NewClientWithOptions(ctx context.Context, calendarID string, opts ...option.ClientOption) (*Client, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}

	return &Client{
		service:    service,
		calendarID: calendarID,
	}, nil
}

func (c *Client) Name() string {
	return "google-calendar"
}

// Deliver imports the event keyed by its UID, so delivering the same
// enrollment twice updates one calendar entry
func (c *Client) Deliver(ctx context.Context, event ics.Event) error {
	entry := &calendar.Event{
		ICalUID:     event.UID,
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start:       &calendar.EventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: event.End.Format(time.RFC3339)},
	}
	if event.RRule != "" {
		entry.Recurrence = []string{"RRULE:" + event.RRule}
		// Recurring events need an explicit zone
		entry.Start.TimeZone = "UTC"
		entry.End.TimeZone = "UTC"
		entry.Start.DateTime = event.Start.UTC().Format(time.RFC3339)
		entry.End.DateTime = event.End.UTC().Format(time.RFC3339)
	}

	if _, err := c.service.Events.Import(c.calendarID, entry).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to import calendar event: %w", err)
	}
	return nil
}
