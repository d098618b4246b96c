package apiclient

import (
	"context"
	"net/http"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// Notifications lists the current user's notifications
func (c *Client) Notifications(ctx context.Context) ([]model.NotificationItem, error) {
	var ws []notificationWire
	if err := c.call(ctx, request{method: http.MethodGet, path: "/notifications"}, &ws); err != nil {
		return nil, err
	}
	items := make([]model.NotificationItem, 0, len(ws))
	for _, w := range ws {
		item, err := w.toModel()
		if err != nil {
			return nil, apperr.Internal("unexpected notification in response", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// UnreadCount returns the number of unread notifications
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var n unreadCount
	if err := c.call(ctx, request{method: http.MethodGet, path: "/notifications/unread/count"}, &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

// MarkNotificationRead marks one notification as read
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.call(ctx, request{method: http.MethodPost, path: pathf("/notifications/%s/read", id)}, nil)
}
