package gmailclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Client wraps the Gmail API client
type Client struct {
	service      *gmail.Service
	recipient    string
	interval     time.Duration
	lastSendTime time.Time
	sendMutex    sync.Mutex
}

// NewClient creates a Gmail client authorized by ts. Invites are sent to
// recipient.
func NewClient(ctx context.Context, ts oauth2.TokenSource, recipient string) (*Client, error) {
	return NewClientWithOptions(ctx, recipient, option.WithTokenSource(ts))
}

// NewClientWithOptions creates a Gmail client from raw API options
func NewClientWithOptions(ctx context.Context, recipient string, opts ...option.ClientOption) (*Client, error) {
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &Client{
		service:   service,
		recipient: recipient,
		interval:  EMAIL_INTERVAL,
	}, nil
}
