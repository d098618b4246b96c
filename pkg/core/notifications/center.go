// Package notifications keeps the user's notification list and unread count
// and polls the backend for the lifetime of a session.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// markAllConcurrency bounds the per-item requests issued by MarkAllRead
const markAllConcurrency = 8

// Backend is the notification part of the REST gateway
type Backend interface {
	Notifications(ctx context.Context) ([]model.NotificationItem, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// State is a copy of the center's contents
type State struct {
	Items     []model.NotificationItem
	Unread    int
	FetchedAt time.Time
}

// UnreadItems returns the unread items, newest first
func (s State) UnreadItems() []model.NotificationItem {
	var out []model.NotificationItem
	for _, it := range s.Items {
		if !it.Read {
			out = append(out, it)
		}
	}
	return out
}

// Center holds notifications fetched from the backend plus local records
// added by workflows. Local records survive fetches until read.
type Center struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	remote    []model.NotificationItem
	local     []model.NotificationItem
	unread    int
	fetchedAt time.Time
	// epoch changes on Reset so fetches started before it are dropped
	epoch int
}

func NewCenter(backend Backend, logger *zap.Logger) *Center {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Center{backend: backend, logger: logger, now: time.Now}
}

// State returns the merged list, local records first within equal times
func (c *Center) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Center) stateLocked() State {
	items := make([]model.NotificationItem, 0, len(c.local)+len(c.remote))
	items = append(items, c.local...)
	items = append(items, c.remote...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return State{Items: items, Unread: c.unread, FetchedAt: c.fetchedAt}
}

func (c *Center) localUnreadLocked() int {
	n := 0
	for _, it := range c.local {
		if !it.Read {
			n++
		}
	}
	return n
}

// Fetch loads items and the unread count concurrently and replaces the
// remote part of the state. Nothing changes if either request fails.
func (c *Center) Fetch(ctx context.Context) (State, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	var (
		items []model.NotificationItem
		count int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = c.backend.Notifications(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		count, err = c.backend.UnreadCount(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return c.State(), fmt.Errorf("failed to fetch notifications: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return c.State(), err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return c.stateLocked(), nil
	}
	c.remote = items
	c.unread = count + c.localUnreadLocked()
	c.fetchedAt = c.now()
	return c.stateLocked(), nil
}

// MarkRead marks one item read. Backend items are confirmed by the backend
// before the local state changes. The unread count never goes below zero.
func (c *Center) MarkRead(ctx context.Context, id string) error {
	c.mu.Lock()
	if markIn(c.local, id) {
		c.unread = max(c.unread-1, 0)
		c.mu.Unlock()
		return nil
	}
	isLocal := containsID(c.local, id)
	c.mu.Unlock()
	if isLocal {
		return nil
	}

	if err := c.backend.MarkNotificationRead(ctx, id); err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if markIn(c.remote, id) {
		c.unread = max(c.unread-1, 0)
	}
	return nil
}

// MarkAllRead marks every item that is unread at call time. Requests run
// concurrently and every item is flagged read locally once all have
// finished, even if some failed; the next fetch corrects those. Failures
// are returned joined.
func (c *Center) MarkAllRead(ctx context.Context) error {
	c.mu.Lock()
	var ids []string
	for _, it := range c.remote {
		if !it.Read {
			ids = append(ids, it.ID)
		}
	}
	c.mu.Unlock()

	var (
		g     errgroup.Group
		errMu sync.Mutex
		errs  []error
	)
	g.SetLimit(markAllConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := c.backend.MarkNotificationRead(ctx, id); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("notification %s: %w", id, err))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	for _, id := range ids {
		if markIn(c.remote, id) {
			c.unread = max(c.unread-1, 0)
		}
	}
	for i := range c.local {
		if !c.local[i].Read {
			c.local[i].Read = true
			c.unread = max(c.unread-1, 0)
		}
	}
	c.mu.Unlock()

	if len(errs) > 0 {
		c.logger.Warn("Some notifications could not be marked read",
			zap.Int("failed", len(errs)),
			zap.Int("total", len(ids)))
		return errors.Join(errs...)
	}
	return nil
}

// AddLocal records a notification produced by this client
func (c *Center) AddLocal(title, message, link string) model.NotificationItem {
	item := model.NotificationItem{
		ID:        "local-" + uuid.NewString(),
		Title:     title,
		Message:   message,
		Link:      link,
		CreatedAt: c.now(),
		Local:     true,
	}

	c.mu.Lock()
	c.local = append(c.local, item)
	c.unread++
	c.mu.Unlock()

	c.logger.Debug("Added local notification", zap.String("title", title))
	return item
}

// Reset empties the center, used when the session ends
func (c *Center) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = nil
	c.local = nil
	c.unread = 0
	c.fetchedAt = time.Time{}
	c.epoch++
}

// markIn flags the unread item with the given id and reports whether it
// changed
func markIn(items []model.NotificationItem, id string) bool {
	for i := range items {
		if items[i].ID == id && !items[i].Read {
			items[i].Read = true
			return true
		}
	}
	return false
}

func containsID(items []model.NotificationItem, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}
