package notifications

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/session"
)

// DefaultPollInterval is how often notifications are fetched
const DefaultPollInterval = 15 * time.Second

// Poller fetches into a Center immediately on Start and then on a fixed
// interval until stopped
type Poller struct {
	center   *Center
	interval time.Duration
	logger   *zap.Logger

	// OnFetch, when set, is called after every fetch attempt from the
	// polling goroutine
	OnFetch func(State, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	runs   int
}

func NewPoller(center *Center, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{center: center, interval: interval, logger: logger}
}

// Start begins polling. Starting a running poller restarts it.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.runs++
	go p.loop(ctx)
}

// Stop cancels polling. It does not wait for an in-flight fetch.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Running reports whether the poller has been started and not stopped
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.fetch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetch(ctx)
		}
	}
}

func (p *Poller) fetch(ctx context.Context) {
	state, err := p.center.Fetch(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.logger.Debug("Notification poll failed", zap.Error(err))
	}
	if p.OnFetch != nil {
		p.OnFetch(state, err)
	}
}

// FollowSession ties polling to the session: it runs while a token is held,
// restarts when the token changes and stops and resets the center when the
// session ends. The returned function detaches the poller and stops it.
func (p *Poller) FollowSession(ctx context.Context, store *session.Store) func() {
	unsubscribe := store.Subscribe(func(prev, next session.Snapshot) {
		if prev.Token == next.Token {
			return
		}
		if next.Token == "" {
			p.Stop()
			p.center.Reset()
			return
		}
		p.center.Reset()
		p.Start(ctx)
	})

	if store.Snapshot().Authenticated() {
		p.Start(ctx)
	}

	return func() {
		unsubscribe()
		p.Stop()
	}
}
