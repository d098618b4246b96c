package db

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryBackend is in-process shared storage. Every handle returned by Open
// sees the same data and is notified of the other handles' writes, which is
// how two sessions in one process converge.
type MemoryBackend struct {
	mu       sync.Mutex
	data     map[string]string
	watchers map[*memoryWatcher]struct{}
}

// NewMemoryBackend creates empty shared storage
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data:     make(map[string]string),
		watchers: make(map[*memoryWatcher]struct{}),
	}
}

// Open returns a new handle with its own origin
func (b *MemoryBackend) Open() *MemoryStore {
	return &MemoryStore{
		backend: b,
		origin:  uuid.NewString(),
	}
}

// MemoryStore is a StateStore handle on a MemoryBackend
type MemoryStore struct {
	backend *MemoryBackend
	origin  string

	mu     sync.Mutex
	closed bool
}

var _ StateStore = (*MemoryStore)(nil)

// NewMemoryStore returns a handle on fresh, unshared storage
func NewMemoryStore() *MemoryStore {
	return NewMemoryBackend().Open()
}

func (s *MemoryStore) Origin() string {
	return s.origin
}

func (s *MemoryStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.isClosed() {
		return "", false, ErrClosed
	}
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	if s.isClosed() {
		return ErrClosed
	}
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	b.publish([]Change{{Key: key, Value: value, Origin: s.origin}})
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	if s.isClosed() {
		return ErrClosed
	}
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	changes := make([]Change, 0, len(keys))
	for _, k := range keys {
		delete(b.data, k)
		changes = append(changes, Change{Key: k, Deleted: true, Origin: s.origin})
	}
	b.publish(changes)
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context) (<-chan Change, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	w := &memoryWatcher{
		origin: s.origin,
		wake:   make(chan struct{}, 1),
		out:    make(chan Change),
	}

	b := s.backend
	b.mu.Lock()
	b.watchers[w] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.watchers, w)
			b.mu.Unlock()
			close(w.out)
		}()
		w.pump(ctx)
	}()

	return w.out, nil
}

// Close marks the handle closed. Watchers stop when their context ends.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// publish must be called with b.mu held
func (b *MemoryBackend) publish(changes []Change) {
	if len(changes) == 0 {
		return
	}
	for w := range b.watchers {
		if w.origin == changes[0].Origin {
			continue
		}
		w.enqueue(changes)
	}
}

// memoryWatcher queues changes so writers never block on slow readers
type memoryWatcher struct {
	origin string
	wake   chan struct{}
	out    chan Change

	mu    sync.Mutex
	queue []Change
}

func (w *memoryWatcher) enqueue(changes []Change) {
	w.mu.Lock()
	w.queue = append(w.queue, changes...)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *memoryWatcher) pump(ctx context.Context) {
	for {
		w.mu.Lock()
		pending := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, c := range pending {
			select {
			case w.out <- c:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-w.wake:
		case <-ctx.Done():
			return
		}
	}
}
