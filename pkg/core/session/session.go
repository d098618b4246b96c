// Package session owns the authenticated client session: token, resolved
// profile, granted roles and the selected active role.
//
// Every change replaces the whole Snapshot under one mutex. A refresh is
// tagged with the token generation it started under and its result is
// dropped if the token changed while the profile was being fetched.
package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/roles"
	"github.com/jakechorley/volunteer-portal/pkg/core/validation"
	"github.com/jakechorley/volunteer-portal/pkg/db"
)

// Durable storage keys; logout removes all three in one write
const (
	KeyToken      = "session.token"
	KeyRole       = "session.role"
	KeyActiveRole = "session.active_role"
)

// Backend is the part of the REST gateway the session needs
type Backend interface {
	Login(ctx context.Context, creds model.Credentials) (model.LoginResult, error)
	Register(ctx context.Context, req model.RegisterRequest) error
	Profile(ctx context.Context, token string) (model.Profile, error)
}

// Snapshot is an immutable view of the session
type Snapshot struct {
	Token string
	// RawRole is the last role string the backend reported
	RawRole    string
	User       *model.Profile
	Roles      []model.Role
	ActiveRole model.Role
	// SelectedRole is the role the user last chose. It is persisted and
	// survives refreshes even while it is not granted.
	SelectedRole model.Role
	Loading      bool
}

// Authenticated reports whether a token is held
func (s Snapshot) Authenticated() bool {
	return s.Token != ""
}

// HasRole reports whether role is granted
func (s Snapshot) HasRole(role model.Role) bool {
	return model.ContainsRole(s.Roles, role)
}

// PendingRole returns the selected role when it is not (yet) granted. Roles
// must be known, so this is false until a refresh lands.
func (s Snapshot) PendingRole() (model.Role, bool) {
	if s.SelectedRole == "" || s.User == nil {
		return "", false
	}
	if s.HasRole(s.SelectedRole) {
		return "", false
	}
	return s.SelectedRole, true
}

func (s Snapshot) clone() Snapshot {
	c := s
	c.Roles = append([]model.Role(nil), s.Roles...)
	return c
}

// Listener observes committed snapshots. Listeners run synchronously in
// commit order while the store is locked and must not call back into it.
type Listener func(prev, next Snapshot)

// Store is the session state owner
type Store struct {
	backend Backend
	kv      db.StateStore
	logger  *zap.Logger

	mu        sync.Mutex
	snap      Snapshot
	gen       uint64
	listeners map[int]Listener
	nextID    int

	bgCtx    context.Context
	bgCancel context.CancelFunc

	// inflight counts scheduled refreshes; idle is closed when it drops to 0
	inflight int
	idle     chan struct{}
}

// New creates an empty store. Call Load to hydrate it from durable storage.
func New(kv db.StateStore, backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		backend:   backend,
		kv:        kv,
		logger:    logger,
		listeners: make(map[int]Listener),
		bgCtx:     ctx,
		bgCancel:  cancel,
	}
}

// Snapshot returns the current session view
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// Token returns the current bearer token, empty when logged out
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Token
}

// Subscribe registers a listener and returns a function removing it
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// commitLocked replaces the snapshot and notifies listeners. A token change
// starts a new generation and returns it.
func (s *Store) commitLocked(next Snapshot) uint64 {
	prev := s.snap
	if next.Token != prev.Token {
		s.gen++
	}
	s.snap = next
	for _, l := range s.listeners {
		l(prev.clone(), next.clone())
	}
	return s.gen
}

// Load hydrates the session from durable storage and schedules a refresh
// when a token is present. Storage failures leave the session empty.
func (s *Store) Load(ctx context.Context) {
	token := s.read(ctx, KeyToken)
	rawRole := s.read(ctx, KeyRole)
	active, _ := roles.Normalize(s.read(ctx, KeyActiveRole))

	s.mu.Lock()
	gen := s.commitLocked(Snapshot{
		Token:        token,
		RawRole:      rawRole,
		ActiveRole:   active,
		SelectedRole: active,
		Loading:      token != "",
	})
	s.mu.Unlock()

	if token != "" {
		s.scheduleRefresh(gen, token)
	}
}

func (s *Store) read(ctx context.Context, key string) string {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to read session state", zap.String("key", key), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

func (s *Store) write(ctx context.Context, key, value string) {
	var err error
	if value == "" {
		err = s.kv.Delete(ctx, key)
	} else {
		err = s.kv.Set(ctx, key, value)
	}
	if err != nil {
		s.logger.Warn("Failed to persist session state", zap.String("key", key), zap.Error(err))
	}
}

// Register is a passthrough to the backend after client-side validation.
// On success the user must verify their email before logging in.
func (s *Store) Register(ctx context.Context, req model.RegisterRequest) error {
	if err := validation.Struct(req, "Invalid registration"); err != nil {
		return err
	}
	if err := s.backend.Register(ctx, req); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}
	return nil
}

// Login authenticates, persists the token and raw role, and schedules a
// refresh. It does not populate the user or roles itself.
func (s *Store) Login(ctx context.Context, creds model.Credentials) (model.LoginResult, error) {
	if err := validation.Struct(creds, "Invalid credentials"); err != nil {
		return model.LoginResult{}, err
	}

	res, err := s.backend.Login(ctx, creds)
	if err != nil {
		return model.LoginResult{}, err
	}

	s.write(ctx, KeyToken, res.Token)
	s.write(ctx, KeyRole, res.RawRole)

	s.mu.Lock()
	next := s.snap.clone()
	next.Token = res.Token
	next.RawRole = res.RawRole
	next.User = nil
	next.Roles = nil
	next.Loading = true
	gen := s.commitLocked(next)
	s.mu.Unlock()

	s.logger.Info("Logged in", zap.String("email", res.Email))
	s.scheduleRefresh(gen, res.Token)
	return res, nil
}

// Logout clears the session and its persisted keys. The backend is not
// contacted.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.commitLocked(Snapshot{})
	s.mu.Unlock()

	if err := s.kv.Delete(ctx, KeyToken, KeyRole, KeyActiveRole); err != nil {
		s.logger.Warn("Failed to clear persisted session", zap.Error(err))
	}
	s.logger.Info("Logged out")
}

// SetActiveRole selects the role to act as, or clears it when role is
// empty. It does not grant the role.
func (s *Store) SetActiveRole(ctx context.Context, role model.Role) error {
	if role != "" {
		r, ok := roles.Normalize(string(role))
		if !ok {
			return apperr.Validation("Unknown role", apperr.FieldError{
				Field:   "role",
				Message: "role must be one of VOLUNTARIO, COORDINADOR, ADMIN",
			})
		}
		role = r
	}

	s.mu.Lock()
	next := s.snap.clone()
	next.ActiveRole = role
	next.SelectedRole = role
	s.commitLocked(next)
	s.mu.Unlock()

	s.write(ctx, KeyActiveRole, string(role))
	return nil
}

// Refresh re-fetches the profile for the current token and waits for the
// result. It is a no-op without a token.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	token, gen := s.snap.Token, s.gen
	s.mu.Unlock()
	if token == "" {
		return nil
	}
	return s.refresh(ctx, gen, token)
}

// Wait blocks until scheduled refreshes, including ones scheduled while
// waiting, have finished
func (s *Store) Wait() {
	for {
		s.mu.Lock()
		if s.inflight == 0 {
			s.mu.Unlock()
			return
		}
		idle := s.idle
		s.mu.Unlock()
		<-idle
	}
}

func (s *Store) scheduleRefresh(gen uint64, token string) {
	s.mu.Lock()
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.inflight--
			if s.inflight == 0 {
				close(s.idle)
			}
			s.mu.Unlock()
		}()
		if err := s.refresh(s.bgCtx, gen, token); err != nil {
			s.logger.Warn("Session refresh failed", zap.Error(err))
		}
	}()
}

func (s *Store) refresh(ctx context.Context, gen uint64, token string) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	loading := s.snap.clone()
	loading.Loading = true
	s.commitLocked(loading)
	s.mu.Unlock()

	profile, fetchErr := s.backend.Profile(ctx, token)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.logger.Debug("Discarding stale session refresh, token changed while fetching profile")
		return nil
	}

	next := s.snap.clone()
	next.Loading = false
	if fetchErr != nil {
		// a failed fetch clears the profile only
		next.User = nil
		s.commitLocked(next)
		s.mu.Unlock()
		return fetchErr
	}

	granted := resolveRoles(profile, next.RawRole)
	active := next.SelectedRole
	if !model.ContainsRole(granted, active) {
		active = ""
		if len(granted) > 0 {
			active = granted[0]
		}
	}
	if profile.PrimaryRole != "" {
		next.RawRole = string(profile.PrimaryRole)
	}
	// An ungranted selection stays persisted as pending; with no selection
	// the resolved role becomes the selection.
	adopt := next.SelectedRole == "" && active != ""
	if adopt {
		next.SelectedRole = active
	}

	user := profile
	next.User = &user
	next.Roles = granted
	next.ActiveRole = active
	s.commitLocked(next)
	s.mu.Unlock()

	if adopt {
		s.write(ctx, KeyActiveRole, string(active))
	}
	s.logger.Debug("Session refreshed",
		zap.String("user", profile.Email),
		zap.Any("roles", granted),
		zap.String("activeRole", string(active)))
	return nil
}

// resolveRoles prefers the profile's role list, then its single role, then
// the last role reported at login
func resolveRoles(p model.Profile, rawRole string) []model.Role {
	if p.RolesListed {
		return append([]model.Role(nil), p.Roles...)
	}
	if p.PrimaryRole != "" {
		return []model.Role{p.PrimaryRole}
	}
	if r, ok := roles.Normalize(rawRole); ok {
		return []model.Role{r}
	}
	return nil
}

// Start applies writes made by other sessions sharing the storage until ctx
// is done. A new token from elsewhere is adopted and refreshed once.
func (s *Store) Start(ctx context.Context) error {
	changes, err := s.kv.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch session storage: %w", err)
	}
	go func() {
		for c := range changes {
			s.applyExternal(c)
		}
	}()
	return nil
}

func (s *Store) applyExternal(c db.Change) {
	value := c.Value
	if c.Deleted {
		value = ""
	}

	s.mu.Lock()
	next := s.snap.clone()
	switch c.Key {
	case KeyToken:
		if value == next.Token {
			s.mu.Unlock()
			return
		}
		next.Token = value
		next.User = nil
		next.Roles = nil
		next.Loading = value != ""
	case KeyRole:
		next.RawRole = value
	case KeyActiveRole:
		next.ActiveRole, _ = roles.Normalize(value)
		next.SelectedRole = next.ActiveRole
	default:
		s.mu.Unlock()
		return
	}
	gen := s.commitLocked(next)
	s.mu.Unlock()

	s.logger.Debug("Applied session change from another terminal", zap.String("key", c.Key))
	if c.Key == KeyToken && value != "" {
		s.scheduleRefresh(gen, value)
	}
}

// Close stops background refreshes and waits for them
func (s *Store) Close() {
	s.bgCancel()
	s.Wait()
}
