// Package session tracks authentication state. A session is authenticated
// exactly when a token is present in the device store.
package session

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-client/internal/domain/auth"
	"github.com/xenking/marketplace-client/internal/storage"
	"github.com/xenking/marketplace-client/internal/wire"
)

// Authenticator exchanges credentials for a session.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (auth.Session, error)
	Register(ctx context.Context, name, email, password string) (auth.Session, error)
}

// Listener is notified after the authentication status flips, and after a
// new login replaces the user of an authenticated session.
type Listener func(ctx context.Context, authenticated bool)

// StoreTokens reads the session token from a store on every call, so
// requests always carry the currently persisted credential.
type StoreTokens struct {
	Store storage.Store
}

// Token returns the persisted token, or "" when there is none.
func (s StoreTokens) Token(ctx context.Context) (string, error) {
	v, err := s.Store.Get(ctx, storage.KeyToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", errors.Wrap(err, "get token")
	}
	return string(v), nil
}

// Manager is the authentication state of the client.
type Manager struct {
	store storage.Store
	api   Authenticator
	lg    *zap.Logger

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// NewManager creates a Manager persisting sessions in store.
func NewManager(store storage.Store, api Authenticator, lg *zap.Logger) *Manager {
	return &Manager{
		store:     store,
		api:       api,
		lg:        lg,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers l and returns a function that removes it.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// IsAuthenticated reports whether a session token is persisted.
func (m *Manager) IsAuthenticated(ctx context.Context) (bool, error) {
	token, err := StoreTokens{Store: m.store}.Token(ctx)
	if err != nil {
		return false, err
	}
	return token != "", nil
}

// Token implements the client token source over the same store.
func (m *Manager) Token(ctx context.Context) (string, error) {
	return StoreTokens{Store: m.store}.Token(ctx)
}

// Session returns the persisted session, or auth.ErrNoSession.
func (m *Manager) Session(ctx context.Context) (auth.Session, error) {
	token, err := m.Token(ctx)
	if err != nil {
		return auth.Session{}, err
	}
	if token == "" {
		return auth.Session{}, auth.ErrNoSession
	}

	s := auth.Session{Token: token}
	data, err := m.store.Get(ctx, storage.KeyUser)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return s, nil
	case err != nil:
		return auth.Session{}, errors.Wrap(err, "get user")
	}
	u, err := wire.UnmarshalUser(data)
	if err != nil {
		// A corrupt user entry does not invalidate the token.
		m.lg.Warn("Ignoring unreadable persisted user", zap.Error(err))
		return s, nil
	}
	s.User = u
	return s, nil
}

// User returns the current user, or auth.ErrNoSession.
func (m *Manager) User(ctx context.Context) (auth.User, error) {
	s, err := m.Session(ctx)
	if err != nil {
		return auth.User{}, err
	}
	return s.User, nil
}

// Login authenticates with the backend and persists the session. On failure
// the persisted state is unchanged and the error is returned.
func (m *Manager) Login(ctx context.Context, email, password string) (auth.User, error) {
	return m.establish(ctx, "login", func() (auth.Session, error) {
		return m.api.Login(ctx, email, password)
	})
}

// Register creates an account and persists its session like Login.
func (m *Manager) Register(ctx context.Context, name, email, password string) (auth.User, error) {
	return m.establish(ctx, "register", func() (auth.Session, error) {
		return m.api.Register(ctx, name, email, password)
	})
}

func (m *Manager) establish(ctx context.Context, op string, call func() (auth.Session, error)) (auth.User, error) {
	prev, prevErr := m.Session(ctx)
	wasAuthenticated := prevErr == nil

	s, err := call()
	if err != nil {
		m.lg.Info("Authentication failed", zap.String("op", op), zap.Error(err))
		return auth.User{}, errors.Wrap(err, op)
	}

	if err := m.persist(ctx, s); err != nil {
		return auth.User{}, errors.Wrap(err, op)
	}
	m.lg.Info("Authenticated", zap.String("op", op), zap.String("user_id", s.User.ID))

	if !wasAuthenticated || prev.User.ID != s.User.ID {
		m.notify(ctx, true)
	}
	return s.User, nil
}

// persist writes the token, then the user. When the user cannot be written
// the previous token is put back, so a failed login leaves any earlier
// session as it was.
func (m *Manager) persist(ctx context.Context, s auth.Session) error {
	prev, err := m.store.Get(ctx, storage.KeyToken)
	hadToken := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return errors.Wrap(err, "read previous token")
	}

	if err := m.store.Set(ctx, storage.KeyToken, []byte(s.Token)); err != nil {
		return errors.Wrap(err, "persist token")
	}
	if err := m.store.Set(ctx, storage.KeyUser, wire.MarshalUser(s.User)); err != nil {
		var rerr error
		if hadToken {
			rerr = m.store.Set(ctx, storage.KeyToken, prev)
		} else {
			rerr = m.store.Delete(ctx, storage.KeyToken)
		}
		if rerr != nil {
			m.lg.Error("Restore previous token", zap.Error(rerr))
		}
		return errors.Wrap(err, "persist user")
	}
	return nil
}

// Logout removes the persisted session. It makes no server call; the token
// stays valid server-side until it expires.
func (m *Manager) Logout(ctx context.Context) error {
	wasAuthenticated, err := m.IsAuthenticated(ctx)
	if err != nil {
		return errors.Wrap(err, "logout")
	}
	if err := m.store.Delete(ctx, storage.KeyToken); err != nil {
		return errors.Wrap(err, "logout: delete token")
	}
	if err := m.store.Delete(ctx, storage.KeyUser); err != nil {
		return errors.Wrap(err, "logout: delete user")
	}
	m.lg.Info("Logged out")

	if wasAuthenticated {
		m.notify(ctx, false)
	}
	return nil
}

func (m *Manager) notify(ctx context.Context, authenticated bool) {
	m.mu.Lock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(ctx, authenticated)
	}
}
