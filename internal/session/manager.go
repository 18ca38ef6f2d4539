// Package session owns the lifecycle of practice sessions: creation, loads,
// versioned updates, lazy timeout and ending.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/hooks"
	"github.com/soyeahso/parley/internal/logging"
	"github.com/soyeahso/parley/internal/store"
)

// DefaultMaxRetries bounds the load/apply cycle in Update.
const DefaultMaxRetries = 5

// errUnchanged short-circuits Update when a mutation leaves the session as is.
var errUnchanged = errors.New("session unchanged")

// Key returns the store key for a session id.
func Key(id string) string { return "session:" + id }

// Manager creates, loads and persists sessions through a versioned Store.
type Manager struct {
	store       store.Store
	log         *logging.Logger
	hooks       *hooks.Manager
	now         func() time.Time
	newID       func() string
	retainEnded bool
	maxRetries  int
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// WithRetainEnded controls whether ended sessions stay in the store.
func WithRetainEnded(retain bool) Option {
	return func(m *Manager) { m.retainEnded = retain }
}

// WithMaxRetries sets how many times Update retries after a version conflict.
func WithMaxRetries(n int) Option {
	return func(m *Manager) { m.maxRetries = n }
}

// WithHooks emits session_expired when a timeout check ends a session.
func WithHooks(hm *hooks.Manager) Option {
	return func(m *Manager) { m.hooks = hm }
}

// NewManager creates a session manager backed by st.
func NewManager(st store.Store, log *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:       st,
		log:         log.Sub("session"),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
		retainEnded: true,
		maxRetries:  DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time { return m.now() }

// RetainsEnded reports whether ended sessions are kept in the store.
func (m *Manager) RetainsEnded() bool { return m.retainEnded }

// Create stores a new active session and returns its id.
func (m *Manager) Create(ctx context.Context, userName, difficulty string, durationSeconds int) (string, error) {
	level, err := domain.LevelForDifficulty(difficulty)
	if err != nil {
		return "", err
	}
	if durationSeconds <= 0 {
		return "", fmt.Errorf("%w: got %d", domain.ErrInvalidDuration, durationSeconds)
	}

	s := domain.NewSession(m.newID(), userName, level, durationSeconds, m.now())
	if err := m.Save(ctx, s); err != nil {
		return "", err
	}

	m.log.Info().
		Str("sessionId", s.ID).
		Str("level", string(level)).
		Int("duration", durationSeconds).
		Msg("session created")
	return s.ID, nil
}

// Get loads a session. The returned value carries the version it was read at.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Session, error) {
	rec, err := m.store.Get(ctx, Key(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}

	var s domain.Session
	if err := json.Unmarshal(rec.Data, &s); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	s.Version = rec.Version
	return &s, nil
}

// Save persists s if the stored version still equals s.Version. A zero
// version creates the record. On success s.Version is advanced.
func (m *Manager) Save(ctx context.Context, s *domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", s.ID, err)
	}

	v, err := m.store.Put(ctx, Key(s.ID), data, s.Version)
	switch {
	case errors.Is(err, store.ErrVersionConflict):
		return domain.ErrConcurrentUpdate
	case errors.Is(err, store.ErrNotFound):
		return domain.ErrSessionNotFound
	case err != nil:
		return fmt.Errorf("saving session %s: %w", s.ID, err)
	}
	s.Version = v
	return nil
}

// Update loads the session, applies mutate and saves the result. Version
// conflicts restart the cycle from a fresh load, up to the retry limit. An
// error from mutate aborts without writing.
func (m *Manager) Update(ctx context.Context, id string, mutate func(*domain.Session) error) (*domain.Session, error) {
	for attempt := 0; ; attempt++ {
		s, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := mutate(s); err != nil {
			if errors.Is(err, errUnchanged) {
				return s, nil
			}
			return nil, err
		}

		err = m.Save(ctx, s)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, domain.ErrConcurrentUpdate) || attempt >= m.maxRetries {
			return nil, err
		}
		m.log.Debug().Str("sessionId", id).Int("attempt", attempt+1).Msg("version conflict, retrying")
	}
}

// AssignScenario sets the session's scenario once.
func (m *Manager) AssignScenario(ctx context.Context, id string, sc domain.Scenario) (*domain.Session, error) {
	return m.Update(ctx, id, func(s *domain.Session) error {
		return s.AssignScenario(sc)
	})
}

// End marks the session ended and then retains or deletes it according to
// the manager's policy. Ending an ended or deleted session is a no-op.
func (m *Manager) End(ctx context.Context, id string) error {
	_, err := m.end(ctx, id)
	return err
}

// end reports whether this call performed the transition.
func (m *Manager) end(ctx context.Context, id string) (bool, error) {
	transitioned := false
	_, err := m.Update(ctx, id, func(s *domain.Session) error {
		transitioned = s.MarkEnded(m.now())
		if !transitioned {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, domain.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if transitioned {
		m.log.Info().Str("sessionId", id).Msg("session ended")
	}
	if err := m.Finalize(ctx, id); err != nil {
		return transitioned, err
	}
	return transitioned, nil
}

// Finalize applies the retention policy to an ended session, deleting the
// record when ended sessions are not retained.
func (m *Manager) Finalize(ctx context.Context, id string) error {
	if m.retainEnded {
		return nil
	}
	if err := m.store.Delete(ctx, Key(id)); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// CheckTimeout reports whether the session may still take turns. A session
// whose time limit has elapsed is ended here and reported as expired.
func (m *Manager) CheckTimeout(ctx context.Context, id string) (bool, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if s.Ended() {
		return false, nil
	}

	now := m.now()
	if !s.TimedOut(now) {
		return true, nil
	}

	transitioned, err := m.end(ctx, id)
	if err != nil {
		return false, err
	}
	if transitioned {
		m.log.Info().
			Str("sessionId", id).
			Dur("elapsed", s.Elapsed(now)).
			Int("turns", len(s.Turns)).
			Msg("session expired")
		if m.hooks != nil {
			m.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventSessionExpired, map[string]any{
				"sessionId": id,
				"turns":     len(s.Turns),
			})
		}
	}
	return false, nil
}
