package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Listener is invoked with the committed session after every successful Commit.
type Listener func(Session)

type subscription struct {
	id uint64
	fn Listener
}

// Store is the single source of truth for the current Session.
//
// Commits are applied and persisted under the store lock, then delivered to
// listeners outside it. A Commit made from inside a listener is applied
// immediately and delivered once the in-flight delivery round finishes, so
// every listener observes sessions in commit order.
type Store struct {
	persister Persister
	logger    *slog.Logger

	mu         sync.Mutex
	current    Session
	subs       []subscription
	nextSubID  uint64
	pending    []Session
	delivering bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger used for persistence warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore returns a Store persisting through p. The store starts with the
// null session; call Load to recover the persisted one.
func NewStore(p Persister, opts ...Option) *Store {
	s := &Store{persister: p}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	s.logger = s.logger.With("component", "session")
	return s
}

// Load recovers the persisted session and makes it current without notifying
// listeners. A missing, unreadable or undecodable record yields the null
// session. A record that decodes but violates the session invariant is
// removed from storage. An undecodable record is removed too rather than left
// in place like an absent one, so the next Load starts clean; an unreadable
// record is left alone.
func (s *Store) Load() Session {
	data, err := s.persister.Load()
	if errors.Is(err, ErrNoRecord) {
		return s.setLoaded(Null())
	}
	if err != nil {
		s.logger.Warn("reading persisted session", "error", fmt.Errorf("%w: %w", ErrPersistence, err))
		return s.setLoaded(Null())
	}

	rec, err := Decode(data)
	if err == nil {
		var loaded Session
		loaded, err = Validate(rec)
		if err == nil {
			return s.setLoaded(loaded)
		}
	}

	s.logger.Warn("discarding persisted session", "error", err)
	if rmErr := s.persister.Remove(); rmErr != nil && !errors.Is(rmErr, ErrNoRecord) {
		s.logger.Warn("removing persisted session", "error", fmt.Errorf("%w: %w", ErrPersistence, rmErr))
	}
	return s.setLoaded(Null())
}

func (s *Store) setLoaded(loaded Session) Session {
	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return loaded.clone()
}

// Current returns a snapshot of the current session.
func (s *Store) Current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

// Token returns the current token, or "" when logged out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Token
}

// Commit replaces the current session. It fails with ErrInvalidSession when
// next violates the session invariant. Persistence is best-effort: a write
// failure is logged and the in-memory commit stands.
func (s *Store) Commit(next Session) error {
	if !next.Valid() {
		return fmt.Errorf("%w: isLoggedIn=%t token=%t user=%t",
			ErrInvalidSession, next.IsLoggedIn, next.Token != "", next.User != nil)
	}
	s.mu.Lock()
	s.applyLocked(next.clone())
	s.deliverLocked()
	return nil
}

// Logout commits the null session.
func (s *Store) Logout() error {
	return s.Commit(Null())
}

// LogoutToken commits the null session only if token is still the current
// token, and reports whether it did. Forced logouts use it so that a rejection
// or timer belonging to a superseded token cannot end a newer session, and so
// that concurrent rejections log out once.
func (s *Store) LogoutToken(token string) bool {
	s.mu.Lock()
	if token == "" || s.current.Token != token {
		s.mu.Unlock()
		return false
	}
	s.applyLocked(Null())
	s.deliverLocked()
	return true
}

// Persist writes s as the persisted record, or removes the record entirely
// when s carries no token. Removing an absent record is not an error.
func (s *Store) Persist(sess Session) error {
	if sess.Token == "" {
		err := s.persister.Remove()
		if err != nil && !errors.Is(err, ErrNoRecord) {
			return fmt.Errorf("%w: removing record: %w", ErrPersistence, err)
		}
		return nil
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.persister.Save(data); err != nil {
		return fmt.Errorf("%w: writing record: %w", ErrPersistence, err)
	}
	return nil
}

// Subscribe registers fn to be called after every successful commit. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// applyLocked must be called with s.mu held.
func (s *Store) applyLocked(next Session) {
	s.current = next
	if err := s.Persist(next); err != nil {
		s.logger.Warn("persisting session", "error", err)
	}
	s.pending = append(s.pending, next)
}

// deliverLocked must be called with s.mu held and releases it. If another
// call is already delivering, the pending session is left for it.
func (s *Store) deliverLocked() {
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.mu.Unlock()

	finished := false
	defer func() {
		if !finished {
			// A listener panicked; let the next commit deliver.
			s.mu.Lock()
			s.delivering = false
			s.mu.Unlock()
		}
	}()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.delivering = false
			s.mu.Unlock()
			finished = true
			return
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		subs := append([]subscription(nil), s.subs...)
		s.mu.Unlock()

		for _, sub := range subs {
			sub.fn(next.clone())
		}
	}
}
