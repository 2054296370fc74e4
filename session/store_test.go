package session

import (
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/docsession/storage"
	bboltstorage "github.com/jmcleod/docsession/storage/bbolt"
	"github.com/jmcleod/docsession/storage/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func alice() User {
	return User{ID: 7, Email: "alice@example.com", FullName: "Alice", Role: RoleUser}
}

// storeTests runs the common suite against any storage.Repository implementation.
func storeTests(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	t.Helper()

	t.Run("CommitPersistsAndReloads", func(t *testing.T) {
		repo := newRepo(t)
		s := NewStore(NewRepositoryPersister(repo, ""), WithLogger(quietLogger()))
		require.NoError(t, s.Commit(New(alice(), "tok-1")))

		reloaded := NewStore(NewRepositoryPersister(repo, ""), WithLogger(quietLogger()))
		got := reloaded.Load()
		require.True(t, got.IsLoggedIn)
		assert.Equal(t, "tok-1", got.Token)
		assert.Equal(t, "alice@example.com", got.User.Email)
		assert.Equal(t, "tok-1", reloaded.Token())
	})

	t.Run("LogoutRemovesRecord", func(t *testing.T) {
		repo := newRepo(t)
		s := NewStore(NewRepositoryPersister(repo, ""), WithLogger(quietLogger()))
		require.NoError(t, s.Commit(New(alice(), "tok-1")))
		require.NoError(t, s.Logout())

		_, err := repo.Get(DefaultBucket, DefaultKey)
		assert.True(t, errors.Is(err, storage.ErrNotFound), "expected no stored record, got %v", err)
		assert.True(t, s.Current().IsNull())
	})

	t.Run("PersistNullTwiceLeavesNoRecord", func(t *testing.T) {
		repo := newRepo(t)
		s := NewStore(NewRepositoryPersister(repo, ""), WithLogger(quietLogger()))
		require.NoError(t, s.Persist(Null()))
		require.NoError(t, s.Persist(Null()))
		_, err := repo.Get(DefaultBucket, DefaultKey)
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("LoadTokenlessRecordDiscardsIt", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Put(DefaultBucket, DefaultKey,
			[]byte(`{"user":{"id":1,"email":"a@b.c","full_name":"A","role":"user"},"token":null,"isLoggedIn":true}`)))

		s := NewStore(NewRepositoryPersister(repo, ""), WithLogger(quietLogger()))
		got := s.Load()
		assert.True(t, got.IsNull())

		_, err := repo.Get(DefaultBucket, DefaultKey)
		assert.True(t, errors.Is(err, storage.ErrNotFound), "corrupted record should be removed")
	})

	t.Run("LoadGarbageIsAbsent", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Put(DefaultBucket, DefaultKey, []byte("{not json")))

		s := NewStore(NewRepositoryPersister(repo, ""), WithLogger(quietLogger()))
		assert.True(t, s.Load().IsNull())
		_, err := repo.Get(DefaultBucket, DefaultKey)
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("LoadMissing", func(t *testing.T) {
		s := NewStore(NewRepositoryPersister(newRepo(t), ""), WithLogger(quietLogger()))
		assert.True(t, s.Load().IsNull())
	})
}

func TestStoreMemory(t *testing.T) {
	storeTests(t, func(t *testing.T) storage.Repository {
		return memory.NewRepository()
	})
}

func TestStoreBBolt(t *testing.T) {
	storeTests(t, func(t *testing.T) storage.Repository {
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(t.TempDir(), "session.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		return repo
	})
}

func TestCommitRejectsInvariantViolations(t *testing.T) {
	s := NewStore(NewRepositoryPersister(memory.NewRepository(), ""), WithLogger(quietLogger()))
	u := alice()

	cases := map[string]Session{
		"logged in without token": {User: &u, IsLoggedIn: true},
		"token but not logged in": {User: &u, Token: "tok"},
		"user without token":      {User: &u},
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			err := s.Commit(bad)
			assert.ErrorIs(t, err, ErrInvalidSession)
			assert.True(t, s.Current().IsNull(), "rejected commit must not change state")
		})
	}
}

func TestCommitInvariantProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	repo := memory.NewRepository()
	s := NewStore(NewRepositoryPersister(repo, ""), WithLogger(quietLogger()))

	for i := 0; i < 500; i++ {
		var candidate Session
		if rng.IntN(2) == 0 {
			u := alice()
			candidate.User = &u
		}
		if rng.IntN(2) == 0 {
			candidate.Token = "tok"
		}
		candidate.IsLoggedIn = rng.IntN(2) == 0

		before := s.Current()
		err := s.Commit(candidate)
		wantValid := candidate.IsLoggedIn == (candidate.Token != "") &&
			!(candidate.User != nil && candidate.Token == "")
		if wantValid {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, ErrInvalidSession)
			require.Equal(t, before, s.Current())
		}

		cur := s.Current()
		require.Equal(t, cur.IsLoggedIn, cur.Token != "", "committed session violates invariant")

		_, getErr := repo.Get(DefaultBucket, DefaultKey)
		require.Equal(t, cur.Token == "", errors.Is(getErr, storage.ErrNotFound),
			"record presence must track token presence")
	}
}

func TestSubscribeOrderingAndUnsubscribe(t *testing.T) {
	s := NewStore(NewRepositoryPersister(memory.NewRepository(), ""), WithLogger(quietLogger()))

	var a, b []string
	unsubA := s.Subscribe(func(sess Session) { a = append(a, sess.Token) })
	s.Subscribe(func(sess Session) {
		// The commit is applied before listeners run.
		assert.Equal(t, sess.Token, s.Token())
		b = append(b, sess.Token)
	})

	require.NoError(t, s.Commit(New(alice(), "t1")))
	require.NoError(t, s.Commit(New(alice(), "t2")))
	unsubA()
	unsubA()
	require.NoError(t, s.Logout())

	assert.Equal(t, []string{"t1", "t2"}, a)
	assert.Equal(t, []string{"t1", "t2", ""}, b)
}

func TestReentrantCommitDeliveredInOrder(t *testing.T) {
	s := NewStore(NewRepositoryPersister(memory.NewRepository(), ""), WithLogger(quietLogger()))

	var first, second []string
	s.Subscribe(func(sess Session) {
		first = append(first, sess.Token)
		if sess.Token == "expired" {
			// Forced logout from inside a listener must not deadlock.
			assert.True(t, s.LogoutToken("expired"))
			assert.True(t, s.Current().IsNull())
		}
	})
	s.Subscribe(func(sess Session) { second = append(second, sess.Token) })

	require.NoError(t, s.Commit(New(alice(), "expired")))

	assert.Equal(t, []string{"expired", ""}, first)
	assert.Equal(t, []string{"expired", ""}, second)
}

func TestLogoutTokenIsIdempotent(t *testing.T) {
	s := NewStore(NewRepositoryPersister(memory.NewRepository(), ""), WithLogger(quietLogger()))
	require.NoError(t, s.Commit(New(alice(), "tok-1")))

	var logouts int
	s.Subscribe(func(sess Session) {
		if sess.IsNull() {
			logouts++
		}
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	performed := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.LogoutToken("tok-1") {
				mu.Lock()
				performed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, performed)
	assert.Equal(t, 1, logouts)
	assert.False(t, s.LogoutToken(""))
}

func TestLogoutTokenIgnoresSupersededToken(t *testing.T) {
	s := NewStore(NewRepositoryPersister(memory.NewRepository(), ""), WithLogger(quietLogger()))
	require.NoError(t, s.Commit(New(alice(), "old")))
	require.NoError(t, s.Commit(New(alice(), "new")))

	assert.False(t, s.LogoutToken("old"))
	assert.Equal(t, "new", s.Token())
}

type failingPersister struct {
	saveErr, loadErr, removeErr error
	removed                     int
}

func (f *failingPersister) Load() ([]byte, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return nil, ErrNoRecord
}
func (f *failingPersister) Save([]byte) error { return f.saveErr }
func (f *failingPersister) Remove() error {
	f.removed++
	return f.removeErr
}

func TestPersistenceFailureDoesNotRollBack(t *testing.T) {
	p := &failingPersister{saveErr: errors.New("disk full"), removeErr: errors.New("read-only")}
	s := NewStore(p, WithLogger(quietLogger()))

	var seen int
	s.Subscribe(func(Session) { seen++ })

	require.NoError(t, s.Commit(New(alice(), "tok-1")))
	assert.Equal(t, "tok-1", s.Token())

	require.NoError(t, s.Logout())
	assert.True(t, s.Current().IsNull())
	assert.Equal(t, 2, seen)

	err := s.Persist(New(alice(), "tok-2"))
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestLoadReadFailureIsAbsent(t *testing.T) {
	p := &failingPersister{loadErr: errors.New("permission denied")}
	s := NewStore(p, WithLogger(quietLogger()))

	assert.True(t, s.Load().IsNull())
	assert.Equal(t, 0, p.removed, "a read failure must not remove the record")
}

func TestCurrentReturnsSnapshot(t *testing.T) {
	s := NewStore(NewRepositoryPersister(memory.NewRepository(), ""), WithLogger(quietLogger()))
	require.NoError(t, s.Commit(New(alice(), "tok")))

	snap := s.Current()
	snap.User.Email = "mallory@example.com"
	assert.Equal(t, "alice@example.com", s.Current().User.Email)
}
