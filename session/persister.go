package session

import (
	"errors"

	"github.com/jmcleod/docsession/storage"
)

const (
	// DefaultBucket and DefaultKey locate the single persisted session record.
	DefaultBucket = "session"
	DefaultKey    = "auth"
)

// Persister reads and writes the single persisted session record.
// Load and Remove return ErrNoRecord when there is nothing stored.
type Persister interface {
	Load() ([]byte, error)
	Save(data []byte) error
	Remove() error
}

// RepositoryPersister stores the session record in a storage.Repository.
type RepositoryPersister struct {
	repo   storage.Repository
	bucket string
	key    string
}

var _ Persister = (*RepositoryPersister)(nil)

// NewRepositoryPersister stores the record under DefaultBucket/key. An empty
// key selects DefaultKey.
func NewRepositoryPersister(repo storage.Repository, key string) *RepositoryPersister {
	if key == "" {
		key = DefaultKey
	}
	return &RepositoryPersister{repo: repo, bucket: DefaultBucket, key: key}
}

func (p *RepositoryPersister) Load() ([]byte, error) {
	data, err := p.repo.Get(p.bucket, p.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoRecord
	}
	return data, err
}

func (p *RepositoryPersister) Save(data []byte) error {
	return p.repo.Put(p.bucket, p.key, data)
}

func (p *RepositoryPersister) Remove() error {
	err := p.repo.Delete(p.bucket, p.key)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNoRecord
	}
	return err
}
