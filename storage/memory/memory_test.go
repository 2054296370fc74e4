package memory

import (
	"errors"
	"testing"

	"github.com/jmcleod/docsession/storage"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewRepository()
	bucket := "session"

	t.Run("PutAndGet", func(t *testing.T) {
		if err := repo.Put(bucket, "auth", []byte(`{"token":"abc"}`)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := repo.Get(bucket, "auth")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `{"token":"abc"}` {
			t.Errorf("Get returned %q", got)
		}

		// Test isolation (cloning)
		got[0] = 'X'
		got2, _ := repo.Get(bucket, "auth")
		if got2[0] == 'X' {
			t.Error("Memory repository should return clones of values")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get("nonexistent", "auth")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing bucket, got %v", err)
		}
		_, err = repo.Get(bucket, "nonexistent")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing key, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo.Put(bucket, "other", []byte("x"))
		keys, err := repo.List(bucket)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(keys) != 2 || keys[0] != "auth" || keys[1] != "other" {
			t.Errorf("unexpected keys: %v", keys)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(bucket, "other"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := repo.Delete(bucket, "other"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("PutCopiesInput", func(t *testing.T) {
		in := []byte("value")
		repo.Put(bucket, "copy", in)
		in[0] = 'X'
		got, _ := repo.Get(bucket, "copy")
		if string(got) != "value" {
			t.Errorf("stored value aliased caller slice: %q", got)
		}
	})
}
