package preview

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"

	"github.com/jmcleod/docsession/gateway"
)

// ErrNoExtension is returned by Show for a filename without an extension.
var ErrNoExtension = errors.New("cannot preview file without an extension")

// Fetcher retrieves file content. *gateway.Documents implements it.
type Fetcher interface {
	Download(ctx context.Context, id int64) (gateway.Content, error)
	Preview(ctx context.Context, id int64) (gateway.Content, error)
}

// File identifies what the viewer should show.
type File struct {
	ID       int64
	Filename string
}

// KindFor picks the handle kind for filename. Plain text and markdown are
// shown inline; everything else goes through a revocable handle.
func KindFor(filename string) (Kind, error) {
	if !strings.Contains(filename, ".") {
		return "", ErrNoExtension
	}
	switch strings.ToLower(path.Ext(filename)) {
	case ".txt", ".md":
		return KindInlineText, nil
	default:
		return KindRevocableURI, nil
	}
}

// Viewer holds at most one open handle. Showing a new file releases the
// previous handle first, and Close releases whatever is open, so every
// handle it opens is released exactly once.
type Viewer struct {
	cache *Cache
	fetch Fetcher

	// mu is held across the fetch so Shows and Close are serialized.
	mu      sync.Mutex
	file    File
	current Handle
	open    bool
}

func NewViewer(cache *Cache, fetch Fetcher) *Viewer {
	return &Viewer{cache: cache, fetch: fetch}
}

// Show replaces the current preview with f. A filename without an extension
// is rejected before the current preview is touched. A failed fetch leaves
// the viewer empty.
func (v *Viewer) Show(ctx context.Context, f File) (Handle, error) {
	kind, err := KindFor(f.Filename)
	if err != nil {
		return Handle{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.releaseLocked()

	var content gateway.Content
	if kind == KindInlineText {
		content, err = v.fetch.Download(ctx, f.ID)
	} else {
		content, err = v.fetch.Preview(ctx, f.ID)
	}
	if err != nil {
		return Handle{}, err
	}

	h, err := v.cache.Open(kind, content.Data, content.ContentType)
	if err != nil {
		return Handle{}, err
	}
	v.file, v.current, v.open = f, h, true
	return h, nil
}

// Current returns the open handle and the file it shows.
func (v *Viewer) Current() (Handle, File, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, v.file, v.open
}

// Close releases the open handle, if any. It is safe to call repeatedly.
func (v *Viewer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.releaseLocked()
}

func (v *Viewer) releaseLocked() {
	if !v.open {
		return
	}
	v.cache.Release(v.current)
	v.file, v.current, v.open = File{}, Handle{}, false
}
