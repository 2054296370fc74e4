// Package preview owns the local handles that back previewed file content.
//
// Inline text needs no cleanup. Binary content is held behind a revocable URI
// that must be released exactly once; releasing twice, or releasing a handle
// the cache never issued, is a silent no-op.
package preview

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/docsession/internal/metrics"
	"github.com/jmcleod/docsession/internal/uuid"
)

// DefaultBaseURI prefixes revocable handle URIs.
const DefaultBaseURI = "blob:docsession/"

// ErrUnknownKind is returned by Open for a kind it does not recognize.
var ErrUnknownKind = errors.New("unknown preview kind")

// Kind selects how previewed content is represented.
type Kind string

const (
	KindInlineText   Kind = "inline-text"
	KindRevocableURI Kind = "revocable-uri"
)

// Handle is a reference to previewed content.
type Handle struct {
	Kind Kind
	// URI is set for revocable handles only.
	URI string
	// Text is set for inline handles only.
	Text        string
	ContentType string
	CreatedAt   time.Time
}

type entry struct {
	data        []byte
	contentType string
}

// Cache issues and revokes handles. It is safe for concurrent use.
type Cache struct {
	base    string
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.Mutex
	entries  map[string]entry
	opened   int
	released int
}

// Option configures a Cache.
type Option func(*Cache)

// WithBaseURI sets the prefix of revocable URIs. A cache served over HTTP
// uses the URL it is mounted at so handles can be fetched directly.
func WithBaseURI(base string) Option {
	return func(c *Cache) { c.base = base }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func WithNow(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// NewCache returns an empty Cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		base:    DefaultBaseURI,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	c.logger = c.logger.With("component", "preview")
	return c
}

// Open wraps data in a handle of the given kind. Revocable handles stay live
// until Release.
func (c *Cache) Open(kind Kind, data []byte, contentType string) (Handle, error) {
	h := Handle{Kind: kind, ContentType: contentType, CreatedAt: c.now()}
	switch kind {
	case KindInlineText:
		h.Text = string(data)
		c.metrics.PreviewOpened(string(kind), false)
		return h, nil
	case KindRevocableURI:
		h.URI = c.base + uuid.New()
		c.mu.Lock()
		c.entries[h.URI] = entry{data: append([]byte(nil), data...), contentType: contentType}
		c.opened++
		c.mu.Unlock()
		c.metrics.PreviewOpened(string(kind), true)
		c.logger.Debug("handle opened", "uri", h.URI, "bytes", len(data))
		return h, nil
	default:
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Release revokes h and reports whether this call revoked anything. Inline
// handles, already released handles and handles from another cache are no-ops.
func (c *Cache) Release(h Handle) bool {
	if h.Kind != KindRevocableURI || h.URI == "" {
		return false
	}
	c.mu.Lock()
	if _, ok := c.entries[h.URI]; !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.entries, h.URI)
	c.released++
	c.mu.Unlock()

	c.metrics.PreviewReleased(string(h.Kind))
	c.logger.Debug("handle released", "uri", h.URI)
	return true
}

// Resolve returns the content behind a live revocable URI.
func (c *Cache) Resolve(uri string) ([]byte, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[uri]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), e.data...), e.contentType, true
}

// Live returns the number of revocable handles not yet released.
func (c *Cache) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Counts returns how many revocable handles were opened and released.
func (c *Cache) Counts() (opened, released int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened, c.released
}

// Handler serves live revocable handles at GET /{id}, where id is the URI
// with the base prefix removed. Released handles answer 404.
func (c *Cache) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !uuid.Valid(id) {
			http.NotFound(w, r)
			return
		}
		data, contentType, ok := c.Resolve(c.base + id)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", "inline")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(data)
	})
	return r
}

// ID returns the part of a revocable URI that Handler routes on.
func (c *Cache) ID(h Handle) string {
	return strings.TrimPrefix(h.URI, c.base)
}
