// Package client wires the session store, token clock, request gateway and
// preview cache into one value.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jmcleod/docsession/gateway"
	"github.com/jmcleod/docsession/internal/config"
	"github.com/jmcleod/docsession/internal/metrics"
	"github.com/jmcleod/docsession/notify"
	"github.com/jmcleod/docsession/preview"
	"github.com/jmcleod/docsession/session"
	"github.com/jmcleod/docsession/storage"
	"github.com/jmcleod/docsession/tokenclock"
)

// ErrSessionEnded is returned by Login when the issued token was rejected
// locally as soon as it was committed, for example because it had already expired.
var ErrSessionEnded = errors.New("session ended immediately after login")

// Client is a logged-in (or logged-out) view of the document service.
type Client struct {
	logger   *slog.Logger
	notifier notify.Notifier
	metrics  *metrics.Metrics

	store  *session.Store
	gw     *gateway.Gateway
	docs   *gateway.Documents
	clock  *tokenclock.Clock
	cache  *preview.Cache
	viewer *preview.Viewer
}

type options struct {
	logger       *slog.Logger
	notifier     notify.Notifier
	metrics      *metrics.Metrics
	httpClient   *http.Client
	previewBase  string
	clockOptions []tokenclock.Option
}

// Option configures New.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithNotifier receives every session notice. Notices are also logged.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithPreviewBaseURI sets the prefix of revocable preview URIs.
func WithPreviewBaseURI(base string) Option {
	return func(o *options) { o.previewBase = base }
}

// WithClockOptions passes extra options to the token clock.
func WithClockOptions(opts ...tokenclock.Option) Option {
	return func(o *options) { o.clockOptions = append(o.clockOptions, opts...) }
}

// New builds a Client whose session is persisted in repo. The persisted
// session is restored and its timers scheduled before New returns; a restored
// token that has already expired is logged out immediately.
func New(cfg config.Config, repo storage.Repository, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if cfg.WarningLead <= 0 {
		return nil, fmt.Errorf("warning lead must be positive, got %s", cfg.WarningLead)
	}

	c := &Client{
		logger:   o.logger,
		notifier: notify.Multi(notify.NewLogNotifier(o.logger), o.notifier),
		metrics:  o.metrics,
	}

	c.store = session.NewStore(session.NewRepositoryPersister(repo, ""), session.WithLogger(o.logger))
	restored := c.store.Load()
	if restored.IsLoggedIn {
		o.logger.Debug("session restored", "email", restored.User.Email)
	}

	gwOpts := []gateway.Option{
		gateway.WithNotifier(c.notifier),
		gateway.WithLogger(o.logger),
		gateway.WithMetrics(o.metrics),
		gateway.WithTimeout(cfg.RequestTimeout),
	}
	if o.httpClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(o.httpClient))
	}
	gw, err := gateway.New(cfg.APIURL, c.store, gwOpts...)
	if err != nil {
		return nil, err
	}
	c.gw = gw
	c.docs = gateway.NewDocuments(gw)

	cacheOpts := []preview.Option{preview.WithLogger(o.logger), preview.WithMetrics(o.metrics)}
	if o.previewBase != "" {
		cacheOpts = append(cacheOpts, preview.WithBaseURI(o.previewBase))
	}
	c.cache = preview.NewCache(cacheOpts...)
	c.viewer = preview.NewViewer(c.cache, c.docs)

	clockOpts := append([]tokenclock.Option{
		tokenclock.WithLogger(o.logger),
		tokenclock.WithMetrics(o.metrics),
		tokenclock.WithWarningLead(cfg.WarningLead),
	}, o.clockOptions...)
	c.clock = tokenclock.New(c.store, c.notifier, clockOpts...)
	c.clock.Start()
	return c, nil
}

// Login authenticates and commits the resulting session.
func (c *Client) Login(ctx context.Context, email, password string) (session.Session, error) {
	res, err := c.docs.Login(ctx, email, password)
	if err != nil {
		return session.Null(), err
	}
	next := res.Session()
	if err := c.store.Commit(next); err != nil {
		return session.Null(), err
	}
	cur := c.store.Current()
	if cur.Token != next.Token {
		return session.Null(), ErrSessionEnded
	}
	c.logger.Info("logged in", "email", cur.User.Email, "role", cur.User.Role)
	return cur, nil
}

// Logout closes any open preview and ends the session.
func (c *Client) Logout() error {
	c.viewer.Close()
	return c.store.Logout()
}

// Session returns a snapshot of the current session.
func (c *Client) Session() session.Session {
	return c.store.Current()
}

// Claims decodes the current token's claims.
func (c *Client) Claims() (tokenclock.Claims, error) {
	token := c.store.Token()
	if token == "" {
		return tokenclock.Claims{}, gateway.ErrNotLoggedIn
	}
	return tokenclock.DecodeClaims(token)
}

func (c *Client) Store() *session.Store { return c.store }
func (c *Client) Documents() *gateway.Documents { return c.docs }
func (c *Client) Cache() *preview.Cache { return c.cache }
func (c *Client) Viewer() *preview.Viewer { return c.viewer }
func (c *Client) Clock() *tokenclock.Clock { return c.clock }
func (c *Client) Metrics() *metrics.Metrics { return c.metrics }

// Close stops the token clock and releases any open preview. The persisted
// session is left in place for the next run.
func (c *Client) Close() {
	c.clock.Stop()
	c.viewer.Close()
}
