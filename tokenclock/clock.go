// Package tokenclock keeps a warning timer and an expiry timer aligned with the
// session's current bearer token.
//
// Timers are recomputed from the token's own exp claim whenever the token
// changes, so they stay correct across reloads. Every schedule bumps a
// generation counter; a timer that fires for an older generation does nothing.
package tokenclock

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jmcleod/docsession/internal/metrics"
	"github.com/jmcleod/docsession/notify"
	"github.com/jmcleod/docsession/session"
)

// DefaultWarningLead is how long before expiry the warning is emitted.
const DefaultWarningLead = 60 * time.Second

const (
	msgExpiringSoon = "Token will expire in less than 1 min. Please login again."
	msgExpired      = "Token expired. Please login again."
	msgInvalid      = "Invalid token. Please login again."
)

// Clock watches a session.Store and forces logout when its token expires.
type Clock struct {
	store     *session.Store
	notifier  notify.Notifier
	logger    *slog.Logger
	scheduler Scheduler
	now       func() time.Time
	lead      time.Duration
	metrics   *metrics.Metrics

	mu          sync.Mutex
	started     bool
	stopped     bool
	unsubscribe func()
	observed    string
	gen         uint64
	warning     Timer
	expiry      Timer
}

// Option configures a Clock.
type Option func(*Clock)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Clock) { c.logger = logger }
}

// WithScheduler replaces time.AfterFunc.
func WithScheduler(s Scheduler) Option {
	return func(c *Clock) { c.scheduler = s }
}

// WithNow replaces time.Now.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithWarningLead sets how long before expiry the warning fires.
func WithWarningLead(d time.Duration) Option {
	return func(c *Clock) { c.lead = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Clock) { c.metrics = m }
}

// New returns a Clock for store. It does nothing until Start.
func New(store *session.Store, n notify.Notifier, opts ...Option) *Clock {
	c := &Clock{
		store:     store,
		notifier:  n,
		scheduler: realScheduler{},
		now:       time.Now,
		lead:      DefaultWarningLead,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = notify.Discard
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	c.logger = c.logger.With("component", "tokenclock")
	return c
}

// Start subscribes to the store and schedules timers for the current token.
// An already expired or undecodable token is logged out before Start returns.
func (c *Clock) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	unsubscribe := c.store.Subscribe(c.observe)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		unsubscribe()
		return
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	c.observe(c.store.Current())
}

// Stop unsubscribes and cancels both timers. It is the clock's only teardown
// point; a stopped clock cannot be restarted.
func (c *Clock) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.cancelLocked()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Pending reports which timers are outstanding.
func (c *Clock) Pending() (warning, expiry bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warning != nil, c.expiry != nil
}

func (c *Clock) observe(s session.Session) {
	c.mu.Lock()
	if c.stopped || s.Token == c.observed {
		c.mu.Unlock()
		return
	}
	c.observed = s.Token
	// Cancellation always precedes scheduling.
	c.cancelLocked()

	token := s.Token
	if token == "" {
		c.mu.Unlock()
		return
	}

	claims, err := DecodeClaims(token)
	if err != nil {
		c.mu.Unlock()
		c.forceLogout(token, notify.KindInvalidToken, msgInvalid, err, metrics.ReasonInvalidToken)
		return
	}

	remaining := claims.ExpiresAt.Sub(c.now())
	if remaining <= 0 {
		c.mu.Unlock()
		c.forceLogout(token, notify.KindExpired, msgExpired, ErrExpiredToken, metrics.ReasonExpired)
		return
	}

	gen := c.gen
	warnNow := remaining <= c.lead
	if !warnNow {
		c.warning = c.scheduler.AfterFunc(remaining-c.lead, func() { c.fireWarning(gen) })
	}
	c.expiry = c.scheduler.AfterFunc(remaining, func() { c.fireExpiry(gen, token) })
	c.mu.Unlock()

	c.logger.Debug("expiry timers scheduled",
		"expires_at", claims.ExpiresAt.UTC().Format(time.RFC3339),
		"remaining", remaining.String(),
		"immediate_warning", warnNow)
	if warnNow {
		c.warn()
	}
}

// cancelLocked must be called with c.mu held.
func (c *Clock) cancelLocked() {
	if c.warning != nil {
		c.warning.Stop()
		c.warning = nil
	}
	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
	c.gen++
}

func (c *Clock) fireWarning(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.stopped {
		c.mu.Unlock()
		return
	}
	c.warning = nil
	c.mu.Unlock()
	c.warn()
}

func (c *Clock) fireExpiry(gen uint64, token string) {
	c.mu.Lock()
	if gen != c.gen || c.stopped {
		c.mu.Unlock()
		return
	}
	c.expiry = nil
	c.mu.Unlock()
	c.forceLogout(token, notify.KindExpired, msgExpired, ErrExpiredToken, metrics.ReasonExpired)
}

func (c *Clock) warn() {
	c.metrics.ExpiryWarning()
	c.notifier.Notify(notify.Notice{Kind: notify.KindWarning, Message: msgExpiringSoon, At: c.now()})
}

// forceLogout ends the session only if token is still current, so a token
// superseded while we were deciding is left alone.
func (c *Clock) forceLogout(token string, kind notify.Kind, msg string, cause error, reason string) {
	if !c.store.LogoutToken(token) {
		return
	}
	c.metrics.ForcedLogout(reason)
	c.logger.Info("session ended", "reason", reason, "error", cause)
	c.notifier.Notify(notify.Notice{Kind: kind, Message: msg, Err: cause, At: c.now()})
}
