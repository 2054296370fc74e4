// Package gateway is the single path by which the client talks to the document
// service. It attaches the current bearer token to every request for that
// service and turns any 401 into a forced logout before the caller sees the response.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmcleod/docsession/internal/metrics"
	"github.com/jmcleod/docsession/notify"
	"github.com/jmcleod/docsession/session"
)

// DefaultTimeout bounds a whole request including reading the body.
const DefaultTimeout = 30 * time.Second

const msgUnauthorized = "Session is no longer valid. Please login again."

// Gateway sends requests to the document service on behalf of the current session.
type Gateway struct {
	base     *url.URL
	store    *session.Store
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics

	next    http.RoundTripper
	timeout time.Duration
	client  *http.Client
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient uses c's transport and timeout underneath the gateway.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		if c.Transport != nil {
			g.next = c.Transport
		}
		if c.Timeout > 0 {
			g.timeout = c.Timeout
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(g *Gateway) { g.notifier = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// New returns a Gateway for the service rooted at baseURL.
func New(baseURL string, store *session.Store, opts ...Option) (*Gateway, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	g := &Gateway{
		base:    base,
		store:   store,
		next:    http.DefaultTransport,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.notifier == nil {
		g.notifier = notify.Discard
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	g.logger = g.logger.With("component", "gateway")
	g.next = otelhttp.NewTransport(g.next)
	g.client = &http.Client{Transport: g, Timeout: g.timeout}
	return g, nil
}

// NewRequest builds a request for path relative to the base URL.
func (g *Gateway) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := g.base.JoinPath(path)
	return http.NewRequestWithContext(ctx, method, u.String(), body)
}

// Do sends req. A 401 never reaches the caller as a response: the session
// that sent it is logged out and Do returns an error matching ErrUnauthorized.
// Every other status is returned unchanged.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	return g.client.Do(req)
}

// RoundTrip implements http.RoundTripper.
func (g *Gateway) RoundTrip(req *http.Request) (*http.Response, error) {
	// Redirects re-enter RoundTrip per hop; only the service itself sees the token.
	var token string
	if g.sameOrigin(req.URL) {
		token = g.store.Token()
	}
	if token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	g.metrics.Response(resp.StatusCode)

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	apiErr := readAPIError(resp)
	g.rejected(req.Context(), token, req.URL.Path, apiErr)
	return nil, apiErr
}

func (g *Gateway) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, g.base.Scheme) && strings.EqualFold(u.Host, g.base.Host)
}

// rejected ends the session that sent a rejected request. Concurrent
// rejections of the same token log out and notify once; a rejection of a
// token that has since been replaced leaves the newer session alone.
func (g *Gateway) rejected(ctx context.Context, token, path string, apiErr *APIError) {
	if !g.store.LogoutToken(token) {
		g.logger.Debug("rejection for inactive token ignored", "path", path)
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("docsession.forced_logout", true))
	g.metrics.ForcedLogout(metrics.ReasonUnauthorized)
	g.logger.Info("session ended", "reason", metrics.ReasonUnauthorized, "path", path, "detail", apiErr.Detail)
	g.notifier.Notify(notify.Notice{
		Kind:    notify.KindUnauthorized,
		Message: msgUnauthorized,
		Err:     apiErr,
		At:      time.Now(),
	})
}
