package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jmcleod/docsession/client"
	"github.com/jmcleod/docsession/gateway"
	"github.com/jmcleod/docsession/internal/metrics"
	"github.com/jmcleod/docsession/preview"
	"github.com/jmcleod/docsession/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the session open and serve previews locally",
	Long: `Keep the session open, serving previews, file listings and metrics on
--listen. The command exits when the session ends, whether it expires, is
rejected by the service, or is logged out through POST /logout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
		}
		defer ln.Close()
		addr := ln.Addr().String()

		m := metrics.New()
		c, done, err := openSession(cmd,
			client.WithMetrics(m),
			client.WithPreviewBaseURI("http://"+addr+"/preview/"),
		)
		if err != nil {
			return err
		}
		defer done()

		ended := make(chan struct{}, 1)
		unsubscribe := c.Store().Subscribe(func(s session.Session) {
			if !s.IsLoggedIn {
				select {
				case ended <- struct{}{}:
				default:
				}
			}
		})
		defer unsubscribe()

		server := &http.Server{
			Handler:           otelhttp.NewHandler(newServeRouter(c, addr), "docsession"),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM or when the session ends.
		serveErr := make(chan error, 1)
		go func() {
			if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("server failed: %w", err)
				return
			}
			serveErr <- nil
		}()

		out := cmd.OutOrStdout()
		printBanner(out)
		fmt.Fprintf(out, "Serving session for %s on http://%s\n", c.Session().User.Email, addr)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		case <-ended:
			fmt.Fprintln(out, "Session ended, shutting down...")
		case <-cmd.Context().Done():
		case err := <-serveErr:
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	},
}

type sessionView struct {
	User       *session.User `json:"user"`
	IsLoggedIn bool          `json:"isLoggedIn"`
	ExpiresAt  *time.Time    `json:"expiresAt,omitempty"`
}

// newServeRouter exposes c over HTTP for the serve command on addr.
func newServeRouter(c *client.Client, addr string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(localOrigin(addr))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", c.Metrics().Handler())

	r.Get("/session", func(w http.ResponseWriter, r *http.Request) {
		s := c.Session()
		view := sessionView{User: s.User, IsLoggedIn: s.IsLoggedIn}
		if claims, err := c.Claims(); err == nil {
			view.ExpiresAt = &claims.ExpiresAt
		}
		writeJSON(w, http.StatusOK, view)
	})

	r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
		if err := c.Logout(); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/files", func(w http.ResponseWriter, r *http.Request) {
		files, err := c.Documents().ListFiles(r.Context(), r.URL.Query().Get("search"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, files)
	})

	// GET /view/{id}?name=report.pdf replaces the current preview. Text is
	// returned directly; anything else redirects to its revocable URI.
	r.Get("/view/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		h, err := c.Viewer().Show(r.Context(), preview.File{ID: id, Filename: r.URL.Query().Get("name")})
		if err != nil {
			writeError(w, err)
			return
		}
		if h.Kind == preview.KindInlineText {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			w.Write([]byte(h.Text))
			return
		}
		http.Redirect(w, r, h.URI, http.StatusSeeOther)
	})
	r.Delete("/view", func(w http.ResponseWriter, r *http.Request) {
		c.Viewer().Close()
		w.WriteHeader(http.StatusNoContent)
	})

	r.Mount("/preview", c.Cache().Handler())
	return r
}

// localOrigin rejects requests that a browser sent on behalf of another site,
// and requests addressed to any host other than addr (DNS rebinding).
func localOrigin(addr string) func(http.Handler) http.Handler {
	hosts := map[string]bool{strings.ToLower(addr): true}
	if _, port, err := net.SplitHostPort(addr); err == nil {
		hosts["localhost:"+port] = true
		hosts["127.0.0.1:"+port] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hosts[strings.ToLower(r.Host)] {
				writeJSON(w, http.StatusForbidden, map[string]string{"detail": "unexpected host"})
				return
			}
			switch r.Header.Get("Sec-Fetch-Site") {
			case "", "same-origin", "none":
			default:
				writeJSON(w, http.StatusForbidden, map[string]string{"detail": "cross-site request"})
				return
			}
			if origin := r.Header.Get("Origin"); origin != "" && !strings.EqualFold(origin, "http://"+r.Host) {
				writeJSON(w, http.StatusForbidden, map[string]string{"detail": "cross-origin request"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, gateway.ErrUnauthorized), errors.Is(err, gateway.ErrNotLoggedIn):
		status = http.StatusUnauthorized
	case errors.Is(err, gateway.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, gateway.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, preview.ErrNoExtension):
		status = http.StatusBadRequest
	}
	detail := err.Error()
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		detail = apiErr.Detail
	}
	writeJSON(w, status, map[string]string{"detail": detail})
}

func init() {
	serveCmd.Flags().StringVar(&cfg.Listen, "listen", cfg.Listen, "Address to serve on")
	rootCmd.AddCommand(serveCmd)
}
