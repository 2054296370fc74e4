package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/docsession/client"
	"github.com/jmcleod/docsession/gateway"
	"github.com/jmcleod/docsession/internal/config"
	"github.com/jmcleod/docsession/internal/logging"
	"github.com/jmcleod/docsession/notify"
)

var (
	cfg    = config.Load()
	logger *slog.Logger
)

var errNotLoggedIn = errors.New("not logged in: run `docsession login` first")

var rootCmd = &cobra.Command{
	Use:   "docsession",
	Short: "docsession is a command-line client for the document service",
	Long: `A command-line client for the document management service.
The login session is kept between runs and ends when its token expires or the
service rejects it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger = logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "Document service base URL")
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for the persisted session")
	f.StringVar(&cfg.Store, "store", cfg.Store, "Session store: bbolt, memory or postgres")
	f.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL DSN for the postgres store")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	f.DurationVar(&cfg.WarningLead, "warning-lead", cfg.WarningLead, "How long before expiry to warn")
	f.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "Per-request timeout")
}

// openClient restores the persisted session and returns a client for it.
// Session notices are printed to stderr.
func openClient(cmd *cobra.Command, opts ...client.Option) (*client.Client, func(), error) {
	repo, closeRepo, err := client.OpenRepository(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session store: %w", err)
	}

	printer := notify.Func(func(n notify.Notice) {
		fmt.Fprintln(cmd.ErrOrStderr(), n.Message)
	})
	base := []client.Option{client.WithLogger(logger), client.WithNotifier(printer)}
	c, err := client.New(cfg, repo, append(base, opts...)...)
	if err != nil {
		_ = closeRepo()
		return nil, nil, err
	}
	return c, func() {
		c.Close()
		if err := closeRepo(); err != nil {
			logger.Warn("closing session store", "error", err)
		}
	}, nil
}

// openSession is openClient for commands that need a logged-in session.
func openSession(cmd *cobra.Command, opts ...client.Option) (*client.Client, func(), error) {
	c, done, err := openClient(cmd, opts...)
	if err != nil {
		return nil, nil, err
	}
	if !c.Session().IsLoggedIn {
		done()
		return nil, nil, errNotLoggedIn
	}
	return c, done, nil
}

// isSessionEnding reports whether err means the session is gone, so that
// retrying with the same session is pointless.
func isSessionEnding(err error) bool {
	return errors.Is(err, gateway.ErrUnauthorized) ||
		errors.Is(err, gateway.ErrNotLoggedIn) ||
		errors.Is(err, client.ErrSessionEnded)
}
