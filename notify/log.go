package notify

import (
	"context"
	"log/slog"
	"time"
)

// LogNotifier writes notices as structured log entries.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs through logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (l *LogNotifier) Notify(n Notice) {
	at := n.At
	if at.IsZero() {
		at = time.Now()
	}
	attrs := []slog.Attr{
		slog.String("event", string(n.Kind)),
		slog.String("timestamp", at.UTC().Format(time.RFC3339)),
	}
	if n.Err != nil {
		attrs = append(attrs, slog.String("error", n.Err.Error()))
	}
	level := slog.LevelInfo
	if n.Kind != KindInfo {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(context.Background(), level, n.Message, attrs...)
}
