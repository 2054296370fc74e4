// Package notify defines the fire-and-forget sink for user-visible session notices.
package notify

import "time"

// Kind identifies what a notice is about.
type Kind string

const (
	KindInfo         Kind = "info"
	KindWarning      Kind = "warning"
	KindExpired      Kind = "expired"
	KindInvalidToken Kind = "invalid_token"
	KindUnauthorized Kind = "unauthorized"
)

// Notice is a single user-visible message. Err carries the session error that
// caused a forced logout, if any.
type Notice struct {
	Kind    Kind
	Message string
	Err     error
	At      time.Time
}

// Notifier receives notices. Implementations must not block the caller for
// long: notices are emitted from timer callbacks and response handling.
type Notifier interface {
	Notify(Notice)
}

// Func adapts an ordinary function to the Notifier interface.
type Func func(Notice)

func (f Func) Notify(n Notice) { f(n) }

type discard struct{}

func (discard) Notify(Notice) {}

// Discard drops every notice.
var Discard Notifier = discard{}

type multi []Notifier

func (m multi) Notify(n Notice) {
	for _, t := range m {
		t.Notify(n)
	}
}

// Multi fans a notice out to every non-nil notifier, in order.
func Multi(notifiers ...Notifier) Notifier {
	var m multi
	for _, n := range notifiers {
		if n != nil {
			m = append(m, n)
		}
	}
	return m
}
