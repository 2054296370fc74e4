// Package session holds the authenticated client session and keeps it in sync
// with its persisted record.
//
// A Session is logged in exactly when it carries a token. The Store is the only
// place a Session changes: every change goes through Commit, is persisted on a
// best-effort basis, and is then delivered to subscribers in commit order.
package session

// Role gates admin-only features in callers.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User identifies the account a session belongs to.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Session is the in-memory authenticated identity. An empty Token means the
// session carries no credential.
type Session struct {
	User       *User
	Token      string
	IsLoggedIn bool
}

// Null returns the logged-out session.
func Null() Session {
	return Session{}
}

// New returns a logged-in session for user holding token.
func New(user User, token string) Session {
	return Session{User: &user, Token: token, IsLoggedIn: token != ""}
}

// Valid reports whether s satisfies IsLoggedIn == (Token != "") and does not
// carry a user without a token.
func (s Session) Valid() bool {
	hasToken := s.Token != ""
	if s.IsLoggedIn != hasToken {
		return false
	}
	if s.User != nil && !hasToken {
		return false
	}
	return true
}

// IsNull reports whether s is the logged-out session.
func (s Session) IsNull() bool {
	return s.User == nil && s.Token == "" && !s.IsLoggedIn
}

func (s Session) clone() Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
