package session

import (
	"encoding/json"
	"fmt"
)

// Record is the persisted shape of a session:
// {"user": {...}|null, "token": "..."|null, "isLoggedIn": bool}.
type Record struct {
	User       *User   `json:"user"`
	Token      *string `json:"token"`
	IsLoggedIn bool    `json:"isLoggedIn"`
}

// Decode parses a persisted record.
func Decode(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding session record: %w", err)
	}
	return rec, nil
}

// Encode serialises s as a persisted record. Only sessions carrying a token
// are ever written; callers remove the record instead of encoding a tokenless one.
func Encode(s Session) ([]byte, error) {
	if s.Token == "" {
		return nil, fmt.Errorf("%w: refusing to encode a session without token", ErrInvalidSession)
	}
	token := s.Token
	return json.Marshal(Record{User: s.User, Token: &token, IsLoggedIn: s.IsLoggedIn})
}

// Validate turns a decoded record into a Session. A record with a user but no
// token, or whose isLoggedIn flag disagrees with the token, is rejected with
// ErrInvalidSession. An empty token string is treated as absent.
func Validate(rec Record) (Session, error) {
	s := Session{User: rec.User, IsLoggedIn: rec.IsLoggedIn}
	if rec.Token != nil {
		s.Token = *rec.Token
	}
	if !s.Valid() {
		return Session{}, fmt.Errorf("%w: user=%t token=%t isLoggedIn=%t",
			ErrInvalidSession, s.User != nil, s.Token != "", s.IsLoggedIn)
	}
	return s, nil
}
