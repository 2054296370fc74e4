package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestValidate(t *testing.T) {
	u := alice()
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
		want    Session
	}{
		{name: "null record", rec: Record{}, want: Null()},
		{name: "logged in", rec: Record{User: &u, Token: strp("tok"), IsLoggedIn: true}, want: Session{User: &u, Token: "tok", IsLoggedIn: true}},
		{name: "user without token", rec: Record{User: &u, IsLoggedIn: true}, wantErr: true},
		{name: "user with empty token", rec: Record{User: &u, Token: strp(""), IsLoggedIn: false}, wantErr: true},
		{name: "token not logged in", rec: Record{Token: strp("tok")}, wantErr: true},
		{name: "logged in flag only", rec: Record{IsLoggedIn: true}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.rec)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSession)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeShape(t *testing.T) {
	data, err := Encode(New(alice(), "tok"))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"user":{"id":7,"email":"alice@example.com","full_name":"Alice","role":"user"},"token":"tok","isLoggedIn":true}`,
		string(data))

	_, err = Encode(Null())
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("nope"))
	assert.Error(t, err)

	rec, err := Decode([]byte(`{"user":null,"token":null,"isLoggedIn":false}`))
	require.NoError(t, err)
	assert.Nil(t, rec.Token)
	assert.Nil(t, rec.User)
}

func TestUserIsAdmin(t *testing.T) {
	var nilUser *User
	assert.False(t, nilUser.IsAdmin())
	assert.True(t, (&User{Role: RoleAdmin}).IsAdmin())
	assert.False(t, (&User{Role: RoleUser}).IsAdmin())
}
