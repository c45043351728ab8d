package identity

import (
	"testing"
	"time"

	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/syncerror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestSession_LoginLogoutNotifies(t *testing.T) {
	s := NewSession(logging.NewMockLogger())
	var seen []string
	s.OnChange(func(owner string) { seen = append(seen, owner) })

	_, ok := s.Current()
	assert.False(t, ok)

	require.NoError(t, s.Login("alice"))
	require.NoError(t, s.Login("alice"))
	require.NoError(t, s.Login("bob"))
	s.Logout()
	s.Logout()

	assert.Equal(t, []string{"alice", "bob", ""}, seen)
}

func TestSession_LoginRejectsBlank(t *testing.T) {
	s := NewSession(nil)
	err := s.Login("  ")
	require.Error(t, err)
	assert.True(t, syncerror.IsValidation(err))
}

func TestParseToken(t *testing.T) {
	valid, err := IssueToken("alice", secret, time.Hour)
	require.NoError(t, err)

	subOnly, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "carol",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)

	expired, err := IssueToken("alice", secret, -time.Minute)
	require.NoError(t, err)

	noOwner, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "x"}).SignedString(secret)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		secret  []byte
		want    string
		wantErr bool
	}{
		{"uid claim", valid, secret, "alice", false},
		{"bearer prefix", "Bearer " + valid, secret, "alice", false},
		{"sub fallback", subOnly, secret, "carol", false},
		{"expired", expired, secret, "", true},
		{"wrong secret", valid, []byte("other"), "", true},
		{"no secret", valid, nil, "", true},
		{"no owner claim", noOwner, secret, "", true},
		{"garbage", "not-a-token", secret, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseToken(tt.token, tt.secret)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, syncerror.ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSession_LoginWithToken(t *testing.T) {
	s := NewSession(nil)
	token, err := IssueToken("dave", secret, time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.LoginWithToken(token, secret))
	owner, ok := s.Current()
	assert.True(t, ok)
	assert.Equal(t, "dave", owner)

	require.Error(t, s.LoginWithToken(token, []byte("nope")))
	owner, _ = s.Current()
	assert.Equal(t, "dave", owner)
}
