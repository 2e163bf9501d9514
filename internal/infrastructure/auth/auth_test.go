package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenService_RoundTrip(t *testing.T) {
	svc, err := NewTokenService(testSecret, "secops-identity")
	require.NoError(t, err)

	actor := uuid.New()
	token, err := svc.Issue(actor, "sess-1", time.Hour)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	got, err := claims.ActorID()
	require.NoError(t, err)
	assert.Equal(t, actor, got)
	assert.Equal(t, "sess-1", claims.SessionID)
}

func TestTokenService_Rejections(t *testing.T) {
	svc, err := NewTokenService(testSecret, "secops-identity")
	require.NoError(t, err)
	actor := uuid.New()

	expired := func() string {
		past := *svc
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		tok, err := past.Issue(actor, "", time.Hour)
		require.NoError(t, err)
		return tok
	}

	otherIssuer := func() string {
		other, err := NewTokenService(testSecret, "someone-else")
		require.NoError(t, err)
		tok, err := other.Issue(actor, "", time.Hour)
		require.NoError(t, err)
		return tok
	}

	otherSecret := func() string {
		other, err := NewTokenService("ffffffffffffffffffffffffffffffff", "secops-identity")
		require.NoError(t, err)
		tok, err := other.Issue(actor, "", time.Hour)
		require.NoError(t, err)
		return tok
	}

	badSubject := func() string {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "secops-identity",
			Subject:   "not-a-uuid",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return tok
	}

	noExpiry := func() string {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "secops-identity", Subject: actor.String()}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return tok
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expired(), ErrTokenExpired},
		{"wrong issuer", otherIssuer(), ErrTokenInvalid},
		{"wrong secret", otherSecret(), ErrTokenInvalid},
		{"subject is not an actor id", badSubject(), ErrTokenInvalid},
		{"missing expiry", noExpiry(), ErrTokenInvalid},
		{"garbage", "not.a.token", ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			assert.Equal(t, tt.want, err)
		})
	}
}

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", "")
	assert.Error(t, err)
}
