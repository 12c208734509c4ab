package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Whisper/internal/domain"
)

func TestJWTRoundTrip(t *testing.T) {
	a := NewJWT("s3cret")
	token, err := a.Issue("alice", time.Minute)
	require.NoError(t, err)

	user, err := a.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice"), user)
}

func TestJWTRejections(t *testing.T) {
	a := NewJWT("s3cret")
	other := NewJWT("different")

	token, err := other.Issue("alice", time.Minute)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"wrong secret": token,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), tok)
			assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}

func TestJWTExpired(t *testing.T) {
	a := NewJWT("s3cret")
	token, err := a.Issue("alice", -time.Minute)
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}
