package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParseJWT(t *testing.T) {
	tok, err := SignJWT(7, "a@x.com", "s3cret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(tok, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), claims.UserID)
	assert.Equal(t, "a@x.com", claims.Email)

	_, err = ParseJWT(tok, "other")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseJWT_Expired(t *testing.T) {
	tok, err := SignJWT(7, "a@x.com", "s3cret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseJWT(tok, "s3cret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolver(t *testing.T) {
	r := NewResolver("s3cret")
	tok, err := SignJWT(1, "A@X.com", "s3cret", time.Hour)
	require.NoError(t, err)

	id, err := r.ResolveIdentity(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", id)

	id, err = r.ResolveIdentity(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = r.ResolveIdentity(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "pw"))
	assert.False(t, CheckPassword(hash, "nope"))
}
