package tokenmanager

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("New", func(t *testing.T) {
		_, err := New(Config{})
		require.Error(t, err, "secret key is required")

		_, err = New(Config{SecretKey: "secret", Alg: "NOPE"})
		require.Error(t, err)

		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)
		require.Equal(t, defaultAccessTokenTTL, m.accessTTL)
		require.Equal(t, "HS256", m.alg.Alg())
	})

	t.Run("issue and parse", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		token, err := m.Issue(userID, RoleAdmin)
		require.NoError(t, err)
		require.WithinDuration(t, time.Now().Add(defaultAccessTokenTTL), token.ExpiresAt, 2*time.Second)

		p, err := m.ParseAccess(t.Context(), token.Value)

		require.NoError(t, err)
		require.Equal(t, userID, p.UserID)
		require.True(t, p.IsAdmin())
	})

	t.Run("role defaults to user", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)
		token, err := m.Issue(userID, "")
		require.NoError(t, err)

		p, err := m.ParseAccess(t.Context(), token.Value)

		require.NoError(t, err)
		require.Equal(t, RoleUser, p.Role)
		require.False(t, p.IsAdmin())
	})

	t.Run("wrong key", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)
		other, err := New(Config{SecretKey: "another"})
		require.NoError(t, err)
		token, err := other.Issue(userID, RoleUser)
		require.NoError(t, err)

		_, err = m.ParseAccess(t.Context(), token.Value)

		require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret", AccessTTL: -time.Minute})
		require.NoError(t, err)
		token, err := m.Issue(userID, RoleUser)
		require.NoError(t, err)

		_, err = m.ParseAccess(t.Context(), token.Value)

		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("garbage", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		_, err = m.ParseAccess(t.Context(), "not.a.token")

		require.Error(t, err)
	})

	t.Run("no user id", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)
		token, err := m.Issue(uuid.Nil, RoleUser)
		require.NoError(t, err)

		_, err = m.ParseAccess(t.Context(), token.Value)

		require.Error(t, err)
	})
}
