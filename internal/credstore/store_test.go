package credstore

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, sealKey []byte) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "creds.db")
	s, err := Open(context.Background(), path, sealKey)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetEmptyStore(t *testing.T) {
	s := openTestStore(t, nil)

	_, err := s.Get(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, s.Put(ctx, Credential{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    expires,
	}))

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "at-1", got.AccessToken)
	assert.Equal(t, "rt-1", got.RefreshToken)
	assert.True(t, got.ExpiresAt.Equal(expires))
}

func TestPutReplacesExisting(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Credential{AccessToken: "old", ExpiresAt: time.Now()}))
	require.NoError(t, s.Put(ctx, Credential{AccessToken: "new", ExpiresAt: time.Now()}))

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Credential{AccessToken: "at", ExpiresAt: time.Now()}))
	require.NoError(t, s.Delete(ctx))

	_, err := s.Get(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestSealedRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	s := openTestStore(t, key)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Credential{
		AccessToken:  "secret-access",
		RefreshToken: "secret-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret-access", got.AccessToken)
	assert.Equal(t, "secret-refresh", got.RefreshToken)
}

func TestSealRejectsTamperedCiphertext(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	seal, err := NewSeal(key)
	require.NoError(t, err)

	enc, err := seal.Encrypt("token")
	require.NoError(t, err)

	_, err = seal.Decrypt("AAAA" + enc[4:])
	assert.Error(t, err)
}
