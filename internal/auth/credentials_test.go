package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerMintThenVerifyRoundTrips(t *testing.T) {
	m := NewManager("super-secret-key", time.Minute)

	token, err := m.Mint("account-1", "key-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "account-1", claims.AccountID)
	assert.Equal(t, "key-1", claims.APIKeyID)
}

func TestManagerVerifyRejectsExpiredCredential(t *testing.T) {
	m := NewManager("super-secret-key", -time.Minute) // already expired at mint time

	token, err := m.Mint("account-1", "key-1")
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.Error(t, err)
}

func TestManagerVerifyRejectsWrongSigningKey(t *testing.T) {
	minter := NewManager("key-a", time.Minute)
	verifier := NewManager("key-b", time.Minute)

	token, err := minter.Mint("account-1", "key-1")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.Error(t, err)
}
