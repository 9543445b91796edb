package throttle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceStoreAcquireCommitAdvancesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonce.txt")
	s, err := NewNonceStore(path, 1)
	require.NoError(t, err)

	tok := s.Acquire()
	assert.Equal(t, uint64(1), tok.Value())
	require.NoError(t, tok.Commit())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2", string(raw))

	tok2 := s.Acquire()
	assert.Equal(t, uint64(2), tok2.Value())
	require.NoError(t, tok2.Commit())
}

func TestNonceStoreReleaseReturnsSameValue(t *testing.T) {
	s, err := NewNonceStore("", 5)
	require.NoError(t, err)

	tok := s.Acquire()
	assert.Equal(t, uint64(5), tok.Value())
	tok.Release()

	tok2 := s.Acquire()
	assert.Equal(t, uint64(5), tok2.Value(), "a released token's value must be reissued")
}

func TestNonceStoreResumesFromPersistedValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonce.txt")
	require.NoError(t, os.WriteFile(path, []byte("42"), 0o600))

	s, err := NewNonceStore(path, 1)
	require.NoError(t, err)

	tok := s.Acquire()
	assert.Equal(t, uint64(42), tok.Value())
}

func TestNonceStoreRefusesCorruptPersistedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonce.txt")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number"), 0o600))

	_, err := NewNonceStore(path, 1)
	require.Error(t, err)
}

func TestNonceStoreRejectsInitialValueBelowOne(t *testing.T) {
	_, err := NewNonceStore("", 0)
	require.Error(t, err)
}

func TestNonceStoreDoubleCommitIsIdempotent(t *testing.T) {
	s, err := NewNonceStore("", 1)
	require.NoError(t, err)

	tok := s.Acquire()
	require.NoError(t, tok.Commit())
	require.NoError(t, tok.Commit()) // must not re-advance past 2

	next := s.Acquire()
	assert.Equal(t, uint64(2), next.Value())
}
