// Package throttle implements the shared request-dispatch primitives REST-
// style gateway siblings need alongside the streaming core: a persisted,
// monotonic nonce store (spec.md §4.C) and a flood/rate gate built on
// golang.org/x/time/rate, the same library the teacher's
// internal/shared/limits/connection_rate_limiter.go uses for connection
// throttling.
package throttle

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// NonceStore is a per-endpoint monotonically increasing integer persisted
// across process restarts so a replayed nonce is never reissued. Guarded by
// a mutex; only one token may be outstanding at a time.
type NonceStore struct {
	mu          sync.Mutex
	path        string
	next        uint64
	outstanding bool
}

// NewNonceStore opens (or creates) the nonce store persisted at path, keyed
// by whatever (endpoint-identity, api-key) pair the caller folded into the
// path. initial must be >= 1. Corruption in the persisted file is fatal to
// startup — the store refuses to guess a safe value.
func NewNonceStore(path string, initial uint64) (*NonceStore, error) {
	if initial < 1 {
		return nil, fmt.Errorf("throttle: nonce initial value must be >= 1, got %d", initial)
	}
	s := &NonceStore{path: path, next: initial}
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("throttle: refusing to start, cannot read nonce file %s: %w", path, err)
	}
	text := strings.TrimSpace(string(raw))
	persisted, perr := strconv.ParseUint(text, 10, 64)
	if perr != nil {
		return nil, fmt.Errorf("throttle: refusing to start, corrupt nonce file %s: %w", path, perr)
	}
	if persisted >= initial {
		s.next = persisted
	}
	return s, nil
}

// Token is a scoped reservation of one nonce value.
type Token struct {
	store *NonceStore
	value uint64
	done  bool
}

// Value returns the reserved nonce.
func (t *Token) Value() uint64 { return t.value }

// Acquire reserves the next nonce. It blocks (spins on the store mutex)
// until any previously acquired, uncommitted token has been committed or
// released — only one token may be outstanding per store at a time.
func (s *NonceStore) Acquire() *Token {
	for {
		s.mu.Lock()
		if !s.outstanding {
			s.outstanding = true
			v := s.next
			s.mu.Unlock()
			return &Token{store: s, value: v}
		}
		s.mu.Unlock()
	}
}

// Commit records the token's value as used and persists the advanced
// counter. Idempotent.
func (t *Token) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	s := t.store
	s.mu.Lock()
	s.next = t.value + 1
	s.outstanding = false
	path := s.path
	next := s.next
	s.mu.Unlock()
	if path == "" {
		return nil
	}
	return persist(path, next)
}

// Release returns the token to the pool without committing: the next
// Acquire observes the same value. Idempotent.
func (t *Token) Release() {
	if t.done {
		return
	}
	t.done = true
	s := t.store
	s.mu.Lock()
	s.outstanding = false
	s.mu.Unlock()
}

func persist(path string, value uint64) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("throttle: cannot create nonce directory %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(value, 10)), 0o600); err != nil {
		return fmt.Errorf("throttle: cannot persist nonce to %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
