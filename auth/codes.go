package auth

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"
)

type codeEntry struct {
	code    string
	expires time.Time
}

// CodeStore holds short-lived one-time codes keyed by username. Access is
// mutex-guarded and entries expire after the configured TTL; expired entries
// are swept lazily on every access.
type CodeStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]codeEntry
}

func NewCodeStore(ttl time.Duration) *CodeStore {
	return &CodeStore{
		ttl:     ttl,
		entries: make(map[string]codeEntry),
	}
}

// Issue generates a fresh six-digit code for the key, replacing any code
// previously issued to it.
func (s *CodeStore) Issue(key string) string {
	code := randomCode()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.entries[key] = codeEntry{code: code, expires: time.Now().Add(s.ttl)}
	return code
}

// Verify checks a submitted code against the live entry for the key. A
// successful match consumes the entry.
func (s *CodeStore) Verify(key, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()

	entry, ok := s.entries[key]
	if !ok || entry.code != code {
		return false
	}

	delete(s.entries, key)
	return true
}

// sweep drops expired entries; callers must hold the lock.
func (s *CodeStore) sweep() {
	now := time.Now()
	for key, entry := range s.entries {
		if now.After(entry.expires) {
			delete(s.entries, key)
		}
	}
}

func randomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		// crypto/rand failing means the platform is broken
		panic(err)
	}
	return big.NewInt(0).Add(n, big.NewInt(100000)).String()
}
