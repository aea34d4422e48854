package server

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TokenManager issues short-lived opaque tokens. Tokens are random
// identifiers held server-side with their issue time and, optionally,
// the client IP they were issued to. Expired entries are purged lazily
// on every issue.
type TokenManager struct {
	mu           sync.Mutex
	tokens       map[string]tokenEntry
	purgeTimeout time.Duration
	ipCheck      bool
	now          func() time.Time
}

type tokenEntry struct {
	ip       string
	issuedAt time.Time
}

// NewTokenManager creates a manager purging tokens older than
// purgeTimeout. With ipCheck set, validation also requires the
// requesting IP to match the issuing one.
func NewTokenManager(purgeTimeout time.Duration, ipCheck bool) *TokenManager {
	return &TokenManager{
		tokens:       make(map[string]tokenEntry),
		purgeTimeout: purgeTimeout,
		ipCheck:      ipCheck,
		now:          time.Now,
	}
}

// Issue creates a token bound to the given client IP.
func (m *TokenManager) Issue(ip string) string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()
	m.tokens[token] = tokenEntry{ip: ip, issuedAt: m.now()}
	return token
}

// Validate reports whether token is known, unexpired, and (when IP
// checking is on) presented from the IP it was issued to.
func (m *TokenManager) Validate(token, ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.tokens[token]
	if !ok {
		return false
	}
	if m.now().Sub(entry.issuedAt) > m.purgeTimeout {
		delete(m.tokens, token)
		return false
	}
	if m.ipCheck && entry.ip != ip {
		return false
	}
	return true
}

func (m *TokenManager) purgeLocked() {
	cutoff := m.now().Add(-m.purgeTimeout)
	for token, entry := range m.tokens {
		if entry.issuedAt.Before(cutoff) {
			delete(m.tokens, token)
		}
	}
}
