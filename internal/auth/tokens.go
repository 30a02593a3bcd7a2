package auth

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"sync"
	"time"
)

// TokenTTL is how long a minted bearer token stays valid.
const TokenTTL = 30 * time.Minute

// Session is the authenticated principal a bearer token resolves to.
type Session struct {
	AccountID uint32    `json:"accountId"`
	Username  string    `json:"username"`
	GMLevel   int       `json:"gmLevel"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenStore is the in-memory bearer token table. Tokens live only as long
// as the process; restarting the supervisor logs everyone out.
type TokenStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	now      func() time.Time
}

// NewTokenStore builds an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{sessions: make(map[string]Session), now: time.Now}
}

// Mint issues a fresh token for the account and registers its session.
func (t *TokenStore) Mint(accountID uint32, username string, gmLevel int) (string, Session, error) {
	token, err := generateToken()
	if err != nil {
		return "", Session{}, err
	}
	sess := Session{
		AccountID: accountID,
		Username:  username,
		GMLevel:   gmLevel,
		ExpiresAt: t.now().Add(TokenTTL),
	}
	t.mu.Lock()
	t.sessions[token] = sess
	t.mu.Unlock()
	return token, sess, nil
}

// Lookup resolves a bearer token. An expired entry is purged on read and
// reported as absent.
func (t *TokenStore) Lookup(token string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[token]
	if !ok {
		return Session{}, false
	}
	if !t.now().Before(sess.ExpiresAt) {
		delete(t.sessions, token)
		return Session{}, false
	}
	return sess, true
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.TrimRight(base64.URLEncoding.EncodeToString(buf), "="), nil
}
