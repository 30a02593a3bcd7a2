package auth

import (
	"regexp"
	"testing"
	"time"
)

func TestMintAndLookup(t *testing.T) {
	store := NewTokenStore()
	token, sess, err := store.Mint(7, "ADMIN", 3)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if sess.AccountID != 7 || sess.Username != "ADMIN" || sess.GMLevel != 3 {
		t.Fatalf("session = %+v", sess)
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl < TokenTTL-time.Minute || ttl > TokenTTL {
		t.Fatalf("expiry %v from now, want about %v", ttl, TokenTTL)
	}

	got, ok := store.Lookup(token)
	if !ok {
		t.Fatal("freshly minted token not found")
	}
	if got != sess {
		t.Fatalf("Lookup = %+v, want %+v", got, sess)
	}

	other, _, err := store.Mint(7, "ADMIN", 3)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if other == token {
		t.Fatal("two mints produced the same token")
	}
}

func TestLookupUnknown(t *testing.T) {
	store := NewTokenStore()
	if _, ok := store.Lookup("nope"); ok {
		t.Fatal("unknown token resolved")
	}
}

func TestLookupPurgesExpired(t *testing.T) {
	store := NewTokenStore()
	token, _, err := store.Mint(1, "USER", 0)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	store.now = func() time.Time { return time.Now().Add(TokenTTL + time.Second) }
	if _, ok := store.Lookup(token); ok {
		t.Fatal("expired token resolved")
	}

	// The expired entry is gone, not just hidden.
	store.mu.Lock()
	n := len(store.sessions)
	store.mu.Unlock()
	if n != 0 {
		t.Fatalf("store still holds %d sessions after purge", n)
	}
}

func TestTokenFormat(t *testing.T) {
	token, err := generateToken()
	if err != nil {
		t.Fatalf("generateToken: %v", err)
	}
	// 32 random bytes base64url-encode to 44 characters including one
	// pad, which gets stripped.
	if len(token) != 43 {
		t.Fatalf("token length = %d, want 43", len(token))
	}
	if !regexp.MustCompile(`^[A-Za-z0-9_-]+$`).MatchString(token) {
		t.Fatalf("token %q contains non-url-safe characters", token)
	}
}
