package auth

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"math/big"
	"strings"
)

// srpNHex is Blizzard's 3.3.5a SRP-6 modulus, written big-endian the way
// protocol docs quote it. The account database stores every multi-byte SRP
// value little-endian; conversions happen at the math/big boundary below.
const srpNHex = "894B645E89E1535BBDAD5B8B290650530801B18EBFBF5E8FAB3C82872A3E9BB7"

// SaltSize and VerifierSize are the widths of the BINARY columns in the
// account table.
const (
	SaltSize     = 32
	VerifierSize = 32
)

var (
	srpN = mustParseModulus()
	srpG = big.NewInt(7)
)

func mustParseModulus() *big.Int {
	n, ok := new(big.Int).SetString(srpNHex, 16)
	if !ok {
		panic("auth: bad SRP modulus literal")
	}
	return n
}

// GenerateSalt draws a fresh random salt for a new account.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// CalculateVerifier derives the SRP-6 verifier the 3.3.5a way:
//
//	x = SHA1(salt ∥ SHA1(UPPER(user) ":" UPPER(pass)))
//	v = g^x mod N
//
// salt is hashed in its stored (little-endian) byte order; the 20-byte
// digest is itself little-endian, so it gets reversed before entering
// math/big, and the result reverses back on the way out. The returned
// verifier is always VerifierSize bytes, zero-padded at the high end.
func CalculateVerifier(username, password string, salt []byte) []byte {
	ident := sha1.Sum([]byte(strings.ToUpper(username) + ":" + strings.ToUpper(password)))

	h := sha1.New()
	h.Write(salt)
	h.Write(ident[:])
	xLE := h.Sum(nil)

	x := new(big.Int).SetBytes(reverseBytes(xLE))
	v := new(big.Int).Exp(srpG, x, srpN)

	out := make([]byte, VerifierSize)
	copy(out, reverseBytes(v.Bytes()))
	return out
}

// VerifyPassword recomputes the verifier from the presented credentials and
// compares it to the stored one in constant time.
func VerifyPassword(username, password string, salt, verifier []byte) bool {
	if len(salt) != SaltSize || len(verifier) != VerifierSize {
		return false
	}
	computed := CalculateVerifier(username, password, salt)
	return subtle.ConstantTimeCompare(computed, verifier) == 1
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
