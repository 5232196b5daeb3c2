// Package obfstr seals literal values at rewrite time and reveals them at run
// time. Rewritten programs import it and call S, N and View; the rewriting
// tool calls Seal.
//
// Tokens are base64 (standard, padded) encodings of nonce || ciphertext
// produced by XChaCha20-Poly1305 with a 24-byte random nonce.
//
// The key of a rewritten program is linked in with
//
//	-ldflags "-X github.com/gnolang/gobfus/rt/obfstr.keyHex=<64 hex digits>"
//
// or installed with SetKey before the first protected value is revealed.
package obfstr

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of a sealing key in bytes.
const KeySize = chacha20poly1305.KeySize

// Key is a 256-bit sealing key.
type Key [KeySize]byte

// ErrProtection is returned when a token cannot be authenticated or decoded.
// No partially decrypted data is ever returned alongside it.
var ErrProtection = errors.New("obfstr: protected value failed authentication")

// keyHex is set by the linker.
var keyHex string

var active atomic.Pointer[Key]

// NewKey returns a fresh random key.
func NewKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("obfstr: generating key: %w", err)
	}
	return k, nil
}

// ParseKey decodes a 64-digit hex key.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("obfstr: invalid key: %w", err)
	}
	if len(b) != KeySize {
		return Key{}, fmt.Errorf("obfstr: invalid key length %d, want %d bytes", len(b), KeySize)
	}
	copy(k[:], b)
	return k, nil
}

// String returns the hex form of k, suitable for ParseKey and -ldflags.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// SetKey installs k as the key used by S and N.
func SetKey(k Key) {
	active.Store(&k)
}

func currentKey() (Key, error) {
	if k := active.Load(); k != nil {
		return *k, nil
	}
	if keyHex == "" {
		return Key{}, errors.New("obfstr: no key linked into this binary")
	}
	k, err := ParseKey(keyHex)
	if err != nil {
		return Key{}, err
	}
	active.CompareAndSwap(nil, &k)
	return *active.Load(), nil
}

// Seal encrypts s under k and returns its token.
func Seal(k Key, s string) (string, error) {
	aead, err := chacha20poly1305.NewX(k[:])
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(s)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("obfstr: reading nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(s), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts token with k. Any malformed or forged token yields
// ErrProtection.
func Open(k Key, token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", ErrProtection
	}

	aead, err := chacha20poly1305.NewX(k[:])
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrProtection
	}

	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrProtection
	}
	return string(plain), nil
}

// SealUint seals the decimal form of v.
func SealUint(k Key, v uint64) (string, error) {
	return Seal(k, strconv.FormatUint(v, 10))
}

// S reveals a protected string. It panics when the token does not
// authenticate under the active key; a rewritten program cannot run with a
// wrong key.
func S(token string) string {
	k, err := currentKey()
	if err != nil {
		panic(err)
	}
	s, err := Open(k, token)
	if err != nil {
		panic(err)
	}
	return s
}

// N reveals a protected integer. Callers convert the result to the literal's
// original type.
func N(token string) uint64 {
	v, err := strconv.ParseUint(S(token), 10, 64)
	if err != nil {
		panic(fmt.Errorf("%w: %v", ErrProtection, err))
	}
	return v
}

// View returns s unchanged. Rewritten switch statements scrutinize through it
// so the comparison reads a revealed value rather than a constant.
//
//go:noinline
func View[T ~string](s T) T {
	return s
}
