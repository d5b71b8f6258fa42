// Package secretbox encrypts provider refresh/access tokens at rest
// using XChaCha20-Poly1305. The envelope is a colon-separated triple of
// hex strings so it round-trips cleanly through a text database column.
package secretbox

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/inboxforge/core/internal/apperr"
)

const keySize = chacha20poly1305.KeySize // 32

// Box seals and opens token material with a single 256-bit key.
type Box struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
		Overhead() int
	}
}

// NewBox builds a Box from a hex-encoded 32-byte key, as loaded from
// the ENCRYPTION_KEY environment variable.
func NewBox(hexKey string) (*Box, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, apperr.Validation("encryption key is not valid hex")
	}
	if len(key) != keySize {
		return nil, apperr.Validation(fmt.Sprintf("encryption key must be %d bytes, got %d", keySize, len(key)))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, apperr.IntegrityFailure("failed to initialize cipher", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext and returns the hex(nonce):hex(tag):hex(ciphertext)
// envelope. The tag is the trailing Overhead() bytes the AEAD appends;
// splitting it out keeps the envelope self-describing without requiring
// a length-prefixed ciphertext segment.
func (b *Box) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", apperr.IntegrityFailure("failed to generate nonce", err)
	}

	sealed := b.aead.Seal(nil, nonce, plaintext, nil)
	overhead := b.aead.Overhead()
	ciphertext, tag := sealed[:len(sealed)-overhead], sealed[len(sealed)-overhead:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// Open decrypts an envelope produced by Seal. Any structural or MAC
// failure collapses to apperr.IntegrityFailure since the caller cannot
// do anything but refuse to use the token and prompt re-authentication.
func (b *Box) Open(envelope string) ([]byte, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return nil, apperr.IntegrityFailure("malformed token envelope", nil)
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != b.aead.NonceSize() {
		return nil, apperr.IntegrityFailure("malformed token envelope nonce", err)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != b.aead.Overhead() {
		return nil, apperr.IntegrityFailure("malformed token envelope tag", err)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, apperr.IntegrityFailure("malformed token envelope ciphertext", err)
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := b.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, apperr.IntegrityFailure("token envelope failed authentication", err)
	}
	return plaintext, nil
}
