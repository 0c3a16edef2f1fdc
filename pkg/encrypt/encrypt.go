package encrypt

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ContentCipher seals and opens message content. The rest of the service
// treats sealed content as opaque text; plaintext never reaches storage or
// the wire.
type ContentCipher struct {
	key []byte
}

var (
	// ErrBadKey key is not a hex-encoded 32-byte value
	ErrBadKey = errors.New("content key must be 32 bytes, hex encoded")
	// ErrCorruptContent sealed content failed to authenticate
	ErrCorruptContent = errors.New("sealed content is corrupt")
)

// NewContentCipher builds a cipher from a hex-encoded 32-byte key.
func NewContentCipher(keyHex string) (*ContentCipher, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, ErrBadKey
	}
	return &ContentCipher{key: key}, nil
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext).
func (c *ContentCipher) Seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("build aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts content produced by Seal.
func (c *ContentCipher) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrCorruptContent
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("build aead: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", ErrCorruptContent
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCorruptContent
	}

	return string(plaintext), nil
}
