package settings

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "enc:v1:"

var ErrNoEncryptionKey = errors.New("encryption key is not configured")

// SecretCipher seals setting values with XChaCha20-Poly1305. Sealed values
// look like enc:v1:<base64(nonce|ciphertext)>.
type SecretCipher struct {
	aead cipher.AEAD
}

func NewSecretCipher(key []byte) (*SecretCipher, error) {
	if len(key) == 0 {
		return nil, ErrNoEncryptionKey
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return &SecretCipher{aead: aead}, nil
}

// Seal encrypts plain. The setting key is bound as associated data so a
// sealed value cannot be moved to another key.
func (c *SecretCipher) Seal(key, plain string) (string, error) {
	if c == nil {
		return "", ErrNoEncryptionKey
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+chacha20poly1305.Overhead)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), []byte(key))
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed value. Values without the prefix are returned as
// stored.
func (c *SecretCipher) Open(key, value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if c == nil {
		return "", ErrNoEncryptionKey
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	n := c.aead.NonceSize()
	if len(payload) <= n {
		return "", errors.New("sealed value is truncated")
	}
	plain, err := c.aead.Open(nil, payload[:n], payload[n:], []byte(key))
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
