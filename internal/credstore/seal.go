package credstore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Seal encrypts token material before it touches disk. AEAD with a random
// nonce prepended to the ciphertext, base64-encoded for the TEXT column.
type Seal struct {
	aead cipher.AEAD
}

// NewSeal creates a Seal from a 32-byte key.
func NewSeal(key []byte) (*Seal, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("credstore: seal key: %w", err)
	}
	return &Seal{aead: aead}, nil
}

// Encrypt seals plaintext and returns nonce||ciphertext, base64-encoded.
func (s *Seal) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("credstore: nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (s *Seal) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("credstore: decode sealed token: %w", err)
	}
	if len(sealed) < s.aead.NonceSize() {
		return "", fmt.Errorf("credstore: sealed token too short")
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("credstore: unseal token: %w", err)
	}
	return string(plain), nil
}
