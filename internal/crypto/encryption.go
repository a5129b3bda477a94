package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Sealer encrypts session values with AES-256-GCM.
// Ciphertexts are base64(nonce || sealed).
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a Sealer from a 32-byte key
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{aead: gcm}, nil
}

// KeyFromString derives a 32-byte key from an ENCRYPTION_KEY value.
// A base64 encoded 32-byte key is used as is, anything else is hashed with SHA-256.
func KeyFromString(keyString string) []byte {
	keyBytes, err := base64.StdEncoding.DecodeString(keyString)
	if err != nil {
		hash := sha256.Sum256([]byte(keyString))
		return hash[:]
	}
	if len(keyBytes) != 32 {
		hash := sha256.Sum256(keyBytes)
		return hash[:]
	}
	return keyBytes
}

// Encrypt returns base64-encoded ciphertext for plaintext
func (s *Sealer) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens base64-encoded ciphertext produced by Encrypt
func (s *Sealer) Decrypt(ciphertextB64 string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}
