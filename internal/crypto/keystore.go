package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

const (
	keystoreService = "dcpinventory-desktop"
	keystoreUser    = "session-key"
)

// LoadSealer builds the session Sealer.
// Priority:
// 1. ENCRYPTION_KEY (development/testing)
// 2. System keychain
// 3. Generate a new key and store it in the keychain
func LoadSealer(envKey string, log *zap.SugaredLogger) (*Sealer, error) {
	if envKey != "" {
		return NewSealer(KeyFromString(envKey))
	}

	key, err := GenerateOrLoadKey(log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption from keystore: %w", err)
	}
	return NewSealer(key)
}

// GenerateOrLoadKey loads the 32-byte session key from the system keychain,
// generating and storing one on first use
func GenerateOrLoadKey(log *zap.SugaredLogger) ([]byte, error) {
	keyString, err := keyring.Get(keystoreService, keystoreUser)
	if err == nil && len(keyString) == 32 {
		return []byte(keyString), nil
	}

	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		log.Warnf("Keystore warning: %v", err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	if err := keyring.Set(keystoreService, keystoreUser, string(key)); err != nil {
		// Headless Linux often has no secret service; the session then lasts one launch
		log.Warnf("Failed to store key in keychain: %v (key will be regenerated on next launch)", err)

		if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
			return nil, fmt.Errorf("keychain storage required on %s: %w", runtime.GOOS, err)
		}
	}

	return key, nil
}

// DeleteKey removes the session key from the keychain
func DeleteKey() error {
	return keyring.Delete(keystoreService, keystoreUser)
}

// IsKeyStored checks if a session key exists in the keychain
func IsKeyStored() bool {
	_, err := keyring.Get(keystoreService, keystoreUser)
	return err == nil
}
