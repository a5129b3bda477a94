// Package session keeps the signed-in user's session (token, user profile)
// in a key-value store that is loaded once and persisted on every write.
package session

import (
	"errors"
	"fmt"
	"sync"

	"dcpinventory-desktop/internal/crypto"
	"dcpinventory-desktop/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Well-known session keys
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// Store is the session capability handed to components that need identity
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Clear() error
}

// MemoryStore is a Store that lives for one process
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value for key
func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Set stores value under key
func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Clear removes every key
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
	return nil
}

// DBStore is a Store persisted to the session_entries table.
// Values are sealed before they are written; reads are served from memory.
type DBStore struct {
	db     *gorm.DB
	sealer *crypto.Sealer
	log    *zap.SugaredLogger

	mu     sync.RWMutex
	values map[string]string
	loaded bool
}

// NewDBStore creates a DBStore. Call Load before use.
func NewDBStore(db *gorm.DB, sealer *crypto.Sealer, log *zap.SugaredLogger) *DBStore {
	return &DBStore{
		db:     db,
		sealer: sealer,
		log:    log,
		values: make(map[string]string),
	}
}

// Load reads every persisted entry into memory.
// Entries that no longer decrypt (rotated key) are dropped.
func (s *DBStore) Load() error {
	var entries []models.SessionEntry
	if err := s.db.Find(&entries).Error; err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	values := make(map[string]string, len(entries))
	var stale []string
	for _, e := range entries {
		v, err := s.sealer.Decrypt(e.ValueEnc)
		if err != nil {
			s.log.Warnf("[session] dropping unreadable entry %q: %v", e.Key, err)
			stale = append(stale, e.Key)
			continue
		}
		values[e.Key] = v
	}

	if len(stale) > 0 {
		if err := s.db.Where("session_key IN ?", stale).Delete(&models.SessionEntry{}).Error; err != nil {
			s.log.Warnf("[session] failed to delete unreadable entries: %v", err)
		}
	}

	s.mu.Lock()
	s.values = values
	s.loaded = true
	s.mu.Unlock()

	s.log.Debugf("[session] loaded %d entries", len(values))
	return nil
}

// Get returns the value for key
func (s *DBStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set seals value, persists it, then updates memory
func (s *DBStore) Set(key, value string) error {
	if !s.isLoaded() {
		return errors.New("session store not loaded")
	}

	enc, err := s.sealer.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to seal session value: %w", err)
	}

	entry := models.SessionEntry{Key: key, ValueEnc: enc}
	if err := s.db.Save(&entry).Error; err != nil {
		return fmt.Errorf("failed to persist session key %q: %w", key, err)
	}

	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

// Clear deletes every persisted entry
func (s *DBStore) Clear() error {
	if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.SessionEntry{}).Error; err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	s.mu.Lock()
	s.values = make(map[string]string)
	s.mu.Unlock()
	return nil
}

func (s *DBStore) isLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}
