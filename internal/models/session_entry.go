package models

import (
	"time"
)

// SessionEntry is one persisted key of the signed-in user's session.
// Value is sealed with AES-GCM before it reaches the database.
type SessionEntry struct {
	Key       string    `gorm:"primaryKey;column:session_key" json:"key"`
	ValueEnc  string    `gorm:"type:text;not null;column:value_enc" json:"-"` // Encrypted, never expose in JSON
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (SessionEntry) TableName() string {
	return "session_entries"
}
